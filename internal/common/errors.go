package common

import "errors"

var (
	// Configuration errors. Fatal: the caller must configure the engine
	// before invoking any operation.
	ErrNoSigner = errors.New("no signer configured")
	ErrNoRelays = errors.New("no relays configured")

	// Transport errors. Individual endpoint failures are swallowed; this is
	// surfaced only when every configured endpoint rejected or was unreachable.
	ErrAllRelaysFailed = errors.New("failed to publish to any relay")

	// Remote-approval signer errors.
	ErrApprovalTimeout = errors.New("remote signer did not respond; the request may require manual approval")

	// Repository-level errors.
	ErrNotFound = errors.New("not found")
)
