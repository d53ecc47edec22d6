// Package signer abstracts "who can produce valid signatures and decrypt
// content for this user". Two implementations exist: LocalSigner wraps an
// in-process secret key, BunkerSigner proxies every operation to a remote
// approval agent over its relay set. Callers never branch on the concrete
// type; the remote variant's connection lifecycle is fully encapsulated.
package signer

import (
	"context"

	"github.com/nbd-wtf/go-nostr"
)

// Signer is the capability set shared by all signing identities.
type Signer interface {
	// PublicKey returns the hex public key of the identity.
	PublicKey(ctx context.Context) (string, error)

	// SignEvent fills in pubkey, id and signature on the given event.
	SignEvent(ctx context.Context, evt *nostr.Event) error

	// Encrypt encrypts plaintext to the pairwise conversation key derived
	// from this identity and peerPubkey. With peerPubkey equal to the own
	// public key this is self-encryption.
	Encrypt(ctx context.Context, peerPubkey, plaintext string) (string, error)

	// Decrypt reverses Encrypt for content produced by either side of the
	// pair.
	Decrypt(ctx context.Context, peerPubkey, ciphertext string) (string, error)
}

// SecretKeyer is implemented only by the local signer. The gift-wrapped
// notification protocol needs raw key access and is unavailable when signing
// is delegated.
type SecretKeyer interface {
	SecretKey() string
}

// Closer is implemented by signers holding live connections.
type Closer interface {
	Close() error
}
