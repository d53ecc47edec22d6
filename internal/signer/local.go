package signer

import (
	"context"
	"fmt"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip44"
)

// LocalSigner wraps an in-process secret key. All operations complete without
// touching the network.
type LocalSigner struct {
	secretKey string
	publicKey string
}

// NewLocalSigner builds a signer around the given hex secret key.
func NewLocalSigner(secretKey string) (*LocalSigner, error) {
	pk, err := nostr.GetPublicKey(secretKey)
	if err != nil {
		return nil, fmt.Errorf("deriving public key: %w", err)
	}
	return &LocalSigner{secretKey: secretKey, publicKey: pk}, nil
}

func (s *LocalSigner) PublicKey(ctx context.Context) (string, error) {
	return s.publicKey, nil
}

func (s *LocalSigner) SignEvent(ctx context.Context, evt *nostr.Event) error {
	if err := evt.Sign(s.secretKey); err != nil {
		return fmt.Errorf("signing event: %w", err)
	}
	return nil
}

func (s *LocalSigner) Encrypt(ctx context.Context, peerPubkey, plaintext string) (string, error) {
	ck, err := nip44.GenerateConversationKey(peerPubkey, s.secretKey)
	if err != nil {
		return "", fmt.Errorf("deriving conversation key: %w", err)
	}
	ciphertext, err := nip44.Encrypt(plaintext, ck)
	if err != nil {
		return "", fmt.Errorf("encrypting: %w", err)
	}
	return ciphertext, nil
}

func (s *LocalSigner) Decrypt(ctx context.Context, peerPubkey, ciphertext string) (string, error) {
	ck, err := nip44.GenerateConversationKey(peerPubkey, s.secretKey)
	if err != nil {
		return "", fmt.Errorf("deriving conversation key: %w", err)
	}
	plaintext, err := nip44.Decrypt(ciphertext, ck)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	return plaintext, nil
}

// SecretKey exposes the raw key for the out-of-band notification protocol.
func (s *LocalSigner) SecretKey() string {
	return s.secretKey
}
