// Package identity models the user's keypair and its human-readable
// encodings. The secret key never leaves this process except when the user
// delegates signing to a remote approval agent, which holds its own keys.
package identity

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip19"
)

// Identity is a keypair plus its bech32 encodings.
type Identity struct {
	SecretKey string // hex
	PublicKey string // hex
	Nsec      string
	Npub      string
}

// Generate creates a fresh keypair.
func Generate() (*Identity, error) {
	sk := nostr.GeneratePrivateKey()
	return FromSecretKey(sk)
}

// FromSecretKey builds an Identity from a secret key given either as hex or
// as an nsec bech32 string.
func FromSecretKey(key string) (*Identity, error) {
	sk := strings.TrimSpace(key)
	if strings.HasPrefix(sk, "nsec1") {
		prefix, value, err := nip19.Decode(sk)
		if err != nil {
			return nil, fmt.Errorf("decoding nsec: %w", err)
		}
		if prefix != "nsec" {
			return nil, fmt.Errorf("unexpected key prefix %q", prefix)
		}
		sk = value.(string)
	}
	if !isHexKey(sk) {
		return nil, fmt.Errorf("secret key is not a 32-byte hex string")
	}

	pk, err := nostr.GetPublicKey(sk)
	if err != nil {
		return nil, fmt.Errorf("deriving public key: %w", err)
	}
	nsec, err := nip19.EncodePrivateKey(sk)
	if err != nil {
		return nil, fmt.Errorf("encoding nsec: %w", err)
	}
	npub, err := nip19.EncodePublicKey(pk)
	if err != nil {
		return nil, fmt.Errorf("encoding npub: %w", err)
	}

	return &Identity{SecretKey: sk, PublicKey: pk, Nsec: nsec, Npub: npub}, nil
}

// DecodePublicKey normalizes a public key given as hex or npub to hex.
func DecodePublicKey(key string) (string, error) {
	pk := strings.TrimSpace(key)
	if strings.HasPrefix(pk, "npub1") {
		prefix, value, err := nip19.Decode(pk)
		if err != nil {
			return "", fmt.Errorf("decoding npub: %w", err)
		}
		if prefix != "npub" {
			return "", fmt.Errorf("unexpected key prefix %q", prefix)
		}
		pk = value.(string)
	}
	if !isHexKey(pk) {
		return "", fmt.Errorf("public key is not a 32-byte hex string")
	}
	return pk, nil
}

func isHexKey(s string) bool {
	if len(s) != 64 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
