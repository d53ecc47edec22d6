// Package keystore persists identity secret keys on disk, encrypted with a
// passphrase-derived key.
package keystore

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"

	"github.com/driftnotes/drift/internal/common"
)

// ErrBadPassphrase is returned when the stored key cannot be decrypted with
// the supplied passphrase.
var ErrBadPassphrase = errors.New("wrong passphrase")

// Store reads and writes named secret keys.
type Store interface {
	Set(ctx context.Context, name, secretKey string, passphrase []byte) error
	Get(ctx context.Context, name string, passphrase []byte) (string, error)
	Delete(ctx context.Context, name string) error
}

type keyFile struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// FileStore keeps one encrypted file per identity under its directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating keystore dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func deriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+".key")
}

// Set encrypts secretKey with the passphrase and writes it, replacing any
// previous key under the same name.
func (s *FileStore) Set(ctx context.Context, name, secretKey string, passphrase []byte) error {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("generating salt: %w", err)
	}

	key := deriveKey(passphrase, salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return err
	}
	nonce := make([]byte, aesgcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("generating nonce: %w", err)
	}

	body, err := json.Marshal(keyFile{
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aesgcm.Seal(nil, nonce, []byte(secretKey), nil),
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.path(name), body, 0o600); err != nil {
		return fmt.Errorf("writing key file: %w", err)
	}
	return nil
}

// Get decrypts and returns the named secret key.
func (s *FileStore) Get(ctx context.Context, name string, passphrase []byte) (string, error) {
	body, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("key %q: %w", name, common.ErrNotFound)
		}
		return "", fmt.Errorf("reading key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(body, &kf); err != nil {
		return "", fmt.Errorf("decoding key file: %w", err)
	}

	key := deriveKey(passphrase, kf.Salt)
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	aesgcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	plaintext, err := aesgcm.Open(nil, kf.Nonce, kf.Ciphertext, nil)
	if err != nil {
		return "", ErrBadPassphrase
	}
	return string(plaintext), nil
}

// Delete removes the named key. Deleting a missing key is not an error.
func (s *FileStore) Delete(ctx context.Context, name string) error {
	if err := os.Remove(s.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting key file: %w", err)
	}
	return nil
}
