// Package vaultfs gives the sync orchestrator access to a local vault
// directory: a recursive walk over markdown files that skips hidden entries,
// with writes confined to the vault root.
package vaultfs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/driftnotes/drift/internal/vault"
)

// DirStore implements vault.LocalStore over a directory tree.
type DirStore struct {
	root string
}

// NewDirStore validates that root exists and is a directory.
func NewDirStore(root string) (*DirStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving vault path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("opening vault directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("vault path %s is not a directory", abs)
	}
	return &DirStore{root: abs}, nil
}

// Root returns the absolute vault root.
func (d *DirStore) Root() string { return d.root }

// List walks the vault collecting every markdown file. Hidden files and
// directories (dot-prefixed) are skipped.
func (d *DirStore) List(ctx context.Context) ([]vault.LocalFile, error) {
	var out []vault.LocalFile
	err := filepath.WalkDir(d.root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") && path != d.root {
			if entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if entry.IsDir() || !strings.HasSuffix(name, ".md") {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		rel, err := filepath.Rel(d.root, path)
		if err != nil {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		out = append(out, vault.LocalFile{
			Path:     filepath.ToSlash(rel),
			Content:  string(content),
			Modified: info.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Write stores content at the given vault-relative path, creating parent
// directories as needed. Paths escaping the vault root are rejected.
func (d *DirStore) Write(ctx context.Context, path, content string) error {
	abs, err := d.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("creating directories for %s: %w", path, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// Remove deletes the file at the given vault-relative path. Missing files
// are not an error.
func (d *DirStore) Remove(ctx context.Context, path string) error {
	abs, err := d.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	return nil
}

// resolve joins path onto the root and verifies containment.
func (d *DirStore) resolve(path string) (string, error) {
	abs := filepath.Join(d.root, filepath.FromSlash(path))
	rel, err := filepath.Rel(d.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the vault directory", path)
	}
	return abs, nil
}
