package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/driftnotes/drift/internal/common"
)

// LocalFile is one document from the local side of the reconciliation.
type LocalFile struct {
	Path     string
	Content  string
	Modified int64
}

// LocalStore is the engine's view of the local filesystem; disk access itself
// is an external collaborator's concern.
type LocalStore interface {
	// List returns every syncable local file with its content.
	List(ctx context.Context) ([]LocalFile, error)

	// Write persists a downloaded remote file locally.
	Write(ctx context.Context, path, content string) error
}

// Progress receives the human-readable sync narrative. A nil Progress is
// valid and discards it.
type Progress func(msg string)

// SyncResult reports what one reconciliation pass did. Vault is the manifest
// as of the last successful index republish and must replace the caller's
// copy.
type SyncResult struct {
	Uploaded   int
	Downloaded int
	Unchanged  int
	Vault      *Vault
}

// Sync reconciles the local file set against the remote vault: changed and
// new local files are uploaded, remote-only files are downloaded unless
// tombstoned, and the narrative is reported step by step. A failure aborts
// the pass but leaves previously synced files intact.
func (s *Service) Sync(ctx context.Context, v *Vault, store LocalStore, report Progress) (*SyncResult, error) {
	if report == nil {
		report = func(string) {}
	}

	report(fmt.Sprintf("Fetching remote files for vault %q...", v.Name))
	remote, err := s.FetchVaultFiles(ctx, v)
	if err != nil {
		report("Sync failed while fetching remote files.")
		return nil, err
	}
	remoteByPath := make(map[string]*RemoteFile, len(remote))
	for _, rf := range remote {
		remoteByPath[rf.Path] = rf
	}

	report("Reading local files...")
	locals, err := store.List(ctx)
	if err != nil {
		report("Sync failed while reading local files.")
		return nil, fmt.Errorf("listing local files: %w", err)
	}

	result := &SyncResult{Vault: v}
	for _, local := range locals {
		rf := remoteByPath[local.Path]
		delete(remoteByPath, local.Path)

		if rf != nil && common.Checksum(local.Content) == rf.Checksum {
			result.Unchanged++
			continue
		}

		if result.Uploaded > 0 {
			// Fixed inter-upload delay; keeps bulk pushes under relay
			// rate limits.
			select {
			case <-time.After(s.uploadDelay):
			case <-ctx.Done():
				report("Sync cancelled.")
				return nil, ctx.Err()
			}
		}

		report(fmt.Sprintf("Uploading %s...", local.Path))
		existing := result.Vault.FindFileByPath(local.Path)
		_, updated, err := s.PublishFile(ctx, result.Vault, local.Path, local.Content, existing)
		if err != nil {
			report(fmt.Sprintf("Sync failed while uploading %s.", local.Path))
			return nil, fmt.Errorf("uploading %s: %w", local.Path, err)
		}
		result.Vault = updated
		result.Uploaded++
	}

	for path, rf := range remoteByPath {
		if result.Vault.IsDeleted(path) {
			// Tombstoned paths never come back from stale remote copies.
			continue
		}
		report(fmt.Sprintf("Downloading %s...", path))
		if err := store.Write(ctx, path, rf.Content); err != nil {
			report(fmt.Sprintf("Sync failed while writing %s.", path))
			return nil, fmt.Errorf("writing %s: %w", path, err)
		}
		result.Downloaded++
	}

	report(fmt.Sprintf("Sync complete: %d uploaded, %d downloaded, %d unchanged.",
		result.Uploaded, result.Downloaded, result.Unchanged))
	return result, nil
}
