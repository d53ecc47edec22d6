// Package vault implements the versioned document store: a replaceable vault
// index (manifest of files and tombstones) and independently published,
// self-encrypted file records, plus the sync orchestrator reconciling a local
// file set against the remote vault.
package vault

import "encoding/json"

// Vault is the manifest of one logical document collection. It is published
// as a replaceable event: the newest event for a given D wins. EventID tracks
// the index event currently backing this manifest and changes on every
// republish, so callers must always use the vault returned by a mutation.
type Vault struct {
	EventID     string          `json:"-"`
	D           string          `json:"d"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Created     int64           `json:"created"`
	Files       []FileEntry     `json:"files"`
	Deleted     []Tombstone     `json:"deleted,omitempty"`
	Settings    json.RawMessage `json:"settings,omitempty"`
}

// FileEntry is the index pointer: a denormalized summary of the newest
// FilePayload for a stable identifier.
type FileEntry struct {
	EventID  string `json:"eventId"`
	D        string `json:"d"`
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
	Version  int    `json:"version"`
	Modified int64  `json:"modified"`
}

// FilePayload is the authoritative file record carried (self-encrypted) in a
// file event. Records are never mutated in place; every edit publishes a new
// event with version incremented and PreviousEventID linking back.
type FilePayload struct {
	Path            string       `json:"path"`
	Content         string       `json:"content"`
	Checksum        string       `json:"checksum"`
	Version         int          `json:"version"`
	Modified        int64        `json:"modified"`
	PreviousEventID string       `json:"previousEventId,omitempty"`
	ContentType     string       `json:"contentType,omitempty"`
	Attachments     []Attachment `json:"attachments,omitempty"`
}

// Attachment references an external binary blob belonging to a file.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Hash string `json:"hash,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Tombstone records that a path was intentionally removed, suppressing its
// re-download from stale remote copies.
type Tombstone struct {
	Path        string `json:"path"`
	DeletedAt   int64  `json:"deletedAt"`
	LastEventID string `json:"lastEventId,omitempty"`
}

// RemoteFile is a decrypted file record as fetched from the relays.
type RemoteFile struct {
	FileEntry
	Content         string
	ContentType     string
	PreviousEventID string
	Attachments     []Attachment
}

// FindFile returns the index entry with the given stable identifier, or nil.
func (v *Vault) FindFile(d string) *FileEntry {
	for i := range v.Files {
		if v.Files[i].D == d {
			return &v.Files[i]
		}
	}
	return nil
}

// FindFileByPath returns the index entry at the given path, or nil.
func (v *Vault) FindFileByPath(path string) *FileEntry {
	for i := range v.Files {
		if v.Files[i].Path == path {
			return &v.Files[i]
		}
	}
	return nil
}

// IsDeleted reports whether path is tombstoned.
func (v *Vault) IsDeleted(path string) bool {
	for _, t := range v.Deleted {
		if t.Path == path {
			return true
		}
	}
	return false
}

// clone returns a deep-enough copy so mutations never corrupt the caller's
// manifest when a publish fails midway.
func (v *Vault) clone() *Vault {
	out := *v
	out.Files = append([]FileEntry(nil), v.Files...)
	out.Deleted = append([]Tombstone(nil), v.Deleted...)
	return &out
}
