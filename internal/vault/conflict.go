package vault

import "github.com/driftnotes/drift/internal/common"

// Conflict exposes both sides of a detected divergence. Resolution is a
// caller concern; the engine never merges content.
type Conflict struct {
	Path           string
	LocalContent   string
	LocalChecksum  string
	LocalVersion   int
	RemoteContent  string
	RemoteChecksum string
	RemoteVersion  int
	RemoteModified int64
}

// CheckConflict compares local state against a fetched remote file.
//
// No conflict when the content is identical (checksums match, whatever the
// version numbers say) or when the local version equals the remote version:
// the local copy is then known to be derived from exactly that remote record
// and simply carries unpublished edits.
func CheckConflict(localContent string, localVersion int, remote *RemoteFile) *Conflict {
	localChecksum := common.Checksum(localContent)
	if localChecksum == remote.Checksum {
		return nil
	}
	if localVersion == remote.Version {
		return nil
	}
	return &Conflict{
		Path:           remote.Path,
		LocalContent:   localContent,
		LocalChecksum:  localChecksum,
		LocalVersion:   localVersion,
		RemoteContent:  remote.Content,
		RemoteChecksum: remote.Checksum,
		RemoteVersion:  remote.Version,
		RemoteModified: remote.Modified,
	}
}
