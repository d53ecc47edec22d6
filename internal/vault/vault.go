package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"

	"github.com/driftnotes/drift/internal/common"
	"github.com/driftnotes/drift/internal/logging"
	"github.com/driftnotes/drift/internal/relays"
	"github.com/driftnotes/drift/internal/signer"
)

// defaultUploadDelay spaces successive file publishes to avoid relay
// throttling during bulk sync.
const defaultUploadDelay = 300 * time.Millisecond

// Service owns all vault and file operations. Content is always
// self-encrypted before it leaves the process.
type Service struct {
	rc  relays.Client
	sg  signer.Signer
	log logging.Logger

	uploadDelay time.Duration
}

func NewService(rc relays.Client, sg signer.Signer, log logging.Logger) *Service {
	return &Service{rc: rc, sg: sg, log: log, uploadDelay: defaultUploadDelay}
}

// CreateVault publishes an empty vault manifest and returns it.
func (s *Service) CreateVault(ctx context.Context, name, description string) (*Vault, error) {
	v := &Vault{
		D:           uuid.NewString(),
		Name:        name,
		Description: description,
		Created:     time.Now().Unix(),
		Files:       []FileEntry{},
	}
	return s.publishIndex(ctx, v)
}

// FetchVaults returns all of the user's vaults, newest index event per stable
// identifier. Undecryptable or malformed indices are skipped, not fatal.
func (s *Service) FetchVaults(ctx context.Context) ([]*Vault, error) {
	pub, err := s.sg.PublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving identity: %w", err)
	}
	events, err := s.rc.QuerySync(ctx, nostr.Filter{
		Kinds:   []int{common.KindVaultIndex},
		Authors: []string{pub},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching vault indices: %w", err)
	}

	// Events arrive newest first; keep the first (newest) per d tag.
	newest := map[string]*nostr.Event{}
	order := []string{}
	for _, evt := range events {
		tag := evt.Tags.GetFirst([]string{common.TagD})
		if tag == nil {
			continue
		}
		d := tag.Value()
		if _, ok := newest[d]; !ok {
			newest[d] = evt
			order = append(order, d)
		}
	}

	vaults := make([]*Vault, 0, len(newest))
	for _, d := range order {
		v, err := s.decodeIndex(ctx, newest[d])
		if err != nil {
			s.log.Warn(ctx, "skipping unreadable vault index", "d", d, "error", err)
			continue
		}
		vaults = append(vaults, v)
	}
	return vaults, nil
}

func (s *Service) decodeIndex(ctx context.Context, evt *nostr.Event) (*Vault, error) {
	plaintext, err := s.sg.Decrypt(ctx, evt.PubKey, evt.Content)
	if err != nil {
		return nil, fmt.Errorf("decrypting index: %w", err)
	}
	var v Vault
	if err := json.Unmarshal([]byte(plaintext), &v); err != nil {
		return nil, fmt.Errorf("decoding index: %w", err)
	}
	v.EventID = evt.ID
	if tag := evt.Tags.GetFirst([]string{common.TagD}); tag != nil {
		v.D = tag.Value()
	}
	normalize(&v)
	return &v, nil
}

// normalize enforces the manifest invariants: files unique by d (newest
// version wins) and tombstones win over contradictory file entries.
func normalize(v *Vault) {
	byD := map[string]FileEntry{}
	order := []string{}
	for _, f := range v.Files {
		if v.IsDeleted(f.Path) {
			continue
		}
		prev, ok := byD[f.D]
		if !ok {
			order = append(order, f.D)
			byD[f.D] = f
			continue
		}
		if f.Version > prev.Version {
			byD[f.D] = f
		}
	}
	files := make([]FileEntry, 0, len(order))
	for _, d := range order {
		files = append(files, byD[d])
	}
	v.Files = files
}

// publishIndex signs and publishes the manifest as a fresh replaceable event
// and returns the vault with its new index event id.
func (s *Service) publishIndex(ctx context.Context, v *Vault) (*Vault, error) {
	pub, err := s.sg.PublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving identity: %w", err)
	}
	manifest, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	ciphertext, err := s.sg.Encrypt(ctx, pub, string(manifest))
	if err != nil {
		return nil, fmt.Errorf("encrypting manifest: %w", err)
	}

	evt := nostr.Event{
		Kind:      common.KindVaultIndex,
		CreatedAt: nostr.Now(),
		Tags: nostr.Tags{
			{common.TagD, v.D},
			{common.TagEncrypted, common.EncryptionScheme},
		},
		Content: ciphertext,
	}
	if err := s.sg.SignEvent(ctx, &evt); err != nil {
		return nil, err
	}
	if err := s.rc.Publish(ctx, evt); err != nil {
		return nil, fmt.Errorf("publishing vault index: %w", err)
	}
	v.EventID = evt.ID
	return v, nil
}

// FetchVaultFiles fetches and decrypts every file record the index points at.
// Per-event decrypt or parse failures are logged and skipped so one bad event
// cannot abort the batch.
func (s *Service) FetchVaultFiles(ctx context.Context, v *Vault) ([]*RemoteFile, error) {
	if len(v.Files) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(v.Files))
	byID := map[string]FileEntry{}
	for _, f := range v.Files {
		ids = append(ids, f.EventID)
		byID[f.EventID] = f
	}
	events, err := s.rc.QuerySync(ctx, nostr.Filter{
		Kinds: []int{common.KindFile},
		IDs:   ids,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching file records: %w", err)
	}

	out := make([]*RemoteFile, 0, len(events))
	for _, evt := range events {
		entry, ok := byID[evt.ID]
		if !ok {
			continue
		}
		payload, err := s.decodeFile(ctx, evt)
		if err != nil {
			s.log.Warn(ctx, "skipping unreadable file record", "id", evt.ID, "path", entry.Path, "error", err)
			continue
		}
		out = append(out, &RemoteFile{
			FileEntry: FileEntry{
				EventID:  evt.ID,
				D:        entry.D,
				Path:     payload.Path,
				Checksum: payload.Checksum,
				Version:  payload.Version,
				Modified: payload.Modified,
			},
			Content:         payload.Content,
			ContentType:     payload.ContentType,
			PreviousEventID: payload.PreviousEventID,
			Attachments:     payload.Attachments,
		})
	}
	return out, nil
}

func (s *Service) decodeFile(ctx context.Context, evt *nostr.Event) (*FilePayload, error) {
	plaintext, err := s.sg.Decrypt(ctx, evt.PubKey, evt.Content)
	if err != nil {
		return nil, fmt.Errorf("decrypting file record: %w", err)
	}
	var payload FilePayload
	if err := json.Unmarshal([]byte(plaintext), &payload); err != nil {
		return nil, fmt.Errorf("decoding file record: %w", err)
	}
	return &payload, nil
}

// PublishFile publishes content as a new file event and updates the vault
// index to point at it. The returned vault carries the fresh index event id;
// reusing the argument vault for further operations corrupts the index.
func (s *Service) PublishFile(ctx context.Context, v *Vault, path, content string, existing *FileEntry) (*FileEntry, *Vault, error) {
	pub, err := s.sg.PublicKey(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("resolving identity: %w", err)
	}

	payload := FilePayload{
		Path:        path,
		Content:     content,
		Checksum:    common.Checksum(content),
		Version:     1,
		Modified:    time.Now().Unix(),
		ContentType: "text/markdown",
	}
	d := uuid.NewString()
	if existing != nil {
		d = existing.D
		payload.Version = existing.Version + 1
		payload.PreviousEventID = existing.EventID
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding file payload: %w", err)
	}
	ciphertext, err := s.sg.Encrypt(ctx, pub, string(body))
	if err != nil {
		return nil, nil, fmt.Errorf("encrypting file payload: %w", err)
	}

	evt := nostr.Event{
		Kind:      common.KindFile,
		CreatedAt: nostr.Now(),
		Tags: nostr.Tags{
			{common.TagD, d},
			{common.TagEncrypted, common.EncryptionScheme},
		},
		Content: ciphertext,
	}
	if err := s.sg.SignEvent(ctx, &evt); err != nil {
		return nil, nil, err
	}
	// The index is republished only after the file event is accepted by at
	// least one relay.
	if err := s.rc.Publish(ctx, evt); err != nil {
		return nil, nil, fmt.Errorf("publishing file record: %w", err)
	}

	entry := FileEntry{
		EventID:  evt.ID,
		D:        d,
		Path:     path,
		Checksum: payload.Checksum,
		Version:  payload.Version,
		Modified: payload.Modified,
	}

	updated := v.clone()
	files := updated.Files[:0]
	for _, f := range updated.Files {
		if f.D != d {
			files = append(files, f)
		}
	}
	updated.Files = append(files, entry)
	// Publishing to a previously tombstoned path revives it.
	tombs := updated.Deleted[:0]
	for _, t := range updated.Deleted {
		if t.Path != path {
			tombs = append(tombs, t)
		}
	}
	updated.Deleted = tombs

	updated, err = s.publishIndex(ctx, updated)
	if err != nil {
		return nil, nil, err
	}
	s.log.Info(ctx, "published file", "path", path, "version", entry.Version, "d", d)
	return &entry, updated, nil
}

// DeleteFile removes the entry with stable identifier d from the index,
// records a tombstone, and publishes an advisory deletion request for the
// file event. Relays are not obliged to honor deletions.
func (s *Service) DeleteFile(ctx context.Context, v *Vault, d string) (*Vault, error) {
	entry := v.FindFile(d)
	if entry == nil {
		return nil, fmt.Errorf("file %s: %w", d, common.ErrNotFound)
	}

	del := nostr.Event{
		Kind:      common.KindDeletion,
		CreatedAt: nostr.Now(),
		Tags: nostr.Tags{
			{common.TagE, entry.EventID},
			{common.TagK, fmt.Sprintf("%d", common.KindFile)},
		},
	}
	if err := s.sg.SignEvent(ctx, &del); err != nil {
		return nil, err
	}
	if err := s.rc.Publish(ctx, del); err != nil {
		return nil, fmt.Errorf("publishing deletion request: %w", err)
	}

	updated := v.clone()
	files := updated.Files[:0]
	for _, f := range updated.Files {
		if f.D != d {
			files = append(files, f)
		}
	}
	updated.Files = files
	updated.Deleted = append(updated.Deleted, Tombstone{
		Path:        entry.Path,
		DeletedAt:   time.Now().Unix(),
		LastEventID: entry.EventID,
	})

	updated, err := s.publishIndex(ctx, updated)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "deleted file", "path", entry.Path, "d", d)
	return updated, nil
}
