package vault

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/driftnotes/drift/internal/common"
	"github.com/driftnotes/drift/internal/logging"
	"github.com/driftnotes/drift/internal/signer"
)

// fakeRelay is an in-memory relay set: it stores everything published and
// answers queries with filter matching, newest first.
type fakeRelay struct {
	mu     sync.Mutex
	events []*nostr.Event

	publishErr error
	published  int
}

func (f *fakeRelay) Publish(ctx context.Context, evt nostr.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	e := evt
	f.events = append(f.events, &e)
	f.published++
	return nil
}

func (f *fakeRelay) QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*nostr.Event
	for _, evt := range f.events {
		if filter.Matches(evt) {
			out = append(out, evt)
		}
	}
	// Newest first; later-published wins ties, like a well-behaved relay.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

func newTestService(t *testing.T) (*Service, *fakeRelay) {
	t.Helper()
	sg, err := signer.NewLocalSigner(nostr.GeneratePrivateKey())
	require.NoError(t, err)
	relay := &fakeRelay{}
	svc := NewService(relay, sg, logging.NewNopLogger())
	svc.uploadDelay = 0
	return svc, relay
}

func TestCreateVault_PublishesEncryptedIndex(t *testing.T) {
	ctx := context.Background()
	svc, relay := newTestService(t)

	v, err := svc.CreateVault(ctx, "notes", "personal notes")
	require.NoError(t, err)
	require.NotEmpty(t, v.D)
	require.NotEmpty(t, v.EventID)
	require.Empty(t, v.Files)

	require.Len(t, relay.events, 1)
	evt := relay.events[0]
	require.Equal(t, common.KindVaultIndex, evt.Kind)
	require.NotContains(t, evt.Content, "notes") // manifest is ciphertext
	tag := evt.Tags.GetFirst([]string{common.TagEncrypted})
	require.NotNil(t, tag)
	require.Equal(t, common.EncryptionScheme, tag.Value())
}

func TestPublishFile_VersionMonotonicityAndIndexReplacement(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	v, err := svc.CreateVault(ctx, "notes", "")
	require.NoError(t, err)

	entry, v, err := svc.PublishFile(ctx, v, "Daily.md", "first", nil)
	require.NoError(t, err)
	require.Equal(t, 1, entry.Version)
	require.Empty(t, v.Deleted)

	prevIndexID := v.EventID
	seen := map[int]bool{1: true}
	prev := entry
	for i, content := range []string{"second", "third", "fourth"} {
		var err error
		entry, v, err = svc.PublishFile(ctx, v, "Daily.md", content, prev)
		require.NoError(t, err)
		require.Equal(t, prev.Version+1, entry.Version, "edit %d", i)
		require.False(t, seen[entry.Version], "version reused")
		seen[entry.Version] = true
		require.Equal(t, prev.D, entry.D)
		require.NotEqual(t, prevIndexID, v.EventID, "index must be a fresh event")
		prevIndexID = v.EventID
		prev = entry
	}

	// The index holds exactly one entry for the d, pointing at the newest.
	require.Len(t, v.Files, 1)
	require.Equal(t, entry.EventID, v.Files[0].EventID)
	require.Equal(t, 4, v.Files[0].Version)
}

func TestFetchVaults_NewestIndexWinsAndRoundTrips(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	v, err := svc.CreateVault(ctx, "notes", "desc")
	require.NoError(t, err)
	_, v, err = svc.PublishFile(ctx, v, "A.md", "alpha", nil)
	require.NoError(t, err)

	other, err := svc.CreateVault(ctx, "work", "")
	require.NoError(t, err)

	vaults, err := svc.FetchVaults(ctx)
	require.NoError(t, err)
	require.Len(t, vaults, 2)

	byD := map[string]*Vault{}
	for _, got := range vaults {
		byD[got.D] = got
	}
	got := byD[v.D]
	require.NotNil(t, got)
	require.Equal(t, "notes", got.Name)
	require.Equal(t, "desc", got.Description)
	require.Len(t, got.Files, 1)
	require.Equal(t, "A.md", got.Files[0].Path)
	require.NotNil(t, byD[other.D])
}

func TestFetchVaultFiles_SkipsUnreadableRecords(t *testing.T) {
	ctx := context.Background()
	svc, relay := newTestService(t)

	v, err := svc.CreateVault(ctx, "notes", "")
	require.NoError(t, err)
	_, v, err = svc.PublishFile(ctx, v, "Good.md", "fine", nil)
	require.NoError(t, err)

	// A corrupt record whose id the index points at must be skipped without
	// aborting the batch.
	sg, err := signer.NewLocalSigner(nostr.GeneratePrivateKey())
	require.NoError(t, err)
	bad := nostr.Event{
		Kind:      common.KindFile,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{common.TagD, "bad"}, {common.TagEncrypted, common.EncryptionScheme}},
		Content:   "not ciphertext at all",
	}
	require.NoError(t, sg.SignEvent(ctx, &bad))
	require.NoError(t, relay.Publish(ctx, bad))
	v.Files = append(v.Files, FileEntry{EventID: bad.ID, D: "bad", Path: "Bad.md", Version: 1})

	files, err := svc.FetchVaultFiles(ctx, v)
	require.NoError(t, err)
	require.Len(t, files, 1)
	require.Equal(t, "Good.md", files[0].Path)
	require.Equal(t, "fine", files[0].Content)
}

func TestDeleteFile_TombstonesAndPublishesDeletionRequest(t *testing.T) {
	ctx := context.Background()
	svc, relay := newTestService(t)

	v, err := svc.CreateVault(ctx, "notes", "")
	require.NoError(t, err)
	entry, v, err := svc.PublishFile(ctx, v, "Gone.md", "bye", nil)
	require.NoError(t, err)

	v, err = svc.DeleteFile(ctx, v, entry.D)
	require.NoError(t, err)
	require.Empty(t, v.Files)
	require.Len(t, v.Deleted, 1)
	require.Equal(t, "Gone.md", v.Deleted[0].Path)
	require.Equal(t, entry.EventID, v.Deleted[0].LastEventID)
	require.True(t, v.IsDeleted("Gone.md"))

	var deletion *nostr.Event
	for _, evt := range relay.events {
		if evt.Kind == common.KindDeletion {
			deletion = evt
		}
	}
	require.NotNil(t, deletion)
	e := deletion.Tags.GetFirst([]string{common.TagE})
	require.NotNil(t, e)
	require.Equal(t, entry.EventID, e.Value())

	_, err = svc.DeleteFile(ctx, v, entry.D)
	require.Error(t, err)
}

func TestPublishFile_FailedPublishLeavesCallerVaultIntact(t *testing.T) {
	ctx := context.Background()
	svc, relay := newTestService(t)

	v, err := svc.CreateVault(ctx, "notes", "")
	require.NoError(t, err)

	relay.publishErr = common.ErrAllRelaysFailed
	_, _, err = svc.PublishFile(ctx, v, "New.md", "content", nil)
	require.Error(t, err)
	require.Empty(t, v.Files)
}
