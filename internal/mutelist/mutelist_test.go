package mutelist

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/driftnotes/drift/internal/common"
	"github.com/driftnotes/drift/internal/logging"
	"github.com/driftnotes/drift/internal/signer"
)

type fakeRelay struct {
	events  []nostr.Event
	queries int
}

func (f *fakeRelay) Publish(ctx context.Context, evt nostr.Event) error {
	f.events = append(f.events, evt)
	return nil
}

func (f *fakeRelay) QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	f.queries++
	var out []*nostr.Event
	for i := len(f.events) - 1; i >= 0; i-- {
		evt := f.events[i]
		if filter.Matches(&evt) {
			out = append(out, &evt)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func newTestService(t *testing.T) (*Service, *fakeRelay, *signer.LocalSigner) {
	t.Helper()
	sk := nostr.GeneratePrivateKey()
	sg, err := signer.NewLocalSigner(sk)
	require.NoError(t, err)
	relay := &fakeRelay{}
	return NewService(relay, sg, logging.NewNopLogger()), relay, sg
}

func TestAddAndFetch(t *testing.T) {
	svc, relay, _ := newTestService(t)
	ctx := context.Background()

	public, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	private, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())

	require.NoError(t, svc.Add(ctx, public, false))
	require.NoError(t, svc.Add(ctx, private, true))

	list, err := svc.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{public}, list.Public)
	require.Equal(t, []string{private}, list.Private)

	// The public entry must be visible without decryption, the private
	// entry must not.
	last := relay.events[len(relay.events)-1]
	require.Equal(t, common.KindMuteList, last.Kind)
	tag := last.Tags.GetFirst([]string{common.TagP})
	require.NotNil(t, tag)
	require.Equal(t, public, tag.Value())
	require.NotContains(t, last.Content, private)
	require.NotEmpty(t, last.Content)
}

func TestAddIsIdempotent(t *testing.T) {
	svc, relay, _ := newTestService(t)
	ctx := context.Background()

	pk, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	require.NoError(t, svc.Add(ctx, pk, false))
	published := len(relay.events)
	require.NoError(t, svc.Add(ctx, pk, false))
	require.Len(t, relay.events, published)
}

func TestRemoveClearsBothSections(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	kept, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	dropped, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())

	require.NoError(t, svc.Add(ctx, kept, false))
	require.NoError(t, svc.Add(ctx, dropped, true))
	require.NoError(t, svc.Remove(ctx, dropped))

	list, err := svc.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{kept}, list.Public)
	require.Empty(t, list.Private)
}

func TestIsMutedUsesCacheUntilInvalidated(t *testing.T) {
	svc, relay, _ := newTestService(t)
	ctx := context.Background()

	pk, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	require.NoError(t, svc.Add(ctx, pk, false))

	muted, err := svc.IsMuted(ctx, pk)
	require.NoError(t, err)
	require.True(t, muted)
	queries := relay.queries

	// Within the TTL the cache answers without touching the relay.
	muted, err = svc.IsMuted(ctx, pk)
	require.NoError(t, err)
	require.True(t, muted)
	require.Equal(t, queries, relay.queries)

	svc.Invalidate()
	_, err = svc.IsMuted(ctx, pk)
	require.NoError(t, err)
	require.Greater(t, relay.queries, queries)
}

func TestIsMutedRefetchesAfterTTL(t *testing.T) {
	svc, relay, _ := newTestService(t)
	svc.ttl = time.Millisecond
	ctx := context.Background()

	pk, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	muted, err := svc.IsMuted(ctx, pk)
	require.NoError(t, err)
	require.False(t, muted)

	require.NoError(t, svc.Add(ctx, pk, false))
	time.Sleep(5 * time.Millisecond)

	muted, err = svc.IsMuted(ctx, pk)
	require.NoError(t, err)
	require.True(t, muted)
	require.GreaterOrEqual(t, relay.queries, 2)
}

func TestUndecryptablePrivateSectionIgnored(t *testing.T) {
	svc, relay, sg := newTestService(t)
	ctx := context.Background()

	pub, err := sg.PublicKey(ctx)
	require.NoError(t, err)

	evt := nostr.Event{
		Kind:      common.KindMuteList,
		CreatedAt: nostr.Now(),
		Content:   "not a nip44 payload",
		Tags:      nostr.Tags{{common.TagP, "ab" + pub[2:]}},
	}
	require.NoError(t, sg.SignEvent(ctx, &evt))
	relay.events = append(relay.events, evt)

	list, err := svc.Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, list.Public, 1)
	require.Empty(t, list.Private)
}
