package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/stretchr/testify/require"

	"github.com/driftnotes/drift/internal/common"
	"github.com/driftnotes/drift/internal/logging"
	"github.com/driftnotes/drift/internal/signer"
	"github.com/driftnotes/drift/internal/vault"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := &Config{}
	cfg.LoadDefaults()
	cfg.Relays = nil
	cfg.DataDir = filepath.Join(t.TempDir(), "drift")
	e, err := New(cfg, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestOperationsRequireSigner(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.PublicKey(ctx)
	require.ErrorIs(t, err, common.ErrNoSigner)
	_, err = e.FetchVaults(ctx)
	require.ErrorIs(t, err, common.ErrNoSigner)
	_, err = e.FetchSharedWithMe(ctx)
	require.ErrorIs(t, err, common.ErrNoSigner)
	_, err = e.FetchMuteList(ctx)
	require.ErrorIs(t, err, common.ErrNoSigner)
	err = e.SavePreferences(ctx, nil)
	require.ErrorIs(t, err, common.ErrNoSigner)
}

func TestSetSignerEnablesOperations(t *testing.T) {
	e := newTestEngine(t)
	sg, err := signer.NewLocalSigner(nostr.GeneratePrivateKey())
	require.NoError(t, err)
	e.SetSigner(sg)

	pub, err := e.PublicKey(context.Background())
	require.NoError(t, err)
	require.Len(t, pub, 64)

	e.SetSigner(nil)
	_, err = e.PublicKey(context.Background())
	require.ErrorIs(t, err, common.ErrNoSigner)
}

func TestSyncDisabledReportsAndSkips(t *testing.T) {
	e := newTestEngine(t)
	sg, err := signer.NewLocalSigner(nostr.GeneratePrivateKey())
	require.NoError(t, err)
	e.SetSigner(sg)

	cfg := *e.cfg
	cfg.Enabled = false
	e.SetConfig(&cfg)

	var messages []string
	v := &vault.Vault{D: "v1", Name: "Personal"}
	res, err := e.Sync(context.Background(), v, nil, func(msg string) {
		messages = append(messages, msg)
	})
	require.NoError(t, err)
	require.Zero(t, res.Uploaded)
	require.Zero(t, res.Downloaded)
	require.Contains(t, messages, "Sync is disabled.")
}

func TestRequestSyncCoalesces(t *testing.T) {
	e := newTestEngine(t)
	sg, err := signer.NewLocalSigner(nostr.GeneratePrivateKey())
	require.NoError(t, err)
	e.SetSigner(sg)

	cfg := *e.cfg
	cfg.Enabled = false
	e.SetConfig(&cfg)

	var runs atomic.Int32
	e.syncDebounce = NewDebouncer(10*time.Millisecond, func() {
		runs.Add(1)
		e.runPendingSync()
	})

	v := &vault.Vault{D: "v1"}
	for i := 0; i < 5; i++ {
		e.RequestSync(v, nil, nil)
	}
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, int32(1), runs.Load())
}

func TestProfileCache(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	pub, _ := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	_, err := e.ProfileName(ctx, pub)
	require.ErrorIs(t, err, common.ErrNotFound)

	require.NoError(t, e.RememberProfile(ctx, pub, "alice"))
	name, err := e.ProfileName(ctx, pub)
	require.NoError(t, err)
	require.Equal(t, "alice", name)
}

func TestDebouncerCoalesces(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(10*time.Millisecond, func() { runs.Add(1) })
	for i := 0; i < 10; i++ {
		d.Trigger()
		time.Sleep(time.Millisecond)
	}
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)

	d.Trigger()
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestDebouncerStop(t *testing.T) {
	var runs atomic.Int32
	d := NewDebouncer(10*time.Millisecond, func() { runs.Add(1) })
	d.Trigger()
	d.Stop()
	time.Sleep(30 * time.Millisecond)
	require.Zero(t, runs.Load())
}

func TestLoadConfigOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"relays":["wss://relay.example.com"],"enabled":false}`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, []string{"wss://relay.example.com"}, cfg.Relays)
	require.False(t, cfg.Enabled)
	require.NotEmpty(t, cfg.DataDir)
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.NotEmpty(t, cfg.Relays)
	require.True(t, cfg.Enabled)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
}
