// Package engine wires the client together: one Engine owns the relay pool,
// the active signer, the local state database and the keystore, and exposes
// the whole operation surface behind a single handle.
package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/driftnotes/drift/internal/common"
	"github.com/driftnotes/drift/internal/keystore"
	"github.com/driftnotes/drift/internal/localstate"
	"github.com/driftnotes/drift/internal/logging"
	"github.com/driftnotes/drift/internal/mutelist"
	"github.com/driftnotes/drift/internal/prefs"
	"github.com/driftnotes/drift/internal/relays"
	"github.com/driftnotes/drift/internal/sharing"
	"github.com/driftnotes/drift/internal/signer"
	"github.com/driftnotes/drift/internal/vault"
)

// syncDebounceDelay is how long sync requests must stay quiet before a
// debounced sync actually runs.
const syncDebounceDelay = 2 * time.Second

// syncRequest captures the arguments of the latest RequestSync call.
type syncRequest struct {
	vault  *vault.Vault
	store  vault.LocalStore
	report vault.Progress
}

// Engine is the client core. All vault mutations go through its mutex, so
// two operations can never interleave competing index updates.
type Engine struct {
	log   logging.Logger
	pool  *relays.Pool
	rc    relays.Client
	state *localstate.Store
	keys  *keystore.FileStore

	mu  sync.Mutex
	cfg *Config
	sg  signer.Signer

	vaults *vault.Service
	shares *sharing.Service
	mutes  *mutelist.Service
	prefs  *prefs.Service

	vaultMu sync.Mutex

	syncMu       sync.Mutex
	pendingSync  *syncRequest
	syncDebounce *Debouncer
}

// New builds an Engine from config. No signer is attached yet; every
// operation fails with ErrNoSigner until SetSigner is called.
func New(cfg *Config, log logging.Logger) (*Engine, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	state, err := localstate.Open(filepath.Join(cfg.DataDir, "state.db"))
	if err != nil {
		return nil, err
	}
	keys, err := keystore.NewFileStore(filepath.Join(cfg.DataDir, "keys"))
	if err != nil {
		_ = state.Close()
		return nil, err
	}

	pool := relays.NewPool(log)
	pool.Configure(cfg.Relays)

	e := &Engine{
		log:   log,
		pool:  pool,
		rc:    pool,
		state: state,
		keys:  keys,
		cfg:   cfg,
	}
	e.syncDebounce = NewDebouncer(syncDebounceDelay, e.runPendingSync)
	return e, nil
}

// SetSigner attaches (or replaces) the active identity. A previous remote
// signer is closed first.
func (e *Engine) SetSigner(sg signer.Signer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if closer, ok := e.sg.(signer.Closer); ok {
		closer.Close()
	}
	e.sg = sg
	if sg == nil {
		e.vaults, e.shares, e.mutes, e.prefs = nil, nil, nil, nil
		return
	}
	e.vaults = vault.NewService(e.rc, sg, e.log)
	e.mutes = mutelist.NewService(e.rc, sg, e.log)
	e.shares = sharing.NewService(e.rc, sg, e.mutes, e.state, e.log)
	e.prefs = prefs.NewService(e.rc, sg)
}

// SetConfig replaces the runtime configuration; the relay pool reconnects to
// match the new list.
func (e *Engine) SetConfig(cfg *Config) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
	e.pool.Configure(cfg.Relays)
}

// Keys exposes the encrypted on-disk keystore.
func (e *Engine) Keys() *keystore.FileStore { return e.keys }

// ProfileName returns the locally cached display name for a pubkey.
func (e *Engine) ProfileName(ctx context.Context, pubkey string) (string, error) {
	return e.state.ProfileName(ctx, pubkey)
}

// RememberProfile caches a display name for a pubkey.
func (e *Engine) RememberProfile(ctx context.Context, pubkey, name string) error {
	return e.state.UpsertProfile(ctx, pubkey, name)
}

func (e *Engine) signerOrErr() (signer.Signer, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sg == nil {
		return nil, common.ErrNoSigner
	}
	return e.sg, nil
}

func (e *Engine) vaultSvc() (*vault.Service, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.vaults == nil {
		return nil, common.ErrNoSigner
	}
	return e.vaults, nil
}

func (e *Engine) shareSvc() (*sharing.Service, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shares == nil {
		return nil, common.ErrNoSigner
	}
	return e.shares, nil
}

func (e *Engine) muteSvc() (*mutelist.Service, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mutes == nil {
		return nil, common.ErrNoSigner
	}
	return e.mutes, nil
}

func (e *Engine) prefsSvc() (*prefs.Service, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.prefs == nil {
		return nil, common.ErrNoSigner
	}
	return e.prefs, nil
}

// PublicKey returns the active identity's public key.
func (e *Engine) PublicKey(ctx context.Context) (string, error) {
	sg, err := e.signerOrErr()
	if err != nil {
		return "", err
	}
	return sg.PublicKey(ctx)
}

func (e *Engine) CreateVault(ctx context.Context, name, description string) (*vault.Vault, error) {
	svc, err := e.vaultSvc()
	if err != nil {
		return nil, err
	}
	e.vaultMu.Lock()
	defer e.vaultMu.Unlock()
	return svc.CreateVault(ctx, name, description)
}

func (e *Engine) FetchVaults(ctx context.Context) ([]*vault.Vault, error) {
	svc, err := e.vaultSvc()
	if err != nil {
		return nil, err
	}
	return svc.FetchVaults(ctx)
}

func (e *Engine) FetchVaultFiles(ctx context.Context, v *vault.Vault) ([]*vault.RemoteFile, error) {
	svc, err := e.vaultSvc()
	if err != nil {
		return nil, err
	}
	return svc.FetchVaultFiles(ctx, v)
}

func (e *Engine) PublishFile(ctx context.Context, v *vault.Vault, path, content string, existing *vault.FileEntry) (*vault.FileEntry, *vault.Vault, error) {
	svc, err := e.vaultSvc()
	if err != nil {
		return nil, nil, err
	}
	e.vaultMu.Lock()
	defer e.vaultMu.Unlock()
	return svc.PublishFile(ctx, v, path, content, existing)
}

func (e *Engine) DeleteFile(ctx context.Context, v *vault.Vault, d string) (*vault.Vault, error) {
	svc, err := e.vaultSvc()
	if err != nil {
		return nil, err
	}
	e.vaultMu.Lock()
	defer e.vaultMu.Unlock()
	return svc.DeleteFile(ctx, v, d)
}

// CheckConflict compares local state against the remote copy of a file.
func (e *Engine) CheckConflict(localContent string, localVersion int, remote *vault.RemoteFile) *vault.Conflict {
	return vault.CheckConflict(localContent, localVersion, remote)
}

// Sync reconciles a vault with a local directory. When sync is disabled in
// the config, it reports so and does nothing.
func (e *Engine) Sync(ctx context.Context, v *vault.Vault, store vault.LocalStore, report vault.Progress) (*vault.SyncResult, error) {
	svc, err := e.vaultSvc()
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	enabled := e.cfg.Enabled
	e.mu.Unlock()
	if !enabled {
		if report != nil {
			report("Sync is disabled.")
		}
		return &vault.SyncResult{Vault: v}, nil
	}
	e.vaultMu.Lock()
	defer e.vaultMu.Unlock()
	return svc.Sync(ctx, v, store, report)
}

// RequestSync schedules a debounced sync. Bursts of requests collapse into a
// single run using the most recent arguments.
func (e *Engine) RequestSync(v *vault.Vault, store vault.LocalStore, report vault.Progress) {
	e.syncMu.Lock()
	e.pendingSync = &syncRequest{vault: v, store: store, report: report}
	e.syncMu.Unlock()
	e.syncDebounce.Trigger()
}

func (e *Engine) runPendingSync() {
	e.syncMu.Lock()
	req := e.pendingSync
	e.pendingSync = nil
	e.syncMu.Unlock()
	if req == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := e.Sync(ctx, req.vault, req.store, req.report); err != nil {
		e.log.Error(ctx, "background sync failed", "error", err)
	}
}

func (e *Engine) ShareDocument(ctx context.Context, recipientPub, title, path, content string) (*sharing.ShareResult, error) {
	svc, err := e.shareSvc()
	if err != nil {
		return nil, err
	}
	return svc.ShareDocument(ctx, recipientPub, title, path, content)
}

func (e *Engine) FetchSharedWithMe(ctx context.Context) ([]*sharing.IncomingShare, error) {
	svc, err := e.shareSvc()
	if err != nil {
		return nil, err
	}
	return svc.FetchSharedWithMe(ctx)
}

func (e *Engine) FetchSentShares(ctx context.Context) ([]*sharing.SentShare, error) {
	svc, err := e.shareSvc()
	if err != nil {
		return nil, err
	}
	return svc.FetchSentShares(ctx)
}

func (e *Engine) RevokeShare(ctx context.Context, eventID string) error {
	svc, err := e.shareSvc()
	if err != nil {
		return err
	}
	return svc.RevokeShare(ctx, eventID)
}

// ImportShare writes a received share into the user's vault.
func (e *Engine) ImportShare(ctx context.Context, v *vault.Vault, share *sharing.IncomingShare) (*vault.FileEntry, *vault.Vault, error) {
	shares, err := e.shareSvc()
	if err != nil {
		return nil, nil, err
	}
	vaults, err := e.vaultSvc()
	if err != nil {
		return nil, nil, err
	}
	e.vaultMu.Lock()
	defer e.vaultMu.Unlock()
	return shares.Import(ctx, vaults, v, share)
}

func (e *Engine) MarkShareRead(ctx context.Context, eventID string) error {
	svc, err := e.shareSvc()
	if err != nil {
		return err
	}
	return svc.MarkRead(ctx, eventID)
}

func (e *Engine) FetchMuteList(ctx context.Context) (*mutelist.List, error) {
	svc, err := e.muteSvc()
	if err != nil {
		return nil, err
	}
	return svc.Fetch(ctx)
}

func (e *Engine) AddToMuteList(ctx context.Context, pubkey string, private bool) error {
	svc, err := e.muteSvc()
	if err != nil {
		return err
	}
	return svc.Add(ctx, pubkey, private)
}

func (e *Engine) RemoveFromMuteList(ctx context.Context, pubkey string) error {
	svc, err := e.muteSvc()
	if err != nil {
		return err
	}
	return svc.Remove(ctx, pubkey)
}

func (e *Engine) IsMuted(ctx context.Context, pubkey string) (bool, error) {
	svc, err := e.muteSvc()
	if err != nil {
		return false, err
	}
	return svc.IsMuted(ctx, pubkey)
}

func (e *Engine) InvalidateMuteCache() {
	if svc, err := e.muteSvc(); err == nil {
		svc.Invalidate()
	}
}

func (e *Engine) FetchPreferences(ctx context.Context) (*prefs.Preferences, error) {
	svc, err := e.prefsSvc()
	if err != nil {
		return nil, err
	}
	return svc.Fetch(ctx)
}

func (e *Engine) SavePreferences(ctx context.Context, p *prefs.Preferences) error {
	svc, err := e.prefsSvc()
	if err != nil {
		return err
	}
	return svc.Save(ctx, p)
}

// Close releases the relay pool, the local database and any remote signer.
func (e *Engine) Close() error {
	e.syncDebounce.Stop()
	e.mu.Lock()
	if closer, ok := e.sg.(signer.Closer); ok {
		closer.Close()
	}
	e.sg = nil
	e.mu.Unlock()
	e.pool.Close()
	return e.state.Close()
}
