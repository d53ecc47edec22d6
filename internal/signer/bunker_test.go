package signer

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip44"
	"github.com/stretchr/testify/require"

	"github.com/driftnotes/drift/internal/common"
	"github.com/driftnotes/drift/internal/logging"
)

// fakeBunker plays the approval agent: it decrypts requests published through
// the transport and answers (or stays silent) according to its handler.
type fakeBunker struct {
	sk     string
	pub    string
	userSK string

	events chan *nostr.Event

	mu        sync.Mutex
	published []nostr.Event

	// handle returns the response for a request; nil means never respond.
	handle func(req bunkerRequest) *bunkerResponse
}

func newFakeBunker(t *testing.T) *fakeBunker {
	t.Helper()
	sk := nostr.GeneratePrivateKey()
	pub, err := nostr.GetPublicKey(sk)
	require.NoError(t, err)
	return &fakeBunker{
		sk:     sk,
		pub:    pub,
		userSK: nostr.GeneratePrivateKey(),
		events: make(chan *nostr.Event, 8),
	}
}

func (f *fakeBunker) Connect(ctx context.Context) error { return nil }

func (f *fakeBunker) Publish(ctx context.Context, evt nostr.Event) error {
	f.mu.Lock()
	f.published = append(f.published, evt)
	f.mu.Unlock()

	ck, err := nip44.GenerateConversationKey(evt.PubKey, f.sk)
	if err != nil {
		return err
	}
	plaintext, err := nip44.Decrypt(evt.Content, ck)
	if err != nil {
		return err
	}
	var req bunkerRequest
	if err := json.Unmarshal([]byte(plaintext), &req); err != nil {
		return err
	}
	if f.handle == nil {
		return nil
	}
	resp := f.handle(req)
	if resp == nil {
		return nil
	}
	body, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	ciphertext, err := nip44.Encrypt(string(body), ck)
	if err != nil {
		return err
	}
	out := nostr.Event{
		Kind:      common.KindNostrConnect,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{common.TagP, evt.PubKey}},
		Content:   ciphertext,
	}
	if err := out.Sign(f.sk); err != nil {
		return err
	}
	f.events <- &out
	return nil
}

func (f *fakeBunker) Events() <-chan *nostr.Event { return f.events }

func (f *fakeBunker) Close() { close(f.events) }

func newTestBunkerSigner(t *testing.T, f *fakeBunker) *BunkerSigner {
	t.Helper()
	clientSK := nostr.GeneratePrivateKey()
	clientPub, err := nostr.GetPublicKey(clientSK)
	require.NoError(t, err)
	s := newBunkerSigner(f.pub, clientSK, clientPub, "secret", logging.NewNopLogger())
	s.tr = f
	s.connectTimeout = 100 * time.Millisecond
	return s
}

func TestBunkerSigner_SignEvent_RoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFakeBunker(t)
	f.handle = func(req bunkerRequest) *bunkerResponse {
		switch req.Method {
		case "connect":
			return &bunkerResponse{ID: req.ID, Result: "ack"}
		case "sign_event":
			var evt nostr.Event
			if err := json.Unmarshal([]byte(req.Params[0]), &evt); err != nil {
				return &bunkerResponse{ID: req.ID, Error: err.Error()}
			}
			if err := evt.Sign(f.userSK); err != nil {
				return &bunkerResponse{ID: req.ID, Error: err.Error()}
			}
			signed, _ := json.Marshal(evt)
			return &bunkerResponse{ID: req.ID, Result: string(signed)}
		}
		return &bunkerResponse{ID: req.ID, Error: "unsupported"}
	}

	s := newTestBunkerSigner(t, f)
	defer func() { _ = s.Close() }()

	evt := nostr.Event{Kind: common.KindFile, CreatedAt: nostr.Now(), Content: "payload"}
	require.NoError(t, s.SignEvent(ctx, &evt))

	ok, err := evt.CheckSignature()
	require.NoError(t, err)
	require.True(t, ok)

	userPub, err := nostr.GetPublicKey(f.userSK)
	require.NoError(t, err)
	require.Equal(t, userPub, evt.PubKey)
}

func TestBunkerSigner_Encrypt_TimesOutWithApprovalHint(t *testing.T) {
	ctx := context.Background()
	f := newFakeBunker(t)
	// Agent acknowledges connect but sits on everything else.
	f.handle = func(req bunkerRequest) *bunkerResponse {
		if req.Method == "connect" {
			return &bunkerResponse{ID: req.ID, Result: "ack"}
		}
		return nil
	}

	s := newTestBunkerSigner(t, f)
	s.encryptTimeout = 80 * time.Millisecond
	defer func() { _ = s.Close() }()

	start := time.Now()
	_, err := s.Encrypt(ctx, f.pub, "secret note")
	require.Error(t, err)
	require.True(t, errors.Is(err, common.ErrApprovalTimeout))
	require.Contains(t, err.Error(), "manual approval")
	require.Less(t, time.Since(start), 2*time.Second)
}

func TestBunkerSigner_ToleratesSilentConnectHandshake(t *testing.T) {
	ctx := context.Background()
	f := newFakeBunker(t)
	f.handle = func(req bunkerRequest) *bunkerResponse {
		if req.Method == "connect" {
			return nil // agent skips the explicit ack
		}
		if req.Method == "get_public_key" {
			pub, _ := nostr.GetPublicKey(f.userSK)
			return &bunkerResponse{ID: req.ID, Result: pub}
		}
		return &bunkerResponse{ID: req.ID, Error: "unsupported"}
	}

	s := newTestBunkerSigner(t, f)
	defer func() { _ = s.Close() }()

	pk, err := s.PublicKey(ctx)
	require.NoError(t, err)
	userPub, _ := nostr.GetPublicKey(f.userSK)
	require.Equal(t, userPub, pk)

	// Cached on the second call; no extra round trips for the pubkey.
	f.mu.Lock()
	calls := len(f.published)
	f.mu.Unlock()
	pk2, err := s.PublicKey(ctx)
	require.NoError(t, err)
	require.Equal(t, pk, pk2)
	f.mu.Lock()
	require.Equal(t, calls, len(f.published))
	f.mu.Unlock()
}

func TestBunkerSigner_RequestIDsAreRandomHex(t *testing.T) {
	ctx := context.Background()
	f := newFakeBunker(t)

	var (
		idMu sync.Mutex
		ids  []string
	)
	f.handle = func(req bunkerRequest) *bunkerResponse {
		idMu.Lock()
		ids = append(ids, req.ID)
		idMu.Unlock()
		if req.Method == "get_public_key" {
			pub, _ := nostr.GetPublicKey(f.userSK)
			return &bunkerResponse{ID: req.ID, Result: pub}
		}
		return &bunkerResponse{ID: req.ID, Result: "ack"}
	}

	s := newTestBunkerSigner(t, f)
	defer func() { _ = s.Close() }()

	_, err := s.PublicKey(ctx)
	require.NoError(t, err)

	idMu.Lock()
	defer idMu.Unlock()
	require.GreaterOrEqual(t, len(ids), 2) // connect + get_public_key
	seen := map[string]bool{}
	for _, id := range ids {
		require.Len(t, id, 16)
		_, err := hex.DecodeString(id)
		require.NoError(t, err)
		require.False(t, seen[id], "request id %q reused", id)
		seen[id] = true
	}
}

func TestParseBunkerURL(t *testing.T) {
	pk := nostr.GeneratePrivateKey() // any 64-hex string works as a pubkey here
	conn, err := ParseBunkerURL("bunker://" + pk + "?relay=wss://relay.example.com&relay=wss://backup.example.com&secret=s3cr3t")
	require.NoError(t, err)
	require.Equal(t, pk, conn.Pubkey)
	require.Equal(t, []string{"wss://relay.example.com", "wss://backup.example.com"}, conn.Relays)
	require.Equal(t, "s3cr3t", conn.Secret)

	_, err = ParseBunkerURL("https://example.com")
	require.Error(t, err)
	_, err = ParseBunkerURL("bunker://short?relay=wss://r.example.com")
	require.Error(t, err)
	_, err = ParseBunkerURL("bunker://" + pk)
	require.Error(t, err)
}
