package signer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip44"

	"github.com/driftnotes/drift/internal/common"
	"github.com/driftnotes/drift/internal/logging"
)

// Human approval of a signing request can take a while; encryption calls are
// usually auto-approved and get a tighter budget.
const (
	defaultSignTimeout    = 120 * time.Second
	defaultEncryptTimeout = 30 * time.Second
	defaultConnectTimeout = 15 * time.Second
)

type bunkerRequest struct {
	ID     string   `json:"id"`
	Method string   `json:"method"`
	Params []string `json:"params"`
}

type bunkerResponse struct {
	ID     string `json:"id"`
	Result string `json:"result"`
	Error  string `json:"error"`
}

// BunkerSigner delegates signing and encryption to a remote approval agent
// reachable through a set of relays. It holds an ephemeral client keypair;
// the user's secret key never enters this process.
type BunkerSigner struct {
	bunkerPubkey string
	clientSK     string
	clientPub    string
	secret       string

	tr  rpcTransport
	log logging.Logger

	signTimeout    time.Duration
	encryptTimeout time.Duration
	connectTimeout time.Duration

	mu          sync.Mutex
	connected   bool
	connecting  chan struct{}
	dispatching bool
	pending     map[string]chan bunkerResponse
	userPubkey  string
}

// BunkerConn describes a parsed bunker:// connection string.
type BunkerConn struct {
	Pubkey string
	Relays []string
	Secret string
}

// ParseBunkerURL parses bunker://<pubkey>?relay=wss://...&secret=... strings.
func ParseBunkerURL(raw string) (*BunkerConn, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing bunker url: %w", err)
	}
	if u.Scheme != "bunker" {
		return nil, fmt.Errorf("unexpected scheme %q, want bunker://", u.Scheme)
	}
	pk := u.Host
	if pk == "" {
		pk = u.Opaque
	}
	if len(pk) != 64 {
		return nil, fmt.Errorf("bunker url is missing the agent public key")
	}
	q := u.Query()
	relays := q["relay"]
	if len(relays) == 0 {
		return nil, fmt.Errorf("bunker url names no relays")
	}
	return &BunkerConn{Pubkey: pk, Relays: relays, Secret: q.Get("secret")}, nil
}

// NewBunkerSigner builds a remote signer from a bunker:// connection string.
// Connections are established lazily on first use.
func NewBunkerSigner(bunkerURL string, log logging.Logger) (*BunkerSigner, error) {
	conn, err := ParseBunkerURL(bunkerURL)
	if err != nil {
		return nil, err
	}
	clientSK := nostr.GeneratePrivateKey()
	clientPub, err := nostr.GetPublicKey(clientSK)
	if err != nil {
		return nil, fmt.Errorf("deriving ephemeral public key: %w", err)
	}
	s := newBunkerSigner(conn.Pubkey, clientSK, clientPub, conn.Secret, log)
	s.tr = newRelayGroup(conn.Relays, clientPub, log)
	return s, nil
}

func newBunkerSigner(bunkerPubkey, clientSK, clientPub, secret string, log logging.Logger) *BunkerSigner {
	return &BunkerSigner{
		bunkerPubkey:   bunkerPubkey,
		clientSK:       clientSK,
		clientPub:      clientPub,
		secret:         secret,
		log:            log,
		signTimeout:    defaultSignTimeout,
		encryptTimeout: defaultEncryptTimeout,
		connectTimeout: defaultConnectTimeout,
		pending:        map[string]chan bunkerResponse{},
	}
}

// ensureConnected performs the connect handshake at most once at a time.
// Concurrent callers wait for the in-flight attempt instead of opening new
// connection sets.
func (s *BunkerSigner) ensureConnected(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.connected {
			s.mu.Unlock()
			return nil
		}
		if s.connecting == nil {
			s.connecting = make(chan struct{})
			s.mu.Unlock()
			break
		}
		wait := s.connecting
		s.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err := s.connect(ctx)

	s.mu.Lock()
	close(s.connecting)
	s.connecting = nil
	s.connected = err == nil
	s.mu.Unlock()
	return err
}

func (s *BunkerSigner) connect(ctx context.Context) error {
	if err := s.tr.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to signer relays: %w", err)
	}

	s.mu.Lock()
	if !s.dispatching {
		s.dispatching = true
		go s.dispatch()
	}
	s.mu.Unlock()

	// Some agents never acknowledge connect. A failed or silent handshake is
	// tolerated; the next real request surfaces any genuine problem.
	if _, err := s.roundTrip(ctx, s.connectTimeout, "connect", []string{s.bunkerPubkey, s.secret}); err != nil {
		s.log.Warn(ctx, "bunker connect handshake not acknowledged", "error", err)
	}
	return nil
}

// dispatch routes decrypted agent responses to their waiting callers.
func (s *BunkerSigner) dispatch() {
	for evt := range s.tr.Events() {
		if evt.Kind != common.KindNostrConnect {
			continue
		}
		ck, err := nip44.GenerateConversationKey(evt.PubKey, s.clientSK)
		if err != nil {
			continue
		}
		plaintext, err := nip44.Decrypt(evt.Content, ck)
		if err != nil {
			s.log.Debug(context.Background(), "undecryptable bunker event skipped", "id", evt.ID)
			continue
		}
		var resp bunkerResponse
		if err := json.Unmarshal([]byte(plaintext), &resp); err != nil {
			continue
		}
		s.mu.Lock()
		ch, ok := s.pending[resp.ID]
		if ok {
			delete(s.pending, resp.ID)
		}
		s.mu.Unlock()
		if ok {
			ch <- resp
		}
	}
}

// roundTrip sends one encrypted RPC request and waits for its response or the
// deadline, whichever comes first.
func (s *BunkerSigner) roundTrip(ctx context.Context, timeout time.Duration, method string, params []string) (string, error) {
	id, err := common.MakeRandHexString(8)
	if err != nil {
		return "", fmt.Errorf("generating %s request id: %w", method, err)
	}
	req := bunkerRequest{ID: id, Method: method, Params: params}
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding %s request: %w", method, err)
	}

	ck, err := nip44.GenerateConversationKey(s.bunkerPubkey, s.clientSK)
	if err != nil {
		return "", fmt.Errorf("deriving conversation key: %w", err)
	}
	ciphertext, err := nip44.Encrypt(string(payload), ck)
	if err != nil {
		return "", fmt.Errorf("encrypting %s request: %w", method, err)
	}

	evt := nostr.Event{
		Kind:      common.KindNostrConnect,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{common.TagP, s.bunkerPubkey}},
		Content:   ciphertext,
	}
	if err := evt.Sign(s.clientSK); err != nil {
		return "", fmt.Errorf("signing %s request: %w", method, err)
	}

	respCh := make(chan bunkerResponse, 1)
	s.mu.Lock()
	s.pending[req.ID] = respCh
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, req.ID)
		s.mu.Unlock()
	}()

	if err := s.tr.Publish(ctx, evt); err != nil {
		return "", fmt.Errorf("sending %s request: %w", method, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case resp := <-respCh:
		if resp.Error != "" {
			return "", fmt.Errorf("%s rejected by signer: %s", method, resp.Error)
		}
		return resp.Result, nil
	case <-timer.C:
		return "", fmt.Errorf("%s after %s: %w", method, timeout, common.ErrApprovalTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *BunkerSigner) PublicKey(ctx context.Context) (string, error) {
	s.mu.Lock()
	cached := s.userPubkey
	s.mu.Unlock()
	if cached != "" {
		return cached, nil
	}
	if err := s.ensureConnected(ctx); err != nil {
		return "", err
	}
	pk, err := s.roundTrip(ctx, s.encryptTimeout, "get_public_key", nil)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.userPubkey = pk
	s.mu.Unlock()
	return pk, nil
}

func (s *BunkerSigner) SignEvent(ctx context.Context, evt *nostr.Event) error {
	if err := s.ensureConnected(ctx); err != nil {
		return err
	}
	unsigned, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	result, err := s.roundTrip(ctx, s.signTimeout, "sign_event", []string{string(unsigned)})
	if err != nil {
		return err
	}
	var signed nostr.Event
	if err := json.Unmarshal([]byte(result), &signed); err != nil {
		return fmt.Errorf("decoding signed event: %w", err)
	}
	*evt = signed
	return nil
}

func (s *BunkerSigner) Encrypt(ctx context.Context, peerPubkey, plaintext string) (string, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return "", err
	}
	return s.roundTrip(ctx, s.encryptTimeout, "nip44_encrypt", []string{peerPubkey, plaintext})
}

func (s *BunkerSigner) Decrypt(ctx context.Context, peerPubkey, ciphertext string) (string, error) {
	if err := s.ensureConnected(ctx); err != nil {
		return "", err
	}
	return s.roundTrip(ctx, s.encryptTimeout, "nip44_decrypt", []string{peerPubkey, ciphertext})
}

func (s *BunkerSigner) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tr != nil {
		s.tr.Close()
	}
	s.connected = false
	return nil
}
