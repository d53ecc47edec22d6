package signer

import (
	"context"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/driftnotes/drift/internal/common"
	"github.com/driftnotes/drift/internal/logging"
)

// rpcTransport is the connection surface the bunker signer talks through.
// Production code uses relayGroup; tests substitute a scripted fake.
type rpcTransport interface {
	// Connect establishes the underlying connections and starts delivering
	// inbound approval-agent events on Events. Idempotent.
	Connect(ctx context.Context) error

	// Publish sends a signed request event to the agent's relay set. It must
	// not run before the subscription is live, otherwise the response can be
	// lost in the gap.
	Publish(ctx context.Context, evt nostr.Event) error

	// Events is the stream of inbound kind-24133 events addressed to the
	// ephemeral client key. Close terminates it, so consumers ranging over
	// the channel exit.
	Events() <-chan *nostr.Event

	Close()
}

// publishEOSEFallback caps how long a publish waits for the subscription to
// reach end-of-stored-events before sending anyway.
const publishEOSEFallback = 2 * time.Second

// relayGroup maintains best-effort connections to every relay in the approval
// agent's set and demultiplexes inbound events into one stream. Per-endpoint
// failures are swallowed; the group fails only when no endpoint is usable.
type relayGroup struct {
	urls      []string
	clientPub string
	log       logging.Logger

	mu        sync.Mutex
	relays    []*nostr.Relay
	subs      []*nostr.Subscription
	events    chan *nostr.Event
	eose      chan struct{}
	eoseOnce  sync.Once
	pumps     sync.WaitGroup
	closeOnce sync.Once
	cancel    context.CancelFunc
	connected bool
}

func newRelayGroup(urls []string, clientPub string, log logging.Logger) *relayGroup {
	normalized := make([]string, 0, len(urls))
	seen := map[string]bool{}
	for _, u := range urls {
		n := nostr.NormalizeURL(u)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		normalized = append(normalized, n)
	}
	return &relayGroup{
		urls:      normalized,
		clientPub: clientPub,
		log:       log,
		events:    make(chan *nostr.Event, 64),
		eose:      make(chan struct{}),
	}
}

func (g *relayGroup) Connect(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.connected {
		return nil
	}
	if len(g.urls) == 0 {
		return common.ErrNoRelays
	}

	// The subscription outlives the Connect call; it is torn down by Close.
	subCtx, cancel := context.WithCancel(context.Background())
	g.cancel = cancel

	var wg sync.WaitGroup
	var connMu sync.Mutex
	for _, url := range g.urls {
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			relay, err := nostr.RelayConnect(ctx, url)
			if err != nil {
				g.log.Warn(ctx, "bunker relay unreachable", "url", url, "error", err)
				return
			}
			connMu.Lock()
			g.relays = append(g.relays, relay)
			connMu.Unlock()
		}(url)
	}
	wg.Wait()

	if len(g.relays) == 0 {
		cancel()
		return common.ErrAllRelaysFailed
	}

	// A synthetic since a few seconds in the past avoids replaying stale
	// cached responses while still catching anything in flight.
	since := nostr.Timestamp(time.Now().Add(-5 * time.Second).Unix())
	filter := nostr.Filter{
		Kinds: []int{common.KindNostrConnect},
		Tags:  nostr.TagMap{"p": []string{g.clientPub}},
		Since: &since,
	}

	for _, relay := range g.relays {
		sub, err := relay.Subscribe(subCtx, nostr.Filters{filter})
		if err != nil {
			g.log.Warn(ctx, "bunker relay subscribe failed", "url", relay.URL, "error", err)
			continue
		}
		g.subs = append(g.subs, sub)
		g.pumps.Add(1)
		go g.pump(sub)
	}
	if len(g.subs) == 0 {
		cancel()
		return common.ErrAllRelaysFailed
	}

	g.connected = true
	return nil
}

// pump forwards one subscription into the shared stream and releases the EOSE
// gate as soon as any endpoint reports end-of-stored-events.
func (g *relayGroup) pump(sub *nostr.Subscription) {
	defer g.pumps.Done()
	eose := sub.EndOfStoredEvents
	for {
		select {
		case <-eose:
			g.eoseOnce.Do(func() { close(g.eose) })
			// The closed channel would win every select from here on.
			eose = nil
		case evt, ok := <-sub.Events:
			if !ok {
				return
			}
			select {
			case g.events <- evt:
			default:
				// Must not block the relay read loop; a stalled request
				// surfaces as an approval timeout instead.
				g.log.Warn(context.Background(), "dropping bunker event, consumer not keeping up", "id", evt.ID)
			}
		}
	}
}

func (g *relayGroup) Publish(ctx context.Context, evt nostr.Event) error {
	// Wait until at least one subscription is confirmed live so the response
	// to this request cannot land before anyone is listening.
	select {
	case <-g.eose:
	case <-time.After(publishEOSEFallback):
	case <-ctx.Done():
		return ctx.Err()
	}

	g.mu.Lock()
	relays := make([]*nostr.Relay, len(g.relays))
	copy(relays, g.relays)
	g.mu.Unlock()

	var ok bool
	for _, relay := range relays {
		if err := relay.Publish(ctx, evt); err != nil {
			g.log.Warn(ctx, "bunker publish failed", "url", relay.URL, "error", err)
			continue
		}
		ok = true
	}
	if !ok {
		return common.ErrAllRelaysFailed
	}
	return nil
}

func (g *relayGroup) Events() <-chan *nostr.Event {
	return g.events
}

func (g *relayGroup) Close() {
	g.mu.Lock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	subs := g.subs
	relays := g.relays
	g.subs = nil
	g.relays = nil
	g.connected = false
	g.mu.Unlock()

	for _, sub := range subs {
		sub.Unsub()
	}
	for _, relay := range relays {
		_ = relay.Close()
	}

	// Pumps drain out once their subscriptions stop; only then is closing the
	// shared stream safe, and it is what lets consumers ranging over Events
	// terminate.
	g.pumps.Wait()
	g.closeOnce.Do(func() { close(g.events) })
}
