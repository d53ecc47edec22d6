// Package relays manages publish/subscribe sessions against the configured
// relay set. Delivery is best effort: endpoint failures are swallowed and an
// operation succeeds as long as one relay accepted it.
package relays

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/driftnotes/drift/internal/common"
	"github.com/driftnotes/drift/internal/logging"
)

// Client is the subset of pool behavior the engine's services depend on.
// Tests substitute in-memory fakes.
type Client interface {
	// Publish fans the event out to every reachable relay. It returns
	// common.ErrAllRelaysFailed only when no endpoint accepted it.
	Publish(ctx context.Context, evt nostr.Event) error

	// QuerySync collects stored events matching the filter from all relays
	// until each reports end-of-stored-events, deduplicated by event id and
	// sorted newest first.
	QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error)
}

// queryDeadline bounds a single QuerySync fan-out against slow relays.
const queryDeadline = 8 * time.Second

// Pool holds lazily established connections to a deduplicated set of relay
// endpoints. Safe for concurrent use.
type Pool struct {
	log logging.Logger

	mu     sync.Mutex
	urls   []string
	relays map[string]*nostr.Relay
}

func NewPool(log logging.Logger) *Pool {
	return &Pool{log: log, relays: map[string]*nostr.Relay{}}
}

// Configure replaces the endpoint set. Existing connections to removed
// endpoints are closed; duplicates and malformed URLs are dropped.
func (p *Pool) Configure(urls []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	keep := map[string]bool{}
	normalized := make([]string, 0, len(urls))
	for _, u := range urls {
		n := nostr.NormalizeURL(u)
		if n == "" || keep[n] {
			continue
		}
		keep[n] = true
		normalized = append(normalized, n)
	}
	p.urls = normalized

	for url, relay := range p.relays {
		if !keep[url] {
			_ = relay.Close()
			delete(p.relays, url)
		}
	}
}

// URLs returns the configured endpoint set.
func (p *Pool) URLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.urls))
	copy(out, p.urls)
	return out
}

// ensure connects any not-yet-connected endpoints in parallel. Per-endpoint
// failures are logged and swallowed.
func (p *Pool) ensure(ctx context.Context) ([]*nostr.Relay, error) {
	p.mu.Lock()
	urls := make([]string, len(p.urls))
	copy(urls, p.urls)
	p.mu.Unlock()

	if len(urls) == 0 {
		return nil, common.ErrNoRelays
	}

	var wg sync.WaitGroup
	for _, url := range urls {
		p.mu.Lock()
		_, connected := p.relays[url]
		p.mu.Unlock()
		if connected {
			continue
		}
		wg.Add(1)
		go func(url string) {
			defer wg.Done()
			relay, err := nostr.RelayConnect(ctx, url)
			if err != nil {
				p.log.Warn(ctx, "relay unreachable", "url", url, "error", err)
				return
			}
			p.mu.Lock()
			p.relays[url] = relay
			p.mu.Unlock()
		}(url)
	}
	wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*nostr.Relay, 0, len(p.relays))
	for _, relay := range p.relays {
		out = append(out, relay)
	}
	if len(out) == 0 {
		return nil, common.ErrAllRelaysFailed
	}
	return out, nil
}

func (p *Pool) Publish(ctx context.Context, evt nostr.Event) error {
	relays, err := p.ensure(ctx)
	if err != nil {
		return err
	}

	var accepted bool
	for _, relay := range relays {
		if err := relay.Publish(ctx, evt); err != nil {
			p.log.Warn(ctx, "relay rejected event", "url", relay.URL, "id", evt.ID, "error", err)
			p.dropBroken(relay)
			continue
		}
		accepted = true
	}
	if !accepted {
		return common.ErrAllRelaysFailed
	}
	return nil
}

func (p *Pool) QuerySync(ctx context.Context, filter nostr.Filter) ([]*nostr.Event, error) {
	relays, err := p.ensure(ctx)
	if err != nil {
		return nil, err
	}

	qctx, cancel := context.WithTimeout(ctx, queryDeadline)
	defer cancel()

	var (
		mu   sync.Mutex
		seen = map[string]*nostr.Event{}
		wg   sync.WaitGroup
	)
	for _, relay := range relays {
		wg.Add(1)
		go func(relay *nostr.Relay) {
			defer wg.Done()
			sub, err := relay.Subscribe(qctx, nostr.Filters{filter})
			if err != nil {
				p.log.Warn(ctx, "relay subscribe failed", "url", relay.URL, "error", err)
				p.dropBroken(relay)
				return
			}
			defer sub.Unsub()
			for {
				select {
				case evt, ok := <-sub.Events:
					if !ok {
						return
					}
					mu.Lock()
					seen[evt.ID] = evt
					mu.Unlock()
				case <-sub.EndOfStoredEvents:
					return
				case <-qctx.Done():
					return
				}
			}
		}(relay)
	}
	wg.Wait()

	out := make([]*nostr.Event, 0, len(seen))
	for _, evt := range seen {
		out = append(out, evt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

// dropBroken forgets a connection so the next operation redials it.
func (p *Pool) dropBroken(relay *nostr.Relay) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for url, r := range p.relays {
		if r == relay {
			_ = r.Close()
			delete(p.relays, url)
			return
		}
	}
}

// Close tears down every connection.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for url, relay := range p.relays {
		_ = relay.Close()
		delete(p.relays, url)
	}
}
