// Package mutelist maintains the user's replaceable mute list: publicly
// visible muted pubkeys as plain tags plus additional entries self-encrypted
// into the event content, merged into one logical set and served through a
// short-lived cache.
package mutelist

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nbd-wtf/go-nostr"

	"github.com/driftnotes/drift/internal/common"
	"github.com/driftnotes/drift/internal/logging"
	"github.com/driftnotes/drift/internal/relays"
	"github.com/driftnotes/drift/internal/signer"
)

// cacheTTL bounds how stale an IsMuted answer can be. Mutations invalidate
// the cache explicitly.
const cacheTTL = 60 * time.Second

// List is the decoded mute list.
type List struct {
	EventID string
	Public  []string
	Private []string
}

// All returns the merged set of muted pubkeys.
func (l *List) All() map[string]bool {
	out := make(map[string]bool, len(l.Public)+len(l.Private))
	for _, pk := range l.Public {
		out[pk] = true
	}
	for _, pk := range l.Private {
		out[pk] = true
	}
	return out
}

// Service owns mute list reads and mutations.
type Service struct {
	rc  relays.Client
	sg  signer.Signer
	log logging.Logger

	mu        sync.Mutex
	cached    map[string]bool
	fetchedAt time.Time
	ttl       time.Duration
}

func NewService(rc relays.Client, sg signer.Signer, log logging.Logger) *Service {
	return &Service{rc: rc, sg: sg, log: log, ttl: cacheTTL}
}

// Fetch retrieves the current mute list. A missing event yields an empty
// list; an undecryptable private section is treated as "no private entries".
func (s *Service) Fetch(ctx context.Context) (*List, error) {
	pub, err := s.sg.PublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving identity: %w", err)
	}
	events, err := s.rc.QuerySync(ctx, nostr.Filter{
		Kinds:   []int{common.KindMuteList},
		Authors: []string{pub},
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching mute list: %w", err)
	}
	if len(events) == 0 {
		return &List{}, nil
	}

	evt := events[0] // newest first
	list := &List{EventID: evt.ID}
	for _, tag := range evt.Tags.GetAll([]string{common.TagP}) {
		if len(tag) >= 2 && tag[1] != "" {
			list.Public = append(list.Public, tag[1])
		}
	}
	if evt.Content != "" {
		plaintext, err := s.sg.Decrypt(ctx, pub, evt.Content)
		if err != nil {
			s.log.Warn(ctx, "mute list private entries undecryptable, ignoring", "error", err)
		} else {
			var tags [][]string
			if err := json.Unmarshal([]byte(plaintext), &tags); err != nil {
				s.log.Warn(ctx, "mute list private entries malformed, ignoring", "error", err)
			} else {
				for _, tag := range tags {
					if len(tag) >= 2 && tag[0] == common.TagP && tag[1] != "" {
						list.Private = append(list.Private, tag[1])
					}
				}
			}
		}
	}
	return list, nil
}

// Add mutes a pubkey, publicly or privately, and republishes the whole list.
func (s *Service) Add(ctx context.Context, pubkey string, private bool) error {
	list, err := s.Fetch(ctx)
	if err != nil {
		return err
	}
	if list.All()[pubkey] {
		return nil
	}
	if private {
		list.Private = append(list.Private, pubkey)
	} else {
		list.Public = append(list.Public, pubkey)
	}
	if err := s.publish(ctx, list); err != nil {
		return err
	}
	s.Invalidate()
	return nil
}

// Remove unmutes a pubkey from both sections and republishes the whole list.
func (s *Service) Remove(ctx context.Context, pubkey string) error {
	list, err := s.Fetch(ctx)
	if err != nil {
		return err
	}
	if !list.All()[pubkey] {
		return nil
	}
	list.Public = remove(list.Public, pubkey)
	list.Private = remove(list.Private, pubkey)
	if err := s.publish(ctx, list); err != nil {
		return err
	}
	s.Invalidate()
	return nil
}

func remove(list []string, pubkey string) []string {
	out := list[:0]
	for _, pk := range list {
		if pk != pubkey {
			out = append(out, pk)
		}
	}
	return out
}

// publish replaces the mute list event in full; it is not an append log.
func (s *Service) publish(ctx context.Context, list *List) error {
	pub, err := s.sg.PublicKey(ctx)
	if err != nil {
		return fmt.Errorf("resolving identity: %w", err)
	}

	content := ""
	if len(list.Private) > 0 {
		tags := make([][]string, 0, len(list.Private))
		for _, pk := range list.Private {
			tags = append(tags, []string{common.TagP, pk})
		}
		body, err := json.Marshal(tags)
		if err != nil {
			return fmt.Errorf("encoding private mute entries: %w", err)
		}
		content, err = s.sg.Encrypt(ctx, pub, string(body))
		if err != nil {
			return fmt.Errorf("encrypting private mute entries: %w", err)
		}
	}

	evt := nostr.Event{
		Kind:      common.KindMuteList,
		CreatedAt: nostr.Now(),
		Content:   content,
	}
	for _, pk := range list.Public {
		evt.Tags = append(evt.Tags, nostr.Tag{common.TagP, pk})
	}
	if content != "" {
		evt.Tags = append(evt.Tags, nostr.Tag{common.TagEncrypted, common.EncryptionScheme})
	}
	if err := s.sg.SignEvent(ctx, &evt); err != nil {
		return err
	}
	if err := s.rc.Publish(ctx, evt); err != nil {
		return fmt.Errorf("publishing mute list: %w", err)
	}
	return nil
}

// IsMuted answers from the TTL cache, refetching when stale.
func (s *Service) IsMuted(ctx context.Context, pubkey string) (bool, error) {
	muted, err := s.MutedSet(ctx)
	if err != nil {
		return false, err
	}
	return muted[pubkey], nil
}

// MutedSet returns the merged muted set, served from the cache within its TTL.
func (s *Service) MutedSet(ctx context.Context) (map[string]bool, error) {
	s.mu.Lock()
	if s.cached != nil && time.Since(s.fetchedAt) < s.ttl {
		cached := s.cached
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	list, err := s.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	muted := list.All()

	s.mu.Lock()
	s.cached = muted
	s.fetchedAt = time.Now()
	s.mu.Unlock()
	return muted, nil
}

// Invalidate drops the cache. Callers mutating the list through other paths
// must call it themselves.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}
