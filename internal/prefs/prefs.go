// Package prefs stores user preferences as a self-encrypted replaceable
// application-data event, so they follow the identity across devices.
package prefs

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nbd-wtf/go-nostr"

	"github.com/driftnotes/drift/internal/common"
	"github.com/driftnotes/drift/internal/relays"
	"github.com/driftnotes/drift/internal/signer"
)

// Preferences mirrors the UI-facing settings synced between devices.
// Unknown fields round-trip through Extra so older clients do not drop
// settings written by newer ones.
type Preferences struct {
	Theme         string          `json:"theme,omitempty"`
	EditorFont    string          `json:"editorFont,omitempty"`
	SyncOnStartup bool            `json:"syncOnStartup"`
	Extra         json.RawMessage `json:"extra,omitempty"`
}

type Service struct {
	rc relays.Client
	sg signer.Signer
}

func NewService(rc relays.Client, sg signer.Signer) *Service {
	return &Service{rc: rc, sg: sg}
}

// Save replaces the preferences event.
func (s *Service) Save(ctx context.Context, p *Preferences) error {
	pub, err := s.sg.PublicKey(ctx)
	if err != nil {
		return fmt.Errorf("resolving identity: %w", err)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}
	ciphertext, err := s.sg.Encrypt(ctx, pub, string(body))
	if err != nil {
		return fmt.Errorf("encrypting preferences: %w", err)
	}

	evt := nostr.Event{
		Kind:      common.KindAppData,
		CreatedAt: nostr.Now(),
		Content:   ciphertext,
		Tags: nostr.Tags{
			{common.TagD, common.PreferencesD},
			{common.TagEncrypted, common.EncryptionScheme},
		},
	}
	if err := s.sg.SignEvent(ctx, &evt); err != nil {
		return err
	}
	if err := s.rc.Publish(ctx, evt); err != nil {
		return fmt.Errorf("publishing preferences: %w", err)
	}
	return nil
}

// Fetch returns the stored preferences, or defaults when none exist yet.
func (s *Service) Fetch(ctx context.Context) (*Preferences, error) {
	pub, err := s.sg.PublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving identity: %w", err)
	}
	events, err := s.rc.QuerySync(ctx, nostr.Filter{
		Kinds:   []int{common.KindAppData},
		Authors: []string{pub},
		Tags:    nostr.TagMap{common.TagD: []string{common.PreferencesD}},
		Limit:   1,
	})
	if err != nil {
		return nil, fmt.Errorf("fetching preferences: %w", err)
	}
	if len(events) == 0 {
		return &Preferences{SyncOnStartup: true}, nil
	}

	plaintext, err := s.sg.Decrypt(ctx, pub, events[0].Content)
	if err != nil {
		return nil, fmt.Errorf("decrypting preferences: %w", err)
	}
	var p Preferences
	if err := json.Unmarshal([]byte(plaintext), &p); err != nil {
		return nil, fmt.Errorf("decoding preferences: %w", err)
	}
	return &p, nil
}
