// Package sharing implements document exchange between users: addressable
// shared-document events encrypted to the recipient, gift-wrapped DM
// notifications, advisory revocation and import into the local vault.
package sharing

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/nbd-wtf/go-nostr"

	"github.com/driftnotes/drift/internal/common"
	"github.com/driftnotes/drift/internal/localstate"
	"github.com/driftnotes/drift/internal/logging"
	"github.com/driftnotes/drift/internal/mutelist"
	"github.com/driftnotes/drift/internal/relays"
	"github.com/driftnotes/drift/internal/signer"
	"github.com/driftnotes/drift/internal/vault"
)

// sharePayload is the recipient-encrypted body of a shared-document event.
// The title lives in a cleartext tag instead, so recipients can list shares
// without decrypting.
type sharePayload struct {
	Path        string             `json:"path"`
	Content     string             `json:"content"`
	Checksum    string             `json:"checksum"`
	SharedBy    sharer             `json:"sharedBy"`
	SharedAt    int64              `json:"sharedAt"`
	Attachments []vault.Attachment `json:"attachments,omitempty"`
}

type sharer struct {
	Pubkey string `json:"pubkey"`
	Name   string `json:"name,omitempty"`
}

// ShareResult reports the outcome of ShareDocument. The DM notification is
// best effort: the share itself stands even when DMSent is false.
type ShareResult struct {
	EventID string
	D       string
	DMSent  bool
	DMError error
}

// IncomingShare is a document someone shared with this user.
type IncomingShare struct {
	EventID   string
	Sender    string
	D         string
	Title     string
	Path      string
	Content   string
	CreatedAt time.Time
	Read      bool
}

// SentShare is a projection of a share this user authored. It is built from
// cleartext tags only, so no decryption round trip is needed to list them.
type SentShare struct {
	EventID   string
	D         string
	Recipient string
	Title     string
	Path      string
	CreatedAt time.Time
}

// Service owns the sharing flows.
type Service struct {
	rc    relays.Client
	sg    signer.Signer
	mutes *mutelist.Service
	state *localstate.Store
	log   logging.Logger
}

func NewService(rc relays.Client, sg signer.Signer, mutes *mutelist.Service, state *localstate.Store, log logging.Logger) *Service {
	return &Service{rc: rc, sg: sg, mutes: mutes, state: state, log: log}
}

// ShareDocument publishes a document encrypted to recipientPub, then tries to
// notify them with a gift-wrapped DM. A DM failure does not roll the share
// back; it is surfaced in the result instead.
func (s *Service) ShareDocument(ctx context.Context, recipientPub, title, path, content string) (*ShareResult, error) {
	senderPub, err := s.sg.PublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving identity: %w", err)
	}
	payload := sharePayload{
		Path:     path,
		Content:  content,
		Checksum: common.Checksum(content),
		SharedBy: sharer{Pubkey: senderPub},
		SharedAt: time.Now().Unix(),
	}
	// Attach our display name when one is cached locally.
	if name, err := s.state.ProfileName(ctx, senderPub); err == nil {
		payload.SharedBy.Name = name
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding share payload: %w", err)
	}
	ciphertext, err := s.sg.Encrypt(ctx, recipientPub, string(body))
	if err != nil {
		return nil, fmt.Errorf("encrypting share: %w", err)
	}

	d := uuid.NewString()
	evt := nostr.Event{
		Kind:      common.KindSharedDocument,
		CreatedAt: nostr.Now(),
		Content:   ciphertext,
		Tags: nostr.Tags{
			{common.TagD, d},
			{common.TagP, recipientPub},
			{common.TagTitle, title},
			{common.TagPath, path},
			{common.TagEncrypted, common.EncryptionScheme},
		},
	}
	if err := s.sg.SignEvent(ctx, &evt); err != nil {
		return nil, err
	}
	if err := s.rc.Publish(ctx, evt); err != nil {
		return nil, fmt.Errorf("publishing share: %w", err)
	}

	res := &ShareResult{EventID: evt.ID, D: d}
	res.DMSent, res.DMError = s.notifyRecipient(ctx, recipientPub, title)
	if res.DMError != nil {
		s.log.Warn(ctx, "share published but DM notification failed", "recipient", recipientPub, "error", res.DMError)
	}
	return res, nil
}

// notifyRecipient sends the gift-wrapped heads-up. Wrapping needs the raw
// secret, which only the local signer exposes; with a remote signer the
// recipient still sees the share, just without a DM.
func (s *Service) notifyRecipient(ctx context.Context, recipientPub, title string) (bool, error) {
	keyer, ok := s.sg.(signer.SecretKeyer)
	if !ok {
		return false, fmt.Errorf("remote signer cannot seal direct messages")
	}
	message := fmt.Sprintf("Shared a document with you: %s", title)
	wrap, err := wrapDirectMessage(keyer.SecretKey(), recipientPub, message)
	if err != nil {
		return false, err
	}
	if err := s.rc.Publish(ctx, *wrap); err != nil {
		return false, fmt.Errorf("publishing notification: %w", err)
	}
	return true, nil
}

// FetchSharedWithMe returns documents shared with this user, newest first.
// Shares from muted senders and shares the sender has since revoked are
// dropped; undecryptable ones are skipped with a warning.
func (s *Service) FetchSharedWithMe(ctx context.Context) ([]*IncomingShare, error) {
	pub, err := s.sg.PublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving identity: %w", err)
	}
	events, err := s.rc.QuerySync(ctx, nostr.Filter{
		Kinds: []int{common.KindSharedDocument},
		Tags:  nostr.TagMap{common.TagP: []string{pub}},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching shares: %w", err)
	}
	if len(events) == 0 {
		return nil, nil
	}

	muted, err := s.mutes.MutedSet(ctx)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revokedIDs(ctx, events)
	if err != nil {
		return nil, err
	}
	read, err := s.state.ReadShareIDs(ctx)
	if err != nil {
		return nil, err
	}

	var out []*IncomingShare
	for _, evt := range events {
		if muted[evt.PubKey] || revoked[evt.ID] {
			continue
		}
		plaintext, err := s.sg.Decrypt(ctx, evt.PubKey, evt.Content)
		if err != nil {
			s.log.Warn(ctx, "skipping undecryptable share", "event", evt.ID, "error", err)
			continue
		}
		var payload sharePayload
		if err := json.Unmarshal([]byte(plaintext), &payload); err != nil {
			s.log.Warn(ctx, "skipping malformed share", "event", evt.ID, "error", err)
			continue
		}
		if payload.Checksum != "" && payload.Checksum != common.Checksum(payload.Content) {
			s.log.Warn(ctx, "skipping share with checksum mismatch", "event", evt.ID)
			continue
		}
		if payload.SharedBy.Name != "" {
			if err := s.state.UpsertProfile(ctx, evt.PubKey, payload.SharedBy.Name); err != nil {
				s.log.Warn(ctx, "could not cache sender profile", "error", err)
			}
		}
		out = append(out, &IncomingShare{
			EventID:   evt.ID,
			Sender:    evt.PubKey,
			D:         tagValue(evt, common.TagD),
			Title:     tagValue(evt, common.TagTitle),
			Path:      payload.Path,
			Content:   payload.Content,
			CreatedAt: evt.CreatedAt.Time(),
			Read:      read[evt.ID],
		})
	}
	return out, nil
}

// revokedIDs finds deletion events referencing the given shares. Deletion is
// advisory on the relay side, so revoked shares are filtered here as well:
// only deletions authored by the share's own sender count.
func (s *Service) revokedIDs(ctx context.Context, shares []*nostr.Event) (map[string]bool, error) {
	ids := make([]string, 0, len(shares))
	authors := make(map[string]string, len(shares))
	for _, evt := range shares {
		ids = append(ids, evt.ID)
		authors[evt.ID] = evt.PubKey
	}
	deletions, err := s.rc.QuerySync(ctx, nostr.Filter{
		Kinds: []int{common.KindDeletion},
		Tags:  nostr.TagMap{common.TagE: ids},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching revocations: %w", err)
	}
	revoked := make(map[string]bool)
	for _, del := range deletions {
		for _, tag := range del.Tags.GetAll([]string{common.TagE}) {
			if len(tag) >= 2 && authors[tag[1]] == del.PubKey {
				revoked[tag[1]] = true
			}
		}
	}
	return revoked, nil
}

// FetchSentShares lists shares this user has published, newest first.
func (s *Service) FetchSentShares(ctx context.Context) ([]*SentShare, error) {
	pub, err := s.sg.PublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving identity: %w", err)
	}
	events, err := s.rc.QuerySync(ctx, nostr.Filter{
		Kinds:   []int{common.KindSharedDocument},
		Authors: []string{pub},
	})
	if err != nil {
		return nil, fmt.Errorf("fetching sent shares: %w", err)
	}
	var out []*SentShare
	for _, evt := range events {
		out = append(out, &SentShare{
			EventID:   evt.ID,
			D:         tagValue(evt, common.TagD),
			Recipient: tagValue(evt, common.TagP),
			Title:     tagValue(evt, common.TagTitle),
			Path:      tagValue(evt, common.TagPath),
			CreatedAt: evt.CreatedAt.Time(),
		})
	}
	return out, nil
}

// RevokeShare publishes a deletion for a share this user authored. Relays are
// not obliged to honor it; recipients running this client filter revoked
// shares regardless.
func (s *Service) RevokeShare(ctx context.Context, eventID string) error {
	evt := nostr.Event{
		Kind:      common.KindDeletion,
		CreatedAt: nostr.Now(),
		Tags: nostr.Tags{
			{common.TagE, eventID},
			{common.TagK, strconv.Itoa(common.KindSharedDocument)},
		},
	}
	if err := s.sg.SignEvent(ctx, &evt); err != nil {
		return err
	}
	if err := s.rc.Publish(ctx, evt); err != nil {
		return fmt.Errorf("publishing revocation: %w", err)
	}
	return nil
}

// Import writes a received share into the user's own vault under a sanitized
// path and marks it read. The returned vault replaces the caller's copy.
func (s *Service) Import(ctx context.Context, vaults *vault.Service, v *vault.Vault, share *IncomingShare) (*vault.FileEntry, *vault.Vault, error) {
	path := SanitizePath(share.Path)
	existing := v.FindFileByPath(path)
	entry, updated, err := vaults.PublishFile(ctx, v, path, share.Content, existing)
	if err != nil {
		return nil, nil, fmt.Errorf("importing share: %w", err)
	}
	if err := s.state.MarkShareRead(ctx, share.EventID); err != nil {
		s.log.Warn(ctx, "imported share but could not mark it read", "event", share.EventID, "error", err)
	}
	return entry, updated, nil
}

// MarkRead records locally that the user has seen a share.
func (s *Service) MarkRead(ctx context.Context, eventID string) error {
	return s.state.MarkShareRead(ctx, eventID)
}

func tagValue(evt *nostr.Event, name string) string {
	if tag := evt.Tags.GetFirst([]string{name}); tag != nil {
		return tag.Value()
	}
	return ""
}
