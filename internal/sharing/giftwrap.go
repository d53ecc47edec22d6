package sharing

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip44"

	"github.com/driftnotes/drift/internal/common"
)

// maxWrapSkew is how far into the past wrapper timestamps are randomized,
// so relay metadata does not reveal when the message was actually sent.
const maxWrapSkew = int64(2 * 24 * 60 * 60)

// wrapDirectMessage builds a gift-wrapped direct message: an unsigned rumor
// carrying the text, sealed with the sender's key, wrapped with a throwaway
// key. Only the recipient can tie the result back to the sender.
func wrapDirectMessage(senderSK, recipientPub, message string) (*nostr.Event, error) {
	senderPub, err := nostr.GetPublicKey(senderSK)
	if err != nil {
		return nil, fmt.Errorf("deriving sender key: %w", err)
	}

	rumor := nostr.Event{
		PubKey:    senderPub,
		Kind:      common.KindRumor,
		CreatedAt: nostr.Now(),
		Tags:      nostr.Tags{{common.TagP, recipientPub}},
		Content:   message,
	}
	rumor.ID = rumor.GetID()

	seal, err := sealRumor(senderSK, recipientPub, &rumor)
	if err != nil {
		return nil, err
	}

	wrapSK := nostr.GeneratePrivateKey()
	wrap, err := encryptInto(wrapSK, recipientPub, seal, common.KindGiftWrap)
	if err != nil {
		return nil, fmt.Errorf("wrapping seal: %w", err)
	}
	return wrap, nil
}

func sealRumor(senderSK, recipientPub string, rumor *nostr.Event) (*nostr.Event, error) {
	seal, err := encryptInto(senderSK, recipientPub, rumor, common.KindSeal)
	if err != nil {
		return nil, fmt.Errorf("sealing rumor: %w", err)
	}
	return seal, nil
}

// encryptInto serializes inner, encrypts it to recipientPub and signs the
// carrier event with sk. The carrier's timestamp is skewed into the past.
func encryptInto(sk, recipientPub string, inner *nostr.Event, kind int) (*nostr.Event, error) {
	body, err := json.Marshal(inner)
	if err != nil {
		return nil, fmt.Errorf("encoding event: %w", err)
	}
	conv, err := nip44.GenerateConversationKey(recipientPub, sk)
	if err != nil {
		return nil, fmt.Errorf("deriving conversation key: %w", err)
	}
	ciphertext, err := nip44.Encrypt(string(body), conv)
	if err != nil {
		return nil, fmt.Errorf("encrypting event: %w", err)
	}

	evt := &nostr.Event{
		Kind:      kind,
		CreatedAt: skewedNow(),
		Content:   ciphertext,
	}
	if kind == common.KindGiftWrap {
		evt.Tags = nostr.Tags{{common.TagP, recipientPub}}
	}
	if err := evt.Sign(sk); err != nil {
		return nil, fmt.Errorf("signing event: %w", err)
	}
	return evt, nil
}

func skewedNow() nostr.Timestamp {
	return nostr.Timestamp(int64(nostr.Now()) - rand.Int64N(maxWrapSkew))
}
