package sharing

import (
	"encoding/json"
	"testing"

	"github.com/nbd-wtf/go-nostr"
	"github.com/nbd-wtf/go-nostr/nip44"
	"github.com/stretchr/testify/require"

	"github.com/driftnotes/drift/internal/common"
)

// unwrap undoes both layers the way a receiving client would.
func unwrap(t *testing.T, recipientSK string, wrap *nostr.Event) *nostr.Event {
	t.Helper()

	conv, err := nip44.GenerateConversationKey(wrap.PubKey, recipientSK)
	require.NoError(t, err)
	sealJSON, err := nip44.Decrypt(wrap.Content, conv)
	require.NoError(t, err)
	var seal nostr.Event
	require.NoError(t, json.Unmarshal([]byte(sealJSON), &seal))
	require.Equal(t, common.KindSeal, seal.Kind)
	ok, err := seal.CheckSignature()
	require.NoError(t, err)
	require.True(t, ok)

	conv, err = nip44.GenerateConversationKey(seal.PubKey, recipientSK)
	require.NoError(t, err)
	rumorJSON, err := nip44.Decrypt(seal.Content, conv)
	require.NoError(t, err)
	var rumor nostr.Event
	require.NoError(t, json.Unmarshal([]byte(rumorJSON), &rumor))
	return &rumor
}

func TestWrapDirectMessageRoundTrip(t *testing.T) {
	senderSK := nostr.GeneratePrivateKey()
	senderPub, err := nostr.GetPublicKey(senderSK)
	require.NoError(t, err)
	recipientSK := nostr.GeneratePrivateKey()
	recipientPub, err := nostr.GetPublicKey(recipientSK)
	require.NoError(t, err)

	wrap, err := wrapDirectMessage(senderSK, recipientPub, "hello")
	require.NoError(t, err)

	// The outer event must not reveal the sender.
	require.Equal(t, common.KindGiftWrap, wrap.Kind)
	require.NotEqual(t, senderPub, wrap.PubKey)
	require.NotContains(t, wrap.Content, "hello")
	tag := wrap.Tags.GetFirst([]string{common.TagP})
	require.NotNil(t, tag)
	require.Equal(t, recipientPub, tag.Value())
	require.LessOrEqual(t, int64(wrap.CreatedAt), int64(nostr.Now()))

	rumor := unwrap(t, recipientSK, wrap)
	require.Equal(t, common.KindRumor, rumor.Kind)
	require.Equal(t, senderPub, rumor.PubKey)
	require.Equal(t, "hello", rumor.Content)
	require.Empty(t, rumor.Sig)
}

func TestWrapDirectMessageOnlyRecipientCanOpen(t *testing.T) {
	senderSK := nostr.GeneratePrivateKey()
	recipientPub, err := nostr.GetPublicKey(nostr.GeneratePrivateKey())
	require.NoError(t, err)

	wrap, err := wrapDirectMessage(senderSK, recipientPub, "secret")
	require.NoError(t, err)

	otherSK := nostr.GeneratePrivateKey()
	conv, err := nip44.GenerateConversationKey(wrap.PubKey, otherSK)
	require.NoError(t, err)
	_, err = nip44.Decrypt(wrap.Content, conv)
	require.Error(t, err)
}
