// Package common contains shared constants and sentinel errors used across
// drift components.
package common

// Event kinds used on the wire. File records, vault indices, shared documents
// and preferences are addressable (replaceable per author + d tag); the mute
// list is a replaceable singleton.
const (
	KindDeletion       = 5
	KindSeal           = 13
	KindRumor          = 14
	KindGiftWrap       = 1059
	KindMuteList       = 10000
	KindNostrConnect   = 24133
	KindAppData        = 30078
	KindFile           = 30563
	KindVaultIndex     = 30564
	KindSharedDocument = 30565
)

// Tag names.
const (
	TagD         = "d"
	TagP         = "p"
	TagE         = "e"
	TagK         = "k"
	TagTitle     = "title"
	TagPath      = "path"
	TagEncrypted = "encrypted"
)

// EncryptionScheme is the value carried by the "encrypted" marker tag on
// every self- or recipient-encrypted event, so readers can tell ciphertext
// payloads from plaintext ones.
const EncryptionScheme = "nip44"

// PreferencesD is the fixed d tag of the preferences app-data record.
const PreferencesD = "drift/preferences"
