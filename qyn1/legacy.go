package qyn1

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/everplay-tech/quenyan/config"
)

// legacyPackageVersion is the package_version boundary below which a
// package is the 1.0 plain-JSON wrapper rather than the QYN1/MCS binary
// framing: encoding_version < 1.1.0 per the original migration boundary.
const legacyPackageVersion = "1.0"

// legacyWrapper is the on-wire shape of a 1.0 package: a JSON object with
// base64-encoded crypto envelope fields wrapped around a JSON (not binary
// section) payload.
type legacyWrapper struct {
	Version    string         `json:"version"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Nonce      string         `json:"nonce"`
	Salt       string         `json:"salt"`
	Ciphertext string         `json:"ciphertext"`
	Tag        string         `json:"tag"`
}

// legacyPayload is the 1.0 plaintext shape: a single interleaved string
// table (no type grouping, no prefix compression) and the five scalar
// channels as plain JSON arrays rather than entropy-coded sections.
type legacyPayload struct {
	DictionaryVersion     string   `json:"dictionary_version"`
	EncoderVersion        string   `json:"encoder_version"`
	SourceLanguage        string   `json:"source_language"`
	SourceLanguageVersion string   `json:"source_language_version"`
	SourceHash            string   `json:"source_hash"`
	Tokens                []uint32 `json:"tokens"`
	Table                 []string `json:"table"`
	Identifiers           []uint32 `json:"identifiers"`
	Strings               []uint32 `json:"strings"`
	Numbers               []int64  `json:"numbers"`
	Counts                []uint64 `json:"counts"`
	Flags                 []bool   `json:"flags"`
}

// IsLegacyPackage reports whether data looks like a 1.0 JSON wrapper rather
// than the current QYN1 binary frame - the dividing line the decode entry
// point uses to pick a parser without guessing from package_version alone.
func IsLegacyPackage(data []byte) bool {
	if len(data) >= 4 && bytes.Equal(data[:4], WrapperMagic[:]) {
		return false
	}
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

// EncodeLegacy renders stream as a 1.0 package: PBKDF2-only key derivation,
// no HKDF stage, and a plain-JSON payload with an interleaved string table.
func (c *Codec) EncodeLegacy(stream EncodedStream, passphrase config.SecretString) ([]byte, error) {
	table := make([]string, len(stream.StringValues))
	copy(table, stream.StringValues)

	payload := legacyPayload{
		DictionaryVersion:     stream.DictionaryVersion,
		EncoderVersion:        stream.EncoderVersion,
		SourceLanguage:        stream.SourceLanguage,
		SourceLanguageVersion: stream.SourceLanguageVersion,
		SourceHash:            stream.SourceHash,
		Tokens:                stream.Tokens,
		Table:                 table,
		Identifiers:           stream.PayloadChannels.Identifiers,
		Strings:               stream.PayloadChannels.Strings,
		Numbers:               stream.PayloadChannels.Numbers,
		Counts:                stream.PayloadChannels.Counts,
		Flags:                 stream.PayloadChannels.Flags,
	}
	plaintext, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	salt := make([]byte, saltSize)
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("qyn1: failed to generate random material: %w", err)
	}
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("qyn1: failed to generate random material: %w", err)
	}
	key := derivePBKDF2Legacy(passphrase, salt)
	defer config.Wipe(key)

	aad := []byte(legacyAssociatedData)
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("qyn1: failed to initialise AEAD: %w", err)
	}
	sealed := aead.Seal(nil, nonce, plaintext, aad)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	wrapper := legacyWrapper{
		Version:    legacyPackageVersion,
		Nonce:      base64.StdEncoding.EncodeToString(nonce),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		Tag:        base64.StdEncoding.EncodeToString(tag),
	}
	return json.Marshal(wrapper)
}

// DecodeLegacy reverses EncodeLegacy, also accepting packages that do carry
// a metadata block (migrated-but-not-upgraded packages), in which case the
// metadata's own associated data is used instead of legacyAssociatedData.
func (c *Codec) DecodeLegacy(data []byte, passphrase config.SecretString) (*EncodedStream, error) {
	var wrapper legacyWrapper
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, &FrameCorruptError{Reason: "legacy wrapper JSON corrupt: " + err.Error()}
	}

	nonce, err := base64.StdEncoding.DecodeString(wrapper.Nonce)
	if err != nil {
		return nil, &FrameCorruptError{Reason: "legacy wrapper nonce not base64"}
	}
	salt, err := base64.StdEncoding.DecodeString(wrapper.Salt)
	if err != nil {
		return nil, &FrameCorruptError{Reason: "legacy wrapper salt not base64"}
	}
	ciphertext, err := base64.StdEncoding.DecodeString(wrapper.Ciphertext)
	if err != nil {
		return nil, &FrameCorruptError{Reason: "legacy wrapper ciphertext not base64"}
	}
	tag, err := base64.StdEncoding.DecodeString(wrapper.Tag)
	if err != nil {
		return nil, &FrameCorruptError{Reason: "legacy wrapper tag not base64"}
	}

	aad := []byte(legacyAssociatedData)
	var metadata *PackageMetadata
	if wrapper.Metadata != nil {
		metadata, err = metadataFromMap(wrapper.Metadata)
		if err != nil {
			return nil, err
		}
		aad, err = metadata.AssociatedData()
		if err != nil {
			return nil, err
		}
	}

	env := &EncryptionEnvelope{
		Nonce: nonce, Salt: salt, Ciphertext: ciphertext, Tag: tag,
		Version: 1, AEAD: "chacha20poly1305", KDF: "pbkdf2", KDFRounds: pbkdf2Rounds,
	}
	plaintext, err := Decrypt(env, passphrase, aad)
	if err != nil {
		return nil, err
	}

	var payload legacyPayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, &FrameCorruptError{Reason: "legacy payload JSON corrupt: " + err.Error()}
	}

	sourceHash := payload.SourceHash
	if metadata != nil {
		sourceHash = metadata.SourceHash
	}

	return &EncodedStream{
		DictionaryVersion:     payload.DictionaryVersion,
		EncoderVersion:        payload.EncoderVersion,
		SourceLanguage:        payload.SourceLanguage,
		SourceLanguageVersion: payload.SourceLanguageVersion,
		SourceHash:            sourceHash,
		Tokens:                payload.Tokens,
		StringValues:          payload.Table,
		PayloadChannels: PayloadChannels{
			Identifiers: payload.Identifiers,
			Strings:     payload.Strings,
			Numbers:     payload.Numbers,
			Counts:      payload.Counts,
			Flags:       payload.Flags,
		},
	}, nil
}
