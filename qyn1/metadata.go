package qyn1

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// metadataAADPrefix is prepended, literally, to the canonical metadata JSON
// to form the AEAD associated data.
const metadataAADPrefix = "QYN1-METADATA-v1:"

// legacyAssociatedData is used as AAD for v1 wrapper bodies that carry no
// metadata block at all.
const legacyAssociatedData = "QYN1-PACKAGE-v1"

// PeekWrapperMetadata reads the metadata JSON blob out of a wrapper frame's
// body without touching the encrypted envelope that follows it, so a caller
// without the passphrase can still inspect a package (spec.md §6's "inspect"
// front-end operation). It returns the metadata bytes and the remainder of
// body (the crypto envelope fields), mirroring the layout Codec.Encode
// writes in package.go.
func PeekWrapperMetadata(body []byte) ([]byte, []byte, error) {
	return readU32Blob(body, DefaultBudget())
}

// PackageMetadata is the canonicalised, integrity-bound description of a
// package. Its canonical JSON, prefixed with metadataAADPrefix, is the AEAD
// associated data for the crypto envelope.
type PackageMetadata struct {
	PackageVersion          string
	DictionaryVersion       string
	EncoderVersion          string
	SourceLanguage          string
	SourceLanguageVersion   string
	SourceHash              string
	CompressionBackend      string
	CompressionModelDigest  string
	SymbolCount             int64

	Timestamp          *string
	Author             *string
	License            *string
	KeyProvider        *string
	KeyID              *string
	KeyVersion         *string
	RotationDue        *string
	AuditTrail         []map[string]any
	Provenance         map[string]any
	IntegritySignature map[string]any
}

// requiredMetadataFields names the fields every metadata map must carry;
// metadataFromMap rejects a map missing any of them.
var requiredMetadataFields = []string{
	"package_version", "dictionary_version", "encoder_version", "source_language",
	"source_language_version", "source_hash", "compression_backend",
	"compression_model_digest", "symbol_count",
}

// ToMap renders the required fields plus every optional field that is set.
// The map is marshaled with CanonicalJSON, which sorts keys recursively, to
// form both the metadata section payload and the AEAD associated data -
// guaranteeing the two are always byte-identical.
func (m *PackageMetadata) ToMap() map[string]any {
	out := map[string]any{
		"package_version":           m.PackageVersion,
		"dictionary_version":        m.DictionaryVersion,
		"encoder_version":           m.EncoderVersion,
		"source_language":           m.SourceLanguage,
		"source_language_version":   m.SourceLanguageVersion,
		"source_hash":               m.SourceHash,
		"compression_backend":       m.CompressionBackend,
		"compression_model_digest": m.CompressionModelDigest,
		"symbol_count":              m.SymbolCount,
	}
	if m.Timestamp != nil {
		out["timestamp"] = *m.Timestamp
	}
	if m.Author != nil {
		out["author"] = *m.Author
	}
	if m.License != nil {
		out["license"] = *m.License
	}
	if m.KeyProvider != nil {
		out["key_provider"] = *m.KeyProvider
	}
	if m.KeyID != nil {
		out["key_id"] = *m.KeyID
	}
	if m.KeyVersion != nil {
		out["key_version"] = *m.KeyVersion
	}
	if m.RotationDue != nil {
		out["rotation_due"] = *m.RotationDue
	}
	if m.AuditTrail != nil {
		out["audit_trail"] = m.AuditTrail
	}
	if m.Provenance != nil {
		out["provenance"] = m.Provenance
	}
	if m.IntegritySignature != nil {
		out["integrity_signature"] = m.IntegritySignature
	}
	return out
}

// CanonicalJSON renders data as JSON with recursively sorted keys, `:`/`,`
// separators, no whitespace, and no HTML-escaping - the shape every
// canonicalised blob in the codec (metadata, compression model, extras) must
// share so that compression_model_digest and the AAD stay reproducible byte
// for byte regardless of field construction order.
func CanonicalJSON(data any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// AssociatedData is the AEAD associated data derived from this metadata.
func (m *PackageMetadata) AssociatedData() ([]byte, error) {
	body, err := CanonicalJSON(m.ToMap())
	if err != nil {
		return nil, err
	}
	return append([]byte(metadataAADPrefix), body...), nil
}

// metadataFromMap parses metadata from a decoded JSON object, checking the
// required field set.
func metadataFromMap(data map[string]any) (*PackageMetadata, error) {
	for _, field := range requiredMetadataFields {
		if _, ok := data[field]; !ok {
			return nil, &MetadataMismatchError{Reason: fmt.Sprintf("missing required field %q", field)}
		}
	}
	m := &PackageMetadata{
		PackageVersion:         asString(data["package_version"]),
		DictionaryVersion:      asString(data["dictionary_version"]),
		EncoderVersion:         asString(data["encoder_version"]),
		SourceLanguage:         asString(data["source_language"]),
		SourceLanguageVersion:  asString(data["source_language_version"]),
		SourceHash:             asString(data["source_hash"]),
		CompressionBackend:     asString(data["compression_backend"]),
		CompressionModelDigest: asString(data["compression_model_digest"]),
		SymbolCount:            asInt64(data["symbol_count"]),
	}
	if v, ok := data["timestamp"]; ok {
		s := asString(v)
		m.Timestamp = &s
	}
	if v, ok := data["author"]; ok {
		s := asString(v)
		m.Author = &s
	}
	if v, ok := data["license"]; ok {
		s := asString(v)
		m.License = &s
	}
	if v, ok := data["key_provider"]; ok {
		s := asString(v)
		m.KeyProvider = &s
	}
	if v, ok := data["key_id"]; ok {
		s := asString(v)
		m.KeyID = &s
	}
	if v, ok := data["key_version"]; ok {
		s := asString(v)
		m.KeyVersion = &s
	}
	if v, ok := data["rotation_due"]; ok {
		s := asString(v)
		m.RotationDue = &s
	}
	// audit_trail, provenance, integrity_signature are carried verbatim and
	// never interpreted by the codec, per the resolved open question.
	if v, ok := data["audit_trail"].([]any); ok {
		for _, entry := range v {
			if mm, ok := entry.(map[string]any); ok {
				m.AuditTrail = append(m.AuditTrail, mm)
			}
		}
	}
	if v, ok := data["provenance"].(map[string]any); ok {
		m.Provenance = v
	}
	if v, ok := data["integrity_signature"].(map[string]any); ok {
		m.IntegritySignature = v
	}
	return m, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return 0
	}
}

// digestModel computes sha256_hex(canonical_json(model)), matching the way
// compression_model_digest is derived from the model actually embedded in
// the Compression section.
func digestModel(model map[string]any) (string, error) {
	canonical, err := CanonicalJSON(model)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}
