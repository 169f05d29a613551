package qyn1

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/everplay-tech/quenyan/config"
)

func sampleStream() EncodedStream {
	return EncodedStream{
		DictionaryVersion:     "1.0.0",
		EncoderVersion:        "test-encoder-1",
		SourceLanguage:        "go",
		SourceLanguageVersion: "1.24",
		SourceHash:            "deadbeef",
		Tokens:                []uint32{5, 5, 7, 5, 9, 7, 5, 12},
		StringValues:          []string{"alpha", "beta", "gamma"},
		PayloadChannels: PayloadChannels{
			Entries: []Entry{
				{PayloadType: "identifier", Channel: ChannelIdentifier, Kind: "plain", TokenIndex: 0},
				{PayloadType: "string_literal", Channel: ChannelString, Kind: "plain", TokenIndex: 1},
				{PayloadType: "count", Channel: ChannelCount, Kind: "call_arg", TokenIndex: 2},
				{PayloadType: "number", Channel: ChannelNumber, Kind: "literal_int", TokenIndex: 4},
				{PayloadType: "flag", Channel: ChannelFlag, Kind: "plain", TokenIndex: 6},
				{PayloadType: "structured", Channel: ChannelStructured, Kind: "literal_map", TokenIndex: 7},
			},
			Identifiers: []uint32{3},
			Strings:     []uint32{0, 1, 2},
			Numbers:     []int64{-42},
			Counts:      []uint64{7},
			Flags:       []bool{true},
			Structured: []Value{
				{Kind: ValueMap, Map: []MapEntry{
					{Key: "a", Value: Value{Kind: ValueInt, Int: 1}},
					{Key: "b", Value: Value{Kind: ValueString, Str: "x"}},
				}},
			},
		},
	}
}

func encodeSample(t *testing.T, codec *Codec, params CompressionParams) ([]byte, EncodedStream, config.SecretString) {
	t.Helper()
	stream := sampleStream()
	passphrase := config.SecretString("correct horse battery staple")
	out, err := codec.Encode(stream, EncodeOptions{Passphrase: passphrase, Params: params})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return out, stream, passphrase
}

func TestRoundTripMinimal(t *testing.T) {
	codec := NewCodec()
	packed, stream, passphrase := encodeSample(t, codec, CompressionParams{Backend: BackendRANS, ModelMode: ModelModeAdaptive})

	got, err := codec.Decode(packed, DecodeOptions{Passphrase: passphrase})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.DictionaryVersion != stream.DictionaryVersion ||
		got.EncoderVersion != stream.EncoderVersion ||
		got.SourceLanguage != stream.SourceLanguage ||
		got.SourceLanguageVersion != stream.SourceLanguageVersion ||
		got.SourceHash != stream.SourceHash {
		t.Fatalf("header fields mismatch: got %+v", got)
	}
	if !reflect.DeepEqual(got.Tokens, stream.Tokens) {
		t.Fatalf("tokens mismatch: got %v want %v", got.Tokens, stream.Tokens)
	}
	// StringValues is reconstructed one entry per Strings occurrence; the
	// sample stream's occurrences are already shaped that way (sequential
	// indices 0..n-1), so the resolved values must match exactly.
	if !reflect.DeepEqual(got.StringValues, stream.StringValues) {
		t.Fatalf("string values mismatch: got %v want %v", got.StringValues, stream.StringValues)
	}
	if !reflect.DeepEqual(got.PayloadChannels.Identifiers, stream.PayloadChannels.Identifiers) {
		t.Fatalf("identifiers mismatch: got %v want %v", got.PayloadChannels.Identifiers, stream.PayloadChannels.Identifiers)
	}
	if !reflect.DeepEqual(got.PayloadChannels.Numbers, stream.PayloadChannels.Numbers) {
		t.Fatalf("numbers mismatch: got %v want %v", got.PayloadChannels.Numbers, stream.PayloadChannels.Numbers)
	}
	if !reflect.DeepEqual(got.PayloadChannels.Counts, stream.PayloadChannels.Counts) {
		t.Fatalf("counts mismatch: got %v want %v", got.PayloadChannels.Counts, stream.PayloadChannels.Counts)
	}
	if !reflect.DeepEqual(got.PayloadChannels.Flags, stream.PayloadChannels.Flags) {
		t.Fatalf("flags mismatch: got %v want %v", got.PayloadChannels.Flags, stream.PayloadChannels.Flags)
	}
	if !reflect.DeepEqual(got.PayloadChannels.Entries, stream.PayloadChannels.Entries) {
		t.Fatalf("entries mismatch: got %v want %v", got.PayloadChannels.Entries, stream.PayloadChannels.Entries)
	}
	if !reflect.DeepEqual(got.PayloadChannels.Structured, stream.PayloadChannels.Structured) {
		t.Fatalf("structured values mismatch: got %+v want %+v", got.PayloadChannels.Structured, stream.PayloadChannels.Structured)
	}
}

func TestPayloadChannelsStaticAndHybridModelModesRoundTrip(t *testing.T) {
	for _, mode := range []ModelMode{ModelModeStatic, ModelModeHybrid} {
		t.Run(string(mode), func(t *testing.T) {
			codec := NewCodec()
			packed, stream, passphrase := encodeSample(t, codec, CompressionParams{Backend: BackendRANS, ModelMode: mode})

			got, err := codec.Decode(packed, DecodeOptions{Passphrase: passphrase})
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got.PayloadChannels.Identifiers, stream.PayloadChannels.Identifiers) {
				t.Fatalf("identifiers mismatch: got %v want %v", got.PayloadChannels.Identifiers, stream.PayloadChannels.Identifiers)
			}
			if !reflect.DeepEqual(got.PayloadChannels.Strings, stream.PayloadChannels.Strings) {
				t.Fatalf("strings mismatch: got %v want %v", got.PayloadChannels.Strings, stream.PayloadChannels.Strings)
			}
			if !reflect.DeepEqual(got.PayloadChannels.Numbers, stream.PayloadChannels.Numbers) {
				t.Fatalf("numbers mismatch: got %v want %v", got.PayloadChannels.Numbers, stream.PayloadChannels.Numbers)
			}
			if !reflect.DeepEqual(got.PayloadChannels.Counts, stream.PayloadChannels.Counts) {
				t.Fatalf("counts mismatch: got %v want %v", got.PayloadChannels.Counts, stream.PayloadChannels.Counts)
			}
			if !reflect.DeepEqual(got.PayloadChannels.Flags, stream.PayloadChannels.Flags) {
				t.Fatalf("flags mismatch: got %v want %v", got.PayloadChannels.Flags, stream.PayloadChannels.Flags)
			}
		})
	}
}

func TestDecodeFrameTamperAuthFailed(t *testing.T) {
	codec := NewCodec()
	packed, _, passphrase := encodeSample(t, codec, CompressionParams{Backend: BackendRANS, ModelMode: ModelModeAdaptive})

	wrapper, _, err := UnmarshalFrame(packed, WrapperMagic)
	if err != nil {
		t.Fatalf("UnmarshalFrame: %v", err)
	}
	body := append([]byte(nil), wrapper.Body...)
	// Flip a byte deep inside the crypto envelope (well past the metadata
	// blob), then re-marshal through Frame so the CRC32 trailer stays
	// consistent with the tampered body - only AEAD authentication should
	// catch this.
	body[len(body)-8] ^= 0xFF
	tampered := (&Frame{Magic: WrapperMagic, Version: wrapper.Version, Features: wrapper.Features, Body: body}).Marshal()

	_, err = codec.Decode(tampered, DecodeOptions{Passphrase: passphrase})
	if _, ok := err.(*AuthFailedError); !ok {
		t.Fatalf("expected *AuthFailedError, got %T (%v)", err, err)
	}
}

func TestDecodeCRCTamperFrameCorrupt(t *testing.T) {
	codec := NewCodec()
	packed, _, passphrase := encodeSample(t, codec, CompressionParams{Backend: BackendRANS, ModelMode: ModelModeAdaptive})

	tampered := append([]byte(nil), packed...)
	// Flip a body byte directly in the wire bytes, without touching the
	// trailing CRC32: the frame parser must reject this before crypto ever
	// runs.
	tampered[frameHeaderLen] ^= 0xFF

	_, err := codec.Decode(tampered, DecodeOptions{Passphrase: passphrase})
	fc, ok := err.(*FrameCorruptError)
	if !ok {
		t.Fatalf("expected *FrameCorruptError, got %T (%v)", err, err)
	}
	if fc.Reason != "CRC32 mismatch" {
		t.Fatalf("expected CRC32 mismatch reason, got %q", fc.Reason)
	}
}

// forgeSymbolCount decrypts a legitimately encoded package, rewrites its
// Compression section's declared symbol_count, and re-encrypts - producing
// a package that authenticates and CRC-checks cleanly but lies about how
// many symbols the token stream holds. The compression section's model
// blob (and therefore compression_model_digest) is untouched by this
// rewrite, so metadata verification still passes; only the budget check
// DecodeTokens runs before decompression should catch it.
func forgeSymbolCount(t *testing.T, codec *Codec, packed []byte, passphrase config.SecretString, forgedCount int) []byte {
	t.Helper()
	budget := DefaultBudget()

	wrapper, _, err := UnmarshalFrame(packed, WrapperMagic)
	if err != nil {
		t.Fatalf("UnmarshalFrame: %v", err)
	}
	body := wrapper.Body
	metadataJSON, body, err := readU32Blob(body, budget)
	if err != nil {
		t.Fatalf("readU32Blob(metadata): %v", err)
	}
	var metadataMap map[string]any
	if err := json.Unmarshal(metadataJSON, &metadataMap); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	metadata, err := metadataFromMap(metadataMap)
	if err != nil {
		t.Fatalf("metadataFromMap: %v", err)
	}

	var envVersion, kdfRounds uint64
	var aeadName, kdfName string
	var salt, hkdfSalt, nonce, ciphertext, tag []byte
	envVersion, body, err = readVarint(body)
	if err != nil {
		t.Fatalf("readVarint(envVersion): %v", err)
	}
	aeadName, body, err = readUTF8(body)
	if err != nil {
		t.Fatalf("readUTF8(aead): %v", err)
	}
	kdfName, body, err = readUTF8(body)
	if err != nil {
		t.Fatalf("readUTF8(kdf): %v", err)
	}
	kdfRounds, body, err = readVarint(body)
	if err != nil {
		t.Fatalf("readVarint(kdfRounds): %v", err)
	}
	salt, body, err = readU32Blob(body, budget)
	if err != nil {
		t.Fatalf("readU32Blob(salt): %v", err)
	}
	hkdfSalt, body, err = readU32Blob(body, budget)
	if err != nil {
		t.Fatalf("readU32Blob(hkdfSalt): %v", err)
	}
	nonce, body, err = readU32Blob(body, budget)
	if err != nil {
		t.Fatalf("readU32Blob(nonce): %v", err)
	}
	ciphertext, body, err = readU32Blob(body, budget)
	if err != nil {
		t.Fatalf("readU32Blob(ciphertext): %v", err)
	}
	tag, _, err = readU32Blob(body, budget)
	if err != nil {
		t.Fatalf("readU32Blob(tag): %v", err)
	}

	env := &EncryptionEnvelope{
		Nonce: nonce, Salt: salt, HKDFSalt: hkdfSalt, Ciphertext: ciphertext, Tag: tag,
		Version: int(envVersion), AEAD: aeadName, KDF: kdfName, KDFRounds: int(kdfRounds),
	}
	aad, err := metadata.AssociatedData()
	if err != nil {
		t.Fatalf("AssociatedData: %v", err)
	}
	plaintext, err := Decrypt(env, passphrase, aad)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}

	payloadFrame, _, err := UnmarshalFrame(plaintext, PayloadMagic)
	if err != nil {
		t.Fatalf("UnmarshalFrame(payload): %v", err)
	}
	sections, err := UnmarshalSections(payloadFrame.Body)
	if err != nil {
		t.Fatalf("UnmarshalSections: %v", err)
	}
	compSec, ok := findSection(sections, SectionCompression)
	if !ok {
		t.Fatalf("compression section missing")
	}
	compMeta, _, err := parseCompressionSection(compSec.Payload, budget)
	if err != nil {
		t.Fatalf("parseCompressionSection: %v", err)
	}
	compMeta.SymbolCount = forgedCount
	forgedPayload, _, err := marshalCompressionSection(compMeta)
	if err != nil {
		t.Fatalf("marshalCompressionSection: %v", err)
	}
	for i := range sections {
		if sections[i].ID == SectionCompression {
			sections[i].Payload = forgedPayload
		}
	}

	newPlaintext := (&Frame{
		Magic: PayloadMagic, Version: payloadFrame.Version, Features: payloadFrame.Features,
		Body: MarshalSections(sections),
	}).Marshal()

	newEnv, err := Encrypt(newPlaintext, passphrase, aad)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	var newWrapperBody []byte
	newWrapperBody = putU32Blob(newWrapperBody, metadataJSON)
	newWrapperBody = putVarint(newWrapperBody, uint64(newEnv.Version))
	newWrapperBody = putUTF8(newWrapperBody, newEnv.AEAD)
	newWrapperBody = putUTF8(newWrapperBody, newEnv.KDF)
	newWrapperBody = putVarint(newWrapperBody, uint64(newEnv.KDFRounds))
	newWrapperBody = putU32Blob(newWrapperBody, newEnv.Salt)
	newWrapperBody = putU32Blob(newWrapperBody, newEnv.HKDFSalt)
	newWrapperBody = putU32Blob(newWrapperBody, newEnv.Nonce)
	newWrapperBody = putU32Blob(newWrapperBody, newEnv.Ciphertext)
	newWrapperBody = putU32Blob(newWrapperBody, newEnv.Tag)

	return (&Frame{Magic: WrapperMagic, Version: wrapper.Version, Features: wrapper.Features, Body: newWrapperBody}).Marshal()
}

// forgeMetadataSection decrypts a legitimately encoded package and rewrites
// its in-payload Metadata section (0x0007) to a value that no longer matches
// the wrapper's own metadata blob, then re-encrypts under the same
// (untouched) associated data - producing a package that authenticates and
// CRC-checks cleanly but whose payload metadata silently diverged from what
// the wrapper claims. Only the explicit metadata-section-vs-wrapper equality
// check in Decode should catch this.
func forgeMetadataSection(t *testing.T, packed []byte, passphrase config.SecretString) []byte {
	t.Helper()
	budget := DefaultBudget()

	wrapper, _, err := UnmarshalFrame(packed, WrapperMagic)
	if err != nil {
		t.Fatalf("UnmarshalFrame: %v", err)
	}
	body := wrapper.Body
	metadataJSON, body, err := readU32Blob(body, budget)
	if err != nil {
		t.Fatalf("readU32Blob(metadata): %v", err)
	}
	var metadataMap map[string]any
	if err := json.Unmarshal(metadataJSON, &metadataMap); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	metadata, err := metadataFromMap(metadataMap)
	if err != nil {
		t.Fatalf("metadataFromMap: %v", err)
	}

	var envVersion, kdfRounds uint64
	var aeadName, kdfName string
	var salt, hkdfSalt, nonce, ciphertext, tag []byte
	envVersion, body, err = readVarint(body)
	if err != nil {
		t.Fatalf("readVarint(envVersion): %v", err)
	}
	aeadName, body, err = readUTF8(body)
	if err != nil {
		t.Fatalf("readUTF8(aead): %v", err)
	}
	kdfName, body, err = readUTF8(body)
	if err != nil {
		t.Fatalf("readUTF8(kdf): %v", err)
	}
	kdfRounds, body, err = readVarint(body)
	if err != nil {
		t.Fatalf("readVarint(kdfRounds): %v", err)
	}
	salt, body, err = readU32Blob(body, budget)
	if err != nil {
		t.Fatalf("readU32Blob(salt): %v", err)
	}
	hkdfSalt, body, err = readU32Blob(body, budget)
	if err != nil {
		t.Fatalf("readU32Blob(hkdfSalt): %v", err)
	}
	nonce, body, err = readU32Blob(body, budget)
	if err != nil {
		t.Fatalf("readU32Blob(nonce): %v", err)
	}
	ciphertext, body, err = readU32Blob(body, budget)
	if err != nil {
		t.Fatalf("readU32Blob(ciphertext): %v", err)
	}
	tag, _, err = readU32Blob(body, budget)
	if err != nil {
		t.Fatalf("readU32Blob(tag): %v", err)
	}

	env := &EncryptionEnvelope{
		Nonce: nonce, Salt: salt, HKDFSalt: hkdfSalt, Ciphertext: ciphertext, Tag: tag,
		Version: int(envVersion), AEAD: aeadName, KDF: kdfName, KDFRounds: int(kdfRounds),
	}
	aad, err := metadata.AssociatedData()
	if err != nil {
		t.Fatalf("AssociatedData: %v", err)
	}
	plaintext, err := Decrypt(env, passphrase, aad)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}

	payloadFrame, _, err := UnmarshalFrame(plaintext, PayloadMagic)
	if err != nil {
		t.Fatalf("UnmarshalFrame(payload): %v", err)
	}
	sections, err := UnmarshalSections(payloadFrame.Body)
	if err != nil {
		t.Fatalf("UnmarshalSections: %v", err)
	}
	found := false
	for i := range sections {
		if sections[i].ID == SectionMetadata {
			tampered := append([]byte(nil), sections[i].Payload...)
			tampered = append(tampered, ' ')
			sections[i].Payload = tampered
			found = true
		}
	}
	if !found {
		t.Fatalf("metadata section missing from payload frame")
	}

	newPlaintext := (&Frame{
		Magic: PayloadMagic, Version: payloadFrame.Version, Features: payloadFrame.Features,
		Body: MarshalSections(sections),
	}).Marshal()

	newEnv, err := Encrypt(newPlaintext, passphrase, aad)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	var newWrapperBody []byte
	newWrapperBody = putU32Blob(newWrapperBody, metadataJSON)
	newWrapperBody = putVarint(newWrapperBody, uint64(newEnv.Version))
	newWrapperBody = putUTF8(newWrapperBody, newEnv.AEAD)
	newWrapperBody = putUTF8(newWrapperBody, newEnv.KDF)
	newWrapperBody = putVarint(newWrapperBody, uint64(newEnv.KDFRounds))
	newWrapperBody = putU32Blob(newWrapperBody, newEnv.Salt)
	newWrapperBody = putU32Blob(newWrapperBody, newEnv.HKDFSalt)
	newWrapperBody = putU32Blob(newWrapperBody, newEnv.Nonce)
	newWrapperBody = putU32Blob(newWrapperBody, newEnv.Ciphertext)
	newWrapperBody = putU32Blob(newWrapperBody, newEnv.Tag)

	return (&Frame{Magic: WrapperMagic, Version: wrapper.Version, Features: wrapper.Features, Body: newWrapperBody}).Marshal()
}

func TestDecodeMetadataSectionMismatch(t *testing.T) {
	codec := NewCodec()
	packed, _, passphrase := encodeSample(t, codec, CompressionParams{Backend: BackendRANS, ModelMode: ModelModeAdaptive})

	forged := forgeMetadataSection(t, packed, passphrase)

	_, err := codec.Decode(forged, DecodeOptions{Passphrase: passphrase})
	if _, ok := err.(*MetadataMismatchError); !ok {
		t.Fatalf("expected *MetadataMismatchError, got %T (%v)", err, err)
	}
}

func TestDecodeBudgetOverflow(t *testing.T) {
	codec := NewCodec()
	packed, _, passphrase := encodeSample(t, codec, CompressionParams{Backend: BackendRANS, ModelMode: ModelModeAdaptive})

	forged := forgeSymbolCount(t, codec, packed, passphrase, 20_000_000)

	_, err := codec.Decode(forged, DecodeOptions{Passphrase: passphrase})
	budgetErr, ok := err.(*ResourceBudgetExceededError)
	if !ok {
		t.Fatalf("expected *ResourceBudgetExceededError, got %T (%v)", err, err)
	}
	want := &ResourceBudgetExceededError{Field: "symbols", Actual: 20_000_000, Cap: 10_000_000}
	if *budgetErr != *want {
		t.Fatalf("got %+v, want %+v", budgetErr, want)
	}
}

func TestLegacyRoundTrip(t *testing.T) {
	codec := NewCodec()
	stream := sampleStream()
	passphrase := config.SecretString("legacy-passphrase")

	packed, err := codec.EncodeLegacy(stream, passphrase)
	if err != nil {
		t.Fatalf("EncodeLegacy: %v", err)
	}
	if !IsLegacyPackage(packed) {
		t.Fatalf("expected EncodeLegacy output to be recognised as legacy")
	}

	got, err := codec.DecodeLegacy(packed, passphrase)
	if err != nil {
		t.Fatalf("DecodeLegacy: %v", err)
	}
	if !reflect.DeepEqual(got.Tokens, stream.Tokens) {
		t.Fatalf("tokens mismatch: got %v want %v", got.Tokens, stream.Tokens)
	}
	if !reflect.DeepEqual(got.StringValues, stream.StringValues) {
		t.Fatalf("string values mismatch: got %v want %v", got.StringValues, stream.StringValues)
	}
	if !reflect.DeepEqual(got.PayloadChannels.Strings, stream.PayloadChannels.Strings) {
		t.Fatalf("string indices mismatch: got %v want %v", got.PayloadChannels.Strings, stream.PayloadChannels.Strings)
	}
	if got.SourceHash != stream.SourceHash {
		t.Fatalf("source hash mismatch: got %q want %q", got.SourceHash, stream.SourceHash)
	}
}

func TestSecurityModeDisablesTokenOptimisation(t *testing.T) {
	codec := NewCodec()
	packed, stream, passphrase := encodeSample(t, codec, CompressionParams{
		Backend: BackendRANS, ModelMode: ModelModeAdaptive, DisableOptimisation: true,
	})

	wrapper, _, err := UnmarshalFrame(packed, WrapperMagic)
	if err != nil {
		t.Fatalf("UnmarshalFrame: %v", err)
	}
	if wrapper.Features&FeatureCompressionOptimisation != 0 {
		t.Fatalf("expected compression:optimisation feature bit unset in security mode")
	}

	got, err := codec.Decode(packed, DecodeOptions{Passphrase: passphrase})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !reflect.DeepEqual(got.Tokens, stream.Tokens) {
		t.Fatalf("tokens mismatch: got %v want %v", got.Tokens, stream.Tokens)
	}
}

func TestStaticModelDowngradesOnNonRANSBackend(t *testing.T) {
	codec := NewCodec()
	tokens := []uint32{0, 1, 2, 1, 0, 3, 1}
	_, meta, err := EncodeTokens(tokens, 4, CompressionParams{
		Backend:   BackendFSEProduction,
		ModelMode: ModelModeStatic,
	}, codec.Registry, DefaultBudget())
	if err != nil {
		t.Fatalf("EncodeTokens: %v", err)
	}
	if meta.ModelMode != ModelModeAdaptive {
		t.Fatalf("expected static model_mode to downgrade to adaptive on fse-production, got %q", meta.ModelMode)
	}
	if meta.Backend != BackendFSEProduction && meta.Backend != BackendRANS {
		t.Fatalf("unexpected backend %q", meta.Backend)
	}
}

func TestFSESharedDictionaryRoundTrip(t *testing.T) {
	codec := NewCodec()
	codec.Registry.PutFSEDictionary("project-x", []byte{0, 1, 2, 3, 1, 2, 1, 0, 2})
	tokens := []uint32{0, 1, 2, 1, 0, 3, 1, 2, 0, 1}

	compressed, meta, err := EncodeTokens(tokens, 4, CompressionParams{
		Backend:       BackendFSEProduction,
		StaticModelID: "project-x",
	}, codec.Registry, DefaultBudget())
	if err != nil {
		t.Fatalf("EncodeTokens: %v", err)
	}
	if meta.Backend != BackendFSEProduction {
		t.Fatalf("expected fse-production backend, got %q", meta.Backend)
	}
	if meta.StaticModelID != "project-x" {
		t.Fatalf("expected StaticModelID to round-trip through CompressionMeta, got %q", meta.StaticModelID)
	}

	got, err := DecodeTokens(compressed, meta, codec.Registry, DefaultBudget())
	if err != nil {
		t.Fatalf("DecodeTokens: %v", err)
	}
	if !reflect.DeepEqual(got, tokens) {
		t.Fatalf("tokens mismatch: got %v want %v", got, tokens)
	}

	// Decoding without the registered dictionary must fail loudly instead of
	// silently returning a garbled stream: the primed prefix length is part
	// of what makes the shared dictionary load-bearing.
	emptyRegistry := NewRegistry()
	if _, err := DecodeTokens(compressed, meta, emptyRegistry, DefaultBudget()); err == nil {
		t.Fatalf("expected DecodeTokens to fail when the shared dictionary is unavailable")
	}
}

func TestUnknownFeatureBitRequiresOptIn(t *testing.T) {
	codec := NewCodec()
	packed, _, passphrase := encodeSample(t, codec, CompressionParams{Backend: BackendRANS, ModelMode: ModelModeAdaptive})

	wrapper, _, err := UnmarshalFrame(packed, WrapperMagic)
	if err != nil {
		t.Fatalf("UnmarshalFrame: %v", err)
	}
	const unknownBit uint32 = 1 << 10
	tampered := (&Frame{
		Magic: WrapperMagic, Version: wrapper.Version, Features: wrapper.Features | unknownBit, Body: wrapper.Body,
	}).Marshal()

	_, err = codec.Decode(tampered, DecodeOptions{Passphrase: passphrase})
	featErr, ok := err.(*UnknownFeatureError)
	if !ok {
		t.Fatalf("expected *UnknownFeatureError, got %T (%v)", err, err)
	}
	if featErr.Bit != 10 {
		t.Fatalf("expected unknown bit 10, got %d", featErr.Bit)
	}

	if _, err := codec.Decode(tampered, DecodeOptions{Passphrase: passphrase, AllowedFeatures: unknownBit}); err != nil {
		t.Fatalf("expected decode to succeed once the caller opts into bit 10, got: %v", err)
	}
}

func TestUnsupportedVersionRejected(t *testing.T) {
	codec := NewCodec()
	packed, _, passphrase := encodeSample(t, codec, CompressionParams{Backend: BackendRANS, ModelMode: ModelModeAdaptive})

	wrapper, _, err := UnmarshalFrame(packed, WrapperMagic)
	if err != nil {
		t.Fatalf("UnmarshalFrame: %v", err)
	}
	future := wrapper.Version
	future.Major = CurrentVersion.Major + 1
	tampered := (&Frame{Magic: WrapperMagic, Version: future, Features: wrapper.Features, Body: wrapper.Body}).Marshal()

	_, err = codec.Decode(tampered, DecodeOptions{Passphrase: passphrase})
	if _, ok := err.(*UnsupportedVersionError); !ok {
		t.Fatalf("expected *UnsupportedVersionError, got %T (%v)", err, err)
	}
}
