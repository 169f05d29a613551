package qyn1

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/everplay-tech/quenyan/config"
)

// streamHeaderFlags, dictionaryVersion, encodingVersionTag and friends live
// in the StreamHeader section, the first thing a decoder needs to make
// sense of the rest of the payload body.
type streamHeader struct {
	DictionaryVersion     string
	EncoderVersion        string
	SourceLanguage        string
	SourceLanguageVersion string
	EncodingVersionTag    string
	TokenCount            uint64
	DenseToOriginal       []uint32 // token optimisation plan, dense index -> original symbol
}

func marshalStreamHeader(h streamHeader) []byte {
	var out []byte
	out = putUTF8(out, h.DictionaryVersion)
	out = putUTF8(out, h.EncoderVersion)
	out = putUTF8(out, h.SourceLanguage)
	out = putUTF8(out, h.SourceLanguageVersion)
	out = putUTF8(out, h.EncodingVersionTag)
	out = putVarint(out, h.TokenCount)
	out = putVarint(out, uint64(len(h.DenseToOriginal)))
	for _, v := range h.DenseToOriginal {
		out = putVarint(out, uint64(v))
	}
	return out
}

func parseStreamHeader(payload []byte) (streamHeader, error) {
	var h streamHeader
	var err error
	h.DictionaryVersion, payload, err = readUTF8(payload)
	if err != nil {
		return h, err
	}
	h.EncoderVersion, payload, err = readUTF8(payload)
	if err != nil {
		return h, err
	}
	h.SourceLanguage, payload, err = readUTF8(payload)
	if err != nil {
		return h, err
	}
	h.SourceLanguageVersion, payload, err = readUTF8(payload)
	if err != nil {
		return h, err
	}
	h.EncodingVersionTag, payload, err = readUTF8(payload)
	if err != nil {
		return h, err
	}
	h.TokenCount, payload, err = readVarint(payload)
	if err != nil {
		return h, err
	}
	planLen, payload, err := readVarint(payload)
	if err != nil {
		return h, err
	}
	h.DenseToOriginal = make([]uint32, planLen)
	for i := range h.DenseToOriginal {
		var v uint64
		v, payload, err = readVarint(payload)
		if err != nil {
			return h, err
		}
		h.DenseToOriginal[i] = uint32(v)
	}
	return h, nil
}

// EncodeOptions carries everything Encode needs beyond the stream itself:
// the key material, the chosen entropy strategy, and the handful of
// optional metadata fields a caller may want recorded.
type EncodeOptions struct {
	Passphrase config.SecretString
	Params     CompressionParams

	Timestamp   *string
	Author      *string
	License     *string
	KeyProvider *string
	KeyID       *string
	KeyVersion  *string
	RotationDue *string

	Budget *Budget
}

func (c *Codec) budgetOrDefault(override *Budget) Budget {
	if override != nil {
		return *override
	}
	if c.Budget != (Budget{}) {
		return c.Budget
	}
	return DefaultBudget()
}

// Encode assembles stream into a complete, encrypted QYN1 package: token
// optimisation, string table construction, entropy coding of every payload
// channel, section assembly, then the AEAD crypto envelope with metadata as
// associated data.
func (c *Codec) Encode(stream EncodedStream, opts EncodeOptions) ([]byte, error) {
	budget := c.budgetOrDefault(opts.Budget)
	if err := budget.ensureSymbols(int64(len(stream.Tokens))); err != nil {
		return nil, err
	}

	var plan *TokenOptimisationPlan
	if opts.Params.DisableOptimisation {
		var maxTok uint32
		for _, t := range stream.Tokens {
			if t+1 > maxTok {
				maxTok = t + 1
			}
		}
		plan = IdentityPlan(int(maxTok))
	} else {
		plan = BuildFrequencyPlan(stream.Tokens)
	}
	dense := ApplyPlan(stream.Tokens, plan)

	stringTable := BuildStringTable(stream.StringValues)
	origToTable := make([]uint32, len(stream.StringValues))
	for i, v := range stream.StringValues {
		idx, _ := stringTable.IndexFor(v)
		origToTable[i] = idx
	}
	remappedStrings := make([]uint32, len(stream.PayloadChannels.Strings))
	for i, orig := range stream.PayloadChannels.Strings {
		if int(orig) < len(origToTable) {
			remappedStrings[i] = origToTable[orig]
		}
	}
	channels := stream.PayloadChannels
	channels.Strings = remappedStrings

	tokensCompressed, compMeta, err := EncodeTokens(dense, plan.AlphabetSize(), opts.Params, c.Registry, budget)
	if err != nil {
		return nil, err
	}
	if err := budget.ensureCompressed(int64(len(tokensCompressed))); err != nil {
		return nil, err
	}

	compressionPayload, modelJSON, err := marshalCompressionSection(compMeta)
	if err != nil {
		return nil, err
	}
	digestSum := sha256.Sum256(modelJSON)
	modelDigest := hex.EncodeToString(digestSum[:])

	stringTablePayload, err := stringTable.MarshalStringTable(budget)
	if err != nil {
		return nil, err
	}

	var payloadsPayload []byte
	payloadsPayload = append(payloadsPayload, MarshalEntries(channels.Entries)...)
	payloadsPayload = append(payloadsPayload, marshalStructured(channels.Structured)...)

	var features uint32
	if !opts.Params.DisableOptimisation {
		features |= FeatureCompressionOptimisation
	}
	if opts.Params.Backend == BackendFSEProduction {
		features |= FeatureCompressionFSE
	}
	if len(compMeta.Overrides) > 0 {
		features |= FeatureCompressionExtras
	}

	sections := []Section{
		{ID: SectionStreamHeader, Payload: marshalStreamHeader(streamHeader{
			DictionaryVersion:     stream.DictionaryVersion,
			EncoderVersion:        stream.EncoderVersion,
			SourceLanguage:        stream.SourceLanguage,
			SourceLanguageVersion: stream.SourceLanguageVersion,
			EncodingVersionTag:    EncodingVersionTag(CurrentVersion),
			TokenCount:            uint64(len(stream.Tokens)),
			DenseToOriginal:       plan.DenseToOriginal,
		})},
		{ID: SectionCompression, Payload: compressionPayload},
		{ID: SectionTokens, Payload: tokensCompressed},
		{ID: SectionStringTable, Payload: stringTablePayload},
		{ID: SectionPayloads, Payload: payloadsPayload},
	}
	sections = append(sections, MarshalPayloadChannels(channels, opts.Params.ModelMode)...)

	if stream.SourceMap != nil {
		features |= FeaturePayloadSourceMap
		smPayload, err := MarshalSourceMap(stream.SourceMap)
		if err != nil {
			return nil, err
		}
		sections[0].Flags |= StreamHeaderFlagSourceMap
		sections = append(sections, Section{ID: SectionSourceMap, Payload: smPayload})
	}

	metadata := &PackageMetadata{
		PackageVersion:         CurrentVersion.String(),
		DictionaryVersion:      stream.DictionaryVersion,
		EncoderVersion:         stream.EncoderVersion,
		SourceLanguage:         stream.SourceLanguage,
		SourceLanguageVersion:  stream.SourceLanguageVersion,
		SourceHash:             stream.SourceHash,
		CompressionBackend:     compMeta.Backend,
		CompressionModelDigest: modelDigest,
		SymbolCount:            int64(len(stream.Tokens)),
		Timestamp:              opts.Timestamp,
		Author:                 opts.Author,
		License:                opts.License,
		KeyProvider:            opts.KeyProvider,
		KeyID:                  opts.KeyID,
		KeyVersion:             opts.KeyVersion,
		RotationDue:            opts.RotationDue,
	}
	metadataJSON, err := CanonicalJSON(metadata.ToMap())
	if err != nil {
		return nil, err
	}
	sections = append(sections, Section{ID: SectionMetadata, Payload: metadataJSON})

	payloadBody := MarshalSections(sections)
	payloadFrame := &Frame{Magic: PayloadMagic, Version: CurrentVersion, Features: features, Body: payloadBody}
	plaintext := payloadFrame.Marshal()

	aad, err := metadata.AssociatedData()
	if err != nil {
		return nil, err
	}
	env, err := Encrypt(plaintext, opts.Passphrase, aad)
	if err != nil {
		return nil, err
	}

	var wrapperBody []byte
	wrapperBody = putU32Blob(wrapperBody, metadataJSON)
	wrapperBody = putVarint(wrapperBody, uint64(env.Version))
	wrapperBody = putUTF8(wrapperBody, env.AEAD)
	wrapperBody = putUTF8(wrapperBody, env.KDF)
	wrapperBody = putVarint(wrapperBody, uint64(env.KDFRounds))
	wrapperBody = putU32Blob(wrapperBody, env.Salt)
	wrapperBody = putU32Blob(wrapperBody, env.HKDFSalt)
	wrapperBody = putU32Blob(wrapperBody, env.Nonce)
	wrapperBody = putU32Blob(wrapperBody, env.Ciphertext)
	wrapperBody = putU32Blob(wrapperBody, env.Tag)

	wrapperFrame := &Frame{Magic: WrapperMagic, Version: CurrentVersion, Features: features, Body: wrapperBody}
	return wrapperFrame.Marshal(), nil
}

// DecodeOptions carries the key material Decode needs. Budget may be left
// nil to use the Codec's own default. AllowedFeatures opts the caller into
// specific feature bits outside the closed set (spec.md §4.1: an unknown
// bit fails decode with UnknownFeatureError unless the caller explicitly
// allowed it); it defaults to none, matching the closed set alone.
type DecodeOptions struct {
	Passphrase      config.SecretString
	Budget          *Budget
	AllowedFeatures uint32
}

// Decode reverses Encode: it verifies the wrapper frame, authenticates and
// opens the crypto envelope, parses the payload frame's sections, decodes
// every channel, and reverses token optimisation.
func (c *Codec) Decode(data []byte, opts DecodeOptions) (*EncodedStream, error) {
	budget := c.budgetOrDefault(opts.Budget)

	wrapper, _, err := UnmarshalFrame(data, WrapperMagic)
	if err != nil {
		return nil, err
	}
	if !wrapper.Version.supported() {
		return nil, &UnsupportedVersionError{Version: wrapper.Version.String(), Supported: supportedWindowString()}
	}
	if err := checkFeatures(wrapper.Features, opts.AllowedFeatures); err != nil {
		return nil, err
	}

	body := wrapper.Body
	metadataJSON, body, err := readU32Blob(body, budget)
	if err != nil {
		return nil, err
	}
	var metadataMap map[string]any
	if err := json.Unmarshal(metadataJSON, &metadataMap); err != nil {
		return nil, &MetadataMismatchError{Reason: "wrapper metadata JSON corrupt: " + err.Error()}
	}
	metadata, err := metadataFromMap(metadataMap)
	if err != nil {
		return nil, err
	}

	var envVersion, kdfRounds uint64
	var aeadName, kdfName string
	var salt, hkdfSalt, nonce, ciphertext, tag []byte
	envVersion, body, err = readVarint(body)
	if err != nil {
		return nil, err
	}
	aeadName, body, err = readUTF8(body)
	if err != nil {
		return nil, err
	}
	kdfName, body, err = readUTF8(body)
	if err != nil {
		return nil, err
	}
	kdfRounds, body, err = readVarint(body)
	if err != nil {
		return nil, err
	}
	salt, body, err = readU32Blob(body, budget)
	if err != nil {
		return nil, err
	}
	hkdfSalt, body, err = readU32Blob(body, budget)
	if err != nil {
		return nil, err
	}
	nonce, body, err = readU32Blob(body, budget)
	if err != nil {
		return nil, err
	}
	ciphertext, body, err = readU32Blob(body, budget)
	if err != nil {
		return nil, err
	}
	tag, _, err = readU32Blob(body, budget)
	if err != nil {
		return nil, err
	}

	env := &EncryptionEnvelope{
		Nonce: nonce, Salt: salt, HKDFSalt: hkdfSalt, Ciphertext: ciphertext, Tag: tag,
		Version: int(envVersion), AEAD: aeadName, KDF: kdfName, KDFRounds: int(kdfRounds),
	}
	aad, err := metadata.AssociatedData()
	if err != nil {
		return nil, err
	}
	plaintext, err := Decrypt(env, opts.Passphrase, aad)
	if err != nil {
		return nil, err
	}

	payloadFrame, _, err := UnmarshalFrame(plaintext, PayloadMagic)
	if err != nil {
		return nil, err
	}
	if err := checkFeatures(payloadFrame.Features, opts.AllowedFeatures); err != nil {
		return nil, err
	}

	sections, err := UnmarshalSections(payloadFrame.Body)
	if err != nil {
		return nil, err
	}
	if err := checkRequiredSections(sections); err != nil {
		return nil, err
	}

	headerSec, _ := findSection(sections, SectionStreamHeader)
	header, err := parseStreamHeader(headerSec.Payload)
	if err != nil {
		return nil, err
	}

	compSec, _ := findSection(sections, SectionCompression)
	compMeta, modelJSON, err := parseCompressionSection(compSec.Payload, budget)
	if err != nil {
		return nil, err
	}
	digestSum := sha256.Sum256(modelJSON)
	if hex.EncodeToString(digestSum[:]) != metadata.CompressionModelDigest {
		return nil, &MetadataMismatchError{Reason: "compression_model_digest mismatch"}
	}

	tokensSec, _ := findSection(sections, SectionTokens)
	dense, err := DecodeTokens(tokensSec.Payload, compMeta, c.Registry, budget)
	if err != nil {
		return nil, err
	}
	plan := &TokenOptimisationPlan{DenseToOriginal: header.DenseToOriginal}
	tokens := ReversePlan(dense, plan)
	if uint64(len(tokens)) != header.TokenCount {
		return nil, &FrameCorruptError{Reason: "token count mismatch"}
	}

	stSec, _ := findSection(sections, SectionStringTable)
	stringTable, err := UnmarshalStringTable(stSec.Payload, budget)
	if err != nil {
		return nil, err
	}

	channels, err := UnmarshalPayloadChannels(sections, budget)
	if err != nil {
		return nil, err
	}
	payloadsSec, _ := findSection(sections, SectionPayloads)
	entries, structuredBytes, err := UnmarshalEntries(payloadsSec.Payload, budget)
	if err != nil {
		return nil, err
	}
	structured, _, err := unmarshalStructured(structuredBytes, budget)
	if err != nil {
		return nil, err
	}
	channels.Entries = entries
	channels.Structured = structured

	metaSec, _ := findSection(sections, SectionMetadata)
	if !bytes.Equal(metaSec.Payload, metadataJSON) {
		return nil, &MetadataMismatchError{Reason: "payload metadata section does not match wrapper metadata"}
	}

	stringValues := make([]string, len(channels.Strings))
	for i, idx := range channels.Strings {
		v, ok := stringTable.StringForIndex(idx)
		if !ok {
			return nil, &PayloadChannelCorruptError{Channel: string(ChannelString), Reason: "string table index out of range"}
		}
		stringValues[i] = v
	}

	var sourceMap *SourceMap
	if payloadFrame.Features&FeaturePayloadSourceMap != 0 {
		smSec, ok := findSection(sections, SectionSourceMap)
		if !ok {
			return nil, &FrameCorruptError{Reason: "source map feature set but section missing"}
		}
		sourceMap, err = UnmarshalSourceMap(smSec.Payload, budget)
		if err != nil {
			return nil, err
		}
	}

	return &EncodedStream{
		DictionaryVersion:     header.DictionaryVersion,
		EncoderVersion:        header.EncoderVersion,
		SourceLanguage:        header.SourceLanguage,
		SourceLanguageVersion: header.SourceLanguageVersion,
		SourceHash:            metadata.SourceHash,
		Tokens:                tokens,
		StringValues:          stringValues,
		PayloadChannels:       channels,
		SourceMap:             sourceMap,
	}, nil
}
