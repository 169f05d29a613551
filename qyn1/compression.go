package qyn1

import "encoding/json"

// ModelMode selects how a channel's entropy model is built and stored.
// (continued below; marshalling helpers for the Compression section follow
// the CompressionMeta type.)
type ModelMode string

const (
	ModelModeAdaptive ModelMode = "adaptive"
	ModelModeStatic   ModelMode = "static"
	ModelModeHybrid   ModelMode = "hybrid"
)

// Backend entropy codec identifiers. BackendFSEProduction is declared in
// fse.go alongside its implementation.
const (
	BackendRANS        = "rans"
	BackendChunkedRANS = "chunked-rans"
)

// resolveModelMode applies the static/hybrid downgrade rule: those two
// modes depend on a model the table-based rANS codecs can express (a plain
// frequency table with deterministic sparse overrides); any other backend
// silently downgrades to adaptive rather than failing the encode.
func resolveModelMode(requested ModelMode, backend string) ModelMode {
	if requested == ModelModeAdaptive {
		return ModelModeAdaptive
	}
	if backend != BackendRANS && backend != BackendChunkedRANS {
		return ModelModeAdaptive
	}
	return requested
}

// CompressionParams selects the encoder's entropy strategy for one run.
type CompressionParams struct {
	Backend       string
	ModelMode     ModelMode
	ChunkSize     int
	PrecisionBits int
	StaticModelID string // consulted when ModelMode resolves to static/hybrid

	// DisableOptimisation skips the frequency-based token remap (compression
	// mode "security"): the identity plan is used instead and the
	// compression:optimisation feature bit is left unset.
	DisableOptimisation bool
}

// CompressionMeta is the decoded form of a Compression section: everything
// needed to reconstruct the table(s) used to decode the accompanying token
// stream.
type CompressionMeta struct {
	Backend       string
	ModelMode     ModelMode
	SymbolCount   int
	AlphabetSize  int
	PrecisionBits int
	Frequencies   []uint32 // rans, adaptive/resolved-static
	Chunks        []ransChunk
	StaticModelID string
	Overrides     map[string]int64 // hybrid sparse delta
	FSESymbolLen  int
}

// EncodeTokens compresses a token stream per params, consulting registry for
// any named static baseline the resolved model mode needs, and returns the
// compressed bytes plus the metadata required to decode them.
func EncodeTokens(tokens []uint32, alphabetSize int, params CompressionParams, registry *Registry, budget Budget) ([]byte, CompressionMeta, error) {
	if err := budget.ensureSymbols(int64(len(tokens))); err != nil {
		return nil, CompressionMeta{}, err
	}
	precisionBits := params.PrecisionBits
	if precisionBits == 0 {
		precisionBits = defaultPrecisionBits
	}
	mode := resolveModelMode(params.ModelMode, params.Backend)

	if params.Backend == BackendFSEProduction {
		if data, ok := fseEncode(tokens, alphabetSize, registry, params.StaticModelID); ok {
			return data, CompressionMeta{
				Backend: BackendFSEProduction, ModelMode: ModelModeAdaptive,
				SymbolCount: len(tokens), AlphabetSize: alphabetSize, FSESymbolLen: len(tokens),
				StaticModelID: params.StaticModelID,
			}, nil
		}
		// Falls through to rANS, matching the reference backend's own
		// incompressible-input fallback.
	}

	if params.Backend == BackendChunkedRANS {
		chunkSize := params.ChunkSize
		if chunkSize == 0 {
			chunkSize = defaultChunkSize
		}
		compressed, chunks := chunkedRANSEncode(tokens, alphabetSize, precisionBits, chunkSize)
		if err := budget.ensureCompressed(int64(len(compressed))); err != nil {
			return nil, CompressionMeta{}, err
		}
		return compressed, CompressionMeta{
			Backend: BackendChunkedRANS, ModelMode: ModelModeAdaptive,
			SymbolCount: len(tokens), AlphabetSize: alphabetSize, PrecisionBits: precisionBits,
			Chunks: chunks,
		}, nil
	}

	adaptiveModel := buildRANSModel(tokens, alphabetSize, precisionBits)
	switch mode {
	case ModelModeStatic:
		baseline := registry.StaticBaseline(params.StaticModelID, alphabetSize, precisionBits)
		table := tableFromModel(RANSModel{PrecisionBits: precisionBits, Frequencies: baseline})
		compressed := ransEncode(tokens, table)
		if err := budget.ensureCompressed(int64(len(compressed))); err != nil {
			return nil, CompressionMeta{}, err
		}
		return compressed, CompressionMeta{
			Backend: BackendRANS, ModelMode: ModelModeStatic,
			SymbolCount: len(tokens), AlphabetSize: alphabetSize, PrecisionBits: precisionBits,
			StaticModelID: params.StaticModelID,
		}, nil
	case ModelModeHybrid:
		baseline := registry.StaticBaseline(params.StaticModelID, alphabetSize, precisionBits)
		overrides := buildSparseOverrides(adaptiveModel.Frequencies, baseline)
		effective := applyHybridOverrides(baseline, overrides, alphabetSize)
		table := tableFromModel(RANSModel{PrecisionBits: precisionBits, Frequencies: effective})
		compressed := ransEncode(tokens, table)
		if err := budget.ensureCompressed(int64(len(compressed))); err != nil {
			return nil, CompressionMeta{}, err
		}
		return compressed, CompressionMeta{
			Backend: BackendRANS, ModelMode: ModelModeHybrid,
			SymbolCount: len(tokens), AlphabetSize: alphabetSize, PrecisionBits: precisionBits,
			StaticModelID: params.StaticModelID, Overrides: overrides,
		}, nil
	default:
		table := tableFromModel(adaptiveModel)
		compressed := ransEncode(tokens, table)
		if err := budget.ensureCompressed(int64(len(compressed))); err != nil {
			return nil, CompressionMeta{}, err
		}
		return compressed, CompressionMeta{
			Backend: BackendRANS, ModelMode: ModelModeAdaptive,
			SymbolCount: len(tokens), AlphabetSize: alphabetSize, PrecisionBits: precisionBits,
			Frequencies: adaptiveModel.Frequencies,
		}, nil
	}
}

// DecodeTokens reverses EncodeTokens.
func DecodeTokens(data []byte, meta CompressionMeta, registry *Registry, budget Budget) ([]uint32, error) {
	if err := budget.ensureSymbols(int64(meta.SymbolCount)); err != nil {
		return nil, err
	}
	switch meta.Backend {
	case BackendFSEProduction:
		return fseDecode(data, meta.SymbolCount, registry, meta.StaticModelID)
	case BackendChunkedRANS:
		return chunkedRANSDecode(data, meta.Chunks, meta.PrecisionBits, meta.SymbolCount)
	case BackendRANS:
		var frequencies []uint32
		switch meta.ModelMode {
		case ModelModeStatic:
			frequencies = registry.StaticBaseline(meta.StaticModelID, meta.AlphabetSize, meta.PrecisionBits)
		case ModelModeHybrid:
			baseline := registry.StaticBaseline(meta.StaticModelID, meta.AlphabetSize, meta.PrecisionBits)
			frequencies = applyHybridOverrides(baseline, meta.Overrides, meta.AlphabetSize)
		default:
			frequencies = meta.Frequencies
		}
		table := tableFromModel(RANSModel{PrecisionBits: meta.PrecisionBits, Frequencies: frequencies})
		return ransDecode(data, table, meta.SymbolCount)
	default:
		return nil, &BackendUnavailableError{Backend: meta.Backend}
	}
}

// modelMapFor renders the portion of CompressionMeta not already carried in
// the section's fixed fields into the JSON map that becomes the Compression
// section's model blob - and, unmodified, the input to
// compression_model_digest.
func modelMapFor(meta CompressionMeta) map[string]any {
	m := map[string]any{}
	if len(meta.Frequencies) > 0 {
		freqs := make([]any, len(meta.Frequencies))
		for i, f := range meta.Frequencies {
			freqs[i] = f
		}
		m["frequencies"] = freqs
	}
	if len(meta.Chunks) > 0 {
		chunks := make([]any, len(meta.Chunks))
		for i, c := range meta.Chunks {
			freqs := make([]any, len(c.Frequencies))
			for j, f := range c.Frequencies {
				freqs[j] = f
			}
			chunks[i] = map[string]any{
				"offset":       c.Offset,
				"length":       c.Length,
				"symbol_count": c.SymbolCount,
				"frequencies":  freqs,
			}
		}
		m["chunks"] = chunks
	}
	if len(meta.Overrides) > 0 {
		overrides := make(map[string]any, len(meta.Overrides))
		for k, v := range meta.Overrides {
			overrides[k] = v
		}
		m["overrides"] = overrides
	}
	if meta.FSESymbolLen > 0 {
		m["fse_symbol_len"] = meta.FSESymbolLen
	}
	return m
}

// marshalCompressionSection renders meta as a Compression section payload,
// returning the section bytes and the canonical model-blob JSON the digest
// is computed over.
func marshalCompressionSection(meta CompressionMeta) (payload []byte, modelJSON []byte, err error) {
	modelJSON, err = CanonicalJSON(modelMapFor(meta))
	if err != nil {
		return nil, nil, err
	}
	var out []byte
	out = putUTF8(out, meta.Backend)
	out = putUTF8(out, string(meta.ModelMode))
	out = putVarint(out, uint64(meta.SymbolCount))
	out = putVarint(out, uint64(meta.AlphabetSize))
	out = putVarint(out, uint64(meta.PrecisionBits))
	out = putUTF8(out, meta.StaticModelID)
	out = putU32Blob(out, modelJSON)
	return out, modelJSON, nil
}

// parseCompressionSection reverses marshalCompressionSection.
func parseCompressionSection(payload []byte, budget Budget) (CompressionMeta, []byte, error) {
	backend, rest, err := readUTF8(payload)
	if err != nil {
		return CompressionMeta{}, nil, err
	}
	modeStr, rest, err := readUTF8(rest)
	if err != nil {
		return CompressionMeta{}, nil, err
	}
	symbolCount, rest, err := readVarint(rest)
	if err != nil {
		return CompressionMeta{}, nil, err
	}
	alphabetSize, rest, err := readVarint(rest)
	if err != nil {
		return CompressionMeta{}, nil, err
	}
	precisionBits, rest, err := readVarint(rest)
	if err != nil {
		return CompressionMeta{}, nil, err
	}
	staticModelID, rest, err := readUTF8(rest)
	if err != nil {
		return CompressionMeta{}, nil, err
	}
	modelJSON, rest, err := readU32Blob(rest, budget)
	if err != nil {
		return CompressionMeta{}, nil, err
	}

	var modelMap map[string]any
	if len(modelJSON) > 0 {
		if err := json.Unmarshal(modelJSON, &modelMap); err != nil {
			return CompressionMeta{}, nil, &FrameCorruptError{Reason: "compression model blob corrupt: " + err.Error()}
		}
	}

	meta := CompressionMeta{
		Backend:       backend,
		ModelMode:     ModelMode(modeStr),
		SymbolCount:   int(symbolCount),
		AlphabetSize:  int(alphabetSize),
		PrecisionBits: int(precisionBits),
		StaticModelID: staticModelID,
	}
	if v, ok := modelMap["frequencies"].([]any); ok {
		meta.Frequencies = make([]uint32, len(v))
		for i, f := range v {
			meta.Frequencies[i] = uint32(asInt64(f))
		}
	}
	if v, ok := modelMap["chunks"].([]any); ok {
		meta.Chunks = make([]ransChunk, len(v))
		for i, c := range v {
			cm, _ := c.(map[string]any)
			chunk := ransChunk{
				Offset:      int(asInt64(cm["offset"])),
				Length:      int(asInt64(cm["length"])),
				SymbolCount: int(asInt64(cm["symbol_count"])),
			}
			if freqs, ok := cm["frequencies"].([]any); ok {
				chunk.Frequencies = make([]uint32, len(freqs))
				for j, f := range freqs {
					chunk.Frequencies[j] = uint32(asInt64(f))
				}
			}
			meta.Chunks[i] = chunk
		}
	}
	if v, ok := modelMap["overrides"].(map[string]any); ok {
		meta.Overrides = make(map[string]int64, len(v))
		for k, val := range v {
			meta.Overrides[k] = asInt64(val)
		}
	}
	if v, ok := modelMap["fse_symbol_len"]; ok {
		meta.FSESymbolLen = int(asInt64(v))
	}
	if err := budget.ensureModelBytes(int64(len(modelJSON))); err != nil {
		return CompressionMeta{}, nil, err
	}
	return meta, modelJSON, nil
}
