package qyn1

import (
	"github.com/klauspost/compress/fse"
)

// BackendFSEProduction names the optional finite-state-entropy backend. It
// operates over byte alphabets only (<=256 symbols); an alphabet larger than
// that, or a native compression failure, falls back to the rANS backend with
// its frequency table still stored in the model, matching the reference
// backend's own incompressible-input fallback.
const BackendFSEProduction = "fse-production"

// fseEncode compresses a byte-alphabet token stream with klauspost/compress's
// FSE implementation. When dictID names a dictionary previously registered
// via Registry.PutFSEDictionary, its bytes are primed onto the front of the
// stream before the single FSE table is built and the combination encoded,
// so the table reflects the shared dictionary's symbol distribution rather
// than only this call's (possibly tiny) input - the same process-wide
// shared-dictionary map spec.md §4.5/§5 describes. ok is false when the
// native encoder declines the input (e.g. ErrIncompressible/ErrUseRLE) or
// the alphabet does not fit a byte, signalling the caller to fall back to
// plain rANS.
func fseEncode(symbols []uint32, alphabetSize int, registry *Registry, dictID string) (data []byte, ok bool) {
	if alphabetSize > 256 || alphabetSize == 0 {
		return nil, false
	}
	raw := make([]byte, len(symbols))
	for i, s := range symbols {
		if s >= 256 {
			return nil, false
		}
		raw[i] = byte(s)
	}
	var dict []byte
	if registry != nil && dictID != "" {
		dict, _ = registry.FSEDictionary(dictID)
	}
	combined := append(append(make([]byte, 0, len(dict)+len(raw)), dict...), raw...)
	var scratch fse.Scratch
	compressed, err := fse.Compress(combined, &scratch)
	if err != nil {
		return nil, false
	}
	return compressed, true
}

// fseDecode reverses fseEncode, re-fetching the same named dictionary (if
// any) to strip its primed bytes back off the decompressed stream.
func fseDecode(data []byte, symbolCount int, registry *Registry, dictID string) ([]uint32, error) {
	var scratch fse.Scratch
	raw, err := fse.Decompress(data, &scratch)
	if err != nil {
		return nil, &PayloadChannelCorruptError{Reason: "fse decompression failed: " + err.Error()}
	}
	var dict []byte
	if registry != nil && dictID != "" {
		dict, _ = registry.FSEDictionary(dictID)
	}
	if len(raw) != len(dict)+symbolCount {
		return nil, &PayloadChannelCorruptError{Reason: "fse decoded symbol count mismatch"}
	}
	raw = raw[len(dict):]
	out := make([]uint32, len(raw))
	for i, b := range raw {
		out[i] = uint32(b)
	}
	return out, nil
}
