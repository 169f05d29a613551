package qyn1

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"io"
)

// sourceMapEntryJSON is the on-wire JSON shape for one SourceMapEntry; kept
// separate from the public struct so field names/omitempty can be tuned
// without touching the in-memory type other packages build against.
type sourceMapEntryJSON struct {
	TokenIndex uint32 `json:"token_index"`
	StartLine  uint32 `json:"start_line"`
	StartCol   uint32 `json:"start_col"`
	EndLine    uint32 `json:"end_line"`
	EndCol     uint32 `json:"end_col"`
	NodeType   string `json:"node_type,omitempty"`
	Key        string `json:"key,omitempty"`
}

// MarshalSourceMap renders a SourceMap as zlib-compressed JSON, the format
// stored in the SourceMap section body.
func MarshalSourceMap(sm *SourceMap) ([]byte, error) {
	entries := make([]sourceMapEntryJSON, len(sm.Entries))
	for i, e := range sm.Entries {
		entries[i] = sourceMapEntryJSON{
			TokenIndex: e.TokenIndex,
			StartLine:  e.StartLine,
			StartCol:   e.StartCol,
			EndLine:    e.EndLine,
			EndCol:     e.EndCol,
			NodeType:   e.NodeType,
			Key:        e.Key,
		}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalSourceMap reverses MarshalSourceMap, enforcing budget against the
// decompressed size before allocating the entry slice.
func UnmarshalSourceMap(data []byte, budget Budget) (*SourceMap, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &FrameCorruptError{Reason: "source map zlib stream corrupt: " + err.Error()}
	}
	defer r.Close()

	limited := io.LimitReader(r, budget.MaxPayloadBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, &FrameCorruptError{Reason: "source map decompression failed: " + err.Error()}
	}
	if err := budget.ensurePayloadBytes(int64(len(raw))); err != nil {
		return nil, err
	}

	var entries []sourceMapEntryJSON
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, &FrameCorruptError{Reason: "source map JSON corrupt: " + err.Error()}
	}
	if err := budget.ensureSymbols(int64(len(entries))); err != nil {
		return nil, err
	}
	out := &SourceMap{Entries: make([]SourceMapEntry, len(entries))}
	for i, e := range entries {
		out.Entries[i] = SourceMapEntry{
			TokenIndex: e.TokenIndex,
			StartLine:  e.StartLine,
			StartCol:   e.StartCol,
			EndLine:    e.EndLine,
			EndCol:     e.EndCol,
			NodeType:   e.NodeType,
			Key:        e.Key,
		}
	}
	return out, nil
}
