// Package dictionary provides a minimal, deterministic Dictionary loader for
// tests and the cmd/qynpkg demo. It models the external "dictionary loader"
// collaborator spec.md §6 describes: given a version string, return an
// ordered morpheme alphabet. The codec (qyn1) never imports this package; it
// only consumes the qyn1.Dictionary interface.
package dictionary

import (
	"fmt"
	"sync"

	"github.com/amazon-ion/ion-go/ion"

	"github.com/everplay-tech/quenyan/qyn1"
)

// EmbeddedVersion is the dictionary_version served by the built-in reference
// table.
const EmbeddedVersion = "1.0.0"

// morphemeEntry is one row of the Ion-encoded morpheme table: a stable
// lookup key, its dense index in the alphabet, the literal morpheme text,
// and a coarse grammatical kind used by identifier-context grouping
// upstream of the codec.
type morphemeEntry struct {
	Key      string `ion:"key"`
	Index    uint32 `ion:"index"`
	Morpheme string `ion:"morpheme"`
	Kind     string `ion:"kind"`
}

// ionTable is the top-level shape stored (and round-tripped) as Ion binary,
// the same pattern convert/kfx/ionutil.go uses to carry KFX's YJ_symbols
// shared symbol table: a versioned, ordered symbol list.
type ionTable struct {
	Version string          `ion:"version"`
	Entries []morphemeEntry `ion:"entries"`
}

// defaultMorphemes seeds the embedded reference dictionary with a small,
// language-neutral set of grammar morphemes: enough for package_test.go's
// round-trip fixtures and the cmd/qynpkg demo, not a real language profile
// (those are supplied by an external collaborator per spec.md §6).
var defaultMorphemes = []morphemeEntry{
	{Key: "kw.if", Index: 0, Morpheme: "if", Kind: "flow"},
	{Key: "kw.else", Index: 1, Morpheme: "else", Kind: "flow"},
	{Key: "kw.for", Index: 2, Morpheme: "for", Kind: "flow"},
	{Key: "kw.while", Index: 3, Morpheme: "while", Kind: "flow"},
	{Key: "kw.return", Index: 4, Morpheme: "return", Kind: "flow"},
	{Key: "kw.func", Index: 5, Morpheme: "func", Kind: "structure"},
	{Key: "kw.struct", Index: 6, Morpheme: "struct", Kind: "structure"},
	{Key: "kw.import", Index: 7, Morpheme: "import", Kind: "structure"},
	{Key: "op.plus", Index: 8, Morpheme: "+", Kind: "operator"},
	{Key: "op.minus", Index: 9, Morpheme: "-", Kind: "operator"},
	{Key: "op.assign", Index: 10, Morpheme: "=", Kind: "operator"},
	{Key: "op.eq", Index: 11, Morpheme: "==", Kind: "operator"},
	{Key: "op.dot", Index: 12, Morpheme: ".", Kind: "operator"},
	{Key: "punct.lparen", Index: 13, Morpheme: "(", Kind: "construct"},
	{Key: "punct.rparen", Index: 14, Morpheme: ")", Kind: "construct"},
	{Key: "punct.lbrace", Index: 15, Morpheme: "{", Kind: "construct"},
	{Key: "punct.rbrace", Index: 16, Morpheme: "}", Kind: "construct"},
	{Key: "punct.comma", Index: 17, Morpheme: ",", Kind: "construct"},
	{Key: "punct.semi", Index: 18, Morpheme: ";", Kind: "construct"},
	{Key: "ident.generic", Index: 19, Morpheme: "\x00ident", Kind: "identifier"},
	{Key: "unknown", Index: 20, Morpheme: "\x00unknown", Kind: "identifier"},
}

// Loader mirrors the dictionary loader collaborator from spec.md §6: given a
// version string, return an ordered morpheme alphabet plus an unknown
// sentinel index.
type Loader interface {
	Load(version string) (qyn1.Dictionary, error)
}

// EmbeddedLoader builds qyn1.Dictionary values from a small Ion-binary-
// encoded morpheme table, grounding the "ordered, versioned morpheme
// alphabet" data model in the same ion-go marshal/unmarshal machinery
// convert/kfx/ionutil.go uses for KFX's shared symbol table, without
// adopting Ion as the package wire format itself.
type EmbeddedLoader struct {
	once    sync.Once
	blob    []byte
	blobErr error
}

func (l *EmbeddedLoader) ensureBlob() {
	l.once.Do(func() {
		l.blob, l.blobErr = ion.MarshalBinary(ionTable{Version: EmbeddedVersion, Entries: defaultMorphemes})
	})
}

// Load decodes the embedded Ion table and returns it as a qyn1.Dictionary,
// failing if version does not match the table actually embedded.
func (l *EmbeddedLoader) Load(version string) (qyn1.Dictionary, error) {
	l.ensureBlob()
	if l.blobErr != nil {
		return nil, fmt.Errorf("dictionary: encode embedded table: %w", l.blobErr)
	}
	var table ionTable
	if err := ion.Unmarshal(l.blob, &table); err != nil {
		return nil, fmt.Errorf("dictionary: decode embedded table: %w", err)
	}
	if table.Version != version {
		return nil, fmt.Errorf("dictionary: no embedded table for version %q (have %q)", version, table.Version)
	}
	morphemes := make([]string, len(table.Entries))
	for _, e := range table.Entries {
		if int(e.Index) >= len(morphemes) {
			return nil, fmt.Errorf("dictionary: entry index %d out of range", e.Index)
		}
		morphemes[e.Index] = e.Morpheme
	}
	return qyn1.NewMapDictionary(table.Version, morphemes), nil
}

// UnknownIndex is the index of the embedded table's last entry, the
// "unknown" morpheme. qyn1.ResolveIdentifier does not use it: in non-strict
// mode it returns the dictionary's Size() for an absent morpheme.
func UnknownIndex() uint32 {
	return uint32(len(defaultMorphemes) - 1)
}
