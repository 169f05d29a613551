package qyn1

// mapDictionary is a simple in-memory Dictionary, the shape
// internal/dictionary's embedded loader and ad-hoc test dictionaries both
// produce.
type mapDictionary struct {
	version   string
	morphemes []string
	index     map[string]uint32
}

// NewMapDictionary builds a Dictionary over an ordered morpheme list; index
// i holds morphemes[i].
func NewMapDictionary(version string, morphemes []string) Dictionary {
	idx := make(map[string]uint32, len(morphemes))
	for i, m := range morphemes {
		idx[m] = uint32(i)
	}
	return &mapDictionary{version: version, morphemes: morphemes, index: idx}
}

func (d *mapDictionary) Version() string { return d.version }
func (d *mapDictionary) Size() int       { return len(d.morphemes) }

func (d *mapDictionary) IndexOf(morpheme string) (uint32, bool) {
	i, ok := d.index[morpheme]
	return i, ok
}

func (d *mapDictionary) MorphemeAt(index uint32) (string, bool) {
	if int(index) >= len(d.morphemes) {
		return "", false
	}
	return d.morphemes[index], true
}

// ResolveIdentifier maps a morpheme to its dictionary index, returning
// UnknownMorphemeError in strict mode when it is absent rather than
// silently minting a new slot - the dictionary's alphabet is owned by the
// external collaborator that built it, not the codec.
func ResolveIdentifier(dict Dictionary, morpheme string, strict bool) (uint32, error) {
	idx, ok := dict.IndexOf(morpheme)
	if !ok {
		if strict {
			return 0, &UnknownMorphemeError{Key: morpheme}
		}
		return uint32(dict.Size()), nil
	}
	return idx, nil
}
