package qyn1

import (
	"sort"
	"strings"
)

const stringTableVersion = 1

var structuredKeywords = []string{"select", "insert", "update", "delete", "with"}

// classifyString assigns a StringTypeID using the same ordered set of
// surface tests as the reference string table: identifier-shaped tokens,
// path/URL-shaped tokens, structured (JSON/SQL-shaped) tokens, then natural
// language text containing both whitespace and punctuation, else generic.
func classifyString(s string) StringTypeID {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return StringTypeGeneric
	}
	if isIdentifierShaped(s) {
		return StringTypeIdentifier
	}
	if strings.Contains(s, "://") || strings.ContainsAny(s, "/\\") {
		return StringTypePath
	}
	if looksStructured(trimmed) {
		return StringTypeStructured
	}
	hasSpace := strings.ContainsAny(s, " \t\n\r")
	hasPunct := false
	for _, r := range s {
		if !isAlnumOrSpace(r) {
			hasPunct = true
			break
		}
	}
	if hasSpace && hasPunct {
		return StringTypeNatural
	}
	return StringTypeGeneric
}

func isIdentifierShaped(s string) bool {
	for _, r := range s {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return true
}

func isAlnumOrSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r' ||
		(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func looksStructured(trimmed string) bool {
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		return true
	}
	lower := strings.ToLower(trimmed)
	for _, kw := range structuredKeywords {
		if strings.HasPrefix(lower, kw) {
			return true
		}
	}
	return false
}

// BuildStringTable constructs a frequency-sorted, prefix-compressed string
// table from a multiset of observed string values. Entries with equal
// frequency are ordered lexicographically for a deterministic encode.
func BuildStringTable(values []string) *StringTable {
	counts := make(map[string]uint64, len(values))
	for _, v := range values {
		counts[v]++
	}
	unique := make([]string, 0, len(counts))
	for v := range counts {
		unique = append(unique, v)
	}
	sort.Slice(unique, func(i, j int) bool {
		if counts[unique[i]] != counts[unique[j]] {
			return counts[unique[i]] > counts[unique[j]]
		}
		return unique[i] < unique[j]
	})

	entries := make([]StringTableEntry, len(unique))
	var prev string
	for i, v := range unique {
		prefixLen := commonPrefixLength(prev, v)
		entries[i] = StringTableEntry{
			Value:        v,
			Frequency:    counts[v],
			PrefixLength: uint32(prefixLen),
			Suffix:       v[prefixLen:],
			TypeID:       classifyString(v),
			LengthBucket: classifyLengthBucket(len(v)),
		}
		prev = v
	}
	st := &StringTable{Entries: entries}
	st.buildIndex()
	return st
}

func commonPrefixLength(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func (st *StringTable) buildIndex() {
	st.valueToIndex = make(map[string]uint32, len(st.Entries))
	for i, e := range st.Entries {
		st.valueToIndex[e.Value] = uint32(i)
	}
}

// IndexFor returns a value's position in the table and whether it is present.
func (st *StringTable) IndexFor(value string) (uint32, bool) {
	if st.valueToIndex == nil {
		st.buildIndex()
	}
	idx, ok := st.valueToIndex[value]
	return idx, ok
}

// StringForIndex returns the value stored at idx.
func (st *StringTable) StringForIndex(idx uint32) (string, bool) {
	if int(idx) >= len(st.Entries) {
		return "", false
	}
	return st.Entries[idx].Value, true
}

// MarshalStringTable serialises the table in its v1 format: entry metadata
// as varints in table order, followed by per type-id grouped suffix byte
// streams, each independently rANS-compressed.
func (st *StringTable) MarshalStringTable(b Budget) ([]byte, error) {
	if err := b.ensureStringTable(int64(len(st.Entries)) * 32); err != nil {
		return nil, err
	}

	var out []byte
	out = putVarint(out, stringTableVersion)
	out = putVarint(out, uint64(len(st.Entries)))

	typeStreams := make(map[StringTypeID][]byte)
	for _, e := range st.Entries {
		out = putVarint(out, uint64(e.PrefixLength))
		out = putVarint(out, uint64(len(e.Suffix)))
		out = putVarint(out, e.Frequency)
		out = putVarint(out, uint64(e.TypeID))
		out = putVarint(out, uint64(e.LengthBucket))
		typeStreams[e.TypeID] = append(typeStreams[e.TypeID], e.Suffix...)
	}

	typeIDs := make([]StringTypeID, 0, len(typeStreams))
	for id := range typeStreams {
		typeIDs = append(typeIDs, id)
	}
	sort.Slice(typeIDs, func(i, j int) bool { return typeIDs[i] < typeIDs[j] })

	out = putVarint(out, uint64(len(typeIDs)))
	for _, id := range typeIDs {
		raw := typeStreams[id]
		if err := b.ensureStringTable(int64(len(raw))); err != nil {
			return nil, err
		}
		symbols := make([]uint32, len(raw))
		for i, c := range raw {
			symbols[i] = uint32(c)
		}
		model := buildRANSModel(symbols, 256, defaultPrecisionBits)
		table := tableFromModel(model)
		compressed := ransEncode(symbols, table)

		var modelBlob []byte
		for _, f := range model.Frequencies {
			modelBlob = putVarint(modelBlob, uint64(f))
		}

		out = putVarint(out, uint64(id))
		out = putVarint(out, uint64(len(raw)))
		out = putVarint(out, uint64(len(modelBlob)))
		out = append(out, modelBlob...)
		out = putVarint(out, uint64(len(compressed)))
		out = append(out, compressed...)
	}
	return out, nil
}

// UnmarshalStringTable reverses MarshalStringTable.
func UnmarshalStringTable(data []byte, b Budget) (*StringTable, error) {
	version, rest, err := readVarint(data)
	if err != nil {
		return nil, err
	}
	if version != stringTableVersion {
		return nil, &FrameCorruptError{Reason: "unsupported string table version"}
	}
	count, rest, err := readVarint(rest)
	if err != nil {
		return nil, err
	}
	if err := b.ensureStringTable(int64(count) * 32); err != nil {
		return nil, err
	}

	type rawEntry struct {
		prefixLen   uint64
		suffixLen   uint64
		frequency   uint64
		typeID      uint64
		lengthBucket uint64
	}
	raws := make([]rawEntry, count)
	for i := range raws {
		var v uint64
		v, rest, err = readVarint(rest)
		if err != nil {
			return nil, err
		}
		raws[i].prefixLen = v
		v, rest, err = readVarint(rest)
		if err != nil {
			return nil, err
		}
		raws[i].suffixLen = v
		v, rest, err = readVarint(rest)
		if err != nil {
			return nil, err
		}
		raws[i].frequency = v
		v, rest, err = readVarint(rest)
		if err != nil {
			return nil, err
		}
		raws[i].typeID = v
		v, rest, err = readVarint(rest)
		if err != nil {
			return nil, err
		}
		raws[i].lengthBucket = v
	}

	numTypeStreams, rest, err := readVarint(rest)
	if err != nil {
		return nil, err
	}
	suffixesByType := make(map[uint64][]byte)
	for i := uint64(0); i < numTypeStreams; i++ {
		var typeID, totalBytes, modelBlobLen, compressedLen uint64
		typeID, rest, err = readVarint(rest)
		if err != nil {
			return nil, err
		}
		totalBytes, rest, err = readVarint(rest)
		if err != nil {
			return nil, err
		}
		modelBlobLen, rest, err = readVarint(rest)
		if err != nil {
			return nil, err
		}
		if uint64(len(rest)) < modelBlobLen {
			return nil, &FrameCorruptError{Reason: "truncated string table model blob"}
		}
		modelBlob := rest[:modelBlobLen]
		rest = rest[modelBlobLen:]

		var frequencies []uint32
		remaining := modelBlob
		for len(remaining) > 0 {
			var f uint64
			f, remaining, err = readVarint(remaining)
			if err != nil {
				return nil, err
			}
			frequencies = append(frequencies, uint32(f))
		}

		compressedLen, rest, err = readVarint(rest)
		if err != nil {
			return nil, err
		}
		if uint64(len(rest)) < compressedLen {
			return nil, &FrameCorruptError{Reason: "truncated string table compressed stream"}
		}
		compressed := rest[:compressedLen]
		rest = rest[compressedLen:]

		if err := b.ensureStringTable(int64(totalBytes)); err != nil {
			return nil, err
		}
		model := RANSModel{PrecisionBits: defaultPrecisionBits, Frequencies: frequencies}
		table := tableFromModel(model)
		symbols, err := ransDecode(compressed, table, int(totalBytes))
		if err != nil {
			return nil, err
		}
		raw := make([]byte, len(symbols))
		for i, s := range symbols {
			raw[i] = byte(s)
		}
		suffixesByType[typeID] = raw
	}

	cursors := make(map[uint64]int)
	entries := make([]StringTableEntry, count)
	var prev string
	for i, r := range raws {
		buf := suffixesByType[r.typeID]
		cur := cursors[r.typeID]
		if cur+int(r.suffixLen) > len(buf) {
			return nil, &FrameCorruptError{Reason: "string table suffix stream underrun"}
		}
		suffix := string(buf[cur : cur+int(r.suffixLen)])
		cursors[r.typeID] = cur + int(r.suffixLen)

		if int(r.prefixLen) > len(prev) {
			return nil, &FrameCorruptError{Reason: "string table prefix length exceeds previous entry"}
		}
		value := prev[:r.prefixLen] + suffix
		entries[i] = StringTableEntry{
			Value:        value,
			Frequency:    r.frequency,
			PrefixLength: uint32(r.prefixLen),
			Suffix:       suffix,
			TypeID:       StringTypeID(r.typeID),
			LengthBucket: LengthBucket(r.lengthBucket),
		}
		prev = value
	}
	st := &StringTable{Entries: entries}
	st.buildIndex()
	return st, nil
}
