package qyn1

import "sort"

// MarshalPayloadChannels renders each of the five fixed-width typed
// sub-streams into its own section, ready to drop into a payload frame body
// alongside the payloads section, which carries the ordered entries list and
// the Structured channel. mode selects the entropy model each
// channel's rANS table is built from: adaptive fits a fresh table to this
// stream alone, while static and hybrid draw their baseline from the
// channel's own named Prior (spec.md §4.5's "priors per channel" table) -
// static using the prior directly, hybrid storing a sparse delta against it.
func MarshalPayloadChannels(p PayloadChannels, mode ModelMode) []Section {
	sections := []Section{
		{ID: SectionChannelIdent, Payload: marshalPriorStream(p.Identifiers, uint32AlphabetSize(p.Identifiers), priorIdentifier, mode)},
		{ID: SectionChannelString, Payload: marshalPriorStream(p.Strings, uint32AlphabetSize(p.Strings), priorString, mode)},
		{ID: SectionChannelNumber, Payload: marshalNumbers(p.Numbers, mode)},
		{ID: SectionChannelCount, Payload: marshalUint64Stream(p.Counts, mode)},
		{ID: SectionChannelFlag, Payload: marshalFlagStream(p.Flags, mode)},
	}
	return sections
}

// marshalFlagStream rANS-codes a Flag channel against priorFlag (a uniform
// Bernoulli baseline) instead of the bare bit-packing a stream with no
// named prior would use.
func marshalFlagStream(vals []bool, mode ModelMode) []byte {
	return marshalPriorStream(boolsToUint32(vals), 2, priorFlag, mode)
}

func unmarshalFlagStream(data []byte, budget Budget) ([]bool, []byte, error) {
	vals, rest, err := unmarshalPriorStream(data, priorFlag, budget)
	if err != nil {
		return nil, nil, err
	}
	return uint32sToBools(vals), rest, nil
}

func boolsToUint32(vals []bool) []uint32 {
	out := make([]uint32, len(vals))
	for i, v := range vals {
		if v {
			out[i] = 1
		}
	}
	return out
}

func uint32sToBools(vals []uint32) []bool {
	out := make([]bool, len(vals))
	for i, v := range vals {
		out[i] = v != 0
	}
	return out
}

func uint32AlphabetSize(values []uint32) int {
	alphabetSize := 1
	for _, v := range values {
		if int(v)+1 > alphabetSize {
			alphabetSize = int(v) + 1
		}
	}
	return alphabetSize
}

// UnmarshalPayloadChannels reverses MarshalPayloadChannels, reading the five
// typed channels from their own sections. It does not read the payloads
// section: the entries list and the Structured channel that follows it there
// are read by the caller (UnmarshalEntries, then the structured decoder).
func UnmarshalPayloadChannels(sections []Section, budget Budget) (PayloadChannels, error) {
	var out PayloadChannels

	identSec, ok := findSection(sections, SectionChannelIdent)
	if !ok {
		return out, &PayloadChannelCorruptError{Channel: string(ChannelIdentifier), Reason: "missing section"}
	}
	identifiers, _, err := unmarshalPriorStream(identSec.Payload, priorIdentifier, budget)
	if err != nil {
		return out, err
	}
	out.Identifiers = identifiers

	stringSec, ok := findSection(sections, SectionChannelString)
	if !ok {
		return out, &PayloadChannelCorruptError{Channel: string(ChannelString), Reason: "missing section"}
	}
	stringIndices, _, err := unmarshalPriorStream(stringSec.Payload, priorString, budget)
	if err != nil {
		return out, err
	}
	out.Strings = stringIndices

	numberSec, ok := findSection(sections, SectionChannelNumber)
	if !ok {
		return out, &PayloadChannelCorruptError{Channel: string(ChannelNumber), Reason: "missing section"}
	}
	numbers, _, err := unmarshalNumbers(numberSec.Payload, budget)
	if err != nil {
		return out, err
	}
	out.Numbers = numbers

	countSec, ok := findSection(sections, SectionChannelCount)
	if !ok {
		return out, &PayloadChannelCorruptError{Channel: string(ChannelCount), Reason: "missing section"}
	}
	counts, _, err := unmarshalUint64Stream(countSec.Payload, budget)
	if err != nil {
		return out, err
	}
	out.Counts = counts

	flagSec, ok := findSection(sections, SectionChannelFlag)
	if !ok {
		return out, &PayloadChannelCorruptError{Channel: string(ChannelFlag), Reason: "missing section"}
	}
	flags, _, err := unmarshalFlagStream(flagSec.Payload, budget)
	if err != nil {
		return out, err
	}
	out.Flags = flags

	return out, nil
}

// MarshalEntries serialises the grammar-ordered entries list: one varint
// count followed by, per entry, the payload type as a UTF-8 string, the
// channel tag byte, the kind as a UTF-8 string, and the token index.
func MarshalEntries(entries []Entry) []byte {
	var out []byte
	out = putVarint(out, uint64(len(entries)))
	for _, e := range entries {
		out = putUTF8(out, e.PayloadType)
		out = append(out, byte(e.Channel))
		out = putUTF8(out, e.Kind)
		out = putVarint(out, uint64(e.TokenIndex))
	}
	return out
}

// UnmarshalEntries reverses MarshalEntries, returning the unconsumed tail of
// data (the structured-channel bytes that follow the entries list in the
// Payloads section body).
func UnmarshalEntries(data []byte, budget Budget) ([]Entry, []byte, error) {
	count, rest, err := readVarint(data)
	if err != nil {
		return nil, nil, err
	}
	if err := budget.ensureSymbols(int64(count)); err != nil {
		return nil, nil, err
	}
	entries := make([]Entry, count)
	for i := range entries {
		var payloadType, kind string
		payloadType, rest, err = readUTF8(rest)
		if err != nil {
			return nil, nil, err
		}
		if len(rest) < 1 {
			return nil, nil, &FrameCorruptError{Reason: "truncated entry channel tag"}
		}
		channel := ChannelTag(rest[0])
		rest = rest[1:]
		kind, rest, err = readUTF8(rest)
		if err != nil {
			return nil, nil, err
		}
		var tokenIndex uint64
		tokenIndex, rest, err = readVarint(rest)
		if err != nil {
			return nil, nil, err
		}
		entries[i] = Entry{PayloadType: payloadType, Channel: channel, Kind: kind, TokenIndex: uint32(tokenIndex)}
	}
	return entries, rest, nil
}

// marshalPriorStream rANS-compresses a uint32 stream whose entropy model is
// chosen by mode: adaptive fits a table to this stream alone, static uses prior's
// baseline directly with no per-call model to store, and hybrid stores a
// sparse delta between the adaptive table and the prior baseline - the
// same static/hybrid scheme EncodeTokens uses for the token stream, but
// keyed here to the channel's own named Prior rather than a registry
// lookup, since a channel's prior shape is fixed by spec rather than
// per-package configurable.
func marshalPriorStream(values []uint32, alphabetSize int, prior Prior, mode ModelMode) []byte {
	precisionBits := defaultPrecisionBits
	mode = resolveModelMode(mode, BackendRANS)
	adaptive := buildRANSModel(values, alphabetSize, precisionBits)
	baseline := scaleCounts(baselineFrequencies(prior, alphabetSize), precisionBits)

	var frequencies []uint32
	var overrides map[string]int64
	switch mode {
	case ModelModeStatic:
		frequencies = baseline
	case ModelModeHybrid:
		overrides = buildSparseOverrides(adaptive.Frequencies, baseline)
		frequencies = applyHybridOverrides(baseline, overrides, alphabetSize)
	default:
		frequencies = adaptive.Frequencies
	}
	table := tableFromModel(RANSModel{PrecisionBits: precisionBits, Frequencies: frequencies})
	compressed := ransEncode(values, table)

	var out []byte
	out = putVarint(out, uint64(len(values)))
	out = putVarint(out, uint64(alphabetSize))
	out = putUTF8(out, string(mode))
	switch mode {
	case ModelModeAdaptive:
		for _, f := range adaptive.Frequencies {
			out = putVarint(out, uint64(f))
		}
	case ModelModeHybrid:
		out = putVarint(out, uint64(len(overrides)))
		for k, v := range overrides {
			out = putUTF8(out, k)
			out = putVarint(out, zigzag(v))
		}
	}
	out = putU32Blob(out, compressed)
	return out
}

// unmarshalPriorStream reverses marshalPriorStream. prior must be the same
// Prior the stream was encoded against; static and hybrid reconstruct their
// baseline from it rather than reading frequencies off the wire.
func unmarshalPriorStream(data []byte, prior Prior, budget Budget) ([]uint32, []byte, error) {
	count, rest, err := readVarint(data)
	if err != nil {
		return nil, nil, err
	}
	if err := budget.ensureSymbols(int64(count)); err != nil {
		return nil, nil, err
	}
	alphabetSizeU, rest, err := readVarint(rest)
	if err != nil {
		return nil, nil, err
	}
	alphabetSize := int(alphabetSizeU)
	modeStr, rest, err := readUTF8(rest)
	if err != nil {
		return nil, nil, err
	}
	precisionBits := defaultPrecisionBits

	var frequencies []uint32
	switch ModelMode(modeStr) {
	case ModelModeStatic:
		frequencies = scaleCounts(baselineFrequencies(prior, alphabetSize), precisionBits)
	case ModelModeHybrid:
		numOverrides, r, err := readVarint(rest)
		if err != nil {
			return nil, nil, err
		}
		rest = r
		if err := budget.ensureSymbols(int64(numOverrides)); err != nil {
			return nil, nil, err
		}
		overrides := make(map[string]int64, numOverrides)
		for i := uint64(0); i < numOverrides; i++ {
			var k string
			k, rest, err = readUTF8(rest)
			if err != nil {
				return nil, nil, err
			}
			var zz uint64
			zz, rest, err = readVarint(rest)
			if err != nil {
				return nil, nil, err
			}
			overrides[k] = unzigzag(zz)
		}
		baseline := scaleCounts(baselineFrequencies(prior, alphabetSize), precisionBits)
		frequencies = applyHybridOverrides(baseline, overrides, alphabetSize)
	default:
		if err := budget.ensureModelBytes(int64(alphabetSize) * 4); err != nil {
			return nil, nil, err
		}
		frequencies = make([]uint32, alphabetSize)
		for i := range frequencies {
			var f uint64
			f, rest, err = readVarint(rest)
			if err != nil {
				return nil, nil, err
			}
			frequencies[i] = uint32(f)
		}
	}

	compressed, rest, err := readU32Blob(rest, budget)
	if err != nil {
		return nil, nil, err
	}
	table := tableFromModel(RANSModel{PrecisionBits: precisionBits, Frequencies: frequencies})
	values, err := ransDecode(compressed, table, int(count))
	if err != nil {
		return nil, nil, err
	}
	return values, rest, nil
}

// marshalUint64Stream is marshalPriorStream's counterpart for the Counts
// channel, which carries non-negative 64-bit values against priorCount;
// values above the uint32 range are carried as an escape table rather than
// inflating the rANS alphabet.
func marshalUint64Stream(values []uint64, mode ModelMode) []byte {
	narrow := make([]uint32, len(values))
	var escapes []uint64
	var escapeIdx []uint32
	const escapeSentinel = ^uint32(0)
	for i, v := range values {
		if v > uint64(escapeSentinel-1) {
			narrow[i] = escapeSentinel
			escapes = append(escapes, v)
			escapeIdx = append(escapeIdx, uint32(i))
			continue
		}
		narrow[i] = uint32(v)
	}
	out := marshalPriorStream(narrow, uint32AlphabetSize(narrow), priorCount, mode)
	out = putVarint(out, uint64(len(escapes)))
	for i, idx := range escapeIdx {
		out = putVarint(out, uint64(idx))
		out = putVarint(out, escapes[i])
	}
	return out
}

func unmarshalUint64Stream(data []byte, budget Budget) ([]uint64, []byte, error) {
	narrow, rest, err := unmarshalPriorStream(data, priorCount, budget)
	if err != nil {
		return nil, nil, err
	}
	numEscapes, rest, err := readVarint(rest)
	if err != nil {
		return nil, nil, err
	}
	escapes := make(map[uint32]uint64, numEscapes)
	for i := uint64(0); i < numEscapes; i++ {
		var idx, v uint64
		idx, rest, err = readVarint(rest)
		if err != nil {
			return nil, nil, err
		}
		v, rest, err = readVarint(rest)
		if err != nil {
			return nil, nil, err
		}
		escapes[uint32(idx)] = v
	}
	out := make([]uint64, len(narrow))
	const escapeSentinel = ^uint32(0)
	for i, v := range narrow {
		if v == escapeSentinel {
			out[i] = escapes[uint32(i)]
			continue
		}
		out[i] = uint64(v)
	}
	return out, rest, nil
}

// marshalStructured serialises the structured (R) channel: a recursive,
// explicitly tagged value encoding rather than a generic JSON blob.
func marshalStructured(values []Value) []byte {
	var out []byte
	out = putVarint(out, uint64(len(values)))
	for _, v := range values {
		out = marshalValue(out, v)
	}
	return out
}

func marshalValue(out []byte, v Value) []byte {
	out = append(out, byte(v.Kind))
	switch v.Kind {
	case ValueNull:
	case ValueString:
		out = putUTF8(out, v.Str)
	case ValueInt:
		out = putVarint(out, zigzag(v.Int))
	case ValueFloat:
		out = putU32Blob(out, float64Bytes(v.Flt))
	case ValueBool:
		if v.Bool {
			out = append(out, 1)
		} else {
			out = append(out, 0)
		}
	case ValueList:
		out = putVarint(out, uint64(len(v.List)))
		for _, item := range v.List {
			out = marshalValue(out, item)
		}
	case ValueMap:
		keys := make([]string, len(v.Map))
		byKey := make(map[string]Value, len(v.Map))
		for i, e := range v.Map {
			keys[i] = e.Key
			byKey[e.Key] = e.Value
		}
		sort.Strings(keys)
		out = putVarint(out, uint64(len(keys)))
		for _, k := range keys {
			out = putUTF8(out, k)
			out = marshalValue(out, byKey[k])
		}
	}
	return out
}

func unmarshalStructured(data []byte, budget Budget) ([]Value, []byte, error) {
	count, rest, err := readVarint(data)
	if err != nil {
		return nil, nil, err
	}
	if err := budget.ensureSymbols(int64(count)); err != nil {
		return nil, nil, err
	}
	out := make([]Value, count)
	for i := range out {
		var v Value
		v, rest, err = unmarshalValue(rest, budget)
		if err != nil {
			return nil, nil, err
		}
		out[i] = v
	}
	return out, rest, nil
}

func unmarshalValue(buf []byte, budget Budget) (Value, []byte, error) {
	if len(buf) < 1 {
		return Value{}, nil, &FrameCorruptError{Reason: "truncated structured value tag"}
	}
	kind := ValueKind(buf[0])
	buf = buf[1:]
	switch kind {
	case ValueNull:
		return Value{Kind: ValueNull}, buf, nil
	case ValueString:
		s, rest, err := readUTF8(buf)
		return Value{Kind: ValueString, Str: s}, rest, err
	case ValueInt:
		zz, rest, err := readVarint(buf)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: ValueInt, Int: unzigzag(zz)}, rest, nil
	case ValueFloat:
		blob, rest, err := readU32Blob(buf, budget)
		if err != nil {
			return Value{}, nil, err
		}
		f, err := bytesFloat64(blob)
		if err != nil {
			return Value{}, nil, err
		}
		return Value{Kind: ValueFloat, Flt: f}, rest, nil
	case ValueBool:
		if len(buf) < 1 {
			return Value{}, nil, &FrameCorruptError{Reason: "truncated bool value"}
		}
		return Value{Kind: ValueBool, Bool: buf[0] != 0}, buf[1:], nil
	case ValueList:
		n, rest, err := readVarint(buf)
		if err != nil {
			return Value{}, nil, err
		}
		if err := budget.ensureSymbols(int64(n)); err != nil {
			return Value{}, nil, err
		}
		list := make([]Value, n)
		for i := range list {
			var item Value
			item, rest, err = unmarshalValue(rest, budget)
			if err != nil {
				return Value{}, nil, err
			}
			list[i] = item
		}
		return Value{Kind: ValueList, List: list}, rest, nil
	case ValueMap:
		n, rest, err := readVarint(buf)
		if err != nil {
			return Value{}, nil, err
		}
		if err := budget.ensureSymbols(int64(n)); err != nil {
			return Value{}, nil, err
		}
		entries := make([]MapEntry, n)
		for i := range entries {
			var key string
			key, rest, err = readUTF8(rest)
			if err != nil {
				return Value{}, nil, err
			}
			var val Value
			val, rest, err = unmarshalValue(rest, budget)
			if err != nil {
				return Value{}, nil, err
			}
			entries[i] = MapEntry{Key: key, Value: val}
		}
		return Value{Kind: ValueMap, Map: entries}, rest, nil
	default:
		return Value{}, nil, &PayloadChannelCorruptError{Channel: string(ChannelStructured), Reason: "unknown value tag"}
	}
}

func zigzag(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}

func unzigzag(v uint64) int64 {
	return int64(v>>1) ^ -int64(v&1)
}
