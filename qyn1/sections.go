package qyn1

import "encoding/binary"

// Section identifiers for the logical members of a payload frame body.
const (
	SectionStreamHeader  uint16 = 0x0001
	SectionCompression   uint16 = 0x0002
	SectionTokens        uint16 = 0x0003
	SectionStringTable   uint16 = 0x0004
	SectionPayloads      uint16 = 0x0005
	SectionSourceMap     uint16 = 0x0006
	SectionMetadata      uint16 = 0x0007
	SectionChannelIdent  uint16 = 0x0101
	SectionChannelString uint16 = 0x0102
	SectionChannelNumber uint16 = 0x0103
	SectionChannelCount  uint16 = 0x0104
	SectionChannelFlag   uint16 = 0x0105
)

// channelSectionID maps a PayloadChannels tag to its section identifier.
var channelSectionID = map[byte]uint16{
	'I': SectionChannelIdent,
	'S': SectionChannelString,
	'N': SectionChannelNumber,
	'C': SectionChannelCount,
	'F': SectionChannelFlag,
}

// StreamHeaderFlagSourceMap marks, inside a stream-header section's flags
// field, that a source map section is present in the same body.
const StreamHeaderFlagSourceMap uint16 = 1 << 0

// requiredSectionIDs must all be present in a well-formed payload body;
// 0x0006 and the 0x01xx channel sections are optional/conditional.
var requiredSectionIDs = []uint16{
	SectionStreamHeader, SectionCompression, SectionTokens, SectionStringTable, SectionPayloads,
	SectionMetadata,
}

// Section is a typed, length-prefixed record inside a payload frame body.
type Section struct {
	ID      uint16
	Flags   uint16
	Payload []byte
}

// sectionHeaderLen is identifier(2) + flags(2) + payloadLength(4), little-endian.
const sectionHeaderLen = 2 + 2 + 4

// MarshalSections serialises an ordered section list in little-endian.
func MarshalSections(sections []Section) []byte {
	total := 0
	for _, s := range sections {
		total += sectionHeaderLen + len(s.Payload)
	}
	out := make([]byte, 0, total)
	buf := make([]byte, sectionHeaderLen)
	for _, s := range sections {
		binary.LittleEndian.PutUint16(buf[0:2], s.ID)
		binary.LittleEndian.PutUint16(buf[2:4], s.Flags)
		binary.LittleEndian.PutUint32(buf[4:8], uint32(len(s.Payload)))
		out = append(out, buf...)
		out = append(out, s.Payload...)
	}
	return out
}

// UnmarshalSections parses a little-endian section stream in full, rejecting
// a truncated section header or a payload that runs past the end of body.
// Identifiers and flags are read as uint16 and are not otherwise checked.
func UnmarshalSections(body []byte) ([]Section, error) {
	var out []Section
	for len(body) > 0 {
		if len(body) < sectionHeaderLen {
			return nil, &FrameCorruptError{Reason: "truncated section header"}
		}
		id := binary.LittleEndian.Uint16(body[0:2])
		flags := binary.LittleEndian.Uint16(body[2:4])
		length := binary.LittleEndian.Uint32(body[4:8])
		body = body[sectionHeaderLen:]
		if uint64(length) > uint64(len(body)) {
			return nil, &FrameCorruptError{Reason: "section payload runs past end of body"}
		}
		out = append(out, Section{ID: id, Flags: flags, Payload: body[:length]})
		body = body[length:]
	}
	return out, nil
}

// findSection returns the first section with the given identifier.
func findSection(sections []Section, id uint16) (Section, bool) {
	for _, s := range sections {
		if s.ID == id {
			return s, true
		}
	}
	return Section{}, false
}

// checkRequiredSections verifies every identifier in requiredSectionIDs is
// present.
func checkRequiredSections(sections []Section) error {
	for _, want := range requiredSectionIDs {
		if _, ok := findSection(sections, want); !ok {
			return &FrameCorruptError{Reason: "missing required section"}
		}
	}
	return nil
}
