package qyn1

import (
	"encoding/binary"
	"math"
)

// Small wire helpers shared by the section encoders: a u16-length-prefixed
// UTF-8 string and a u32-length-prefixed byte blob, both little-endian,
// matching the layout used throughout the section bodies.

func putUTF8(out []byte, s string) []byte {
	b := []byte(s)
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(b)))
	out = append(out, lenBuf[:]...)
	return append(out, b...)
}

func readUTF8(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, &FrameCorruptError{Reason: "truncated string length"}
	}
	n := binary.LittleEndian.Uint16(buf[:2])
	buf = buf[2:]
	if int(n) > len(buf) {
		return "", nil, &FrameCorruptError{Reason: "truncated string payload"}
	}
	return string(buf[:n]), buf[n:], nil
}

func putU32Blob(out []byte, blob []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(blob)))
	out = append(out, lenBuf[:]...)
	return append(out, blob...)
}

func readU32Blob(buf []byte, budget Budget) ([]byte, []byte, error) {
	if len(buf) < 4 {
		return nil, nil, &FrameCorruptError{Reason: "truncated blob length"}
	}
	n := binary.LittleEndian.Uint32(buf[:4])
	buf = buf[4:]
	if err := budget.ensurePayloadBytes(int64(n)); err != nil {
		return nil, nil, err
	}
	if uint64(n) > uint64(len(buf)) {
		return nil, nil, &FrameCorruptError{Reason: "truncated blob payload"}
	}
	return buf[:n], buf[n:], nil
}

func putU32(out []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(out, b[:]...)
}

func readU32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, &FrameCorruptError{Reason: "truncated u32"}
	}
	return binary.LittleEndian.Uint32(buf[:4]), buf[4:], nil
}

func float64Bytes(f float64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(f))
	return b[:]
}

func bytesFloat64(b []byte) (float64, error) {
	if len(b) != 8 {
		return 0, &FrameCorruptError{Reason: "malformed float64 blob"}
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}
