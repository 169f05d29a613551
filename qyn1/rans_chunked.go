package qyn1

// defaultChunkSize is the number of symbols per independently-encoded chunk
// in the chunked-rans backend.
const defaultChunkSize = 65536

// ransChunk records one independently encoded, independently modeled
// segment of a chunked rANS stream.
type ransChunk struct {
	Offset      int
	Length      int
	SymbolCount int
	Frequencies []uint32
}

// chunkedRANSEncode splits symbols into fixed-size chunks, builds and
// applies a per-chunk frequency table, and returns the concatenated
// ciphertext-free compressed bytes plus the chunk metadata needed to decode.
func chunkedRANSEncode(symbols []uint32, alphabetSize int, precisionBits int, chunkSize int) ([]byte, []ransChunk) {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	var compressed []byte
	var chunks []ransChunk
	offset := 0
	for start := 0; start < len(symbols); start += chunkSize {
		end := start + chunkSize
		if end > len(symbols) {
			end = len(symbols)
		}
		chunk := symbols[start:end]
		model := buildRANSModel(chunk, alphabetSize, precisionBits)
		table := tableFromModel(model)
		encoded := ransEncode(chunk, table)
		chunks = append(chunks, ransChunk{
			Offset:      offset,
			Length:      len(encoded),
			SymbolCount: len(chunk),
			Frequencies: model.Frequencies,
		})
		compressed = append(compressed, encoded...)
		offset += len(encoded)
	}
	return compressed, chunks
}

// chunkedRANSDecode reverses chunkedRANSEncode using the recorded chunk
// metadata, enforcing the decoded length against symbolCount.
func chunkedRANSDecode(data []byte, chunks []ransChunk, precisionBits int, symbolCount int) ([]uint32, error) {
	var decoded []uint32
	for _, c := range chunks {
		if c.Offset+c.Length > len(data) {
			return nil, &PayloadChannelCorruptError{Reason: "chunked rANS segment runs past end of data"}
		}
		model := RANSModel{PrecisionBits: precisionBits, Frequencies: c.Frequencies}
		table := tableFromModel(model)
		segment := data[c.Offset : c.Offset+c.Length]
		symbols, err := ransDecode(segment, table, c.SymbolCount)
		if err != nil {
			return nil, err
		}
		decoded = append(decoded, symbols...)
	}
	if len(decoded) != symbolCount {
		return nil, &PayloadChannelCorruptError{Reason: "chunked rANS decoded symbol count mismatch"}
	}
	return decoded, nil
}
