package qyn1

import "math/bits"

// numberBucketCount is the size of the magnitude-bucket alphabet: bucket i
// holds values with i significant bits. Non-zero magnitudes give buckets
// 1..64 (a negative int64 at the minimum value has a 64-bit magnitude once
// negated into uint64); a zero value is marked by zeroFlags and leaves its
// bucket at 0, which is still written to the bucket stream, so the alphabet
// covers indices 0..64.
const numberBucketCount = 65

// encodedNumbers is the decomposition of a Numbers channel into its three
// independently modeled sub-streams plus the residual bits that, together
// with the bucket, reconstruct the original magnitude exactly.
type encodedNumbers struct {
	ZeroFlags []bool   // true when the value is exactly zero
	Signs     []bool   // true when negative; meaningless where ZeroFlags is true
	Buckets   []uint32 // magnitude bit-length, 1..64; 0 where ZeroFlags is true
	Residuals [][]byte // bucket-1 bits of magnitude below the leading bit, packed LSB-first
}

// decomposeNumbers splits signed integers into the log-magnitude
// representation: a zero flag, a sign, a bit-length bucket, and the
// remaining magnitude bits once the leading (implicit) bit is dropped.
func decomposeNumbers(values []int64) encodedNumbers {
	out := encodedNumbers{
		ZeroFlags: make([]bool, len(values)),
		Signs:     make([]bool, len(values)),
		Buckets:   make([]uint32, len(values)),
		Residuals: make([][]byte, len(values)),
	}
	for i, v := range values {
		if v == 0 {
			out.ZeroFlags[i] = true
			continue
		}
		negative := v < 0
		mag := uint64(v)
		if negative {
			mag = uint64(-v)
		}
		bitLen := bits.Len64(mag)
		out.Signs[i] = negative
		out.Buckets[i] = uint32(bitLen)
		out.Residuals[i] = packResidual(mag, bitLen-1)
	}
	return out
}

// recomposeNumbers reverses decomposeNumbers.
func recomposeNumbers(n encodedNumbers) ([]int64, error) {
	out := make([]int64, len(n.ZeroFlags))
	for i := range out {
		if n.ZeroFlags[i] {
			continue
		}
		bitLen := int(n.Buckets[i])
		if bitLen == 0 || bitLen > 64 {
			return nil, &PayloadChannelCorruptError{Channel: string(ChannelNumber), Reason: "magnitude bucket out of range"}
		}
		residualBits := bitLen - 1
		residual, err := unpackResidual(n.Residuals[i], residualBits)
		if err != nil {
			return nil, err
		}
		mag := (uint64(1) << uint(residualBits)) | residual
		if n.Signs[i] {
			out[i] = -int64(mag)
		} else {
			out[i] = int64(mag)
		}
	}
	return out, nil
}

// packResidual packs the low nbits of mag (below its implicit leading bit)
// LSB-first into bytes.
func packResidual(mag uint64, nbits int) []byte {
	if nbits <= 0 {
		return nil
	}
	out := make([]byte, (nbits+7)/8)
	for i := 0; i < nbits; i++ {
		if mag&(1<<uint(i)) != 0 {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

func unpackResidual(packed []byte, nbits int) (uint64, error) {
	if nbits <= 0 {
		return 0, nil
	}
	if len(packed) < (nbits+7)/8 {
		return 0, &PayloadChannelCorruptError{Channel: string(ChannelNumber), Reason: "truncated residual bits"}
	}
	var v uint64
	for i := 0; i < nbits; i++ {
		if packed[i/8]&(1<<uint(i%8)) != 0 {
			v |= 1 << uint(i)
		}
	}
	return v, nil
}

// marshalNumbers serialises the three sub-streams plus residual bytes for a
// Numbers channel. ZeroFlags, Signs, and Buckets each carry their own named
// prior (priorZeroFlag, priorSign, priorBucket) and are rANS-coded against
// it rather than merely bit-packed, so mode's static/hybrid baselines apply
// here the same way they do to every other channel; the residual bits are
// the magnitude's remaining entropy below the bucket and are carried
// uncompressed.
func marshalNumbers(values []int64, mode ModelMode) []byte {
	n := decomposeNumbers(values)
	var out []byte
	out = putVarint(out, uint64(len(values)))
	out = append(out, marshalPriorStream(boolsToUint32(n.ZeroFlags), 2, priorZeroFlag, mode)...)
	out = append(out, marshalPriorStream(boolsToUint32(n.Signs), 2, priorSign, mode)...)
	out = append(out, marshalPriorStream(n.Buckets, numberBucketCount, priorBucket, mode)...)
	for _, r := range n.Residuals {
		out = putU32Blob(out, r)
	}
	return out
}

func unmarshalNumbers(data []byte, budget Budget) ([]int64, []byte, error) {
	count, rest, err := readVarint(data)
	if err != nil {
		return nil, nil, err
	}
	if err := budget.ensureSymbols(int64(count)); err != nil {
		return nil, nil, err
	}
	zeroFlagsU, rest, err := unmarshalPriorStream(rest, priorZeroFlag, budget)
	if err != nil {
		return nil, nil, err
	}
	zeroFlags := uint32sToBools(zeroFlagsU)
	signsU, rest, err := unmarshalPriorStream(rest, priorSign, budget)
	if err != nil {
		return nil, nil, err
	}
	signs := uint32sToBools(signsU)
	buckets, rest, err := unmarshalPriorStream(rest, priorBucket, budget)
	if err != nil {
		return nil, nil, err
	}
	residuals := make([][]byte, count)
	for i := range residuals {
		var blob []byte
		blob, rest, err = readU32Blob(rest, budget)
		if err != nil {
			return nil, nil, err
		}
		residuals[i] = blob
	}
	values, err := recomposeNumbers(encodedNumbers{ZeroFlags: zeroFlags, Signs: signs, Buckets: buckets, Residuals: residuals})
	if err != nil {
		return nil, nil, err
	}
	return values, rest, nil
}
