package qyn1

import "sort"

// TokenOptimisationPlan remaps dense alphabet indices to/from the original
// dictionary indices by descending symbol frequency. Applied before entropy
// coding on encode, reversed after decoding.
type TokenOptimisationPlan struct {
	DenseToOriginal []uint32
	OriginalToDense map[uint32]uint32
}

// AlphabetSize returns the size of the dense alphabet, always <= the
// dictionary's own size.
func (p *TokenOptimisationPlan) AlphabetSize() int {
	return len(p.DenseToOriginal)
}

// Apply maps an original dictionary index to its dense counterpart.
func (p *TokenOptimisationPlan) Apply(original uint32) uint32 {
	if p == nil || p.OriginalToDense == nil {
		return original
	}
	return p.OriginalToDense[original]
}

// Reverse maps a dense index back to its original dictionary index.
func (p *TokenOptimisationPlan) Reverse(dense uint32) uint32 {
	if p == nil || p.DenseToOriginal == nil {
		return dense
	}
	return p.DenseToOriginal[dense]
}

// IdentityPlan returns the no-op plan used when token optimisation is
// disabled (compression mode "security"): dense index == original index.
func IdentityPlan(alphabetSize int) *TokenOptimisationPlan {
	d2o := make([]uint32, alphabetSize)
	o2d := make(map[uint32]uint32, alphabetSize)
	for i := range d2o {
		d2o[i] = uint32(i)
		o2d[uint32(i)] = uint32(i)
	}
	return &TokenOptimisationPlan{DenseToOriginal: d2o, OriginalToDense: o2d}
}

// BuildFrequencyPlan counts symbol occurrences in tokens, orders them by
// descending count (ties broken by ascending symbol index for determinism),
// and returns the resulting dense remapping plan.
func BuildFrequencyPlan(tokens []uint32) *TokenOptimisationPlan {
	counts := make(map[uint32]uint64)
	for _, t := range tokens {
		counts[t]++
	}
	symbols := make([]uint32, 0, len(counts))
	for s := range counts {
		symbols = append(symbols, s)
	}
	sort.Slice(symbols, func(i, j int) bool {
		a, b := symbols[i], symbols[j]
		if counts[a] != counts[b] {
			return counts[a] > counts[b]
		}
		return a < b
	})

	d2o := make([]uint32, len(symbols))
	o2d := make(map[uint32]uint32, len(symbols))
	for dense, original := range symbols {
		d2o[dense] = original
		o2d[original] = uint32(dense)
	}
	return &TokenOptimisationPlan{DenseToOriginal: d2o, OriginalToDense: o2d}
}

// ApplyPlan remaps every token in the original dictionary alphabet to its
// dense counterpart.
func ApplyPlan(tokens []uint32, plan *TokenOptimisationPlan) []uint32 {
	out := make([]uint32, len(tokens))
	for i, t := range tokens {
		out[i] = plan.Apply(t)
	}
	return out
}

// ReversePlan maps dense tokens back to the original dictionary alphabet.
func ReversePlan(dense []uint32, plan *TokenOptimisationPlan) []uint32 {
	out := make([]uint32, len(dense))
	for i, d := range dense {
		out[i] = plan.Reverse(d)
	}
	return out
}
