package qyn1

import "go.uber.org/multierr"

// Budget declares allocation caps enforced during decode. Every length read
// from untrusted input (symbol count, compressed blob, estimated model size,
// string table, payload section) is checked against the matching cap before
// the corresponding buffer is allocated.
type Budget struct {
	MaxSymbols          int64
	MaxModelBytes       int64
	MaxCompressedBytes  int64
	MaxStringTableBytes int64
	MaxPayloadBytes     int64
}

// DefaultBudget mirrors the defaults every caller gets unless overridden.
func DefaultBudget() Budget {
	return Budget{
		MaxSymbols:          10_000_000,
		MaxModelBytes:       4_000_000,
		MaxCompressedBytes:  64_000_000,
		MaxStringTableBytes: 64_000_000,
		MaxPayloadBytes:     64_000_000,
	}
}

// Validate reports every non-negative-cap violation at once, rather than
// stopping at the first one, so a caller building a Budget from several
// independent CLI flags or config fields sees all of its mistakes together.
func (b Budget) Validate() error {
	var err error
	if b.MaxSymbols < 0 {
		err = multierr.Append(err, &ResourceBudgetExceededError{Field: "max_symbols", Actual: b.MaxSymbols, Cap: 0})
	}
	if b.MaxModelBytes < 0 {
		err = multierr.Append(err, &ResourceBudgetExceededError{Field: "max_model_bytes", Actual: b.MaxModelBytes, Cap: 0})
	}
	if b.MaxCompressedBytes < 0 {
		err = multierr.Append(err, &ResourceBudgetExceededError{Field: "max_compressed_bytes", Actual: b.MaxCompressedBytes, Cap: 0})
	}
	if b.MaxStringTableBytes < 0 {
		err = multierr.Append(err, &ResourceBudgetExceededError{Field: "max_string_table_bytes", Actual: b.MaxStringTableBytes, Cap: 0})
	}
	if b.MaxPayloadBytes < 0 {
		err = multierr.Append(err, &ResourceBudgetExceededError{Field: "max_payload_bytes", Actual: b.MaxPayloadBytes, Cap: 0})
	}
	return err
}

func (b Budget) ensureSymbols(n int64) error {
	if n > b.MaxSymbols {
		return &ResourceBudgetExceededError{Field: "symbols", Actual: n, Cap: b.MaxSymbols}
	}
	return nil
}

func (b Budget) ensureCompressed(n int64) error {
	if n > b.MaxCompressedBytes {
		return &ResourceBudgetExceededError{Field: "compressed_bytes", Actual: n, Cap: b.MaxCompressedBytes}
	}
	return nil
}

func (b Budget) ensureModelBytes(n int64) error {
	if n > b.MaxModelBytes {
		return &ResourceBudgetExceededError{Field: "model_bytes", Actual: n, Cap: b.MaxModelBytes}
	}
	return nil
}

func (b Budget) ensureStringTable(n int64) error {
	if n > b.MaxStringTableBytes {
		return &ResourceBudgetExceededError{Field: "string_table_bytes", Actual: n, Cap: b.MaxStringTableBytes}
	}
	return nil
}

func (b Budget) ensurePayloadBytes(n int64) error {
	if n > b.MaxPayloadBytes {
		return &ResourceBudgetExceededError{Field: "payload_bytes", Actual: n, Cap: b.MaxPayloadBytes}
	}
	return nil
}
