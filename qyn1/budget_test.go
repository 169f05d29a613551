package qyn1

import (
	"testing"

	"go.uber.org/multierr"
)

func TestBudgetValidate(t *testing.T) {
	if err := DefaultBudget().Validate(); err != nil {
		t.Fatalf("DefaultBudget().Validate() = %v, want nil", err)
	}

	bad := Budget{MaxSymbols: -1, MaxModelBytes: -1, MaxCompressedBytes: 10, MaxStringTableBytes: 10, MaxPayloadBytes: 10}
	err := bad.Validate()
	if err == nil {
		t.Fatalf("expected Validate to report negative caps")
	}
	errs := multierr.Errors(err)
	if len(errs) != 2 {
		t.Fatalf("expected 2 aggregated errors, got %d: %v", len(errs), err)
	}
}
