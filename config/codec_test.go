package config

import "testing"

func TestLoadCodecConfigDefaults(t *testing.T) {
	cfg, err := LoadCodecConfig([]byte(`
compression: balanced
model_mode: adaptive
`))
	if err != nil {
		t.Fatalf("LoadCodecConfig: %v", err)
	}
	if cfg.Backend != "rans" {
		t.Fatalf("Backend = %q, want the default %q", cfg.Backend, "rans")
	}
}

func TestLoadCodecConfigRejectsUnknownFields(t *testing.T) {
	_, err := LoadCodecConfig([]byte(`
compression: balanced
model_mode: adaptive
bogus_field: 1
`))
	if err == nil {
		t.Fatalf("expected an error for an unknown config field")
	}
}

func TestLoadCodecConfigRejectsInvalidEnum(t *testing.T) {
	_, err := LoadCodecConfig([]byte(`
compression: extreme
model_mode: adaptive
`))
	if err == nil {
		t.Fatalf("expected a validation error for an invalid compression profile")
	}
}

func TestLoadCodecConfigBudgetOverrides(t *testing.T) {
	cfg, err := LoadCodecConfig([]byte(`
compression: maximum
model_mode: static
backend: fse-production
budget:
  max_symbols: 500000
  max_payload_bytes: 1000000
`))
	if err != nil {
		t.Fatalf("LoadCodecConfig: %v", err)
	}
	if cfg.Budget.MaxSymbols != 500000 {
		t.Fatalf("Budget.MaxSymbols = %d, want 500000", cfg.Budget.MaxSymbols)
	}
	if cfg.Budget.MaxPayloadBytes != 1000000 {
		t.Fatalf("Budget.MaxPayloadBytes = %d, want 1000000", cfg.Budget.MaxPayloadBytes)
	}
}
