package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	validator "github.com/go-playground/validator/v10"
	yaml "gopkg.in/yaml.v3"
)

// CompressionProfile selects the encoder's overall trade-off: "balanced" is
// the default entropy/optimisation mix, "maximum" enables every compression
// feature including the optional FSE backend, "security" disables token
// optimisation (identity plan) so dictionary frequency leaks nothing about
// token distribution.
type CompressionProfile string

const (
	CompressionBalanced CompressionProfile = "balanced"
	CompressionMaximum  CompressionProfile = "maximum"
	CompressionSecurity CompressionProfile = "security"
)

// ModelModeConfig selects how a channel's entropy model is built, mirroring
// qyn1.ModelMode's string constants. config does not import qyn1, since qyn1
// already imports config and the reverse edge would form a cycle.
type ModelModeConfig string

const (
	ModelModeConfigAdaptive ModelModeConfig = "adaptive"
	ModelModeConfigStatic   ModelModeConfig = "static"
	ModelModeConfigHybrid   ModelModeConfig = "hybrid"
)

// BudgetConfig is the YAML-tagged, validated shape of qyn1.Budget: the
// resource-budget overrides read from the config file's budget block. The
// CLI has no flags for these. Zero fields fall back to qyn1.DefaultBudget's
// values.
type BudgetConfig struct {
	MaxSymbols          int64 `yaml:"max_symbols,omitempty" validate:"omitempty,min=0"`
	MaxModelBytes       int64 `yaml:"max_model_bytes,omitempty" validate:"omitempty,min=0"`
	MaxCompressedBytes  int64 `yaml:"max_compressed_bytes,omitempty" validate:"omitempty,min=0"`
	MaxStringTableBytes int64 `yaml:"max_string_table_bytes,omitempty" validate:"omitempty,min=0"`
	MaxPayloadBytes     int64 `yaml:"max_payload_bytes,omitempty" validate:"omitempty,min=0"`
}

// CodecConfig is the top-level YAML configuration cmd/qynpkg loads: the
// compression profile, model mode, and budget overrides for one invocation,
// plus the logging sinks from LoggingConfig.
type CodecConfig struct {
	Compression CompressionProfile `yaml:"compression" validate:"required,oneof=balanced maximum security"`
	ModelMode   ModelModeConfig    `yaml:"model_mode" validate:"required,oneof=adaptive static hybrid"`
	Backend     string             `yaml:"backend,omitempty" validate:"omitempty,oneof=rans chunked-rans fse-production"`
	Budget      BudgetConfig       `yaml:"budget"`
	Logging     LoggingConfig      `yaml:"logging"`
}

// DefaultCodecConfig mirrors the flags' own defaults, so an empty/omitted
// config file behaves identically to no config file at all.
func DefaultCodecConfig() CodecConfig {
	return CodecConfig{
		Compression: CompressionBalanced,
		ModelMode:   ModelModeConfigAdaptive,
		Backend:     "rans",
		Logging: LoggingConfig{
			ConsoleLogger: LoggerConfig{Level: "normal"},
			FileLogger:    LoggerConfig{Level: "none"},
		},
	}
}

var codecValidator = validator.New()

// LoadCodecConfig decodes and validates a CodecConfig from YAML bytes,
// rejecting unknown fields exactly as the teacher's own unmarshalConfig
// does, so a typo'd flag name fails fast instead of silently no-op'ing.
func LoadCodecConfig(data []byte) (CodecConfig, error) {
	cfg := DefaultCodecConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return CodecConfig{}, fmt.Errorf("config: decode codec config: %w", err)
	}
	if err := codecValidator.Struct(cfg); err != nil {
		return CodecConfig{}, fmt.Errorf("config: invalid codec config: %w", err)
	}
	return cfg, nil
}
