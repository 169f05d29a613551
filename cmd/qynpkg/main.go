// Command qynpkg is a minimal reference front-end for the qyn1 package
// codec: just enough CLI surface to encode a (pre-tokenized) stream, decode
// a package, inspect its metadata without the key, and verify a source hash
// against authenticated metadata. It is not part of the codec's contract
// (spec.md §1 scopes the CLI itself out); it exists to exercise qyn1 the way
// a real encoder front-end collaborator would.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/everplay-tech/quenyan/config"
	"github.com/everplay-tech/quenyan/qyn1"
)

var logger *zap.Logger

func loadConfig(cmd *cli.Command) (config.CodecConfig, error) {
	path := cmd.String("config")
	if path == "" {
		cfg := config.DefaultCodecConfig()
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return config.CodecConfig{}, fmt.Errorf("unable to read config file %q: %w", path, err)
	}
	return config.LoadCodecConfig(data)
}

func budgetFrom(bc config.BudgetConfig) (qyn1.Budget, error) {
	b := qyn1.DefaultBudget()
	if bc.MaxSymbols > 0 {
		b.MaxSymbols = bc.MaxSymbols
	}
	if bc.MaxModelBytes > 0 {
		b.MaxModelBytes = bc.MaxModelBytes
	}
	if bc.MaxCompressedBytes > 0 {
		b.MaxCompressedBytes = bc.MaxCompressedBytes
	}
	if bc.MaxStringTableBytes > 0 {
		b.MaxStringTableBytes = bc.MaxStringTableBytes
	}
	if bc.MaxPayloadBytes > 0 {
		b.MaxPayloadBytes = bc.MaxPayloadBytes
	}
	if err := b.Validate(); err != nil {
		return qyn1.Budget{}, fmt.Errorf("invalid budget overrides: %w", err)
	}
	return b, nil
}

func passphraseFrom(cmd *cli.Command) (config.SecretString, error) {
	envVar := cmd.String("passphrase-env")
	if envVar == "" {
		envVar = "QYNPKG_PASSPHRASE"
	}
	val, ok := os.LookupEnv(envVar)
	if !ok {
		return "", fmt.Errorf("passphrase environment variable %q is not set", envVar)
	}
	return config.SecretString(val), nil
}

// loadStreamJSON reads a JSON-rendered qyn1.EncodedStream from path, the
// shape an encoder front-end collaborator would otherwise hand the codec
// in-process; this CLI demo accepts it from a file so `encode` can be
// exercised standalone.
func loadStreamJSON(path string) (qyn1.EncodedStream, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return qyn1.EncodedStream{}, fmt.Errorf("unable to read input stream %q: %w", path, err)
	}
	var stream qyn1.EncodedStream
	if err := json.Unmarshal(raw, &stream); err != nil {
		return qyn1.EncodedStream{}, fmt.Errorf("input stream %q is not valid JSON: %w", path, err)
	}
	return stream, nil
}

func encodeAction(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("encode requires exactly one SOURCE argument")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if v := cmd.String("compression-mode"); v != "" {
		cfg.Compression = config.CompressionProfile(v)
	}
	if v := cmd.String("model-mode"); v != "" {
		cfg.ModelMode = config.ModelModeConfig(v)
	}
	passphrase, err := passphraseFrom(cmd)
	if err != nil {
		return err
	}

	stream, err := loadStreamJSON(cmd.Args().Get(0))
	if err != nil {
		return err
	}

	params := qyn1.CompressionParams{Backend: cfg.Backend, ModelMode: qyn1.ModelMode(cfg.ModelMode)}
	if cfg.Compression == config.CompressionMaximum {
		params.Backend = qyn1.BackendFSEProduction
	}

	budget, err := budgetFrom(cfg.Budget)
	if err != nil {
		return err
	}
	keyID := uuid.NewString()
	codec := qyn1.NewCodec()
	opts := qyn1.EncodeOptions{
		Passphrase: passphrase,
		Params:     params,
		KeyID:      &keyID,
		Budget:     &budget,
	}
	if cfg.Compression == config.CompressionSecurity {
		opts.Params.DisableOptimisation = true
	}

	out, err := codec.Encode(stream, opts)
	if err != nil {
		return fmt.Errorf("encode failed: %w", err)
	}
	source := cmd.Args().Get(0)
	dest := filepath.Join(filepath.Dir(source), config.CleanFileName(filepath.Base(source))+".qyn1")
	if err := os.WriteFile(dest, out, 0o644); err != nil {
		return fmt.Errorf("unable to write package %q: %w", dest, err)
	}
	logger.Info("encoded package", zap.String("destination", dest), zap.Int("bytes", len(out)))
	return nil
}

func decodeAction(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("decode requires exactly one PACKAGE argument")
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	passphrase, err := passphraseFrom(cmd)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(cmd.Args().Get(0))
	if err != nil {
		return fmt.Errorf("unable to read package %q: %w", cmd.Args().Get(0), err)
	}

	codec := qyn1.NewCodec()
	budget, err := budgetFrom(cfg.Budget)
	if err != nil {
		return err
	}
	var stream *qyn1.EncodedStream
	if qyn1.IsLegacyPackage(data) {
		stream, err = codec.DecodeLegacy(data, passphrase)
	} else {
		stream, err = codec.Decode(data, qyn1.DecodeOptions{Passphrase: passphrase, Budget: &budget})
	}
	if err != nil {
		return fmt.Errorf("decode failed: %w", err)
	}
	rendered, err := json.MarshalIndent(stream, "", "  ")
	if err != nil {
		return fmt.Errorf("unable to render decoded stream: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(rendered))
	return nil
}

// wrapperMetadataJSON peeks at the wrapper frame's metadata section without
// requiring the passphrase: metadata travels as the AEAD associated data,
// sitting alongside (not inside) the ciphertext in the wrapper body.
func wrapperMetadataJSON(data []byte) ([]byte, error) {
	wrapper, _, err := qyn1.UnmarshalFrame(data, qyn1.WrapperMagic)
	if err != nil {
		return nil, err
	}
	metadataJSON, _, err := qyn1.PeekWrapperMetadata(wrapper.Body)
	if err != nil {
		return nil, err
	}
	return metadataJSON, nil
}

func inspectAction(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("inspect requires exactly one PACKAGE argument")
	}
	data, err := os.ReadFile(cmd.Args().Get(0))
	if err != nil {
		return fmt.Errorf("unable to read package %q: %w", cmd.Args().Get(0), err)
	}
	if qyn1.IsLegacyPackage(data) {
		return fmt.Errorf("inspect does not support legacy (1.0) packages without the key")
	}
	metadataJSON, err := wrapperMetadataJSON(data)
	if err != nil {
		return fmt.Errorf("unable to read wrapper metadata: %w", err)
	}
	fmt.Fprintln(os.Stdout, string(metadataJSON))
	return nil
}

func verifyHashAction(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 2 {
		return fmt.Errorf("verify-hash requires PACKAGE and SOURCE-FILE arguments")
	}
	data, err := os.ReadFile(cmd.Args().Get(0))
	if err != nil {
		return fmt.Errorf("unable to read package %q: %w", cmd.Args().Get(0), err)
	}
	source, err := os.ReadFile(cmd.Args().Get(1))
	if err != nil {
		return fmt.Errorf("unable to read source file %q: %w", cmd.Args().Get(1), err)
	}
	metadataJSON, err := wrapperMetadataJSON(data)
	if err != nil {
		return fmt.Errorf("unable to read wrapper metadata: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(metadataJSON, &meta); err != nil {
		return fmt.Errorf("wrapper metadata is not valid JSON: %w", err)
	}
	want, _ := meta["source_hash"].(string)
	sum := sha256.Sum256(source)
	got := hex.EncodeToString(sum[:])
	if want == "" {
		return fmt.Errorf("package metadata carries no source_hash to verify against")
	}
	if want != got {
		return fmt.Errorf("source hash mismatch: package has %s, file hashes to %s", want, got)
	}
	fmt.Fprintln(os.Stdout, "source hash verified")
	return nil
}

func main() {
	before := func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
		loggingCfg := config.LoggingConfig{ConsoleLogger: config.LoggerConfig{Level: "normal"}}
		if cmd.Bool("debug") {
			loggingCfg.ConsoleLogger.Level = "debug"
		}
		l, err := loggingCfg.Prepare()
		if err != nil {
			return ctx, fmt.Errorf("unable to prepare logs: %w", err)
		}
		logger = l
		return ctx, nil
	}

	app := &cli.Command{
		Name:            "qynpkg",
		Usage:           "reference front-end for the QYN-1 package codec",
		Version:         runtime.Version(),
		HideHelpCommand: true,
		Before:          before,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "load configuration from `FILE` (YAML)"},
			&cli.BoolFlag{Name: "debug", Aliases: []string{"d"}, Usage: "verbose logging"},
		},
		Commands: []*cli.Command{
			{
				Name:      "encode",
				Usage:     "encode a JSON-rendered EncodedStream into a QYN-1 package",
				Action:    encodeAction,
				ArgsUsage: "SOURCE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "passphrase-env", Usage: "environment variable holding the passphrase"},
					&cli.StringFlag{Name: "compression-mode", Usage: "balanced | maximum | security"},
					&cli.StringFlag{Name: "model-mode", Usage: "adaptive | static | hybrid"},
				},
			},
			{
				Name:      "decode",
				Usage:     "decode a QYN-1 package back into its EncodedStream JSON",
				Action:    decodeAction,
				ArgsUsage: "PACKAGE",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "passphrase-env", Usage: "environment variable holding the passphrase"},
				},
			},
			{
				Name:      "inspect",
				Usage:     "print a package's wrapper metadata without the key",
				Action:    inspectAction,
				ArgsUsage: "PACKAGE",
			},
			{
				Name:      "verify-hash",
				Usage:     "verify a source file's hash against authenticated package metadata",
				Action:    verifyHashAction,
				ArgsUsage: "PACKAGE SOURCE-FILE",
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "qynpkg: %v\n", err)
		os.Exit(1)
	}
}
