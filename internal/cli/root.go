// Package cli implements the latentcontext commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/latentcontext/latentcontext/internal/config"
	"github.com/latentcontext/latentcontext/internal/engine"
)

var (
	configPath string
	dataDir    string
	logLevel   string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "latentcontext",
	Short: "Per-user memory sidecar for conversational assistants",
	Long: "LatentContext sits between a host assistant and its context window: the host\n" +
		"stores compact notes mid-conversation and retrieves a ranked, token-budgeted\n" +
		"digest later. Run 'serve' for the JSON-RPC sidecar; the other commands operate\n" +
		"on the same store for inspection and debugging.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	RootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "", "Data directory (default: $LATENTCONTEXT_DATA_DIR or ./data)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	return cfg, nil
}

// newLogger builds the zap logger: JSON to stderr, optionally teeing into the
// data-directory diagnostics file. Stdout stays reserved for the RPC channel.
func newLogger(cfg *config.Config) *zap.Logger {
	var level zapcore.Level
	switch cfg.Logging.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	outputs := []string{"stderr"}
	if path := cfg.LogPath(); path != "" {
		if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err == nil {
			outputs = append(outputs, path)
		}
	}

	zc := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := zc.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

// openEngine boots an engine for a one-shot command. Auto session start is
// suppressed so inspection commands do not mint throwaway sessions.
func openEngine(ctx context.Context) (*engine.Engine, *zap.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	cfg.Session.AutoStartOnBoot = false
	logger := newLogger(cfg)

	eng, err := engine.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return eng, logger, nil
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
