package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/latentcontext/latentcontext/internal/engine"
	"github.com/latentcontext/latentcontext/internal/rpc"
)

const version = "1.0.0"

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the JSON-RPC sidecar on stdin/stdout",
		Long:  "Serve line-delimited JSON-RPC 2.0 on stdin/stdout until the host closes the pipe.",
		Run:   runServe,
	}
	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		exitErr("load config", err)
	}
	logger := newLogger(cfg)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	eng, err := engine.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("engine initialization failed", zap.Error(err))
	}

	server := rpc.NewServer(eng, "latentcontext", version, logger)
	logger.Info("sidecar ready",
		zap.String("version", version),
		zap.String("mode", cfg.Retrieval.Mode),
		zap.Strings("tools", server.ToolNames()))

	transport := rpc.NewStdioTransport(logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- transport.Serve(ctx, server)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("signal received, shutting down", zap.String("signal", sig.String()))
		cancel()
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			logger.Error("transport error", zap.Error(err))
		}
	}

	if err := eng.Close(); err != nil {
		logger.Error("engine shutdown error", zap.Error(err))
	}
	logger.Info("sidecar stopped")
}
