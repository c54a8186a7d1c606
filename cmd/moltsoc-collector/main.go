package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/securityjoes/MoltSoc/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// errInvalidRecords makes verify exit non-zero without printing usage.
var errInvalidRecords = errors.New("invalid records found")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errInvalidRecords) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "moltsoc-collector",
		Short: "Local SOC collector for OpenClaw agents",
		Long: `Tails OpenClaw logs or polls the OpenClaw CLI, raises alerts for
security-relevant patterns and writes every event to an NDJSON log.
With --serve the buffered events are exposed over HTTP (/events, /stream).`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runE,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the collector (default)",
			Args:  cobra.NoArgs,
			RunE:  runE,
		},
		newDiscoverCmd(),
		newVerifyCmd(),
	)
	return root
}

// loadConfig resolves the configuration and builds the process logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	return cfg, mustBuildLogger(cfg.LogLevel), nil
}

func runE(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	logger.Info("starting collector",
		zap.String("source", cfg.Source),
		zap.String("out", cfg.Out),
		zap.Bool("redact", cfg.Redact),
		zap.Bool("serve", cfg.Serve),
		zap.Int("max_events", cfg.MaxEvents),
	)
	if err := runCollector(cmd.Context(), cfg, logger); err != nil {
		logger.Error("collector failed", zap.Error(err))
		return err
	}
	logger.Info("collector stopped")
	return nil
}

// mustBuildLogger builds a JSON logger on stderr; stdout is left to command
// output.
func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
