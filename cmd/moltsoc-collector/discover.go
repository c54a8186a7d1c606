package main

import (
	"context"
	"fmt"
	"io"

	"github.com/securityjoes/MoltSoc/internal/config"
	"github.com/securityjoes/MoltSoc/internal/identity"
	"github.com/securityjoes/MoltSoc/internal/watcher"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// discoverReport is printed by the discover command.
type discoverReport struct {
	watcher.Discovery `yaml:",inline"`
	Target            string `yaml:"target"`
	Explicit          bool   `yaml:"explicit"`
	StatePath         string `yaml:"state_path"`
}

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Print discovered OpenClaw log locations as YAML",
		Long: `Search the usual OpenClaw state directories and the OpenClaw CLI output
for log files, then print what was found, the target the collector would tail
and where the bot identity is stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush

			runner := watcher.ExecRunner{Binary: cfg.OpenClawBin}
			report := buildDiscoverReport(cmd.Context(), cfg, runner, logger)
			return writeYAML(cmd.OutOrStdout(), report)
		},
	}
}

func buildDiscoverReport(ctx context.Context, cfg *config.Config, runner watcher.Runner, logger *zap.Logger) discoverReport {
	d := watcher.Discover(ctx, runner)
	if d.Dirs == nil {
		d.Dirs = []string{}
	}
	if d.Files == nil {
		d.Files = []string{}
	}
	return discoverReport{
		Discovery: d,
		Target:    watcher.ResolveLogTarget(ctx, cfg.LogPath, runner),
		Explicit:  cfg.LogPath != "",
		StatePath: identity.New(cfg.StateDir, logger).Path(),
	}
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}
