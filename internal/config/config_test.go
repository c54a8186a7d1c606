package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(newFlags(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source != SourceLogs {
		t.Errorf("source = %q", cfg.Source)
	}
	if !cfg.Redact {
		t.Error("redaction should default on")
	}
	if cfg.Serve {
		t.Error("serve should default off")
	}
	if cfg.MaxEvents != 10_000 {
		t.Errorf("max events = %d", cfg.MaxEvents)
	}
	if cfg.HTTPAddr != "127.0.0.1:7777" {
		t.Errorf("addr = %q", cfg.HTTPAddr)
	}
	if cfg.PollInterval != 10*time.Second || cfg.HeartbeatInterval != 30*time.Second {
		t.Errorf("intervals = %s / %s", cfg.PollInterval, cfg.HeartbeatInterval)
	}
	if cfg.Out != "events.jsonl" || cfg.OpenClawBin != "openclaw" || cfg.LogLevel != "info" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.DisabledRules == nil || len(cfg.DisabledRules) != 0 {
		t.Errorf("disabled rules = %#v", cfg.DisabledRules)
	}
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("MOLTSOC_SOURCE", "openclaw-cli")
	t.Setenv("MOLTSOC_MAX_EVENTS", "2500")
	t.Setenv("MOLTSOC_POLL_INTERVAL", "2s")
	t.Setenv("MOLTSOC_HEARTBEAT_INTERVAL", "1m")
	t.Setenv("MOLTSOC_CLICKHOUSE_DSN", "clickhouse://localhost:9000/soc")
	t.Setenv("MOLTSOC_DISABLED_RULES", "TOOL_LOOP, port_changed")
	t.Setenv("MOLTSOC_REDACT", "false")

	cfg, err := Load(newFlags(t))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source != SourceCLI || cfg.MaxEvents != 2500 {
		t.Errorf("source=%q max=%d", cfg.Source, cfg.MaxEvents)
	}
	if cfg.PollInterval != 2*time.Second || cfg.HeartbeatInterval != time.Minute {
		t.Errorf("intervals = %s / %s", cfg.PollInterval, cfg.HeartbeatInterval)
	}
	if cfg.ClickHouseDSN != "clickhouse://localhost:9000/soc" {
		t.Errorf("dsn = %q", cfg.ClickHouseDSN)
	}
	if strings.Join(cfg.DisabledRules, "|") != "TOOL_LOOP|port_changed" {
		t.Errorf("disabled rules = %v", cfg.DisabledRules)
	}
	if cfg.Redact {
		t.Error("MOLTSOC_REDACT=false should disable redaction")
	}
}

func TestLoad_FlagBeatsEnv(t *testing.T) {
	t.Setenv("MOLTSOC_HTTP_ADDR", "127.0.0.1:1111")
	t.Setenv("MOLTSOC_BOT_ID", "from-env")

	cfg, err := Load(newFlags(t, "--addr", "127.0.0.1:2222", "--serve", "--botId", " flagged "))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPAddr != "127.0.0.1:2222" {
		t.Errorf("addr = %q", cfg.HTTPAddr)
	}
	if !cfg.Serve {
		t.Error("--serve not applied")
	}
	if cfg.BotID != "flagged" {
		t.Errorf("bot id = %q", cfg.BotID)
	}
}

func TestLoad_NoRedact(t *testing.T) {
	cfg, err := Load(newFlags(t, "--no-redact"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Redact {
		t.Error("--no-redact should disable redaction")
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moltsoc.yaml")
	data := "source: openclaw-cli\nlog_level: debug\nmax_events: 4000\ndisabled_rules:\n  - PUBLIC_BIND\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MOLTSOC_MAX_EVENTS", "5000")

	cfg, err := Load(newFlags(t, "--config", path))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source != SourceCLI || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.MaxEvents != 5000 {
		t.Errorf("env should beat file: max events = %d", cfg.MaxEvents)
	}
	if len(cfg.DisabledRules) != 1 || cfg.DisabledRules[0] != "PUBLIC_BIND" {
		t.Errorf("disabled rules = %v", cfg.DisabledRules)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
	}{
		{"missing config file", []string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}, nil},
		{"bad log level", []string{"--logLevel", "loud"}, nil},
		{"zero poll interval", []string{"--pollInterval", "0s"}, nil},
		{"negative heartbeat", nil, map[string]string{"MOLTSOC_HEARTBEAT_INTERVAL": "-1s"}},
		{"empty source", []string{"--source", " "}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(newFlags(t, tt.args...)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_UnknownSourceIsAccepted(t *testing.T) {
	cfg, err := Load(newFlags(t, "--source", "syslog"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source != "syslog" {
		t.Errorf("source = %q", cfg.Source)
	}
}
