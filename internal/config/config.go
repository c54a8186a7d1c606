// Package config resolves collector settings from flags, MOLTSOC_*
// environment variables, an optional YAML file and defaults, in that order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment key.
const EnvPrefix = "MOLTSOC"

// Source names accepted by --source.
const (
	SourceLogs = "openclaw-logs"
	SourceCLI  = "openclaw-cli"
)

// Config is the resolved collector configuration.
type Config struct {
	Source            string
	LogPath           string
	Out               string
	Serve             bool
	Redact            bool
	MaxEvents         int
	BotID             string
	HTTPAddr          string
	OpenClawBin       string
	PollInterval      time.Duration
	HeartbeatInterval time.Duration
	StateDir          string
	ClickHouseDSN     string
	LogLevel          string
	DisabledRules     []string
}

// flagKeys maps viper keys to the flag names that override them.
var flagKeys = map[string]string{
	"source":         "source",
	"log_path":       "logPath",
	"out":            "out",
	"serve":          "serve",
	"redact":         "redact",
	"max_events":     "maxEvents",
	"bot_id":         "botId",
	"http_addr":      "addr",
	"openclaw_bin":   "openclaw",
	"poll_interval":  "pollInterval",
	"log_level":      "logLevel",
	"disabled_rules": "disableRule",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("source", SourceLogs)
	v.SetDefault("log_path", "")
	v.SetDefault("out", "events.jsonl")
	v.SetDefault("serve", false)
	v.SetDefault("redact", true)
	v.SetDefault("max_events", 10_000)
	v.SetDefault("bot_id", "")
	v.SetDefault("http_addr", "127.0.0.1:7777")
	v.SetDefault("openclaw_bin", "openclaw")
	v.SetDefault("poll_interval", 10*time.Second)
	v.SetDefault("heartbeat_interval", 30*time.Second)
	v.SetDefault("state_dir", "")
	v.SetDefault("clickhouse_dsn", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("disabled_rules", []string{})
}

// RegisterFlags adds the collector flags to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "optional YAML config file")
	fs.String("source", SourceLogs, "input source: openclaw-logs or openclaw-cli")
	fs.String("logPath", "", "log file or directory to tail (discovered when empty)")
	fs.String("out", "events.jsonl", "NDJSON event log path")
	fs.Bool("serve", false, "serve the HTTP query/stream API")
	fs.Bool("redact", true, "hash raw log lines and stderr before they leave the process")
	fs.Bool("no-redact", false, "keep raw log lines and stderr")
	fs.Int("maxEvents", 10_000, "in-memory event buffer size (minimum 1000)")
	fs.String("botId", "", "bot identifier (generated and persisted when empty)")
	fs.String("addr", "127.0.0.1:7777", "HTTP listen address")
	fs.String("openclaw", "openclaw", "OpenClaw CLI binary")
	fs.Duration("pollInterval", 10*time.Second, "CLI status poll interval")
	fs.String("logLevel", "info", "log level: debug, info, warn, error")
	fs.StringSlice("disableRule", nil, "alert rule id to disable (repeatable)")
}

// Load resolves the configuration. fs may be nil, in which case only the
// environment, the file named by MOLTSOC_CONFIG and defaults apply.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for key, name := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if path := configFile(fs); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{
		Source:            strings.TrimSpace(v.GetString("source")),
		LogPath:           v.GetString("log_path"),
		Out:               v.GetString("out"),
		Serve:             v.GetBool("serve"),
		Redact:            v.GetBool("redact"),
		MaxEvents:         v.GetInt("max_events"),
		BotID:             strings.TrimSpace(v.GetString("bot_id")),
		HTTPAddr:          v.GetString("http_addr"),
		OpenClawBin:       v.GetString("openclaw_bin"),
		PollInterval:      v.GetDuration("poll_interval"),
		HeartbeatInterval: v.GetDuration("heartbeat_interval"),
		StateDir:          v.GetString("state_dir"),
		ClickHouseDSN:     v.GetString("clickhouse_dsn"),
		LogLevel:          strings.ToLower(v.GetString("log_level")),
		DisabledRules:     splitList(v.GetStringSlice("disabled_rules")),
	}
	if fs != nil {
		if noRedact, err := fs.GetBool("no-redact"); err == nil && noRedact {
			cfg.Redact = false
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func configFile(fs *pflag.FlagSet) string {
	if fs != nil {
		if path, err := fs.GetString("config"); err == nil && path != "" {
			return path
		}
	}
	return os.Getenv(EnvPrefix + "_CONFIG")
}

// splitList accepts both repeated values and comma-separated ones.
func splitList(items []string) []string {
	out := []string{}
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate rejects settings the collector cannot run with. An unrecognized
// source is not an error here; the collector reports it as an event.
func (c *Config) Validate() error {
	var errs []error
	if c.Source == "" {
		errs = append(errs, errors.New("source must not be empty"))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval))
	}
	if c.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Errorf("heartbeat_interval must be positive, got %s", c.HeartbeatInterval))
	}
	if c.Serve && c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required with --serve"))
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
