package watcher

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/securityjoes/MoltSoc/internal/engine"
	"github.com/securityjoes/MoltSoc/internal/event"
	"go.uber.org/zap"
)

// DefaultPollInterval is the CLI polling period.
const DefaultPollInterval = 10 * time.Second

var (
	gatewayStatusArgs = []string{"gateway", "status"}
	statusAllArgs     = []string{"status", "--all"}
)

// CLIWatcher periodically asks the companion CLI for gateway status.
type CLIWatcher struct {
	runner   Runner
	pipeline *Pipeline
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewCLIWatcher creates a watcher polling every interval (<= 0 means
// DefaultPollInterval).
func NewCLIWatcher(runner Runner, pipeline *Pipeline, interval time.Duration, logger *zap.Logger) *CLIWatcher {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &CLIWatcher{
		runner:   runner,
		pipeline: pipeline,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// Run polls immediately and then on every interval until ctx is done.
// Failed polls are reported and retried on the next tick.
func (w *CLIWatcher) Run(ctx context.Context) error {
	w.logger.Info("cli watcher started", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.Poll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Poll runs one status cycle: diagnostics for failed commands, one
// gateway_status event, an error event when RPC failed, then status alerts.
func (w *CLIWatcher) Poll(ctx context.Context) {
	gw := w.runner.Run(ctx, gatewayStatusArgs...)
	all := w.runner.Run(ctx, statusAllArgs...)
	if ctx.Err() != nil {
		return
	}
	ts := w.now()

	w.reportCommand(ts, gatewayStatusArgs, gw)
	w.reportCommand(ts, statusAllArgs, all)

	snap := ParseGatewayStatus(gw.Output())
	snap.LogPath = ParseLogPath(all.Output())

	state := snap.State
	if state == "" {
		state = "unknown"
	}
	ev := event.New(event.TypeGatewayStatus, event.SeverityInfo, "Gateway "+state)
	ev.Timestamp = ts
	ev.Details = snapshotDetails(snap)
	w.pipeline.Emit(ev)

	if snap.RPCFailed {
		rpc := event.New(event.TypeError, event.SeverityMedium, "RPC failed (from gateway status)")
		rpc.Timestamp = ts
		w.pipeline.Emit(rpc)
	}

	w.pipeline.ProcessStatus(snap, ts)
}

// reportCommand emits a diagnostic event for a command that failed to run,
// exited non-zero, or wrote to stderr.
func (w *CLIWatcher) reportCommand(ts time.Time, args []string, res CommandResult) {
	name := strings.Join(args, " ")

	var ev event.Event
	switch {
	case res.Err != nil:
		w.logger.Warn("cli command failed", zap.String("command", name), zap.Error(res.Err))
		ev = event.New(event.TypeError, event.SeverityMedium, "OpenClaw "+name+" failed")
		ev.Details["error"] = res.Err.Error()
	case res.ExitCode != 0:
		w.logger.Warn("cli command exited non-zero", zap.String("command", name), zap.Int("exit_code", res.ExitCode))
		ev = event.New(event.TypeError, event.SeverityMedium, "OpenClaw "+name+" failed")
	case strings.TrimSpace(res.Stderr) != "":
		ev = event.New(event.TypeError, event.SeverityLow, "OpenClaw "+name+" wrote to stderr")
	default:
		return
	}
	ev.Timestamp = ts
	ev.Details["command"] = name
	ev.Details["exit_code"] = res.ExitCode
	if res.Stderr != "" {
		ev.Details[event.DetailStderr] = res.Stderr
	}
	w.pipeline.Emit(ev)
}

func snapshotDetails(snap engine.Snapshot) map[string]any {
	details := map[string]any{
		"state":         nil,
		"port":          nil,
		"bind":          nil,
		"token_present": snap.TokenPresent,
		"log_path":      nil,
	}
	if snap.State != "" {
		details["state"] = snap.State
	}
	if snap.Port != nil {
		details["port"] = *snap.Port
	}
	if snap.Bind != "" {
		details["bind"] = snap.Bind
	}
	if snap.LogPath != "" {
		details["log_path"] = snap.LogPath
	}
	return details
}

var (
	portPattern    = regexp.MustCompile(`(?:port|:)\s*(\d{2,5})`)
	bindPattern    = regexp.MustCompile(`(?:bind|listen|address)[:\s]*([0-9.:]+)`)
	logPathPattern = regexp.MustCompile(`[A-Za-z]:[\\/][^\s]+\.log|[/\\][^\s]+\.log`)
)

// ParseGatewayStatus reads the combined output of "gateway status". It never
// fails; anything it cannot find is left unknown.
func ParseGatewayStatus(output string) engine.Snapshot {
	text := strings.ToLower(output)

	var snap engine.Snapshot
	switch {
	case strings.Contains(text, engine.GatewayRunning):
		snap.State = engine.GatewayRunning
	case strings.Contains(text, engine.GatewayStopped):
		snap.State = engine.GatewayStopped
	}

	if m := portPattern.FindStringSubmatch(text); m != nil {
		if port, err := strconv.Atoi(m[1]); err == nil {
			snap.Port = &port
		}
	}
	if m := bindPattern.FindStringSubmatch(text); m != nil {
		snap.Bind = strings.TrimSpace(m[1])
	}

	hasToken := strings.Contains(text, "token")
	snap.TokenMissing = hasToken && strings.Contains(text, "missing")
	snap.TokenPresent = hasToken && !snap.TokenMissing
	snap.RPCFailed = strings.Contains(text, "rpc") &&
		(strings.Contains(text, "fail") || strings.Contains(text, "error"))
	return snap
}

// ParseLogPath returns the first .log path mentioned in "status --all"
// output, or "".
func ParseLogPath(output string) string {
	return strings.TrimSpace(logPathPattern.FindString(output))
}
