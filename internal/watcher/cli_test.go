package watcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/securityjoes/MoltSoc/internal/engine"
	"github.com/securityjoes/MoltSoc/internal/engine/rules"
	"github.com/securityjoes/MoltSoc/internal/event"
	"go.uber.org/zap"
)

func newTestCLIWatcher(rec *recorder, runner Runner) *CLIWatcher {
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	p := newTestPipeline(rec, engine.WithClock(func() time.Time { return fixed }))
	w := NewCLIWatcher(runner, p, 0, zap.NewNop())
	w.now = func() time.Time { return fixed }
	return w
}

func TestCLIWatcher_Poll_StatusEvent(t *testing.T) {
	runner := &fakeRunner{}
	runner.set("gateway status", CommandResult{Stdout: "Gateway running\nport 18789\nbind 127.0.0.1\ntoken present"})
	runner.set("status --all", CommandResult{Stdout: "Log: /var/log/openclaw/gateway.log"})

	rec := &recorder{}
	w := newTestCLIWatcher(rec, runner)
	w.Poll(context.Background())

	if len(runner.calls) != 2 || runner.calls[0] != "gateway status" || runner.calls[1] != "status --all" {
		t.Errorf("calls = %v", runner.calls)
	}
	got := rec.all()
	if len(got) != 1 {
		t.Fatalf("events = %+v", got)
	}
	ev := got[0]
	if ev.Type != event.TypeGatewayStatus || ev.Summary != "Gateway running" {
		t.Errorf("event = %+v", ev)
	}
	want := map[string]any{
		"state":         "running",
		"port":          18789,
		"bind":          "127.0.0.1",
		"token_present": true,
		"log_path":      "/var/log/openclaw/gateway.log",
	}
	for k, v := range want {
		if ev.Details[k] != v {
			t.Errorf("details[%s] = %v, want %v", k, ev.Details[k], v)
		}
	}
}

func TestCLIWatcher_Poll_UnknownStateHasNullFields(t *testing.T) {
	rec := &recorder{}
	w := newTestCLIWatcher(rec, &fakeRunner{})
	w.Poll(context.Background())

	ev := rec.ofType(event.TypeGatewayStatus)[0]
	if ev.Summary != "Gateway unknown" {
		t.Errorf("summary = %q", ev.Summary)
	}
	for _, k := range []string{"state", "port", "bind", "log_path"} {
		if v, ok := ev.Details[k]; !ok || v != nil {
			t.Errorf("details[%s] = %v (present=%v), want null", k, v, ok)
		}
	}
}

func TestCLIWatcher_Poll_PortChangeOnce(t *testing.T) {
	runner := &fakeRunner{}
	rec := &recorder{}
	w := newTestCLIWatcher(rec, runner)

	runner.set("gateway status", CommandResult{Stdout: "running port 18789"})
	for i := 0; i < 10; i++ {
		w.Poll(context.Background())
	}
	if n := len(rec.alerts(rules.PortChanged)); n != 0 {
		t.Fatalf("identical polls raised %d PORT_CHANGED", n)
	}

	runner.set("gateway status", CommandResult{Stdout: "running port 18790"})
	w.Poll(context.Background())
	if n := len(rec.alerts(rules.PortChanged)); n != 1 {
		t.Errorf("PORT_CHANGED count = %d, want 1", n)
	}
}

func TestCLIWatcher_Poll_RPCFailure(t *testing.T) {
	runner := &fakeRunner{}
	runner.set("gateway status", CommandResult{Stdout: "Gateway running\nRPC probe: failed"})
	rec := &recorder{}
	w := newTestCLIWatcher(rec, runner)
	w.Poll(context.Background())

	errs := rec.ofType(event.TypeError)
	if len(errs) != 1 || errs[0].Summary != "RPC failed (from gateway status)" {
		t.Errorf("error events = %+v", errs)
	}
	if len(rec.alerts(rules.GatewayUnreachable)) != 1 {
		t.Error("expected a GATEWAY_UNREACHABLE alert")
	}
}

func TestCLIWatcher_Poll_CommandDiagnostics(t *testing.T) {
	tests := []struct {
		name     string
		res      CommandResult
		severity event.Severity
		stderr   bool
	}{
		{"non-zero exit", CommandResult{Stderr: "boom", ExitCode: 2}, event.SeverityMedium, true},
		{"stderr on success", CommandResult{Stdout: "running", Stderr: "deprecated flag"}, event.SeverityLow, true},
		{"spawn failure", CommandResult{ExitCode: -1, Err: errors.New("openclaw: executable file not found")}, event.SeverityMedium, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			runner.set("gateway status", tt.res)
			rec := &recorder{}
			newTestCLIWatcher(rec, runner).Poll(context.Background())

			errs := rec.ofType(event.TypeError)
			if len(errs) != 1 {
				t.Fatalf("error events = %+v", errs)
			}
			ev := errs[0]
			if ev.Severity != tt.severity || ev.Details["command"] != "gateway status" {
				t.Errorf("event = %+v", ev)
			}
			if _, ok := ev.Details[event.DetailStderr]; ok != tt.stderr {
				t.Errorf("stderr present = %v, want %v", ok, tt.stderr)
			}
			if len(rec.ofType(event.TypeGatewayStatus)) != 1 {
				t.Error("a failed poll still reports gateway status")
			}
		})
	}
}

func TestCLIWatcher_Poll_CancelledContextEmitsNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := &recorder{}
	newTestCLIWatcher(rec, &fakeRunner{}).Poll(ctx)
	if n := len(rec.all()); n != 0 {
		t.Errorf("emitted %d events after cancellation", n)
	}
}

func TestCLIWatcher_Run_PollsUntilCancelled(t *testing.T) {
	runner := &fakeRunner{}
	rec := &recorder{}
	p := newTestPipeline(rec)
	w := NewCLIWatcher(runner, p, 10*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for len(rec.ofType(event.TypeGatewayStatus)) < 3 {
		select {
		case <-deadline:
			t.Fatal("watcher did not poll repeatedly")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run returned %v", err)
	}
}
