package rules

import (
	"fmt"
	"time"

	"github.com/securityjoes/MoltSoc/internal/engine"
	"github.com/securityjoes/MoltSoc/internal/event"
)

// StatusCheck is an immediate status rule: it fires whenever Check returns
// evidence.
type StatusCheck struct {
	ID       string
	Severity event.Severity
	Summary  string
	Check    func(st *engine.State, snap *engine.Snapshot) []string
}

func (r *StatusCheck) Name() string { return r.ID }

func (r *StatusCheck) CheckStatus(st *engine.State, snap *engine.Snapshot, _ time.Time) []engine.Candidate {
	evidence := r.Check(st, snap)
	if evidence == nil {
		return nil
	}
	return []engine.Candidate{{
		Rule:     r.ID,
		Severity: r.Severity,
		Summary:  r.Summary,
		Evidence: evidence,
	}}
}

// PortChange fires when a known port differs from the last known port.
// An unknown port leaves the last known port untouched.
type PortChange struct{}

func (r *PortChange) Name() string { return PortChanged }

func (r *PortChange) CheckStatus(st *engine.State, snap *engine.Snapshot, _ time.Time) []engine.Candidate {
	if snap.Port == nil {
		return nil
	}
	port := *snap.Port
	prev := st.LastPort
	st.LastPort = &port
	if prev == nil || *prev == port {
		return nil
	}
	return []engine.Candidate{{
		Rule:      PortChanged,
		Severity:  event.SeverityLow,
		Summary:   "Gateway port changed",
		Threshold: 1,
		Window:    engine.FormatWindow(0),
		Evidence:  []string{fmt.Sprintf("%d -> %d", *prev, port)},
	}}
}

// RestartLoop counts polls that resolve to running or stopped in a sliding
// window.
type RestartLoop struct {
	Threshold int
	Window    time.Duration
}

func (r *RestartLoop) Name() string { return GatewayRestartLoop }

func (r *RestartLoop) CheckStatus(st *engine.State, snap *engine.Snapshot, now time.Time) []engine.Candidate {
	if snap.State != engine.GatewayRunning && snap.State != engine.GatewayStopped {
		return nil
	}
	st.LastGatewayState = snap.State
	w := st.Window(GatewayRestartLoop, r.Window)
	if w.Add(now) < r.Threshold {
		return nil
	}
	return []engine.Candidate{{
		Rule:      GatewayRestartLoop,
		Severity:  event.SeverityHigh,
		Summary:   "Gateway restart loop (3+ stop/start in 5 min)",
		Threshold: r.Threshold,
		Window:    engine.FormatWindow(r.Window),
		Evidence:  w.Evidence(),
	}}
}
