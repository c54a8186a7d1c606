package rules

import (
	"fmt"
	"time"

	"github.com/securityjoes/MoltSoc/internal/engine"
	"github.com/securityjoes/MoltSoc/internal/event"
)

// Immediate fires once for every matching line. Evidence is the line hash.
type Immediate struct {
	ID       string
	Severity event.Severity
	Summary  string
	Match    func(upper string) bool
}

func (r *Immediate) Name() string { return r.ID }

func (r *Immediate) CheckLine(_ *engine.State, in *engine.LineInput) []engine.Candidate {
	if !r.Match(in.Upper) {
		return nil
	}
	return []engine.Candidate{{
		Rule:     r.ID,
		Severity: r.Severity,
		Summary:  r.Summary,
		Evidence: []string{event.HashHex(in.Text)},
	}}
}

// Burst counts matching lines in a sliding window and fires on every match
// while the window holds at least Threshold entries.
type Burst struct {
	ID        string
	Severity  event.Severity
	Summary   string
	Match     func(upper string) bool
	Threshold int
	Window    time.Duration
}

func (r *Burst) Name() string { return r.ID }

func (r *Burst) CheckLine(st *engine.State, in *engine.LineInput) []engine.Candidate {
	if !r.Match(in.Upper) {
		return nil
	}
	w := st.Window(r.ID, r.Window)
	if w.Add(in.Timestamp) < r.Threshold {
		return nil
	}
	return []engine.Candidate{{
		Rule:      r.ID,
		Severity:  r.Severity,
		Summary:   r.Summary,
		Threshold: r.Threshold,
		Window:    engine.FormatWindow(r.Window),
		Evidence:  w.Evidence(),
	}}
}

// Loop fires when the same line shape repeats Threshold times within the
// signature window. Every line is tracked.
type Loop struct {
	ID        string
	Severity  event.Severity
	Summary   string
	Threshold int
}

func (r *Loop) Name() string { return r.ID }

func (r *Loop) CheckLine(st *engine.State, in *engine.LineInput) []engine.Candidate {
	n := st.Signatures().Observe(in.Text, in.Timestamp)
	if n < r.Threshold {
		return nil
	}
	return []engine.Candidate{{
		Rule:      r.ID,
		Severity:  r.Severity,
		Summary:   r.Summary,
		Threshold: r.Threshold,
		Window:    engine.FormatWindow(engine.LoopWindow),
		Evidence:  []string{event.HashHex(in.Text), fmt.Sprintf("count:%d", n)},
	}}
}
