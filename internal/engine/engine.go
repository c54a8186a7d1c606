// Package engine evaluates log lines and gateway status snapshots against a
// table of stateful detection rules.
package engine

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Engine owns the detector state and runs every rule in table order.
// It is safe for concurrent use; calls are serialized.
type Engine struct {
	mu     sync.Mutex
	line   []LineRule
	status []StatusRule
	state  *State
	policy *Policy
	now    func() time.Time
	logger *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used by status rules.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithState replaces the initial detector state.
func WithState(st *State) Option {
	return func(e *Engine) { e.state = st }
}

// WithPolicy disables rules by id.
func WithPolicy(p *Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// New creates an engine with the given rule tables.
func New(line []LineRule, status []StatusRule, logger *zap.Logger, opts ...Option) *Engine {
	e := &Engine{
		line:   line,
		status: status,
		state:  NewState(),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CheckLine runs the line rules against line observed at ts.
func (e *Engine) CheckLine(line string, ts time.Time) []Candidate {
	in := &LineInput{Text: line, Upper: strings.ToUpper(line), Timestamp: ts}

	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Candidate
	for _, r := range e.line {
		if !e.policy.IsEnabled(r.Name()) {
			continue
		}
		found, err := e.run(r.Name(), func() []Candidate { return r.CheckLine(e.state, in) })
		if err != nil {
			e.logger.Warn("rule error", zap.String("rule", r.Name()), zap.Error(err))
			continue
		}
		out = append(out, found...)
	}
	return out
}

// CheckStatus runs the status rules against snap at the engine clock's now.
func (e *Engine) CheckStatus(snap Snapshot) []Candidate {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	var out []Candidate
	for _, r := range e.status {
		if !e.policy.IsEnabled(r.Name()) {
			continue
		}
		found, err := e.run(r.Name(), func() []Candidate { return r.CheckStatus(e.state, &snap, now) })
		if err != nil {
			e.logger.Warn("rule error", zap.String("rule", r.Name()), zap.Error(err))
			continue
		}
		out = append(out, found...)
	}
	return out
}

// run isolates one rule so a bug in it cannot take down the pipeline.
func (e *Engine) run(name string, fn func() []Candidate) (found []Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rule %s panicked: %v", name, r)
		}
	}()
	return fn(), nil
}

// Rules returns the ids of the configured rules, line rules first.
func (e *Engine) Rules() []string {
	names := make([]string, 0, len(e.line)+len(e.status))
	for _, r := range e.line {
		names = append(names, r.Name())
	}
	for _, r := range e.status {
		names = append(names, r.Name())
	}
	return names
}

// LineRule is evaluated against every log line. Rules may keep state in st;
// the engine serializes calls, so rules need no locking of their own.
type LineRule interface {
	// Name returns the rule id (e.g., "TOOL_LOOP").
	Name() string

	// CheckLine returns the alerts raised by in, if any. The line's own
	// timestamp is the rule's notion of "now".
	CheckLine(st *State, in *LineInput) []Candidate
}

// StatusRule is evaluated against every gateway status snapshot.
type StatusRule interface {
	Name() string

	// CheckStatus returns the alerts raised by snap observed at now.
	CheckStatus(st *State, snap *Snapshot, now time.Time) []Candidate
}
