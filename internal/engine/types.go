package engine

import (
	"time"

	"github.com/securityjoes/MoltSoc/internal/event"
)

// Candidate is an alert produced by a rule. The caller turns it into an
// alert event; the engine never writes events itself.
type Candidate struct {
	Rule      string
	Severity  event.Severity
	Summary   string
	Threshold int    // 0 for immediate rules
	Window    string // e.g. "1m"; "" for immediate rules
	Evidence  []string
}

// Alert builds the alert event for c at ts.
func (c Candidate) Alert(ts time.Time) event.Event {
	return event.NewAlert(ts, c.Severity, c.Summary, event.AlertInfo{
		Rule:      c.Rule,
		Threshold: c.Threshold,
		Window:    c.Window,
		Evidence:  c.Evidence,
	})
}

// Gateway states reported by the companion CLI.
const (
	GatewayRunning = "running"
	GatewayStopped = "stopped"
)

// Snapshot is one parsed gateway status poll. Zero values mean unknown:
// State and Bind are "" and Port is nil when the output did not say.
type Snapshot struct {
	State        string
	Port         *int
	Bind         string
	TokenPresent bool
	TokenMissing bool
	RPCFailed    bool
	LogPath      string
}

// LineInput is one log line as seen by line rules.
type LineInput struct {
	Text      string
	Upper     string // Text upper-cased once for substring predicates
	Timestamp time.Time
}

// LoopWindow is the per-signature window used for repeated-line detection.
const LoopWindow = 60 * time.Second

// State is the mutable detector state of one Engine. It lives for the
// process lifetime and is never persisted.
type State struct {
	windows    map[string]*Window
	signatures *SignatureTracker

	// LastPort is the last known gateway port, nil until one is seen.
	LastPort *int
	// LastGatewayState is the last running/stopped state, "" until seen.
	LastGatewayState string
}

// NewState creates empty detector state.
func NewState() *State {
	return &State{
		windows:    make(map[string]*Window),
		signatures: NewSignatureTracker(DefaultSignatureCapacity, LoopWindow),
	}
}

// Window returns the named sliding window, creating it on first use.
func (s *State) Window(name string, size time.Duration) *Window {
	w, ok := s.windows[name]
	if !ok {
		w = NewWindow(size)
		s.windows[name] = w
	}
	return w
}

// Signatures returns the per-signature loop tracker.
func (s *State) Signatures() *SignatureTracker {
	return s.signatures
}
