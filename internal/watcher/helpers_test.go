package watcher

import (
	"context"
	"strings"
	"sync"

	"github.com/securityjoes/MoltSoc/internal/engine"
	"github.com/securityjoes/MoltSoc/internal/engine/rules"
	"github.com/securityjoes/MoltSoc/internal/event"
	"go.uber.org/zap"
)

type submitted struct {
	ev     event.Event
	redact bool
}

type recorder struct {
	mu     sync.Mutex
	events []submitted
}

func (r *recorder) Submit(ev event.Event, redact bool) event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, submitted{ev: ev, redact: redact})
	return ev
}

func (r *recorder) all() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Event, len(r.events))
	for i, s := range r.events {
		out[i] = s.ev
	}
	return out
}

func (r *recorder) ofType(typ event.Type) []event.Event {
	var out []event.Event
	for _, ev := range r.all() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) alerts(rule string) []event.Event {
	var out []event.Event
	for _, ev := range r.ofType(event.TypeAlert) {
		if ev.Rule() == rule {
			out = append(out, ev)
		}
	}
	return out
}

func newTestPipeline(rec *recorder, opts ...engine.Option) *Pipeline {
	eng := engine.New(rules.Line(), rules.Status(), zap.NewNop(), opts...)
	return NewPipeline(rec, eng, true, "bot-1")
}

// fakeRunner answers CLI invocations from a table keyed by joined args.
type fakeRunner struct {
	mu      sync.Mutex
	results map[string]CommandResult
	calls   []string
}

func (f *fakeRunner) Run(_ context.Context, args ...string) CommandResult {
	key := strings.Join(args, " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	return f.results[key]
}

func (f *fakeRunner) set(args string, res CommandResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.results == nil {
		f.results = make(map[string]CommandResult)
	}
	f.results[args] = res
}
