package hctx

import (
	"context"
	"sync"
)

// Reporter receives progress checkpoints of a running pipeline.
type Reporter func(step string, percent int)

// State holds per-run progress that callers can inspect after (or during) a run.
type State struct {
	mu       sync.Mutex
	Step     string
	Progress int
	notify   Reporter
}

// New creates a fresh state container. notify may be nil.
func New(notify Reporter) *State { return &State{notify: notify} }

// Set records a checkpoint and forwards it to the reporter.
// Progress never moves backwards within one run.
func (s *State) Set(step string, percent int) {
	s.mu.Lock()
	if percent > s.Progress {
		s.Progress = percent
	}
	s.Step = step
	p := s.Progress
	fn := s.notify
	s.mu.Unlock()
	if fn != nil {
		fn(step, p)
	}
}

// Snapshot returns the last step and progress.
func (s *State) Snapshot() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Step, s.Progress
}

type ctxKey struct{}

// WithState returns a child context carrying the given state.
func WithState(parent context.Context, s *State) context.Context {
	return context.WithValue(parent, ctxKey{}, s)
}

// From extracts the state from context if present.
func From(ctx context.Context) (*State, bool) {
	v := ctx.Value(ctxKey{})
	if v == nil {
		return nil, false
	}
	st, ok := v.(*State)
	return st, ok
}
