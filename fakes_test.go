package genflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type queryStep struct {
	st  *JobStatus
	err error
}

func processing(pct float64) queryStep {
	return queryStep{st: &JobStatus{Status: StatusProcessing, Progress: pct, HasProgress: true}}
}

func completed(url string) queryStep {
	return queryStep{st: &JobStatus{Status: StatusCompleted, Progress: 100, HasProgress: true, ResultURL: url}}
}

func failedStep() queryStep { return queryStep{st: &JobStatus{Status: StatusFailed}} }

func queryErr() queryStep { return queryStep{err: errors.New("connection reset")} }

// scriptedQuerier replays per-id status sequences; the last step repeats.
type scriptedQuerier struct {
	mu       sync.Mutex
	script   map[string][]queryStep
	calls    map[string]int
	inflight map[string]int
	overlap  bool
	// gate, when set, blocks every query until a value is received.
	gate chan struct{}
}

func newScriptedQuerier() *scriptedQuerier {
	return &scriptedQuerier{script: map[string][]queryStep{}, calls: map[string]int{}, inflight: map[string]int{}}
}

func (q *scriptedQuerier) set(id string, steps ...queryStep) {
	q.mu.Lock()
	q.script[id] = steps
	q.mu.Unlock()
}

func (q *scriptedQuerier) count(id string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.calls[id]
}

func (q *scriptedQuerier) QueryJob(ctx context.Context, id string) (*JobStatus, error) {
	q.mu.Lock()
	q.inflight[id]++
	if q.inflight[id] > 1 {
		q.overlap = true
	}
	n := q.calls[id]
	q.calls[id]++
	steps := q.script[id]
	gate := q.gate
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.inflight[id]--
		q.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if len(steps) == 0 {
		return &JobStatus{Status: StatusProcessing}, nil
	}
	if n >= len(steps) {
		n = len(steps) - 1
	}
	s := steps[n]
	if s.err != nil {
		return nil, s.err
	}
	cp := *s.st
	cp.ID = id
	return &cp, nil
}

// fakeCreator hands out scripted create results and counts calls.
type fakeCreator struct {
	mu      sync.Mutex
	results []createResult
	calls   int
	params  []CreateParams
}

type createResult struct {
	id  string
	err error
}

func (c *fakeCreator) CreateJob(_ context.Context, p CreateParams) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.calls
	c.calls++
	c.params = append(c.params, p)
	if len(c.results) == 0 {
		return "video_" + NewTempID(n)[len(TempPrefix):], nil
	}
	if n >= len(c.results) {
		n = len(c.results) - 1
	}
	r := c.results[n]
	return r.id, r.err
}

func (c *fakeCreator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	if ch == nil {
		return
	}
	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for loop to exit")
	}
}

func noSleep(context.Context, time.Duration) error { return nil }
