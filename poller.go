package genflow

import (
	"context"
	"time"

	rtm "github.com/UniQw/genflow-go/internal/runtime"
)

// Poller runs one status loop per task id and writes each report into the registry
// until the task is terminal. A loop whose record disappeared stops on its next write.
type Poller struct {
	rt            *rtm.Runtime
	reg           Registry
	q             StatusQuerier
	completedWait time.Duration
	log           Logger
	now           func() time.Time
}

// NewPoller creates a poller. Loops are started per id with Start.
func NewPoller(reg Registry, q StatusQuerier, opts ...Option) *Poller {
	o := newOptions(opts)
	p := &Poller{reg: reg, q: q, completedWait: o.completedWait, log: o.logger, now: time.Now}
	p.rt = rtm.New(rtm.Config{Interval: o.interval, Logger: o.logger}, p.tick)
	return p
}

// Start begins polling id. It returns false if a loop for id already exists.
func (p *Poller) Start(id string) bool {
	ok := p.rt.Start(id)
	if ok {
		p.log.Debugf("poll start: id=%s interval=%s", id, p.rt.Interval())
	}
	return ok
}

// Stop cancels future ticks for id. A query already in flight finishes, and its
// write is discarded if the record was removed meanwhile.
func (p *Poller) Stop(id string) bool { return p.rt.Stop(id) }

// Active reports whether id is being polled.
func (p *Poller) Active(id string) bool { return p.rt.Active(id) }

// Done returns a channel closed when polling of id ends, or nil if id is not polled.
func (p *Poller) Done(id string) <-chan struct{} { return p.rt.Done(id) }

// IDs lists the ids being polled.
func (p *Poller) IDs() []string { return p.rt.IDs() }

// StopAll stops every loop and waits for them to exit. The poller stays usable.
func (p *Poller) StopAll() { p.rt.StopAll() }

// Shutdown stops every loop, aborts in-flight queries and waits. It is idempotent.
func (p *Poller) Shutdown() { p.rt.Shutdown() }

// Resume starts polling every non-terminal task with a final id, plus completed tasks
// still waiting for their result URL. It returns the number of loops started.
func (p *Poller) Resume(ctx context.Context) (int, error) {
	tasks, err := p.reg.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range tasks {
		if IsTempID(t.ID) || !p.needsPolling(t) {
			continue
		}
		if p.Start(t.ID) {
			n++
		}
	}
	if n > 0 {
		p.log.Infof("poll resume: started=%d", n)
	}
	return n, nil
}

func (p *Poller) needsPolling(t *Task) bool {
	switch t.Status {
	case StatusFailed:
		return false
	case StatusCompleted:
		return t.ResultURL == "" && !p.waitExpired(t)
	}
	return true
}

func (p *Poller) waitExpired(t *Task) bool {
	if p.completedWait <= 0 || t.CompletedAt == 0 {
		return false
	}
	return p.now().Sub(time.UnixMilli(t.CompletedAt)) >= p.completedWait
}

type pollOutcome int

const (
	pollContinue pollOutcome = iota
	pollCompleted
	pollFailed
	pollNoURL
)

func (p *Poller) tick(ctx context.Context, id string) bool {
	st, err := p.q.QueryJob(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		p.log.Warnf("poll: query failed id=%s err=%v", id, err)
		return false
	}

	var out pollOutcome
	ok, err := p.reg.Upsert(ctx, id, func(t *Task) { out = p.apply(t, st) })
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		p.log.Warnf("poll: registry write failed id=%s err=%v", id, err)
		return false
	}
	if !ok {
		p.log.Debugf("poll: record gone, stopping id=%s", id)
		return true
	}

	switch out {
	case pollCompleted:
		p.log.Infof("poll: completed id=%s", id)
		return true
	case pollFailed:
		p.log.Warnf("poll: job failed id=%s", id)
		return true
	case pollNoURL:
		p.log.Warnf("poll: completed without result url after %s, giving up id=%s", p.completedWait, id)
		return true
	}
	p.log.Debugf("poll: id=%s status=%s progress=%.0f", id, st.Status, st.Progress)
	return false
}

// apply merges one status report into t and reports whether polling should end.
func (p *Poller) apply(t *Task, st *JobStatus) pollOutcome {
	if t.Status == StatusFailed {
		return pollFailed
	}
	switch st.Status {
	case StatusCompleted:
		t.Status = StatusCompleted
		t.Progress = 100
		t.Error = ""
		if st.ResultURL != "" {
			t.ResultURL = st.ResultURL
		}
		if st.ThumbnailURL != "" {
			t.ThumbnailURL = st.ThumbnailURL
		}
		if st.EnhancedPrompt != "" {
			t.Prompt = st.EnhancedPrompt
		}
		if t.CompletedAt == 0 {
			t.CompletedAt = p.now().UnixMilli()
		}
		if t.ResultURL != "" {
			return pollCompleted
		}
		if p.waitExpired(t) {
			return pollNoURL
		}
		return pollContinue
	case StatusFailed:
		t.Status = StatusFailed
		if t.Error == "" {
			t.Error = ErrJobFailed.Error()
		}
		return pollFailed
	}
	if t.Status == StatusCompleted {
		// completed is never downgraded by a late report
		if t.ResultURL != "" {
			return pollCompleted
		}
		if p.waitExpired(t) {
			return pollNoURL
		}
		return pollContinue
	}
	t.Status = st.Status
	if st.HasProgress && st.Progress > t.Progress {
		t.Progress = st.Progress
	}
	return pollContinue
}
