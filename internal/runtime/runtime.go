package runtime

import (
	"context"
	"sync"
	"time"
)

// Logger is a minimal logging interface used internally by the runtime.
// It mirrors the public logger in the root package to avoid an import cycle.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

type Config struct {
	// Interval is the delay between the end of one tick and the start of the next.
	Interval time.Duration
	Logger   Logger
}

// Tick runs one iteration of the loop owned by id. Returning true ends the loop.
// ctx is not cancelled by Stop(id): an in-flight tick always runs to completion.
type Tick func(ctx context.Context, id string) (done bool)

type loop struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Runtime owns at most one timer-driven loop per id.
type Runtime struct {
	cfg     Config
	tick    Tick
	mu      sync.Mutex
	loops   map[string]*loop
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	stopped bool
	log     Logger
}

// New creates a runtime. Loops are started individually with Start.
func New(cfg Config, tick Tick) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	lg := cfg.Logger
	if lg == nil {
		lg = noopLogger{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	return &Runtime{
		cfg:    cfg,
		tick:   tick,
		loops:  make(map[string]*loop),
		ctx:    ctx,
		cancel: cancel,
		log:    lg,
	}
}

// Start launches the loop for id. It returns false if a loop for id is already
// running (or still draining after Stop) or the runtime has been shut down.
func (rt *Runtime) Start(id string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if rt.stopped {
		rt.log.Warnf("runtime stopped; ignoring start id=%s", id)
		return false
	}
	if _, ok := rt.loops[id]; ok {
		rt.log.Debugf("loop already active id=%s", id)
		return false
	}
	lctx, lcancel := context.WithCancel(rt.ctx)
	l := &loop{cancel: lcancel, done: make(chan struct{})}
	rt.loops[id] = l
	rt.wg.Add(1)
	go func() {
		defer rt.wg.Done()
		defer close(l.done)
		defer rt.remove(id, l)
		rt.run(lctx, id)
	}()
	return true
}

func (rt *Runtime) run(lctx context.Context, id string) {
	timer := time.NewTimer(rt.cfg.Interval)
	defer timer.Stop()
	for {
		select {
		case <-lctx.Done():
			return
		case <-timer.C:
		}
		if rt.tick(rt.ctx, id) {
			return
		}
		// the next tick is scheduled only after this one resolved
		timer.Reset(rt.cfg.Interval)
	}
}

func (rt *Runtime) remove(id string, l *loop) {
	rt.mu.Lock()
	if cur, ok := rt.loops[id]; ok && cur == l {
		delete(rt.loops, id)
	}
	rt.mu.Unlock()
	l.cancel()
}

// Stop stops scheduling further ticks for id. It does not wait for an in-flight tick.
func (rt *Runtime) Stop(id string) bool {
	rt.mu.Lock()
	l, ok := rt.loops[id]
	rt.mu.Unlock()
	if !ok {
		return false
	}
	l.cancel()
	return true
}

// Active reports whether a loop for id is still running.
func (rt *Runtime) Active(id string) bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	_, ok := rt.loops[id]
	return ok
}

// Done returns a channel closed when the loop for id exits, or nil if there is none.
func (rt *Runtime) Done(id string) <-chan struct{} {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if l, ok := rt.loops[id]; ok {
		return l.done
	}
	return nil
}

// IDs returns the ids with a running loop.
func (rt *Runtime) IDs() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make([]string, 0, len(rt.loops))
	for id := range rt.loops {
		out = append(out, id)
	}
	return out
}

// StopAll cancels every loop without shutting the runtime down and waits for them to exit.
func (rt *Runtime) StopAll() {
	rt.mu.Lock()
	pending := make([]*loop, 0, len(rt.loops))
	for _, l := range rt.loops {
		l.cancel()
		pending = append(pending, l)
	}
	rt.mu.Unlock()
	for _, l := range pending {
		<-l.done
	}
}

// Shutdown cancels every loop, aborts in-flight ticks and waits for all goroutines to exit.
// It is idempotent.
func (rt *Runtime) Shutdown() {
	rt.mu.Lock()
	if rt.stopped {
		rt.mu.Unlock()
		return
	}
	rt.stopped = true
	rt.mu.Unlock()
	rt.log.Infof("runtime stopping: loops=%d", len(rt.IDs()))
	rt.cancel()
	rt.wg.Wait()
}

// Interval exposes the configured tick interval.
func (rt *Runtime) Interval() time.Duration { return rt.cfg.Interval }
