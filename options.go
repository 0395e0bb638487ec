package genflow

import (
	"context"
	"net/http"
	"time"
)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

type options struct {
	logger        Logger
	encoder       Encoder
	httpClient    *http.Client
	proAPIKey     string
	createRetry   *RetryPolicy
	sleep         SleepFunc
	interval      time.Duration
	completedWait time.Duration
	retryDelay    time.Duration
	batchDelay    time.Duration
	timeouts      map[Model]time.Duration
	prompts       *PromptSettings
}

// Option configures a component at construction time. Components ignore options that
// do not concern them.
type Option func(*options)

// Defaults shared by the components.
const (
	DefaultPollInterval  = 2 * time.Second
	DefaultCompletedWait = 10 * time.Minute
	DefaultRetryDelay    = time.Second
	DefaultBatchDelay    = 500 * time.Millisecond
	DefaultHTTPTimeout   = 60 * time.Second
)

// DefaultTimeouts are the pipeline's model-dependent polling bounds.
var DefaultTimeouts = map[Model]time.Duration{
	ModelPro:  60 * time.Minute,
	ModelBase: 30 * time.Minute,
}

func newOptions(opts []Option) *options {
	o := &options{
		encoder:       &JSONEncoder{},
		sleep:         sleepCtx,
		interval:      DefaultPollInterval,
		completedWait: DefaultCompletedWait,
		retryDelay:    DefaultRetryDelay,
		batchDelay:    DefaultBatchDelay,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = orNoop(o.logger)
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return o
}

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEncoder overrides the record encoder. Default is JSONEncoder.
func WithEncoder(e Encoder) Option {
	return func(o *options) {
		if e != nil {
			o.encoder = e
		}
	}
}

// WithHTTPClient sets the client used for remote, upload and fetch calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithProAPIKey sets a dedicated bearer key for sora-2-pro create calls.
func WithProAPIKey(key string) Option {
	return func(o *options) { o.proAPIKey = key }
}

// WithCreateRetry overrides the create-job retry policy.
func WithCreateRetry(p RetryPolicy) Option {
	return func(o *options) { o.createRetry = &p }
}

// WithSleep replaces the wait used between retries and batch submissions.
func WithSleep(fn SleepFunc) Option {
	return func(o *options) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// WithInterval sets the delay between two status queries of one task.
func WithInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.interval = d
		}
	}
}

// WithCompletedWait bounds how long a completed task without result URL keeps polling.
func WithCompletedWait(d time.Duration) Option {
	return func(o *options) { o.completedWait = d }
}

// WithRetryDelay sets the wait before the single create retry after an extraction failure.
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) { o.retryDelay = d }
}

// WithBatchDelay sets the pause between two batch row submissions.
func WithBatchDelay(d time.Duration) Option {
	return func(o *options) { o.batchDelay = d }
}

// WithTimeout sets the pipeline polling bound for one model.
func WithTimeout(m Model, d time.Duration) Option {
	return func(o *options) {
		if o.timeouts == nil {
			o.timeouts = make(map[Model]time.Duration, len(DefaultTimeouts))
		}
		o.timeouts[m] = d
	}
}

// WithPromptSettings overrides the pipeline instructions.
func WithPromptSettings(s PromptSettings) Option {
	return func(o *options) { o.prompts = &s }
}

func (o *options) timeoutFor(m Model) time.Duration {
	if d, ok := o.timeouts[m]; ok {
		return d
	}
	if d, ok := DefaultTimeouts[m]; ok {
		return d
	}
	return DefaultTimeouts[ModelBase]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
