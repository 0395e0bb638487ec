package genflow

import (
	"context"

	"github.com/UniQw/genflow-go/internal/hctx"
)

// ProgressFunc receives pipeline checkpoints. percent never decreases within one run.
type ProgressFunc func(step string, percent int)

// WithProgress returns a child context whose pipeline runs report checkpoints to fn.
func WithProgress(ctx context.Context, fn ProgressFunc) context.Context {
	return hctx.WithState(ctx, hctx.New(hctx.Reporter(fn)))
}

// ProgressOf returns the last checkpoint reported through ctx.
func ProgressOf(ctx context.Context) (step string, percent int, ok bool) {
	st, ok := hctx.From(ctx)
	if !ok {
		return "", 0, false
	}
	step, percent = st.Snapshot()
	return step, percent, true
}

func reportProgress(ctx context.Context, step string, percent int) {
	if st, ok := hctx.From(ctx); ok {
		st.Set(step, percent)
	}
}
