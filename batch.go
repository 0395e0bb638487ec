package genflow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

// maxFetchBytes bounds a fetched row image.
const maxFetchBytes = 32 << 20

// Row is one already-validated batch entry.
type Row struct {
	// ImageSource is a remote URL, a local path whose bytes the caller put in Image, or
	// empty for a text-only job.
	ImageSource string
	Image       []byte
	// ImageName is the upload file name for Image.
	ImageName string
	Params    CreateParams
}

// RowResult reports what happened to one row.
type RowResult struct {
	Index  int
	TempID string
	// TaskID is the final id when submission succeeded.
	TaskID string
	Err    error
}

// Batch submits rows one after another with a fixed pause, while their jobs are
// polled concurrently. A failing row is marked failed and the batch moves on.
type Batch struct {
	sub   *Submitter
	up    Uploader
	http  *http.Client
	delay time.Duration
	sleep SleepFunc
	log   Logger
}

// NewBatch creates a batch runner.
func NewBatch(sub *Submitter, up Uploader, opts ...Option) *Batch {
	o := newOptions(opts)
	return &Batch{sub: sub, up: up, http: o.httpClient, delay: o.batchDelay, sleep: o.sleep, log: o.logger}
}

// Run creates a placeholder for every row first, then resolves and submits the rows in
// order. The returned slice has one entry per row; the error is non-nil only when ctx
// ended before every row was handled.
func (b *Batch) Run(ctx context.Context, rows []Row) ([]RowResult, error) {
	results := make([]RowResult, len(rows))
	for i, row := range rows {
		results[i].Index = i
		t, err := b.sub.Placeholder(ctx, row.Params, i)
		if err != nil {
			results[i].Err = err
			continue
		}
		results[i].TempID = t.ID
	}
	b.log.Infof("batch: placeholders=%d", len(rows))

	for i, row := range rows {
		res := &results[i]
		if res.TempID == "" {
			continue
		}
		if i > 0 {
			if err := b.sleep(ctx, b.delay); err != nil {
				b.abandon(ctx, results[i:], err)
				return results, err
			}
		}
		res.TaskID, res.Err = b.submitRow(ctx, i, res.TempID, row)
		if err := ctx.Err(); err != nil {
			b.abandon(ctx, results[i:], err)
			return results, err
		}
		if res.Err != nil {
			b.log.Warnf("batch: row=%d temp=%s err=%v", i, res.TempID, res.Err)
		}
	}
	return results, nil
}

func (b *Batch) submitRow(ctx context.Context, i int, tempID string, row Row) (string, error) {
	p := row.Params
	url, err := b.resolveImage(ctx, i, row)
	if err != nil {
		b.sub.Fail(ctx, tempID, err)
		return "", err
	}
	if url != "" {
		p.Images = []string{url}
	}
	t, err := b.sub.SubmitPlaceholder(ctx, tempID, p)
	if err != nil {
		return "", err
	}
	return t.ID, nil
}

// resolveImage turns the row's image source into a hosted URL. An empty result means
// the row has no image.
func (b *Batch) resolveImage(ctx context.Context, i int, row Row) (string, error) {
	if len(row.Image) > 0 {
		name := row.ImageName
		if name == "" {
			name = path.Base(row.ImageSource)
		}
		if name == "" || name == "." || name == "/" {
			name = fmt.Sprintf("row-%d", i)
		}
		return b.up.Upload(ctx, name, row.Image)
	}
	src := strings.TrimSpace(row.ImageSource)
	if src == "" {
		return "", nil
	}
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return "", fmt.Errorf("%w: %s: local file content not provided", ErrUnresolvedImage, src)
	}
	data, err := b.fetch(ctx, src)
	if err != nil {
		return "", err
	}
	return b.up.Upload(ctx, fmt.Sprintf("row-%d", i), data)
}

func (b *Batch) fetch(ctx context.Context, src string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnresolvedImage, src, err)
	}
	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnresolvedImage, src, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s: status %d", ErrUnresolvedImage, src, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnresolvedImage, src, err)
	}
	if mt := mimetype.Detect(data); !strings.HasPrefix(mt.String(), "image/") {
		return nil, fmt.Errorf("%w: %s: not an image (%s)", ErrUnresolvedImage, src, mt.String())
	}
	return data, nil
}

// abandon marks the remaining placeholders failed after the batch was cancelled. A row
// interrupted mid-submission keeps its own error.
func (b *Batch) abandon(ctx context.Context, rest []RowResult, cause error) {
	wctx := context.WithoutCancel(ctx)
	for i := range rest {
		if rest[i].TempID == "" || rest[i].TaskID != "" {
			continue
		}
		if rest[i].Err == nil {
			rest[i].Err = cause
		}
		b.sub.Fail(wctx, rest[i].TempID, rest[i].Err)
	}
}
