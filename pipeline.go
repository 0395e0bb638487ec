package genflow

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/UniQw/genflow-go/internal/extract"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// PromptSettings are the instructions fed to the two transform stages.
type PromptSettings struct {
	// MainImagePrompt drives the stage-1 image transform.
	MainImagePrompt string `json:"mainImagePrompt"`
	// ScenePrompt drives the stage-2 prompt writer.
	ScenePrompt string `json:"scenePrompt"`
}

// DefaultPromptSettings returns the built-in instructions.
func DefaultPromptSettings() PromptSettings {
	return PromptSettings{
		MainImagePrompt: `Background: pure white (#FFFFFF), clean, no texture.
Subject: keep the original look and material, do not change colour or structure. Remove any people, keep only the product.
Cut-out: clean edges without jaggies or leftover background.
Lighting: even and soft, no hard shadows or colour cast.
Composition: product centred with moderate margins.
Resolution: at least 2048x2048.
Output: PNG (transparent) or JPEG (white background) suitable for e-commerce.`,
		ScenePrompt: `Write a script and shot plan for a 15 second product video based on the product image and title:
1) trending short-video style
2) a short product description and key selling points, in English
3) no subtitles or on-screen text
4) split the timeline into 4-5 labelled shots
5) a real presenter shows the product on camera`,
	}
}

// Pipeline runs the product workflow: derive a clean image, write a prompt from it,
// then submit and wait for the video. Each stage persists its artifact as soon as it
// exists, and failures carry the label of the stage that produced them.
type Pipeline struct {
	products *ProductStore
	sub      *Submitter
	tf       Transformer
	up       Uploader
	prompts  PromptSettings
	opts     *options
	log      Logger
}

// NewPipeline creates a pipeline. Tasks are submitted and polled through sub.
func NewPipeline(products *ProductStore, sub *Submitter, tf Transformer, up Uploader, opts ...Option) *Pipeline {
	o := newOptions(opts)
	prompts := DefaultPromptSettings()
	if o.prompts != nil {
		prompts = *o.prompts
	}
	return &Pipeline{products: products, sub: sub, tf: tf, up: up, prompts: prompts, opts: o, log: o.logger}
}

// Register stores a new pending product.
func (p *Pipeline) Register(ctx context.Context, title, mainImageURL string) (*Product, error) {
	if strings.TrimSpace(mainImageURL) == "" {
		return nil, fmt.Errorf("%w: main image url is empty", ErrInvalidParams)
	}
	pr := &Product{
		ID:           uuid.NewString(),
		Title:        strings.TrimSpace(title),
		MainImageURL: mainImageURL,
		Status:       StatusPending,
	}
	if err := p.products.Insert(ctx, pr); err != nil {
		return nil, err
	}
	return pr, nil
}

// Run executes the three stages for product id and blocks until the video is ready,
// a stage fails or the model's timeout elapses.
//
// Stage failures mark the product failed and return a *StageError. A timeout returns a
// *StageError wrapping ErrTimeout and leaves the product processing: the task keeps
// being polled and Sync picks up its result later.
func (p *Pipeline) Run(ctx context.Context, id string, model Model, duration int) (*Product, error) {
	size := model.DefaultSize()
	probe := CreateParams{Model: model, Prompt: "-", Orientation: Portrait, Size: size, Duration: duration}
	if err := probe.Validate(); err != nil {
		return nil, err
	}
	pr, err := p.products.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := p.products.Update(ctx, id, func(r *Product) {
		r.Status = StatusProcessing
		r.Error, r.FailedStage = "", ""
		r.Model, r.Duration = model, duration
	}); err != nil {
		return nil, err
	}
	p.log.Infof("pipeline start: product=%s model=%s duration=%d", id, model, duration)

	reportProgress(ctx, Stage1, 10)
	derived, err := p.deriveImage(ctx, pr)
	if err != nil {
		return p.fail(ctx, id, err)
	}
	if err := p.persist(ctx, id, func(r *Product) { r.DerivedImageURL = derived }); err != nil {
		return nil, err
	}
	reportProgress(ctx, Stage1, 30)

	reportProgress(ctx, Stage2, 40)
	prompt, err := p.writePrompt(ctx, pr.Title, derived)
	if err != nil {
		return p.fail(ctx, id, err)
	}
	if err := p.persist(ctx, id, func(r *Product) { r.Prompt = prompt }); err != nil {
		return nil, err
	}
	reportProgress(ctx, Stage2, 50)

	reportProgress(ctx, Stage3, 60)
	params := CreateParams{Model: model, Prompt: prompt, Images: []string{derived}, Orientation: Portrait, Size: size, Duration: duration}
	task, err := p.sub.Submit(ctx, params)
	if err != nil {
		return p.fail(ctx, id, &StageError{Stage: Stage3, Err: err})
	}
	if err := p.persist(ctx, id, func(r *Product) {
		r.TaskID = task.ID
		r.Orientation, r.Size = params.Orientation, params.Size
	}); err != nil {
		return nil, err
	}
	reportProgress(ctx, Stage3, 70)

	return p.await(ctx, id, task.ID, model)
}

func (p *Pipeline) deriveImage(ctx context.Context, pr *Product) (string, error) {
	out, err := p.tf.Transform(ctx, TransformRequest{
		Kind:        TransformImage,
		Instruction: p.prompts.MainImagePrompt,
		ImageURL:    pr.MainImageURL,
	})
	if err != nil {
		return "", &StageError{Stage: Stage1, Err: err, Raw: rawOf(out)}
	}
	if out.Image.URL != "" {
		return out.Image.URL, nil
	}
	mt := mimetype.Detect(out.Image.Data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", &StageError{Stage: Stage1, Err: fmt.Errorf("%w: inline data is %s", ErrNoImage, mt.String()), Raw: rawOf(out)}
	}
	url, err := p.up.Upload(ctx, "derived-"+pr.ID+mt.Extension(), out.Image.Data)
	if err != nil {
		return "", &StageError{Stage: Stage1, Err: err}
	}
	return url, nil
}

func (p *Pipeline) writePrompt(ctx context.Context, title, imageURL string) (string, error) {
	out, err := p.tf.Transform(ctx, TransformRequest{
		Kind:        TransformText,
		Instruction: p.prompts.ScenePrompt,
		Title:       title,
		ImageURL:    imageURL,
	})
	if err != nil {
		return "", &StageError{Stage: Stage2, Err: err, Raw: rawOf(out)}
	}
	return out.Text, nil
}

// await waits for the task's terminal state. The poller owns the queries; this loop
// only reads the registry, so a task is never polled twice.
func (p *Pipeline) await(ctx context.Context, id, taskID string, model Model) (*Product, error) {
	timeout := p.opts.timeoutFor(model)
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	check := time.NewTicker(p.opts.interval)
	defer check.Stop()
	var done <-chan struct{}
	if p.sub.poller != nil {
		done = p.sub.poller.Done(taskID)
	}

	for {
		pollerDone := false
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			p.log.Warnf("pipeline timeout: product=%s task=%s after=%s", id, taskID, timeout)
			pr, _ := p.products.Get(ctx, id)
			return pr, &StageError{Stage: Stage3, Err: fmt.Errorf("%w after %s", ErrTimeout, timeout)}
		case <-done:
			done = nil
			pollerDone = true
		case <-check.C:
		}

		t, err := p.sub.reg.Get(ctx, taskID)
		switch {
		case errors.Is(err, ErrTaskNotFound):
			return p.fail(ctx, id, &StageError{Stage: Stage3, Err: err})
		case err != nil:
			p.log.Warnf("pipeline: read task failed product=%s task=%s err=%v", id, taskID, err)
			continue
		}
		if pr, ok, err := p.settle(ctx, id, t); ok {
			return pr, err
		}
		reportProgress(ctx, Stage3, int(math.Min(70+t.Progress*0.3, 95)))
		if pollerDone && t.Status == StatusCompleted {
			pr, _ := p.products.Get(ctx, id)
			return pr, &StageError{Stage: Stage3, Err: fmt.Errorf("%w: completed without result url", ErrTimeout)}
		}
	}
}

// settle applies a terminal task state to the product. ok is false while the task runs.
func (p *Pipeline) settle(ctx context.Context, id string, t *Task) (*Product, bool, error) {
	switch {
	case t.Status == StatusCompleted && t.ResultURL != "":
		if err := p.persist(ctx, id, func(r *Product) {
			r.Status = StatusCompleted
			r.ResultURL = t.ResultURL
			if t.Prompt != "" {
				r.Prompt = t.Prompt
			}
		}); err != nil {
			return nil, true, err
		}
		reportProgress(ctx, Stage3, 100)
		p.log.Infof("pipeline completed: product=%s task=%s", id, t.ID)
		pr, err := p.products.Get(ctx, id)
		return pr, true, err
	case t.Status == StatusFailed:
		pr, err := p.fail(ctx, id, &StageError{Stage: Stage3, Err: fmt.Errorf("%w: %s", ErrJobFailed, t.Error)})
		return pr, true, err
	}
	return nil, false, nil
}

// Sync reconciles processing products with the state of their tasks. It returns the
// number of products that reached a terminal state.
func (p *Pipeline) Sync(ctx context.Context) (int, error) {
	products, err := p.products.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, pr := range products {
		if pr.Status != StatusProcessing || pr.TaskID == "" {
			continue
		}
		t, err := p.sub.reg.Get(ctx, pr.TaskID)
		if errors.Is(err, ErrTaskNotFound) {
			continue
		}
		if err != nil {
			return n, err
		}
		if _, ok, _ := p.settle(ctx, pr.ID, t); ok {
			n++
		}
	}
	return n, nil
}

func (p *Pipeline) fail(ctx context.Context, id string, err error) (*Product, error) {
	stage := StageOf(err)
	p.log.Errorf("pipeline failed: product=%s stage=%s err=%v", id, stage, err)
	if werr := p.persist(ctx, id, func(r *Product) {
		r.Status = StatusFailed
		r.Error = err.Error()
		r.FailedStage = stage
	}); werr != nil {
		p.log.Errorf("pipeline: mark failed product=%s err=%v", id, werr)
	}
	pr, _ := p.products.Get(ctx, id)
	return pr, err
}

func (p *Pipeline) persist(ctx context.Context, id string, mutate func(*Product)) error {
	ok, err := p.products.Update(ctx, id, mutate)
	if err != nil {
		return err
	}
	if !ok {
		return ErrProductNotFound
	}
	return nil
}

func rawOf(out *TransformOutput) string {
	if out == nil {
		return ""
	}
	return extract.Truncate(out.Raw, 500)
}
