package genflow

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTransformer struct {
	mu       sync.Mutex
	image    *TransformOutput
	imageErr error
	text     *TransformOutput
	textErr  error
	reqs     []TransformRequest
}

func (f *fakeTransformer) Transform(_ context.Context, req TransformRequest) (*TransformOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if req.Kind == TransformImage {
		return f.image, f.imageErr
	}
	return f.text, f.textErr
}

type fakeUploader struct {
	mu    sync.Mutex
	names []string
	url   string
	err   error
}

func (u *fakeUploader) Upload(_ context.Context, name string, data []byte) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.names = append(u.names, name)
	if u.err != nil {
		return "", u.err
	}
	if len(data) == 0 {
		return "", errors.New("empty")
	}
	return u.url, nil
}

type pipelineFixture struct {
	pl       *Pipeline
	products *ProductStore
	reg      *RedisRegistry
	poller   *Poller
	jobs     *fakeCreator
	q        *scriptedQuerier
	tf       *fakeTransformer
	up       *fakeUploader
}

func newPipelineFixture(t *testing.T, opts ...Option) *pipelineFixture {
	t.Helper()
	rdb := newMiniClient(t)
	f := &pipelineFixture{
		jobs: &fakeCreator{results: []createResult{{id: "video_1"}}},
		q:    newScriptedQuerier(),
		tf: &fakeTransformer{
			image: &TransformOutput{Raw: "https://img/white.png", Image: ImageOutput{URL: "https://img/white.png"}},
			text:  &TransformOutput{Raw: "a mug on a desk", Text: "a mug on a desk"},
		},
		up: &fakeUploader{url: "https://img/uploaded.png"},
	}
	opts = append([]Option{WithInterval(5 * time.Millisecond), WithSleep(noSleep)}, opts...)
	f.reg = NewRegistry(rdb)
	f.products = NewProductStore(rdb)
	f.poller = NewPoller(f.reg, f.q, opts...)
	t.Cleanup(f.poller.Shutdown)
	sub := NewSubmitter(f.reg, f.jobs, f.poller, opts...)
	f.pl = NewPipeline(f.products, sub, f.tf, f.up, opts...)
	return f
}

func (f *pipelineFixture) register(t *testing.T) *Product {
	t.Helper()
	pr, err := f.pl.Register(context.Background(), "Ceramic Mug", "https://img/main.jpg")
	require.NoError(t, err)
	return pr
}

func TestPipeline_Run_Completes(t *testing.T) {
	f := newPipelineFixture(t)
	f.q.set("video_1", processing(20), queryStep{st: &JobStatus{
		Status: StatusCompleted, ResultURL: "https://cdn/v.mp4", EnhancedPrompt: "an enhanced mug prompt",
	}})
	pr := f.register(t)

	var mu sync.Mutex
	var seen []int
	ctx := WithProgress(context.Background(), func(_ string, pct int) {
		mu.Lock()
		seen = append(seen, pct)
		mu.Unlock()
	})
	got, err := f.pl.Run(ctx, pr.ID, ModelBase, 10)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.Equal(t, "https://cdn/v.mp4", got.ResultURL)
	require.Equal(t, "https://img/white.png", got.DerivedImageURL)
	require.Equal(t, "an enhanced mug prompt", got.Prompt)
	require.Equal(t, "video_1", got.TaskID)
	require.Equal(t, Portrait, got.Orientation)
	require.Equal(t, SizeSmall, got.Size)
	require.Equal(t, ModelBase, got.Model)

	require.Len(t, f.jobs.params, 1)
	sent := f.jobs.params[0]
	require.Equal(t, "a mug on a desk", sent.Prompt)
	require.Equal(t, []string{"https://img/white.png"}, sent.Images)

	require.Len(t, f.tf.reqs, 2)
	require.Equal(t, "https://img/main.jpg", f.tf.reqs[0].ImageURL)
	require.Equal(t, "Ceramic Mug", f.tf.reqs[1].Title)
	require.Equal(t, "https://img/white.png", f.tf.reqs[1].ImageURL)

	mu.Lock()
	defer mu.Unlock()
	require.Subset(t, seen, []int{10, 30, 40, 50, 60, 70, 100})
	require.IsNonDecreasing(t, seen)
	require.Equal(t, 100, seen[len(seen)-1])
}

func TestPipeline_Run_InlineImageIsUploaded(t *testing.T) {
	f := newPipelineFixture(t)
	f.tf.image = &TransformOutput{Raw: "data:image/png;base64,...", Image: ImageOutput{Data: pngHeader, MIME: "image/png"}}
	f.q.set("video_1", completed("https://cdn/v.mp4"))
	pr := f.register(t)

	got, err := f.pl.Run(context.Background(), pr.ID, ModelBase, 15)
	require.NoError(t, err)
	require.Equal(t, "https://img/uploaded.png", got.DerivedImageURL)
	require.Equal(t, []string{"derived-" + pr.ID + ".png"}, f.up.names)
}

func TestPipeline_Run_Stage1Failure(t *testing.T) {
	f := newPipelineFixture(t)
	f.tf.image = &TransformOutput{Raw: "no picture here"}
	f.tf.imageErr = ErrNoImage
	pr := f.register(t)

	got, err := f.pl.Run(context.Background(), pr.ID, ModelBase, 10)
	require.ErrorIs(t, err, ErrNoImage)
	require.Equal(t, Stage1, StageOf(err))
	var se *StageError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "no picture here", se.Raw)

	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, Stage1, got.FailedStage)
	require.Zero(t, f.jobs.count())
}

func TestPipeline_Run_Stage2FailureKeepsDerivedImage(t *testing.T) {
	f := newPipelineFixture(t)
	f.tf.textErr = &APIError{Op: "transform text", Status: http.StatusServiceUnavailable, Message: "busy", Retryable: true}
	pr := f.register(t)

	_, err := f.pl.Run(context.Background(), pr.ID, ModelBase, 10)
	require.Equal(t, Stage2, StageOf(err))
	require.True(t, IsRetryable(err))

	stored, err := f.products.Get(context.Background(), pr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, stored.Status)
	require.Equal(t, "https://img/white.png", stored.DerivedImageURL, "stage-1 artifact survives a later failure")
	require.Equal(t, Stage2, stored.FailedStage)
}

func TestPipeline_Run_Stage3SubmitFailure(t *testing.T) {
	f := newPipelineFixture(t)
	f.jobs.results = []createResult{{err: &APIError{Op: "create job", Status: http.StatusBadRequest, Message: "rejected"}}}
	pr := f.register(t)

	got, err := f.pl.Run(context.Background(), pr.ID, ModelBase, 10)
	require.Equal(t, Stage3, StageOf(err))
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "a mug on a desk", got.Prompt, "stage-2 artifact survives a later failure")
}

func TestPipeline_Run_JobFailed(t *testing.T) {
	f := newPipelineFixture(t)
	f.q.set("video_1", processing(10), failedStep())
	pr := f.register(t)

	got, err := f.pl.Run(context.Background(), pr.ID, ModelBase, 10)
	require.ErrorIs(t, err, ErrJobFailed)
	require.Equal(t, Stage3, StageOf(err))
	require.Equal(t, StatusFailed, got.Status)
	require.Equal(t, "video_1", got.TaskID)
}

func TestPipeline_Run_TimeoutThenSync(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t, WithTimeout(ModelPro, 40*time.Millisecond))
	f.q.set("video_1", processing(10))
	pr := f.register(t)

	got, err := f.pl.Run(ctx, pr.ID, ModelPro, 15)
	require.ErrorIs(t, err, ErrTimeout)
	require.NotErrorIs(t, err, ErrJobFailed)
	require.Equal(t, Stage3, StageOf(err))
	require.Equal(t, StatusProcessing, got.Status, "a timeout is not a job failure")
	require.Equal(t, SizeLarge, got.Size)
	require.True(t, f.poller.Active("video_1"), "the task stays pollable")

	n, err := f.pl.Sync(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	f.q.set("video_1", completed("https://cdn/late.mp4"))
	waitClosed(t, f.poller.Done("video_1"))
	n, err = f.pl.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	stored, err := f.products.Get(ctx, pr.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, stored.Status)
	require.Equal(t, "https://cdn/late.mp4", stored.ResultURL)
}

func TestPipeline_Run_InvalidParams(t *testing.T) {
	f := newPipelineFixture(t)
	pr := f.register(t)

	_, err := f.pl.Run(context.Background(), pr.ID, ModelPro, 10)
	require.ErrorIs(t, err, ErrInvalidParams)
	require.Empty(t, f.tf.reqs)
	require.Zero(t, f.jobs.count())

	_, err = f.pl.Run(context.Background(), "missing", ModelBase, 10)
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestPipeline_Register(t *testing.T) {
	f := newPipelineFixture(t)
	_, err := f.pl.Register(context.Background(), "x", " ")
	require.ErrorIs(t, err, ErrInvalidParams)

	pr := f.register(t)
	require.Equal(t, StatusPending, pr.Status)
	require.NotEmpty(t, pr.ID)
}
