package genflow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/UniQw/genflow-go/internal/extract"
)

// JobCreator submits generation jobs.
type JobCreator interface {
	// CreateJob returns the service-issued id, or an error wrapping ErrExtractionFailed
	// when the response carried none.
	CreateJob(ctx context.Context, p CreateParams) (string, error)
}

// StatusQuerier reads the remote state of a job.
type StatusQuerier interface {
	QueryJob(ctx context.Context, id string) (*JobStatus, error)
}

// JobStatus is one status report of a remote job.
type JobStatus struct {
	ID     string
	Status Status
	// Progress is in 0..100; HasProgress is false when the service omitted it.
	Progress       float64
	HasProgress    bool
	ResultURL      string
	ThumbnailURL   string
	EnhancedPrompt string
	Width          int
	Height         int
}

// RemoteClient talks to the generation service over HTTP.
type RemoteClient struct {
	baseURL        string
	apiKey         string
	proKey         string
	http           *http.Client
	createRetry    RetryPolicy
	transformRetry RetryPolicy
	sleep          SleepFunc
	enc            Encoder
	log            Logger
}

// NewRemoteClient creates a client for the service at baseURL.
func NewRemoteClient(baseURL, apiKey string, opts ...Option) *RemoteClient {
	o := newOptions(opts)
	c := &RemoteClient{
		baseURL:        strings.TrimRight(baseURL, "/"),
		apiKey:         apiKey,
		proKey:         o.proAPIKey,
		http:           o.httpClient,
		createRetry:    CreateRetryPolicy(),
		transformRetry: TransformRetryPolicy(),
		sleep:          o.sleep,
		enc:            o.encoder,
		log:            o.logger,
	}
	if o.createRetry != nil {
		c.createRetry = *o.createRetry
	}
	return c
}

type createRequest struct {
	Images      []string    `json:"images"`
	Model       Model       `json:"model"`
	Orientation Orientation `json:"orientation"`
	Prompt      string      `json:"prompt"`
	Size        Size        `json:"size"`
	Duration    int         `json:"duration"`
}

// CreateJob validates p, submits it and extracts the job id from the response.
// Saturated 500 responses are retried per the create retry policy.
func (c *RemoteClient) CreateJob(ctx context.Context, p CreateParams) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	req := createRequest{
		Images:      p.Images,
		Model:       p.Model,
		Orientation: p.Orientation,
		Prompt:      p.Prompt,
		Size:        p.Size,
		Duration:    p.Duration,
	}
	if req.Images == nil {
		req.Images = []string{}
	}
	key := c.apiKey
	if p.Model == ModelPro && c.proKey != "" {
		key = c.proKey
	}

	var body []byte
	err := c.createRetry.do(ctx, c.sleep, c.log, func() (err error) {
		body, err = c.call(ctx, "create job", http.MethodPost, "/v1/video/create", key, req)
		return err
	})
	if err != nil {
		return "", err
	}
	res := extract.TaskID(body)
	if !res.Found {
		c.log.Warnf("create job: no id in response body=%s", extract.Truncate(string(body), 200))
		return "", fmt.Errorf("%w: %s", ErrExtractionFailed, extract.Truncate(string(body), 200))
	}
	c.log.Debugf("create job: id=%s source=%s", res.Value, res.Source)
	return res.Value, nil
}

type queryResponse struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	VideoURL       *string `json:"video_url"`
	ThumbnailURL   *string `json:"thumbnail_url"`
	EnhancedPrompt string  `json:"enhanced_prompt"`
	Detail         any     `json:"detail"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
}

// QueryJob reads the current status of job id. Progress is scaled to 0..100.
func (c *RemoteClient) QueryJob(ctx context.Context, id string) (*JobStatus, error) {
	path := "/v1/video/query?id=" + url.QueryEscape(id)
	body, err := c.call(ctx, "query job", http.MethodGet, path, c.apiKey, nil)
	if err != nil {
		return nil, err
	}
	var qr queryResponse
	if err := c.enc.Decode(body, &qr); err != nil {
		return nil, fmt.Errorf("genflow: query job: decode: %w", err)
	}
	st := &JobStatus{
		ID:             qr.ID,
		Status:         remoteStatus(qr.Status),
		EnhancedPrompt: strings.TrimSpace(qr.EnhancedPrompt),
		Width:          qr.Width,
		Height:         qr.Height,
	}
	if qr.VideoURL != nil {
		st.ResultURL = strings.TrimSpace(*qr.VideoURL)
	}
	if qr.ThumbnailURL != nil {
		st.ThumbnailURL = strings.TrimSpace(*qr.ThumbnailURL)
	}
	if detail, ok := qr.Detail.(map[string]any); ok {
		if pct, ok := detail["progress_pct"].(float64); ok {
			st.Progress = clampProgress(pct * 100)
			st.HasProgress = true
		}
	}
	return st, nil
}

// remoteStatus maps a reported status. Anything unrecognised is treated as still running.
func remoteStatus(s string) Status {
	st, err := ParseStatus(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return StatusProcessing
	}
	return st
}

func clampProgress(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// call performs one request. Non-2xx responses become *APIError.
func (c *RemoteClient) call(ctx context.Context, op, method, path, key string, payload any) ([]byte, error) {
	var rd io.Reader
	if payload != nil {
		raw, err := c.enc.Encode(payload)
		if err != nil {
			return nil, fmt.Errorf("genflow: %s: encode: %w", op, err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("genflow: %s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("genflow: %s: %w", op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("genflow: %s: read body: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Op: op, Status: resp.StatusCode, Message: extract.ErrorMessage(body)}
	}
	return body, nil
}
