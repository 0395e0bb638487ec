package genflow

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"path/filepath"
	"strings"

	"github.com/UniQw/genflow-go/internal/extract"
	"github.com/gabriel-vasile/mimetype"
)

// Uploader stores raw file bytes on an image host and returns a stable URL.
// Implementations make a single attempt; callers own any retry.
type Uploader interface {
	Upload(ctx context.Context, name string, data []byte) (string, error)
}

// HTTPUploader posts files as multipart form data to an image host.
type HTTPUploader struct {
	url  string
	http *http.Client
	enc  Encoder
	log  Logger
}

// NewHTTPUploader creates an uploader for endpoint.
func NewHTTPUploader(endpoint string, opts ...Option) *HTTPUploader {
	o := newOptions(opts)
	return &HTTPUploader{url: endpoint, http: o.httpClient, enc: o.encoder, log: o.logger}
}

type uploadResponse struct {
	URL     string `json:"url"`
	Created int64  `json:"created"`
}

// Upload sends data under the form field "file". The part's content type is sniffed
// from the bytes, and name gets a matching extension when it has none.
func (u *HTTPUploader) Upload(ctx context.Context, name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("genflow: upload: empty file %q", name)
	}
	mt := mimetype.Detect(data)
	if filepath.Ext(name) == "" {
		name += mt.Extension()
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", mt.String())
	part, err := mw.CreatePart(h)
	if err != nil {
		return "", fmt.Errorf("genflow: upload: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("genflow: upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("genflow: upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.url, &buf)
	if err != nil {
		return "", fmt.Errorf("genflow: upload: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := u.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("genflow: upload: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("genflow: upload: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &APIError{Op: "upload", Status: resp.StatusCode, Message: extract.ErrorMessage(body)}
	}
	var ur uploadResponse
	if err := u.enc.Decode(body, &ur); err != nil {
		return "", fmt.Errorf("genflow: upload: decode: %w", err)
	}
	if strings.TrimSpace(ur.URL) == "" {
		return "", fmt.Errorf("genflow: upload: no url in response: %s", extract.Truncate(string(body), 200))
	}
	u.log.Debugf("upload ok: name=%s type=%s url=%s", name, mt.String(), ur.URL)
	return ur.URL, nil
}
