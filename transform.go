package genflow

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/UniQw/genflow-go/internal/extract"
)

// TransformKind selects an auxiliary conversational call.
type TransformKind string

const (
	// TransformImage derives an image from a source image.
	TransformImage TransformKind = "image"
	// TransformText writes free-form text from a title and an image.
	TransformText TransformKind = "text"
)

// Chat models used by the transform calls.
const (
	ImageTransformModel = "gemini-2.5-flash-image"
	TextTransformModel  = "gpt-5-chat-latest"
)

// Transformer runs the auxiliary calls used by the pipeline.
type Transformer interface {
	Transform(ctx context.Context, req TransformRequest) (*TransformOutput, error)
}

// TransformRequest is one transform call.
type TransformRequest struct {
	Kind TransformKind
	// Instruction is the user instruction (image) or system requirements (text).
	Instruction string
	// Title is the subject the text should be written about.
	Title    string
	ImageURL string
}

// ImageOutput is an image found in model output: a URL or inline bytes.
type ImageOutput struct {
	URL  string
	Data []byte
	MIME string
}

// Found reports whether the output carries an image.
func (i ImageOutput) Found() bool { return i.URL != "" || len(i.Data) > 0 }

// TransformOutput is the parsed result of a transform call. Raw is always set, even
// when Transform also returns ErrNoImage or ErrEmptyOutput.
type TransformOutput struct {
	Raw   string
	Text  string
	Image ImageOutput
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

const textSystemPrefix = "You are a professional video script assistant. From the product image and title, " +
	"write a video generation prompt that meets these requirements:\n\n"

func buildChatRequest(req TransformRequest) (chatRequest, error) {
	image := chatPart{Type: "image_url", ImageURL: &chatImageURL{URL: req.ImageURL}}
	switch req.Kind {
	case TransformImage:
		return chatRequest{
			Model: ImageTransformModel,
			Messages: []chatMessage{{
				Role:    "user",
				Content: []chatPart{{Type: "text", Text: req.Instruction}, image},
			}},
			Temperature: 0.7,
			MaxTokens:   1000,
		}, nil
	case TransformText:
		user := []chatPart{{Type: "text", Text: "Product title: " + req.Title + "\n\nWrite the video prompt following the requirements above."}}
		if req.ImageURL != "" {
			user = append(user, image)
		}
		return chatRequest{
			Model: TextTransformModel,
			Messages: []chatMessage{
				{Role: "system", Content: textSystemPrefix + req.Instruction},
				{Role: "user", Content: user},
			},
			Temperature: 0.8,
			MaxTokens:   2000,
		}, nil
	}
	return chatRequest{}, fmt.Errorf("%w: transform kind %q", ErrInvalidParams, req.Kind)
}

// Transform runs an image or text transform. A 503 is retried once.
// Image output is looked up as a URL first, then as an inline base64 image.
func (c *RemoteClient) Transform(ctx context.Context, req TransformRequest) (*TransformOutput, error) {
	chat, err := buildChatRequest(req)
	if err != nil {
		return nil, err
	}
	op := "transform " + string(req.Kind)
	var body []byte
	err = c.transformRetry.do(ctx, c.sleep, c.log, func() (err error) {
		body, err = c.call(ctx, op, http.MethodPost, "/v1/chat/completions", c.apiKey, chat)
		return err
	})
	if err != nil {
		return nil, err
	}
	content := extract.ChatContentBytes(body)
	out := &TransformOutput{Raw: content, Text: strings.TrimSpace(content)}
	if content == "" {
		out.Raw = extract.Truncate(string(body), 500)
	}
	if req.Kind == TransformImage {
		img := extract.ImageRef(content)
		out.Image = ImageOutput{URL: img.URL, Data: img.Data, MIME: img.MIME}
		if !out.Image.Found() {
			return out, ErrNoImage
		}
		return out, nil
	}
	if out.Text == "" {
		return out, ErrEmptyOutput
	}
	return out, nil
}
