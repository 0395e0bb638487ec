// Package extract holds pure, ordered extraction functions over remote payloads.
// Nothing here returns an error: callers get a tagged result and decide.
package extract

import (
	"encoding/base64"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bytedance/sonic"
)

// Result is the outcome of an extraction attempt.
type Result struct {
	Value string
	// Source names the field the value came from.
	Source string
	Found  bool
}

// Found builds a positive result.
func Found(v, source string) Result { return Result{Value: v, Source: source, Found: true} }

// NotFound is the negative result.
var NotFound = Result{}

// alternateIDFields are checked, in order, after `id` and the chat-completion content.
var alternateIDFields = []string{"task_id", "taskId", "video_id", "videoId"}

// TaskID extracts the job identifier from a create-job response body:
// (1) a direct `id`, (2) `choices[0].message.content`, (3) alternate id fields.
func TaskID(body []byte) Result {
	m, ok := decodeObject(body)
	if !ok {
		return NotFound
	}
	if v, ok := nonEmptyString(m["id"]); ok {
		return Found(v, "id")
	}
	if v, ok := nonEmptyString(ChatContent(m)); ok {
		return Found(v, "choices[0].message.content")
	}
	for _, f := range alternateIDFields {
		if v, ok := nonEmptyString(m[f]); ok {
			return Found(v, f)
		}
	}
	return NotFound
}

// ChatContent returns choices[0].message.content of a decoded chat-completion object,
// or "" when the shape does not match.
func ChatContent(m map[string]any) string {
	choices, ok := m["choices"].([]any)
	if !ok || len(choices) == 0 {
		return ""
	}
	first, ok := choices[0].(map[string]any)
	if !ok {
		return ""
	}
	msg, ok := first["message"].(map[string]any)
	if !ok {
		return ""
	}
	s, _ := msg["content"].(string)
	return s
}

// ChatContentBytes is ChatContent over a raw body.
func ChatContentBytes(body []byte) string {
	m, ok := decodeObject(body)
	if !ok {
		return ""
	}
	return ChatContent(m)
}

// ErrorMessage pulls a human readable message out of an error body: `message`,
// then `error` (string or object with `message`), then the trimmed raw body.
func ErrorMessage(body []byte) string {
	if m, ok := decodeObject(body); ok {
		if v, ok := nonEmptyString(m["message"]); ok {
			return v
		}
		switch e := m["error"].(type) {
		case string:
			if v := strings.TrimSpace(e); v != "" {
				return v
			}
		case map[string]any:
			if v, ok := nonEmptyString(e["message"]); ok {
				return v
			}
		}
	}
	return strings.TrimSpace(string(body))
}

var (
	urlPattern    = regexp.MustCompile(`https?://[^\s\)]+`)
	base64Pattern = regexp.MustCompile(`data:image/(png|jpeg|jpg);base64,([A-Za-z0-9+/=]+)`)
)

// Image is an image reference found in free-form model output.
type Image struct {
	URL  string
	Data []byte
	MIME string
}

// Found reports whether either a URL or inline data was extracted.
func (i Image) Found() bool { return i.URL != "" || len(i.Data) > 0 }

// ImageRef tries a bare URL first, then an inline base64 data URI.
func ImageRef(content string) Image {
	if u := URL(content); u.Found {
		return Image{URL: u.Value}
	}
	m := base64Pattern.FindStringSubmatch(content)
	if m == nil {
		return Image{}
	}
	data, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil || len(data) == 0 {
		return Image{}
	}
	mime := "image/jpeg"
	if m[1] == "png" {
		mime = "image/png"
	}
	return Image{Data: data, MIME: mime}
}

// URL returns the first http(s) URL in content.
func URL(content string) Result {
	if u := urlPattern.FindString(content); u != "" {
		return Found(u, "url")
	}
	return NotFound
}

// Truncate shortens raw diagnostics to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func decodeObject(body []byte) (map[string]any, bool) {
	if len(body) == 0 {
		return nil, false
	}
	var m map[string]any
	if err := sonic.Unmarshal(body, &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

func nonEmptyString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
