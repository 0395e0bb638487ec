package genflow

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Task represents one remote generation job and its asynchronous lifecycle.
// It is serialized to JSON and stored in the Task Registry.
type Task struct {
	// ID is either a temporary id (see IsTempID) or the id issued by the remote service.
	ID string `json:"id"`
	// Status is the current lifecycle state.
	Status Status `json:"status"`
	// Progress is the current progress (0..100); never decreases while non-terminal.
	Progress float64 `json:"progress"`
	// ResultURL is the generated media URL, once known.
	ResultURL string `json:"resultUrl,omitempty"`
	// ThumbnailURL is an optional preview image reported on completion.
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`

	// Submission parameters.
	Model       Model       `json:"model,omitempty"`
	Prompt      string      `json:"prompt,omitempty"`
	Images      []string    `json:"images,omitempty"`
	Orientation Orientation `json:"orientation,omitempty"`
	Size        Size        `json:"size,omitempty"`
	Duration    int         `json:"duration,omitempty"`

	// Error is the last failure message for failed records.
	Error string `json:"error,omitempty"`
	// CreatedAt is the timestamp (ms) when the record was first created.
	CreatedAt int64 `json:"createdAt"`
	// UpdatedAt is the timestamp (ms) of the last write.
	UpdatedAt int64 `json:"updatedAt,omitempty"`
	// CompletedAt is the timestamp (ms) when completed was first observed.
	CompletedAt int64 `json:"completedAt,omitempty"`
}

// TempPrefix marks locally generated placeholder ids.
const TempPrefix = "temp_"

// NewTempID returns a unique placeholder id. index distinguishes placeholders created
// in the same pass.
func NewTempID(index int) string {
	var b strings.Builder
	b.WriteString(TempPrefix)
	b.WriteString(strconv.FormatInt(time.Now().UnixMilli(), 10))
	b.WriteByte('_')
	b.WriteString(strconv.Itoa(index))
	b.WriteByte('_')
	b.WriteString(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
	return b.String()
}

// IsTempID reports whether id is a local placeholder.
func IsTempID(id string) bool { return strings.HasPrefix(id, TempPrefix) }

func newTask(id string, p CreateParams, now time.Time) *Task {
	ms := now.UnixMilli()
	return &Task{
		ID:          id,
		Status:      StatusPending,
		Model:       p.Model,
		Prompt:      p.Prompt,
		Images:      append([]string(nil), p.Images...),
		Orientation: p.Orientation,
		Size:        p.Size,
		Duration:    p.Duration,
		CreatedAt:   ms,
		UpdatedAt:   ms,
	}
}
