package genflow

// Status is the lifecycle state of a task or pipeline record.
// Use the exported constants instead of raw strings to avoid typos.
type Status string

const (
	// StatusPending is the state of a freshly created record, before the service reports progress.
	StatusPending Status = "pending"
	// StatusQueued is reported by the service while the job waits for capacity.
	StatusQueued Status = "queued"
	// StatusProcessing is reported while the job runs.
	StatusProcessing Status = "processing"
	// StatusCompleted is terminal: the job produced its result.
	StatusCompleted Status = "completed"
	// StatusFailed is terminal: the job or a pipeline stage failed.
	StatusFailed Status = "failed"
)

// AllStatuses lists every valid status in a stable order.
var AllStatuses = []Status{StatusPending, StatusQueued, StatusProcessing, StatusCompleted, StatusFailed}

// String returns the raw string value of the status.
func (s Status) String() string { return string(s) }

// Terminal reports whether no further polling should occur.
func (s Status) Terminal() bool { return s == StatusCompleted || s == StatusFailed }

// ParseStatus converts a string into a Status, returning an error for unknown values.
func ParseStatus(s string) (Status, error) {
	switch s {
	case string(StatusPending):
		return StatusPending, nil
	case string(StatusQueued):
		return StatusQueued, nil
	case string(StatusProcessing):
		return StatusProcessing, nil
	case string(StatusCompleted):
		return StatusCompleted, nil
	case string(StatusFailed):
		return StatusFailed, nil
	default:
		return "", ErrUnknownStatus
	}
}
