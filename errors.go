package genflow

import (
	"errors"
	"fmt"
)

// ErrTaskNotFound is returned when a task with the specified ID is not found.
var ErrTaskNotFound = errors.New("genflow: task not found")

// ErrDuplicateTask is returned when a record is inserted under an ID that already exists.
var ErrDuplicateTask = errors.New("genflow: duplicate task id")

// ErrUnknownStatus is returned when an invalid status string is parsed.
var ErrUnknownStatus = errors.New("genflow: unknown status")

// ErrInvalidParams is returned when submission parameters violate the model table.
var ErrInvalidParams = errors.New("genflow: invalid submission params")

// ErrExtractionFailed is returned by CreateJob when the response carries no usable identifier.
var ErrExtractionFailed = errors.New("genflow: no job id in create response")

// ErrUnresolvedID is returned by Submit when the identifier is still missing after the retry.
// The temporary record is kept in pending for manual follow-up.
var ErrUnresolvedID = errors.New("genflow: job id unresolved after retry")

// ErrJobFailed is returned when the remote service reports a terminal failure.
var ErrJobFailed = errors.New("genflow: job failed")

// ErrTimeout is returned when a pipeline stops waiting for a job that may still complete.
var ErrTimeout = errors.New("genflow: timed out waiting for job")

// ErrUnresolvedImage is returned when a batch row's image source cannot be turned into content.
var ErrUnresolvedImage = errors.New("genflow: image source unresolved")

// ErrNoImage is returned when a transform output holds neither a URL nor inline image data.
var ErrNoImage = errors.New("genflow: no image in transform output")

// ErrEmptyOutput is returned when a text transform produced no content.
var ErrEmptyOutput = errors.New("genflow: empty transform output")

// ErrProductNotFound is returned when a pipeline record does not exist.
var ErrProductNotFound = errors.New("genflow: product not found")

// APIError is a non-2xx response from the remote service.
type APIError struct {
	Op      string
	Status  int
	Message string
	// Retryable is set when the service signalled transient overload.
	Retryable bool
	// Attempts counts the calls made before giving up.
	Attempts int
}

func (e *APIError) Error() string {
	if e.Retryable {
		return fmt.Sprintf("genflow: %s: service saturated after %d attempts (status %d): %s", e.Op, e.Attempts, e.Status, e.Message)
	}
	return fmt.Sprintf("genflow: %s: status %d: %s", e.Op, e.Status, e.Message)
}

// IsRetryable reports whether err is (or wraps) an APIError a caller may re-trigger.
func IsRetryable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Retryable
}

// Pipeline stage labels.
const (
	Stage1 = "stage1"
	Stage2 = "stage2"
	Stage3 = "stage3"
)

// StageError attributes a pipeline failure to the stage that produced it.
type StageError struct {
	Stage string
	Err   error
	// Raw holds the (truncated) remote output for diagnostics, when relevant.
	Raw string
}

func (e *StageError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("genflow: %s: %v (response: %s)", e.Stage, e.Err, e.Raw)
	}
	return fmt.Sprintf("genflow: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// StageOf returns the stage label carried by err, or "".
func StageOf(err error) string {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}
