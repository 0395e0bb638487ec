package genflow

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStageError_Unwrap(t *testing.T) {
	err := fmt.Errorf("run: %w", &StageError{Stage: Stage1, Err: ErrNoImage, Raw: "text only"})
	require.ErrorIs(t, err, ErrNoImage)
	require.Equal(t, Stage1, StageOf(err))
	require.Contains(t, err.Error(), "stage1")
	require.Contains(t, err.Error(), "text only")

	require.Empty(t, StageOf(errors.New("plain")))
}

func TestAPIError_Message(t *testing.T) {
	e := &APIError{Op: "create job", Status: http.StatusInternalServerError, Message: "saturated"}
	require.Equal(t, "genflow: create job: status 500: saturated", e.Error())
	require.False(t, IsRetryable(e))

	e.Retryable, e.Attempts = true, 4
	require.Contains(t, e.Error(), "after 4 attempts")
	require.True(t, IsRetryable(fmt.Errorf("wrapped: %w", e)))
	require.False(t, IsRetryable(nil))
}
