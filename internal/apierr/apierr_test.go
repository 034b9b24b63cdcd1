package apierr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPStatusPerCategory(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"unauthorized", Unauthorized("bad credentials"), 401},
		{"forbidden", Forbidden("not a lecturer"), 403},
		{"bad request", BadRequest("missing field %s", "filename"), 400},
		{"not found", NotFound("Course", "c1"), 404},
		{"conflict", Conflict("duplicate"), 409},
		{"rate limited", RateLimited(30, "too many requests"), 429},
		{"external", External(CodeExternalWorkflow, nil, "workflow down"), 503},
		{"database", Database(nil, "fk violation"), 400},
		{"internal", Internal(nil, "panic recovered"), 500},
		{"not implemented", NotImplemented("coder provisioning"), 501},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := External(CodeExternalWorkflow, cause, "submit task failed")

	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "submit task failed")
	require.Contains(t, err.Error(), "connection refused")
}

func TestWithDetailsChaining(t *testing.T) {
	err := BadRequest("invalid archive").WithDetails(map[string]any{"filename": "sub.zip"})

	require.Equal(t, "sub.zip", err.Details["filename"])
}

func TestRateLimitedRetryAfter(t *testing.T) {
	err := RateLimited(42, "slow down")

	require.NotNil(t, err.RetryAfter)
	require.Equal(t, 42, *err.RetryAfter)
}
