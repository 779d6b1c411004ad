package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "app error wins", err: New(ErrInvalidInput, http.StatusTeapot, "x"), want: http.StatusTeapot},
		{name: "wrapped app error", err: fmt.Errorf("ctx: %w", Newf(ErrUnavailable, http.StatusServiceUnavailable, "pool %s", "closed")), want: http.StatusServiceUnavailable},
		{name: "invalid input", err: fmt.Errorf("path: %w", ErrInvalidInput), want: http.StatusBadRequest},
		{name: "rate limited", err: ErrRateLimited, want: http.StatusTooManyRequests},
		{name: "timeout", err: ErrTimeout, want: http.StatusServiceUnavailable},
		{name: "unknown", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrapAndMessage(t *testing.T) {
	err := fmt.Errorf("indexing: %w", Newf(ErrInvalidInput, http.StatusBadRequest, "%s is not a directory", "/tmp/x"))
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "/tmp/x is not a directory", Message(err, "fallback"))
	assert.Equal(t, "fallback", Message(errors.New("plain"), "fallback"))
	assert.Equal(t, "invalid input: /tmp/x is not a directory", errors.Unwrap(err).Error())
}
