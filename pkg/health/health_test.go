package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunAggregatesWorstStatus(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]Check
		want   Status
	}{
		{name: "no checks", checks: nil, want: StatusUp},
		{
			name: "all up",
			checks: map[string]Check{
				"engine": func(ctx context.Context) error { return nil },
			},
			want: StatusUp,
		},
		{
			name: "degraded",
			checks: map[string]Check{
				"engine": func(ctx context.Context) error { return nil },
				"cache":  func(ctx context.Context) error { return fmt.Errorf("redis: %w", ErrDegraded) },
			},
			want: StatusDegraded,
		},
		{
			name: "down wins",
			checks: map[string]Check{
				"cache":  func(ctx context.Context) error { return fmt.Errorf("redis: %w", ErrDegraded) },
				"engine": func(ctx context.Context) error { return errors.New("pool closed") },
			},
			want: StatusDown,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChecker()
			for name, check := range tt.checks {
				c.Register(name, check)
			}
			report := c.Run(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Components, len(tt.checks))
		})
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("cache", func(ctx context.Context) error { return ErrDegraded })

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDegraded, report.Status)

	c.Register("engine", func(ctx context.Context) error { return errors.New("shut down") })
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"alive"`)
}
