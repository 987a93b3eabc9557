package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifiedError(t *testing.T) {
	t.Run("builder sets fields", func(t *testing.T) {
		cause := errors.New("unexpected }")
		err := WrapError(cause, CategorySource, "stylesheet failed to compile").
			WithContext("path", "styles/main.scss").
			UserAction().
			Build()

		assert.Equal(t, CategorySource, err.Category())
		assert.Equal(t, SeverityError, err.Severity())
		assert.Equal(t, RetryUserAction, err.RetryStrategy())
		assert.False(t, err.CanRetry())
		assert.ErrorIs(t, err, cause)
		assert.Equal(t, "styles/main.scss", err.Context()["path"])
		assert.Contains(t, err.Error(), "[source:error] stylesheet failed to compile: unexpected }")
	})

	t.Run("classified error found through wrapping", func(t *testing.T) {
		inner := WrapError(errors.New("address in use"), CategoryServer, "port unavailable").Fatal().Build()
		wrapped := fmt.Errorf("start dev server: %w", inner)

		got, ok := AsClassified(wrapped)
		require.True(t, ok)
		assert.Same(t, inner, got)
		assert.True(t, HasCategory(wrapped, CategoryServer))
		assert.Equal(t, SeverityFatal, got.Severity())
	})

	t.Run("WithContext copies", func(t *testing.T) {
		base := WrapError(errors.New("disk full"), CategoryFileSystem, "write failed").Build()
		withPath := base.WithContext("path", "dist/index.html")

		assert.NotContains(t, base.Context(), "path")
		assert.Equal(t, "dist/index.html", withPath.Context()["path"])
	})

	t.Run("retry hint", func(t *testing.T) {
		locked := WrapError(errors.New("SQLITE_BUSY"), CategoryState, "state database locked").Retryable().Build()
		assert.True(t, CanRetry(locked))
		assert.True(t, CanRetry(fmt.Errorf("commit: %w", locked)))
		assert.False(t, CanRetry(ProcessingError("decode png").Build()))
		assert.False(t, CanRetry(SourceError("bad template").Build()))
		assert.False(t, CanRetry(errors.New("plain")))
		_, ok := AsClassified(errors.New("plain"))
		assert.False(t, ok)
	})
}

func TestConvenienceConstructors(t *testing.T) {
	tests := []struct {
		name     string
		builder  *ErrorBuilder
		category ErrorCategory
		severity ErrorSeverity
		retry    RetryStrategy
	}{
		{"ConfigError", ConfigError("x"), CategoryConfig, SeverityFatal, RetryUserAction},
		{"ValidationError", ValidationError("x"), CategoryValidation, SeverityFatal, RetryNever},
		{"SourceError", SourceError("x"), CategorySource, SeverityError, RetryUserAction},
		{"ProcessingError", ProcessingError("x"), CategoryProcessing, SeverityError, RetryNever},
		{"WatchError", WatchError("x"), CategoryWatch, SeverityFatal, RetryNever},
		{"InternalError", InternalError("x"), CategoryInternal, SeverityFatal, RetryNever},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.builder.Build()
			assert.Equal(t, tt.category, err.Category())
			assert.Equal(t, tt.severity, err.Severity())
			assert.Equal(t, tt.retry, err.RetryStrategy())
		})
	}
}

func TestErrorContextMerge(t *testing.T) {
	a := ErrorContext{}.Set("key1", "value1").Set("shared", "original")
	b := ErrorContext{}.Set("key2", "value2").Set("shared", "overridden")

	merged := a.Merge(b)
	assert.Equal(t, "value1", merged["key1"])
	assert.Equal(t, "value2", merged["key2"])
	assert.Equal(t, "overridden", merged["shared"])
	assert.Equal(t, "original", a["shared"])
}

func TestCLIErrorAdapter(t *testing.T) {
	adapter := NewCLIErrorAdapter(false, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	var out bytes.Buffer
	adapter.out = &out

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"validation", ValidationError("bad flag").Build(), 2},
		{"config", ConfigError("bad config").Build(), 7},
		{"source", SourceError("bad template").Build(), 11},
		{"server", WrapError(errors.New("bind"), CategoryServer, "port in use").Build(), 12},
		{"state", WrapError(errors.New("busy"), CategoryState, "locked").Retryable().Build(), 12},
		{"internal", InternalError("bug").Build(), 10},
		{"plain", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, adapter.ExitCodeFor(tt.err))
		})
	}

	code := adapter.Handle(ConfigError("missing source directory").WithContext("path", "src").Build())
	assert.Equal(t, 7, code)
	assert.Equal(t, "Error: missing source directory (use -v for details)\n", out.String())
}

func TestHTTPErrorAdapter(t *testing.T) {
	adapter := NewHTTPErrorAdapter(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))

	assert.Equal(t, http.StatusOK, adapter.StatusCodeFor(nil))
	assert.Equal(t, http.StatusBadRequest, adapter.StatusCodeFor(ValidationError("x").Build()))
	assert.Equal(t, http.StatusServiceUnavailable, adapter.StatusCodeFor(WatchError("x").Build()))
	assert.Equal(t, http.StatusUnprocessableEntity, adapter.StatusCodeFor(SourceError("x").Build()))
	assert.Equal(t, http.StatusInternalServerError, adapter.StatusCodeFor(errors.New("x")))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/__sitepipe/status", nil)
	adapter.WriteErrorResponse(rec, req, ValidationError("unknown category").WithContext("category", "fonts").Build())

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var payload HTTPErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, "unknown category", payload.Error)
	assert.Equal(t, "validation", payload.Code)
	assert.Equal(t, "fonts", payload.Details["category"])
}
