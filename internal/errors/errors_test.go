package errors

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/fulmenhq/gofulmen/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsMapToHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		envelope   *errors.ErrorEnvelope
		wantCode   string
		wantStatus int
	}{
		{"invalid input", NewInvalidInputError("bad format"), "INVALID_INPUT", http.StatusBadRequest},
		{"not found", NewNotFoundError("no such route"), "NOT_FOUND", http.StatusNotFound},
		{"method not allowed", NewMethodNotAllowedError("use GET"), "METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed},
		{"internal", NewInternalError("boom"), "INTERNAL_ERROR", http.StatusInternalServerError},
		{"service unavailable", NewServiceUnavailableError("no live upstreams"), "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable},
		{"config invalid", NewConfigInvalidError("bind unparseable"), "CONFIG_INVALID", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.envelope)
			assert.Equal(t, tt.wantCode, tt.envelope.Code)
			assert.Equal(t, tt.wantStatus, HTTPStatusFromEnvelope(tt.envelope))
		})
	}
}

func TestEnsureEnvelope(t *testing.T) {
	t.Run("NilError", func(t *testing.T) {
		env := EnsureEnvelope(nil)
		require.NotNil(t, env)
		assert.Equal(t, "INTERNAL_ERROR", env.Code)
		assert.Equal(t, errors.SeverityCritical, env.Severity)
	})

	t.Run("PlainError", func(t *testing.T) {
		env := EnsureEnvelope(fmt.Errorf("dial tcp: connection refused"))
		require.NotNil(t, env)
		assert.Equal(t, "INTERNAL_ERROR", env.Code)
		assert.Equal(t, "dial tcp: connection refused", env.Context["wrapped_error"])
	})

	t.Run("EnvelopePassesThrough", func(t *testing.T) {
		original := NewServiceUnavailableError("no live upstreams")
		assert.Same(t, original, EnsureEnvelope(original))
	})
}

func TestWrapInternal(t *testing.T) {
	env := WrapInternal(context.Background(), fmt.Errorf("listener gone"), "proxy error")
	require.NotNil(t, env)
	assert.Equal(t, "INTERNAL_ERROR", env.Code)
	assert.Equal(t, "proxy error", env.Message)
	assert.NotEmpty(t, env.CorrelationID)
	assert.Equal(t, "listener gone", env.Context["wrapped_error"])
}
