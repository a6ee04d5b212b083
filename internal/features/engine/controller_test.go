package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go-erp/internal/features/approval"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// stubEngine fails GetRequest with err; other methods are not used.
type stubEngine struct {
	EngineService
	err error
}

func (s *stubEngine) GetRequest(ctx context.Context, requestID string) (*approval.ApprovalRequest, error) {
	return nil, s.err
}

func TestServiceErrorResponses(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		logged     bool
	}{
		{"not found", approval.ErrRequestNotFound, http.StatusNotFound, "request_not_found", false},
		{"step missing", approval.ErrStepRequired, http.StatusBadRequest, "validation_error", false},
		{"lock timeout", fmt.Errorf("request x: %w", approval.ErrLockTimeout), http.StatusServiceUnavailable, "busy", false},
		{"driver failure", errors.New("connection(mongo-0:27017) incomplete read of message header"), http.StatusInternalServerError, "internal_error", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.ErrorLevel)
			ctrl := NewEngineController(&stubEngine{err: tt.err}, zap.New(core))

			app := fiber.New()
			app.Get("/api/engine/requests/:id", ctrl.GetRequest)

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/engine/requests/r1", nil), -1)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, problemContentType, resp.Header.Get("Content-Type"))

			raw, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			var body map[string]any
			require.NoError(t, json.Unmarshal(raw, &body))
			assert.Equal(t, tt.wantType, body["type"])

			if tt.logged {
				assert.False(t, strings.Contains(string(raw), "mongo-0"), "internal error text leaked: %s", raw)
				require.Equal(t, 1, logs.Len())
				assert.Equal(t, tt.err.Error(), logs.All()[0].ContextMap()["error"])
			} else {
				assert.Zero(t, logs.Len())
			}
		})
	}
}
