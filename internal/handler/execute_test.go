package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shree113/newcd/internal/apperror"
	"github.com/Shree113/newcd/internal/executor"
	"github.com/Shree113/newcd/internal/handler"
	"github.com/Shree113/newcd/internal/service"
)

// MockExecutor stands in for the execution service so handler tests never
// spawn anything.
type MockExecutor struct {
	CapturedReq service.Request
	Calls       int
	ReturnRes   *service.Response
	ReturnErr   error
}

func (m *MockExecutor) Execute(ctx context.Context, req service.Request) (*service.Response, error) {
	m.Calls++
	m.CapturedReq = req
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return m.ReturnRes, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func post(h *handler.ExecuteHandler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/execute", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.HandleExecute(rr, req)
	return rr
}

func TestExecuteHandler_HandleExecute(t *testing.T) {
	t.Run("valid execution", func(t *testing.T) {
		code := 0
		mockExec := &MockExecutor{
			ReturnRes: &service.Response{
				ID:       "cv37rs3pp9olc6atsptg",
				Output:   "Hello World\n",
				Stage:    executor.StageRan,
				ExitCode: &code,
				Duration: 123 * time.Millisecond,
			},
		}
		h := handler.NewExecuteHandler(mockExec, testLogger())

		rr := post(h, `{"code":"print('Hello World')","language":"python"}`)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

		var res handler.ExecuteResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, "Hello World\n", res.Output)
		assert.Equal(t, "ran", res.Stage)
		require.NotNil(t, res.ExitCode)
		assert.Equal(t, 0, *res.ExitCode)
		assert.Equal(t, int64(123), res.DurationMs)
		assert.Equal(t, "cv37rs3pp9olc6atsptg", res.ID)

		assert.Equal(t, service.Request{Code: "print('Hello World')", Language: "python"}, mockExec.CapturedReq)
	})

	t.Run("timeout omits exit code", func(t *testing.T) {
		mockExec := &MockExecutor{
			ReturnRes: &service.Response{Output: "Execution timed out after 5s", Stage: executor.StageTimedOut},
		}
		rr := post(handler.NewExecuteHandler(mockExec, testLogger()), `{"code":"while True: pass","language":"python"}`)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NotContains(t, rr.Body.String(), "exitCode")
		assert.Contains(t, rr.Body.String(), `"stage":"timed_out"`)
	})

	t.Run("unsupported language is a soft result", func(t *testing.T) {
		mockExec := &MockExecutor{
			ReturnRes: &service.Response{Output: "Unsupported language: cobol", Stage: executor.StageRejected},
		}
		rr := post(handler.NewExecuteHandler(mockExec, testLogger()), `{"code":"x","language":"cobol"}`)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"output":"Unsupported language: cobol"`)
	})

	t.Run("invalid request body", func(t *testing.T) {
		mockExec := &MockExecutor{}
		rr := post(handler.NewExecuteHandler(mockExec, testLogger()), `{"invalid_json":`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Zero(t, mockExec.Calls)
	})

	t.Run("body too large", func(t *testing.T) {
		mockExec := &MockExecutor{}
		big := `{"code":"` + strings.Repeat("a", handler.MaxRequestBytes) + `","language":"python"}`
		rr := post(handler.NewExecuteHandler(mockExec, testLogger()), big)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
		assert.Zero(t, mockExec.Calls)
	})

	t.Run("client gone", func(t *testing.T) {
		mockExec := &MockExecutor{ReturnErr: context.Canceled}
		h := handler.NewExecuteHandler(mockExec, testLogger())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		req := httptest.NewRequest(http.MethodPost, "/execute", bytes.NewBufferString(`{"code":"x","language":"python"}`)).WithContext(ctx)
		rr := httptest.NewRecorder()
		h.HandleExecute(rr, req)

		assert.Equal(t, 499, rr.Code)
		assert.Empty(t, rr.Body.String())
	})
}

func TestExecuteHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"empty code", apperror.InvalidInput("code", "code cannot be empty"), http.StatusBadRequest, "invalid_input", "code cannot be empty"},
		{"busy", apperror.Busy(), http.StatusServiceUnavailable, "busy", "too many executions in progress, try again shortly"},
		{"unauthorized", apperror.Unauthorized("token required"), http.StatusUnauthorized, "unauthorized", "token required"},
		{"internal", apperror.Internal(errors.New("open /var/tmp/codeexec/exec-x: no space left")), http.StatusInternalServerError, "internal_error", "An internal error occurred"},
		{"unknown error", errors.New("sql: database is closed"), http.StatusInternalServerError, "internal_error", "An internal error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := post(handler.NewExecuteHandler(&MockExecutor{ReturnErr: tt.err}, testLogger()), `{"code":"x","language":"python"}`)

			assert.Equal(t, tt.wantStatus, rr.Code)
			var body handler.ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Code)
			assert.Equal(t, tt.wantMsg, body.Error)
			assert.NotContains(t, body.Error, "/var/tmp", "paths never reach the client")
		})
	}
}
