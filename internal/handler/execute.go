// Package handler contains the HTTP request handlers.
//
// HANDLER RESPONSIBILITIES:
// 1. Parse the incoming HTTP request (query params, body, headers)
// 2. Call the service layer
// 3. Write the HTTP response (status code, headers, body)
//
// Handlers hold no business logic; they are the glue between HTTP and the
// execution service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Shree113/newcd/internal/service"
)

// MaxRequestBytes bounds the JSON body of an execution request.
const MaxRequestBytes = 1 << 20

// statusClientClosedRequest is the nginx convention for a client that went
// away before the response was ready. It only shows up in logs and metrics.
const statusClientClosedRequest = 499

// Executor is the slice of the execution service the handler needs.
type Executor interface {
	Execute(ctx context.Context, req service.Request) (*service.Response, error)
}

// ExecuteRequest is the body of POST /execute.
type ExecuteRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

// ExecuteResponse is returned for every handled outcome, including compile
// errors and timeouts.
type ExecuteResponse struct {
	ID         string `json:"id,omitempty"`
	Output     string `json:"output"`
	Stage      string `json:"stage"`
	ExitCode   *int   `json:"exitCode,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// ExecuteHandler handles code execution requests.
type ExecuteHandler struct {
	exec   Executor
	logger *slog.Logger
}

// NewExecuteHandler creates a new ExecuteHandler.
func NewExecuteHandler(exec Executor, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{
		exec:   exec,
		logger: logger,
	}
}

// HandleExecute runs one submission.
//
// HTTP: POST /execute (and /api/execute)
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBytes)

	var req ExecuteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error: "request body is too large",
				Code:  "invalid_input",
			})
			return
		}
		h.logger.Warn("invalid execution request body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: "request body must be a JSON object with code and language",
			Code:  "invalid_input",
		})
		return
	}

	resp, err := h.exec.Execute(r.Context(), service.Request{
		Code:     req.Code,
		Language: req.Language,
	})
	if err != nil {
		if r.Context().Err() != nil {
			h.logger.Info("client went away before execution finished")
			w.WriteHeader(statusClientClosedRequest)
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ExecuteResponse{
		ID:         resp.ID,
		Output:     resp.Output,
		Stage:      string(resp.Stage),
		ExitCode:   resp.ExitCode,
		DurationMs: resp.Duration.Round(time.Millisecond).Milliseconds(),
	})
}
