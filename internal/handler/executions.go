package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Shree113/newcd/internal/apperror"
	"github.com/Shree113/newcd/internal/repository"
)

// ExecutionHandler serves the execution history.
type ExecutionHandler struct {
	repo   repository.ExecutionRepository
	logger *slog.Logger
}

func NewExecutionHandler(repo repository.ExecutionRepository, logger *slog.Logger) *ExecutionHandler {
	return &ExecutionHandler{
		repo:   repo,
		logger: logger,
	}
}

// HandleList returns recent executions, newest first.
//
// HTTP: GET /api/executions?limit=20&offset=0&language=python
func (h *ExecutionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	offset, err := intParam(q.Get("offset"), "offset")
	if err != nil {
		writeError(w, err)
		return
	}

	execs, err := h.repo.List(r.Context(), repository.ListOptions{
		Limit:    limit,
		Offset:   offset,
		Language: q.Get("language"),
	})
	if err != nil {
		h.logger.Error("failed to list executions", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, execs)
}

// HandleGet returns one execution record.
//
// HTTP: GET /api/executions/{id}
func (h *ExecutionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	exec, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, exec)
}

func intParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.InvalidInput(name, name+" must be a non-negative integer")
	}
	return n, nil
}
