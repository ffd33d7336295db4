package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shree113/newcd/internal/apperror"
	"github.com/Shree113/newcd/internal/handler"
	"github.com/Shree113/newcd/internal/language"
	"github.com/Shree113/newcd/internal/model"
	"github.com/Shree113/newcd/internal/repository"
)

// =========================================================================
// LANGUAGES
// =========================================================================

func TestLanguageHandler_HandleList(t *testing.T) {
	reg, err := language.NewRegistry(language.Defaults(), language.WithLookPath(func(bin string) (string, error) {
		if bin == "javac" || bin == "java" {
			return "", assert.AnError
		}
		return "/usr/bin/" + bin, nil
	}))
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	handler.NewLanguageHandler(reg).HandleList(rr, httptest.NewRequest(http.MethodGet, "/api/languages", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var got []handler.LanguageInfo
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))

	byKey := make(map[string]handler.LanguageInfo, len(got))
	for _, info := range got {
		byKey[info.Key] = info
	}
	require.Contains(t, byKey, "python")
	require.Contains(t, byKey, "c")
	require.Contains(t, byKey, "java")

	assert.False(t, byKey["python"].Compiled)
	assert.Empty(t, byKey["python"].CompileTimeout)
	assert.Equal(t, "5s", byKey["python"].RunTimeout)
	assert.True(t, byKey["python"].Available)

	assert.True(t, byKey["c"].Compiled)
	assert.Equal(t, "10s", byKey["c"].CompileTimeout)

	assert.False(t, byKey["java"].Available)
}

// =========================================================================
// EXECUTIONS
// =========================================================================

type mockRepo struct {
	listOpts repository.ListOptions
	records  map[string]model.Execution
}

func (m *mockRepo) Create(ctx context.Context, e *model.Execution) error { return nil }

func (m *mockRepo) GetByID(ctx context.Context, id string) (*model.Execution, error) {
	e, ok := m.records[id]
	if !ok {
		return nil, apperror.NotFound("execution", id)
	}
	return &e, nil
}

func (m *mockRepo) List(ctx context.Context, opts repository.ListOptions) ([]model.Execution, error) {
	m.listOpts = opts
	out := make([]model.Execution, 0, len(m.records))
	for _, e := range m.records {
		out = append(out, e)
	}
	return out, nil
}

func executionRouter(repo repository.ExecutionRepository) http.Handler {
	h := handler.NewExecutionHandler(repo, testLogger())
	r := chi.NewRouter()
	r.Get("/api/executions", h.HandleList)
	r.Get("/api/executions/{id}", h.HandleGet)
	return r
}

func TestExecutionHandler(t *testing.T) {
	code := 1
	repo := &mockRepo{records: map[string]model.Execution{
		"abc": {ID: "abc", Language: "c", Stage: "ran", ExitCode: &code, CreatedAt: time.Now()},
	}}
	router := executionRouter(repo)

	t.Run("list passes paging and filter", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/executions?limit=5&offset=10&language=c", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, repository.ListOptions{Limit: 5, Offset: 10, Language: "c"}, repo.listOpts)

		var got []model.Execution
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		require.Len(t, got, 1)
		assert.Equal(t, "abc", got[0].ID)
	})

	t.Run("list rejects bad paging", func(t *testing.T) {
		for _, q := range []string{"limit=ten", "offset=-1"} {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/executions?"+q, nil))
			assert.Equal(t, http.StatusBadRequest, rr.Code, q)
		}
	})

	t.Run("get", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/executions/abc", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"exitCode":1`)
	})

	t.Run("get missing", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/executions/nope", nil))

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, rr.Body.String(), `"code":"not_found"`)
	})
}

func TestHandleHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	handler.HandleHealth(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}
