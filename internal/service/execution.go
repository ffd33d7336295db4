// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces limits, orchestrates
//	Executor / Repository    → runs programs, stores history
//
// ExecutionService is the request dispatcher. It is the one place where
// validation, the concurrency ceiling, workspace scoping, the compile/run
// state machine, aggregation and history recording meet. Handlers and the
// CLI both call it, so a one-shot "run" from the terminal goes through exactly
// the same path as an HTTP request.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/Shree113/newcd/internal/apperror"
	"github.com/Shree113/newcd/internal/executor"
	"github.com/Shree113/newcd/internal/language"
	"github.com/Shree113/newcd/internal/metrics"
	"github.com/Shree113/newcd/internal/model"
	"github.com/Shree113/newcd/internal/repository"
	"github.com/Shree113/newcd/internal/workspace"
)

const (
	DefaultMaxConcurrent = 4
	DefaultQueueTimeout  = 10 * time.Second
	MaxCodeLength        = 100000 // ~100KB of code

	// metrics label for keys that did not resolve; raw user input would
	// give the label unbounded cardinality
	unsupportedLabel = "unsupported"
	maxLanguageLen   = 32
)

// Engine runs one profile inside one workspace. *executor.Toolchain is the
// production implementation.
type Engine interface {
	Execute(ctx context.Context, profile language.Profile, ws *workspace.Workspace) (executor.Outcome, error)
}

// Request is one submission.
type Request struct {
	Code     string
	Language string
}

// Response is the aggregated, user-facing result.
type Response struct {
	// ID of the history record; empty when history is disabled or the
	// write failed.
	ID       string
	Output   string
	Stage    executor.Stage
	ExitCode *int
	Duration time.Duration
}

// Config bounds how many executions run at once.
type Config struct {
	// MaxConcurrent is the number of executions allowed to hold a workspace
	// and child processes at the same time.
	MaxConcurrent int64
	// QueueTimeout is how long a request may wait for a slot before it is
	// turned away as Busy. Zero waits as long as the request context allows.
	QueueTimeout time.Duration
}

// ExecutionService handles code execution requests.
type ExecutionService struct {
	registry   *language.Registry
	workspaces *workspace.Manager
	engine     Engine
	history    repository.ExecutionRepository
	metrics    *metrics.Collector
	logger     *slog.Logger

	slots        *semaphore.Weighted
	queueTimeout time.Duration
}

// NewExecutionService wires the dispatcher. history may be nil to disable
// recording; a nil collector gets a private registry nobody scrapes.
func NewExecutionService(
	registry *language.Registry,
	workspaces *workspace.Manager,
	engine Engine,
	history repository.ExecutionRepository,
	collector *metrics.Collector,
	logger *slog.Logger,
	cfg Config,
) *ExecutionService {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if collector == nil {
		collector = metrics.New(prometheus.NewRegistry())
	}
	return &ExecutionService{
		registry:     registry,
		workspaces:   workspaces,
		engine:       engine,
		history:      history,
		metrics:      collector,
		logger:       logger,
		slots:        semaphore.NewWeighted(cfg.MaxConcurrent),
		queueTimeout: cfg.QueueTimeout,
	}
}

// Execute validates req, runs it and aggregates the outcome.
//
// Errors are reserved for requests that get no verdict at all: InvalidInput,
// Busy, Internal, or the caller's own context error. Compile errors,
// timeouts, unknown languages and spawn failures are all successful
// responses carrying an explanatory Output. A missing language is just an
// unknown one.
func (s *ExecutionService) Execute(ctx context.Context, req Request) (*Response, error) {
	if req.Code == "" {
		return nil, apperror.InvalidInput("code", "code cannot be empty")
	}
	if len(req.Code) > MaxCodeLength {
		return nil, apperror.InvalidInput("code", fmt.Sprintf("code must be at most %d bytes", MaxCodeLength))
	}

	outcome, wsID, err := s.dispatch(ctx, req)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Output:   Aggregate(outcome),
		Stage:    outcome.Stage,
		ExitCode: outcome.ExitCode,
		Duration: outcome.Elapsed,
	}
	resp.ID = s.record(ctx, outcome, len(req.Code))

	label := outcome.Language
	if errors.Is(outcome.Err, apperror.ErrUnsupportedLanguage) {
		label = unsupportedLabel
	}
	s.metrics.ObserveExecution(label, string(outcome.Stage), outcome.Elapsed)

	attrs := []slog.Attr{
		slog.String("language", outcome.Language),
		slog.String("stage", string(outcome.Stage)),
		slog.Duration("elapsed", outcome.Elapsed),
		slog.String("workspace", wsID),
	}
	if outcome.ExitCode != nil {
		attrs = append(attrs, slog.Int("exit_code", *outcome.ExitCode))
	}
	if outcome.Err != nil {
		// The chain may hold the spawn error with absolute paths; it
		// belongs in the log, never in the response.
		attrs = append(attrs, slog.String("error", logCause(outcome.Err).Error()))
	}
	s.logger.LogAttrs(ctx, slog.LevelInfo, "execution finished", attrs...)

	return resp, nil
}

// dispatch resolves the profile, waits for a slot and runs the submission.
// Rejections return before any workspace is created.
func (s *ExecutionService) dispatch(ctx context.Context, req Request) (executor.Outcome, string, error) {
	profile, err := s.registry.Resolve(req.Language)
	if err != nil {
		return executor.Outcome{
			Stage:    executor.StageRejected,
			Language: truncate(strings.TrimSpace(req.Language), maxLanguageLen),
			Err:      err,
		}, "", nil
	}
	if !s.registry.ToolchainAvailable(profile) {
		return executor.Outcome{
			Stage:    executor.StageRejected,
			Language: profile.Key,
			Err:      apperror.ToolchainUnavailable(profile.Key),
		}, "", nil
	}

	release, err := s.acquireSlot(ctx)
	if err != nil {
		return executor.Outcome{}, "", err
	}
	defer release()

	return s.run(ctx, profile, req.Code)
}

func (s *ExecutionService) acquireSlot(ctx context.Context) (func(), error) {
	waitCtx := ctx
	if s.queueTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, s.queueTimeout)
		defer cancel()
	}

	if err := s.slots.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.metrics.Rejected.Inc()
		return nil, apperror.Busy()
	}

	s.metrics.InFlight.Inc()
	return func() {
		s.metrics.InFlight.Dec()
		s.slots.Release(1)
	}, nil
}

// run scopes a workspace around the engine. A panic anywhere below is turned
// into an Internal error here, after workspace.With has already removed the
// directory while unwinding.
func (s *ExecutionService) run(ctx context.Context, profile language.Profile, code string) (outcome executor.Outcome, wsID string, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("execution panicked",
				slog.String("language", profile.Key),
				slog.String("workspace", wsID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
			err = apperror.Internal(fmt.Errorf("panic: %v", r))
		}
	}()

	err = s.workspaces.With(ctx, profile.SourceFileName(), code, func(ws *workspace.Workspace) error {
		wsID = ws.ID
		var execErr error
		outcome, execErr = s.engine.Execute(ctx, profile, ws)
		return execErr
	})
	if err != nil {
		if ctx.Err() != nil {
			return outcome, wsID, ctx.Err()
		}
		s.logger.Error("execution failed",
			slog.String("language", profile.Key),
			slog.String("workspace", wsID),
			slog.String("error", err.Error()),
		)
		return outcome, wsID, apperror.Internal(err)
	}
	return outcome, wsID, nil
}

// record stores the outcome. A failed write is logged and counted; the
// caller still gets its result.
func (s *ExecutionService) record(ctx context.Context, o executor.Outcome, codeSize int) string {
	if s.history == nil {
		return ""
	}

	// The response is already decided, so a client disconnecting now should
	// not lose the record.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	rec := &model.Execution{
		Language:   o.Language,
		Stage:      string(o.Stage),
		ExitCode:   o.ExitCode,
		DurationMs: o.Elapsed.Milliseconds(),
		CodeSize:   codeSize,
	}
	if err := s.history.Create(writeCtx, rec); err != nil {
		s.metrics.HistoryErrors.Inc()
		s.logger.Warn("failed to record execution",
			slog.String("language", o.Language),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return rec.ID
}

// logCause prefers an AppError's wrapped chain over its user-facing message.
func logCause(err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) && appErr.Err != nil {
		return appErr.Err
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
