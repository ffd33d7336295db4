// Package executor drives one submission through its compile and run stages.
//
// The stages themselves are spawned by a Runner: the process backend runs
// them as host subprocesses in their own process group, the docker backend
// runs them in throwaway containers. Both report the same Result, so the
// state machine in Toolchain does not care which one it talks to.
package executor

import (
	"context"
	"time"
)

// Stage is the terminal classification of one execution.
type Stage string

const (
	// StageRejected: the request never reached a runner (unknown language,
	// missing toolchain).
	StageRejected Stage = "rejected"
	// StageCompileFailed: the compiler exited non-zero or ran out of time.
	StageCompileFailed Stage = "compile_failed"
	// StageTimedOut: the program exceeded its run timeout and was killed.
	StageTimedOut Stage = "timed_out"
	// StageRan: the program exited on its own, with any exit code.
	StageRan Stage = "ran"
	// StageRuntimeFault: a stage could not even be started.
	StageRuntimeFault Stage = "runtime_fault"
)

// Command is one child process invocation.
type Command struct {
	// Args[0] is the program. Workspace-relative programs ("./main") are
	// resolved against Dir.
	Args []string
	// Dir is the host path of the workspace; the child's working directory.
	Dir     string
	Timeout time.Duration
	// Image selects the container image; ignored by the process backend.
	Image string
	// MemoryLimitBytes overrides the runner's memory ceiling for this
	// command. Zero keeps the runner default; negative removes the ceiling.
	MemoryLimitBytes int64
}

// Result is what a Runner observed about a finished (or killed) command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Elapsed  time.Duration
	// TimedOut is set when Command.Timeout fired and the child was killed.
	TimedOut bool
}

// Runner spawns a command and waits for it.
//
// A non-nil error means the command could not be started (or the caller's
// context was canceled); every other outcome, including non-zero exits and
// timeouts, is reported through Result.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// Outcome is the final, immutable result of one execution request.
type Outcome struct {
	Stage    Stage
	Language string
	Stdout   string
	Stderr   string
	// ExitCode is nil unless the program ran to completion.
	ExitCode *int
	Elapsed  time.Duration
	// Limit is the timeout that fired, for TimedOut and compile timeouts.
	Limit           time.Duration
	CompileTimedOut bool
	// Err explains Rejected and RuntimeFault outcomes. It is always an
	// *apperror.AppError whose message is safe to show.
	Err error
}
