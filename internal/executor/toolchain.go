package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Shree113/newcd/internal/apperror"
	"github.com/Shree113/newcd/internal/language"
	"github.com/Shree113/newcd/internal/workspace"
)

const (
	msgStartFailed = "The program could not be started"
	msgNoArtifact  = "The compiler finished without producing an executable"
)

// Toolchain runs the compile → run state machine for one profile inside one
// workspace. It keeps no per-request state, so a single Toolchain serves any
// number of concurrent executions.
type Toolchain struct {
	runner Runner
	logger *slog.Logger
}

// NewToolchain creates a Toolchain on top of runner.
func NewToolchain(runner Runner, logger *slog.Logger) *Toolchain {
	return &Toolchain{
		runner: runner,
		logger: logger,
	}
}

// Execute compiles (if the profile has a compile stage) and runs the
// workspace's source file.
//
// The returned error is non-nil only when ctx was canceled; every execution
// verdict, including spawn failures, is an Outcome.
func (t *Toolchain) Execute(ctx context.Context, profile language.Profile, ws *workspace.Workspace) (Outcome, error) {
	start := time.Now()
	finish := func(o Outcome) (Outcome, error) {
		o.Language = profile.Key
		o.Elapsed = time.Since(start)
		return o, nil
	}

	// Pending → Compiling
	if profile.Compiled() {
		ws.CompiledArtifact = filepath.Join(ws.RootDir, profile.Artifact)

		res, err := t.runner.Run(ctx, Command{
			Args:    expand(profile.CompileCommand, ws),
			Dir:     ws.RootDir,
			Timeout: profile.CompileTimeout,
			Image:   profile.Image,

			MemoryLimitBytes: profile.MemoryLimit,
		})
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{}, ctx.Err()
			}
			t.logger.Warn("compile stage failed to start",
				slog.String("language", profile.Key),
				slog.String("workspace", ws.ID),
				slog.String("error", err.Error()),
			)
			return finish(Outcome{Stage: StageRuntimeFault, Err: apperror.RuntimeFault(msgStartFailed, err)})
		}

		switch {
		case res.TimedOut:
			return finish(Outcome{
				Stage:           StageCompileFailed,
				CompileTimedOut: true,
				Limit:           profile.CompileTimeout,
			})
		case res.ExitCode != 0:
			return finish(Outcome{Stage: StageCompileFailed, Stderr: diagnostic(res)})
		}

		if _, err := os.Stat(ws.CompiledArtifact); err != nil {
			return finish(Outcome{Stage: StageCompileFailed, Stderr: msgNoArtifact})
		}
	}

	// → Running
	res, err := t.runner.Run(ctx, Command{
		Args:    expand(profile.RunCommand, ws),
		Dir:     ws.RootDir,
		Timeout: profile.RunTimeout,
		Image:   profile.Image,

		MemoryLimitBytes: profile.MemoryLimit,
	})
	if err != nil {
		if ctx.Err() != nil {
			return Outcome{}, ctx.Err()
		}
		t.logger.Warn("run stage failed to start",
			slog.String("language", profile.Key),
			slog.String("workspace", ws.ID),
			slog.String("error", err.Error()),
		)
		return finish(Outcome{Stage: StageRuntimeFault, Err: apperror.RuntimeFault(msgStartFailed, err)})
	}

	if res.TimedOut {
		// Partial output is dropped on purpose: a timeout verdict never
		// carries text that could pass for a real result.
		return finish(Outcome{Stage: StageTimedOut, Limit: profile.RunTimeout})
	}

	code := res.ExitCode
	return finish(Outcome{
		Stage:    StageRan,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: &code,
	})
}

// diagnostic picks the compiler's error text. Most compilers write to
// stderr; a few report on stdout.
func diagnostic(res *Result) string {
	if strings.TrimSpace(res.Stderr) != "" {
		return res.Stderr
	}
	if strings.TrimSpace(res.Stdout) != "" {
		return res.Stdout
	}
	return fmt.Sprintf("compiler exited with code %d", res.ExitCode)
}

// expand substitutes the workspace-relative placeholders in argv.
func expand(argv []string, ws *workspace.Workspace) []string {
	r := strings.NewReplacer(
		language.PlaceholderSource, ws.Local(ws.SourceFile),
		language.PlaceholderArtifact, ws.Local(ws.CompiledArtifact),
		language.PlaceholderWorkdir, ".",
	)
	out := make([]string, len(argv))
	for i, arg := range argv {
		out[i] = r.Replace(arg)
	}
	return out
}

// IsCanceled reports whether err came from the caller's context rather than
// from the execution itself.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
