// Package process runs compile and run stages as host subprocesses.
//
// Each child gets its own process group so that a timeout or cancellation
// kills everything it forked, not just the top-level process. After a child
// exits normally the group is killed too: background processes a submission
// left behind never outlive the request.
//
// This is resource-bounded execution, not a sandbox. A child that calls
// setsid escapes the group kill, and nothing restricts its filesystem or
// network view; the docker backend is the isolation upgrade.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/Shree113/newcd/internal/executor"
)

// Config bounds every child the Runner spawns.
type Config struct {
	// MaxOutputBytes caps each of stdout and stderr.
	MaxOutputBytes int
	// CPUTimeLimit is applied as RLIMIT_CPU. Zero disables it.
	CPUTimeLimit time.Duration
	// MemoryLimitBytes is applied as RLIMIT_DATA. Zero disables it.
	//
	// WHY NOT RLIMIT_AS?
	// V8 and the JVM reserve gigabytes of address space up front and only
	// commit what they use. RLIMIT_AS counts the reservations and kills them
	// at startup; RLIMIT_DATA counts writable private memory, which is what a
	// runaway allocation actually grows.
	MemoryLimitBytes int64
	// MaxProcesses is applied as RLIMIT_NPROC. The kernel counts every
	// process of the child's user, so only enable it when the service runs
	// under a dedicated account. Zero disables it.
	MaxProcesses int
	// WaitDelay bounds how long Wait keeps reading pipes after the child
	// exits, in case a straggler still holds them open.
	WaitDelay time.Duration
}

// DefaultConfig returns the limits used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxOutputBytes:   64 * 1024,
		CPUTimeLimit:     10 * time.Second,
		MemoryLimitBytes: 512 * 1024 * 1024,
		WaitDelay:        500 * time.Millisecond,
	}
}

// Runner implements executor.Runner with os/exec.
type Runner struct {
	config Config
	logger *slog.Logger
}

var _ executor.Runner = (*Runner)(nil)

// New creates a process Runner.
func New(cfg Config, logger *slog.Logger) *Runner {
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = DefaultConfig().WaitDelay
	}
	return &Runner{
		config: cfg,
		logger: logger,
	}
}

// Run spawns cmd and waits for it to exit, time out, or be canceled.
func (r *Runner) Run(ctx context.Context, cmd executor.Command) (*executor.Result, error) {
	if len(cmd.Args) == 0 {
		return nil, errors.New("process: empty command")
	}

	runCtx := ctx
	var cancel context.CancelFunc = func() {}
	if cmd.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
	}
	defer cancel()

	name := cmd.Args[0]
	if !filepath.IsAbs(name) && strings.ContainsRune(name, filepath.Separator) {
		name = filepath.Join(cmd.Dir, name)
	}

	c := exec.CommandContext(runCtx, name, cmd.Args[1:]...)
	c.Dir = cmd.Dir
	c.Env = childEnv(cmd.Dir)
	// nil Stdin is /dev/null: a read hits EOF at once instead of hanging.
	c.Stdin = nil

	stdout := executor.NewCappedBuffer(r.config.MaxOutputBytes)
	stderr := executor.NewCappedBuffer(r.config.MaxOutputBytes)
	c.Stdout = stdout
	c.Stderr = stderr

	setProcessGroup(c)
	c.Cancel = func() error {
		return killGroup(c.Process)
	}
	c.WaitDelay = r.config.WaitDelay

	start := time.Now()
	if err := c.Start(); err != nil {
		return nil, fmt.Errorf("process: starting %s: %w", cmd.Args[0], err)
	}

	if err := applyLimits(c.Process.Pid, r.limitsFor(cmd)); err != nil {
		r.logger.Warn("failed to apply resource limits",
			slog.Int("pid", c.Process.Pid),
			slog.String("error", err.Error()),
		)
	}

	waitErr := c.Wait()
	elapsed := time.Since(start)

	// Reap whatever the child left running in its group.
	_ = killGroup(c.Process)

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	// A child that finished just before the deadline exited cleanly (nil
	// waitErr) and is not a timeout.
	timedOut := waitErr != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded)

	if waitErr != nil && c.ProcessState == nil {
		return nil, fmt.Errorf("process: waiting for %s: %w", cmd.Args[0], waitErr)
	}

	return &executor.Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: exitCode(c.ProcessState),
		Elapsed:  elapsed,
		TimedOut: timedOut,
	}, nil
}

// limitsFor applies the command's memory override to the runner's limits.
func (r *Runner) limitsFor(cmd executor.Command) Config {
	cfg := r.config
	switch {
	case cmd.MemoryLimitBytes > 0:
		cfg.MemoryLimitBytes = cmd.MemoryLimitBytes
	case cmd.MemoryLimitBytes < 0:
		cfg.MemoryLimitBytes = 0
	}
	return cfg
}

// childEnv gives the child a minimal environment. HOME and TMPDIR point into
// the workspace so caches and temp files are removed with it.
func childEnv(dir string) []string {
	path := os.Getenv("PATH")
	if path == "" {
		path = "/usr/local/bin:/usr/bin:/bin"
	}
	return []string{
		"PATH=" + path,
		"HOME=" + dir,
		"TMPDIR=" + dir,
		"LANG=C.UTF-8",
	}
}
