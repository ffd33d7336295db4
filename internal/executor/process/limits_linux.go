package process

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/sys/unix"
)

// applyLimits sets rlimits on a just-started child. os/exec has no pre-exec
// hook, so the limits land a few microseconds after exec; the wall-clock
// timeout still covers that window.
func applyLimits(pid int, cfg Config) error {
	var errs []error

	if cfg.CPUTimeLimit > 0 {
		secs := uint64(math.Ceil(cfg.CPUTimeLimit.Seconds()))
		errs = append(errs, prlimit(pid, unix.RLIMIT_CPU, secs, "cpu"))
	}
	if cfg.MemoryLimitBytes > 0 {
		errs = append(errs, prlimit(pid, unix.RLIMIT_DATA, uint64(cfg.MemoryLimitBytes), "data segment"))
	}
	if cfg.MaxProcesses > 0 {
		errs = append(errs, prlimit(pid, unix.RLIMIT_NPROC, uint64(cfg.MaxProcesses), "processes"))
	}

	return errors.Join(errs...)
}

func prlimit(pid, resource int, value uint64, name string) error {
	lim := unix.Rlimit{Cur: value, Max: value}
	if err := unix.Prlimit(pid, resource, &lim, nil); err != nil {
		return fmt.Errorf("setting %s limit: %w", name, err)
	}
	return nil
}
