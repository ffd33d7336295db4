//go:build !linux

package process

// applyLimits is a no-op where prlimit(2) is unavailable; the wall-clock
// timeout is the only bound.
func applyLimits(int, Config) error {
	return nil
}
