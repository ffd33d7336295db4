package docker

// Config holds the limits applied to every stage container.
type Config struct {
	// User the stage runs as inside the container. Empty means the
	// service's own uid:gid (nobody when the service is root). The workspace
	// is bind mounted, so this user must be able to write there; see
	// Runner.OwnsWorkspaces.
	User string
	// MemoryLimit is the maximum amount of memory the container can use (in bytes).
	// Swap is capped at the same value, so this is a hard ceiling.
	MemoryLimit int64
	// CPULimit is the number of CPUs the container can use.
	CPULimit float64
	// PidsLimit bounds the number of processes, which stops fork bombs.
	PidsLimit int64
	// MaxOutputBytes caps each of stdout and stderr.
	MaxOutputBytes int
	// TmpfsSize is the size of the writable /tmp; the root filesystem is
	// read-only.
	TmpfsSize string
}

// DefaultConfig provides sensible defaults for a stage container.
func DefaultConfig() Config {
	return Config{
		// 256 MB memory limit
		MemoryLimit: 256 * 1024 * 1024,
		// one full CPU, compilers are slow enough already
		CPULimit:       1.0,
		PidsLimit:      64,
		MaxOutputBytes: 64 * 1024,
		TmpfsSize:      "64m",
	}
}
