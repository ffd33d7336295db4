// Package workspace manages the per-request scratch directories that hold a
// submission's source file and whatever its compiler produces.
//
// A workspace is only reachable through Manager.With, which removes the
// directory on every exit path (normal return, error, panic). Callers never
// hold a cleanup function they could forget to call.
package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/rs/xid"
)

const dirPrefix = "exec-"

// Workspace is one request's private directory.
type Workspace struct {
	// ID is the unique suffix of the directory name; it doubles as a
	// correlation ID in logs.
	ID         string
	RootDir    string
	SourceFile string
	// CompiledArtifact is set by the toolchain after a successful compile
	// stage. It is always RootDir joined with the profile's artifact name,
	// never derived from SourceFile.
	CompiledArtifact string
}

// Local returns path relative to the workspace root in "./name" form, which
// resolves the same way on the host and inside a container mount.
func (w *Workspace) Local(path string) string {
	rel, err := filepath.Rel(w.RootDir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return "./" + filepath.ToSlash(rel)
}

// Manager allocates workspaces under a single parent directory.
type Manager struct {
	root    string
	dirMode fs.FileMode
	logger  *slog.Logger
	active  atomic.Int64

	// purge empties a directory this process cannot clear on its own.
	purge     func(ctx context.Context, dir string) error
	removeAll func(string) error
}

// Option customizes a Manager.
type Option func(*Manager)

// WithDirMode sets the permission bits of each workspace directory. The
// docker backend runs programs as an unprivileged container user that must
// be able to write the compiled artifact into the bind mount.
func WithDirMode(mode fs.FileMode) Option {
	return func(m *Manager) {
		m.dirMode = mode
	}
}

// WithPurge installs a fallback for directories that os.RemoveAll cannot
// delete, typically files a stage container created under another uid.
// purge must leave dir empty; the manager then removes dir itself.
func WithPurge(purge func(ctx context.Context, dir string) error) Option {
	return func(m *Manager) {
		m.purge = purge
	}
}

// NewManager creates the parent directory if needed.
func NewManager(root string, logger *slog.Logger, opts ...Option) (*Manager, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "codeexec")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: creating root %s: %w", root, err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace: resolving root %s: %w", root, err)
	}

	m := &Manager{
		root:      abs,
		dirMode:   0o700,
		logger:    logger,
		removeAll: os.RemoveAll,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Root is the parent directory of all workspaces.
func (m *Manager) Root() string {
	return m.root
}

// Active is the number of workspaces currently on disk.
func (m *Manager) Active() int64 {
	return m.active.Load()
}

// With creates a fresh workspace containing source under fileName, calls fn,
// and removes the workspace before returning, whatever fn did.
func (m *Manager) With(ctx context.Context, fileName, source string, fn func(*Workspace) error) error {
	ws, err := m.acquire(fileName, source)
	if err != nil {
		return err
	}
	defer m.release(ws)

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ws)
}

func (m *Manager) acquire(fileName, source string) (*Workspace, error) {
	if fileName == "" || filepath.Base(fileName) != fileName {
		return nil, fmt.Errorf("workspace: invalid source file name %q", fileName)
	}

	id := xid.New().String()
	dir := filepath.Join(m.root, dirPrefix+id)

	// Mkdir, not MkdirAll: an existing directory must be an error, never reuse.
	if err := os.Mkdir(dir, m.dirMode); err != nil {
		return nil, fmt.Errorf("workspace: creating %s: %w", dir, err)
	}
	m.active.Add(1)

	ws := &Workspace{
		ID:         id,
		RootDir:    dir,
		SourceFile: filepath.Join(dir, fileName),
	}

	// Mkdir is subject to umask.
	if err := os.Chmod(dir, m.dirMode); err != nil {
		m.release(ws)
		return nil, fmt.Errorf("workspace: chmod %s: %w", dir, err)
	}
	if err := os.WriteFile(ws.SourceFile, []byte(source), 0o644); err != nil {
		m.release(ws)
		return nil, fmt.Errorf("workspace: writing source: %w", err)
	}

	m.logger.Debug("workspace acquired", slog.String("workspace", id))
	return ws, nil
}

func (m *Manager) release(ws *Workspace) {
	defer m.active.Add(-1)

	if err := m.remove(ws.RootDir); err != nil {
		m.logger.Error("failed to remove workspace",
			slog.String("workspace", ws.ID),
			slog.String("dir", ws.RootDir),
			slog.String("error", err.Error()),
		)
		return
	}
	m.logger.Debug("workspace released", slog.String("workspace", ws.ID))
}

// remove deletes dir, escalating only as far as needed.
//
// ESCALATION:
//  1. Plain RemoveAll, which is all a well-behaved submission needs
//  2. Restore write permission the submission stripped from its own
//     directories, then RemoveAll again
//  3. Hand the tree to the purge fallback, for files owned by a user this
//     process cannot override, then RemoveAll the now-empty directory
func (m *Manager) remove(dir string) error {
	err := m.removeAll(dir)
	if err == nil {
		return nil
	}
	restorePermissions(dir)
	if err = m.removeAll(dir); err == nil || m.purge == nil {
		return err
	}

	m.logger.Warn("workspace not removable, purging",
		slog.String("dir", dir),
		slog.String("error", err.Error()),
	)
	if perr := m.purge(context.Background(), dir); perr != nil {
		return fmt.Errorf("%w (purge: %v)", err, perr)
	}
	return m.removeAll(dir)
}

// Sweep removes workspaces left behind by a previous process that died
// mid-request. Call it once at start-up, before serving.
func (m *Manager) Sweep() (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return 0, fmt.Errorf("workspace: reading root: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), dirPrefix) {
			continue
		}
		dir := filepath.Join(m.root, e.Name())
		if err := m.remove(dir); err != nil {
			m.logger.Warn("failed to sweep stale workspace",
				slog.String("dir", dir),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}
	return removed, nil
}

func restorePermissions(dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if d != nil && d.IsDir() {
			_ = os.Chmod(path, 0o700)
		}
		return nil
	})
}
