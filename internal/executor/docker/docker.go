// Package docker runs compile and run stages in throwaway containers.
//
// WHY ONE CONTAINER PER STAGE:
// A pre-warmed pool saves a second of startup, but a pooled container is
// created before the request exists, so the request's workspace cannot be
// bind-mounted into it, and reusing it would let one submission see what the
// previous one left behind. A fresh container per stage costs more and keeps
// every execution sealed off.
//
// KEY CONCEPTS:
//   - The workspace directory is bind-mounted at /workspace, which is also the
//     working directory, so "./main" means the same file on both sides.
//   - Networking is off, the root filesystem is read-only and capabilities
//     are dropped. Memory, CPU and pid limits are enforced by cgroups.
//   - On timeout the container is killed, never stopped gracefully.
//
// WHO OWNS THE WORKSPACE?
// Whatever the stage creates in the bind mount belongs to the container
// user. By default that is the service's own uid:gid, so the workspace
// manager can delete it afterwards. When the container runs as someone else
// (root services default to nobody), Purge deletes the tree from inside a
// container running as that user.
package docker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/Shree113/newcd/internal/executor"
)

// MountPoint is where the workspace appears inside the container.
const MountPoint = "/workspace"

// exit code reported for a stage killed on timeout, as if by SIGKILL
const killedExitCode = 137

// purgeTimeout bounds a cleanup container.
const purgeTimeout = 30 * time.Second

// purgeScript empties the mounted workspace. chmod first, so directories the
// program made read-only can be descended into.
const purgeScript = "chmod -R u+rwX " + MountPoint + " 2>/dev/null; find " + MountPoint + " -mindepth 1 -delete"

// Runner implements executor.Runner using Docker.
type Runner struct {
	cli    dockerClient
	config Config
	logger *slog.Logger

	// image used for cleanup containers, the first one EnsureImages saw
	purgeImage string
}

var _ executor.Runner = (*Runner)(nil)

// New connects to the Docker daemon described by the environment
// (DOCKER_HOST and friends).
func New(cfg Config, logger *slog.Logger) (*Runner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return newWithClient(cli, cfg, logger), nil
}

func newWithClient(cli dockerClient, cfg Config, logger *slog.Logger) *Runner {
	if cfg.User == "" {
		cfg.User = serviceUser()
	}
	return &Runner{
		cli:    cli,
		config: cfg,
		logger: logger,
	}
}

// serviceUser is this process's uid:gid, or nobody when the service runs as
// root, which must never leak into a container.
func serviceUser() string {
	uid := os.Getuid()
	if uid <= 0 {
		return "nobody"
	}
	return fmt.Sprintf("%d:%d", uid, os.Getgid())
}

// User is the user stage containers run as.
func (r *Runner) User() string {
	return r.config.User
}

// OwnsWorkspaces reports whether stage containers run as the service's own
// user. When they do, workspaces can stay private (0o700) and files created
// inside them are removable without Purge.
func (r *Runner) OwnsWorkspaces() bool {
	return os.Getuid() > 0 && r.config.User == serviceUser()
}

// Close releases the docker client.
func (r *Runner) Close() error {
	return r.cli.Close()
}

// EnsureImages pulls every image up front so the first request for a
// language does not pay for the download inside its compile timeout.
func (r *Runner) EnsureImages(ctx context.Context, images []string) error {
	seen := make(map[string]bool, len(images))
	for _, ref := range images {
		if ref == "" || seen[ref] {
			continue
		}
		seen[ref] = true
		if r.purgeImage == "" {
			r.purgeImage = ref
		}

		r.logger.Info("ensuring docker image is available", slog.String("image", ref))
		reader, err := r.cli.ImagePull(ctx, ref, image.PullOptions{})
		if err != nil {
			return fmt.Errorf("failed to pull image %s: %w", ref, err)
		}
		// Read everything to block until the pull is complete
		_, err = io.Copy(io.Discard, reader)
		reader.Close()
		if err != nil {
			return fmt.Errorf("failed to pull image %s: %w", ref, err)
		}
	}
	return nil
}

// Run executes cmd in a new container and removes it afterwards.
func (r *Runner) Run(ctx context.Context, cmd executor.Command) (*executor.Result, error) {
	if len(cmd.Args) == 0 {
		return nil, errors.New("docker: empty command")
	}
	if cmd.Image == "" {
		return nil, errors.New("docker: no image for command")
	}

	containerID, err := r.create(ctx, cmd)
	if err != nil {
		return nil, err
	}

	// Always remove the container, even when the request was canceled.
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := r.cli.ContainerRemove(cleanupCtx, containerID, container.RemoveOptions{Force: true})
		if err != nil {
			r.logger.Error("failed to remove container", slog.String("id", containerID), slog.String("error", err.Error()))
		}
	}()

	start := time.Now()
	if err := r.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("docker: starting container: %w", err)
	}

	waitCtx := ctx
	cancel := context.CancelFunc(func() {})
	if cmd.Timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
	}
	defer cancel()

	status, waitErr := r.wait(waitCtx, containerID)
	elapsed := time.Since(start)

	if waitErr != nil {
		r.kill(containerID)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
			return &executor.Result{
				ExitCode: killedExitCode,
				Elapsed:  elapsed,
				TimedOut: true,
			}, nil
		}
		return nil, waitErr
	}

	stdout, stderr, err := r.logs(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("docker: reading output: %w", err)
	}

	return &executor.Result{
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: int(status.StatusCode),
		Elapsed:  elapsed,
	}, nil
}

// Purge empties dir from inside a container running as the stage user. The
// workspace manager calls it when it cannot delete what a stage left behind.
func (r *Runner) Purge(ctx context.Context, dir string) error {
	if r.purgeImage == "" {
		return errors.New("docker: no image available for cleanup")
	}
	res, err := r.Run(ctx, executor.Command{
		Args:             []string{"sh", "-c", purgeScript},
		Dir:              dir,
		Timeout:          purgeTimeout,
		Image:            r.purgeImage,
		MemoryLimitBytes: -1,
	})
	if err != nil {
		return fmt.Errorf("docker: purging %s: %w", dir, err)
	}
	if res.TimedOut || res.ExitCode != 0 {
		return fmt.Errorf("docker: purging %s: exit code %d: %s", dir, res.ExitCode, res.Stderr)
	}
	return nil
}

func (r *Runner) create(ctx context.Context, cmd executor.Command) (string, error) {
	hostConfig := &container.HostConfig{
		Binds:          []string{cmd.Dir + ":" + MountPoint},
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
		Tmpfs:          map[string]string{"/tmp": "rw,size=" + r.config.TmpfsSize},
	}
	if r.config.TmpfsSize == "" {
		hostConfig.Tmpfs = map[string]string{"/tmp": "rw"}
	}
	if memory := r.memoryFor(cmd); memory > 0 {
		hostConfig.Resources.Memory = memory
		hostConfig.Resources.MemorySwap = memory
	}
	if r.config.CPULimit > 0 {
		hostConfig.Resources.NanoCPUs = int64(r.config.CPULimit * 1e9)
	}
	if r.config.PidsLimit > 0 {
		pids := r.config.PidsLimit
		hostConfig.Resources.PidsLimit = &pids
	}

	resp, err := r.cli.ContainerCreate(ctx, &container.Config{
		Image:           cmd.Image,
		Cmd:             cmd.Args,
		User:            r.config.User,
		WorkingDir:      MountPoint,
		Env:             []string{"HOME=/tmp", "LANG=C.UTF-8"},
		AttachStdout:    true,
		AttachStderr:    true,
		NetworkDisabled: true,
	}, hostConfig, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("docker: creating container: %w", err)
	}
	return resp.ID, nil
}

// memoryFor applies a command's own memory ceiling over the runner default.
func (r *Runner) memoryFor(cmd executor.Command) int64 {
	switch {
	case cmd.MemoryLimitBytes > 0:
		return cmd.MemoryLimitBytes
	case cmd.MemoryLimitBytes < 0:
		return 0
	}
	return r.config.MemoryLimit
}

func (r *Runner) wait(ctx context.Context, containerID string) (*container.WaitResponse, error) {
	statusCh, errCh := r.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)
	select {
	case status := <-statusCh:
		if status.Error != nil {
			return nil, fmt.Errorf("docker: container error: %s", status.Error.Message)
		}
		return &status, nil
	case err := <-errCh:
		return nil, fmt.Errorf("docker: waiting for container: %w", err)
	case <-ctx.Done():
		return nil, fmt.Errorf("docker: waiting for container: %w", ctx.Err())
	}
}

func (r *Runner) kill(containerID string) {
	killCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.cli.ContainerKill(killCtx, containerID, "KILL"); err != nil {
		r.logger.Warn("failed to kill container", slog.String("id", containerID), slog.String("error", err.Error()))
	}
}

func (r *Runner) logs(ctx context.Context, containerID string) (string, string, error) {
	reader, err := r.cli.ContainerLogs(ctx, containerID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return "", "", err
	}
	defer reader.Close()

	// Use stdcopy to demultiplex stdout from stderr
	stdout := executor.NewCappedBuffer(r.config.MaxOutputBytes)
	stderr := executor.NewCappedBuffer(r.config.MaxOutputBytes)
	if _, err := stdcopy.StdCopy(stdout, stderr, reader); err != nil {
		return "", "", err
	}
	return stdout.String(), stderr.String(), nil
}
