package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Shree113/newcd/internal/config"
	"github.com/Shree113/newcd/internal/executor"
	"github.com/Shree113/newcd/internal/executor/docker"
	"github.com/Shree113/newcd/internal/executor/process"
	"github.com/Shree113/newcd/internal/language"
	"github.com/Shree113/newcd/internal/metrics"
	"github.com/Shree113/newcd/internal/repository"
	sqliteRepo "github.com/Shree113/newcd/internal/repository/sqlite"
	"github.com/Shree113/newcd/internal/service"
	"github.com/Shree113/newcd/internal/workspace"
)

// app is the composition root shared by every command.
type app struct {
	registry *language.Registry
	history  repository.ExecutionRepository
	metrics  *metrics.Collector
	service  *service.ExecutionService

	closers []func() error
}

// newApp builds the runner, registry, workspace manager, optional history
// store and the execution service from cfg.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, withHistory bool) (_ *app, err error) {
	a := &app{metrics: metrics.NewDefault()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	maxOutput, err := cfg.MaxOutputBytes()
	if err != nil {
		return nil, err
	}
	memory, err := cfg.MemoryLimitBytes()
	if err != nil {
		return nil, err
	}
	profiles := cfg.Profiles()

	var (
		runner   executor.Runner
		regOpts  []language.Option
		wsOpts   []workspace.Option
		imageSet []string
	)

	switch cfg.Executor.Backend {
	case config.BackendDocker:
		dr, err := docker.New(docker.Config{
			User:           cfg.Docker.User,
			MemoryLimit:    memory,
			CPULimit:       cfg.Docker.CPUs,
			PidsLimit:      cfg.Docker.PidsLimit,
			MaxOutputBytes: maxOutput,
			TmpfsSize:      cfg.Docker.TmpfsSize,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("connecting to docker: %w", err)
		}
		a.closers = append(a.closers, dr.Close)

		for _, p := range profiles {
			imageSet = append(imageSet, p.Image)
		}
		if err := dr.EnsureImages(ctx, imageSet); err != nil {
			return nil, fmt.Errorf("pulling language images: %w", err)
		}
		runner = dr

		// Toolchains live in the images, not on the host.
		regOpts = append(regOpts, language.WithLookPath(func(string) (string, error) { return "", nil }))
		// Whatever a stage writes into the bind mount is owned by the
		// container user. If that is not us, the directory has to be
		// writable for it and only a container running as it can delete
		// what it made.
		wsOpts = append(wsOpts, workspace.WithPurge(dr.Purge))
		if !dr.OwnsWorkspaces() {
			logger.Info("stage containers run as a different user, workspaces are world-writable",
				slog.String("user", dr.User()))
			wsOpts = append(wsOpts, workspace.WithDirMode(0o777))
		}

	default:
		runner = process.New(process.Config{
			MaxOutputBytes:   maxOutput,
			CPUTimeLimit:     cfg.Executor.CPUTimeLimit,
			MemoryLimitBytes: memory,
			MaxProcesses:     cfg.Executor.MaxProcesses,
		}, logger)
	}

	a.registry, err = language.NewRegistry(profiles, regOpts...)
	if err != nil {
		return nil, fmt.Errorf("building language registry: %w", err)
	}

	workspaces, err := workspace.NewManager(cfg.Executor.WorkspaceRoot, logger, wsOpts...)
	if err != nil {
		return nil, err
	}
	// Leftovers from a crash would otherwise live until the next reboot.
	if n, err := workspaces.Sweep(); err != nil {
		logger.Warn("workspace sweep failed", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("removed stale workspaces", slog.Int("count", n), slog.String("root", workspaces.Root()))
	}

	if withHistory && cfg.History.Enabled {
		dir := filepath.Dir(cfg.History.DBPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
		db, err := sqliteRepo.New(cfg.History.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		a.history = db
	}

	a.service = service.NewExecutionService(
		a.registry,
		workspaces,
		executor.NewToolchain(runner, logger),
		a.history,
		a.metrics,
		logger,
		service.Config{
			MaxConcurrent: cfg.Executor.MaxConcurrent,
			QueueTimeout:  cfg.Executor.QueueTimeout,
		},
	)
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
