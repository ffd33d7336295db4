// Package main is the entry point for the code execution server.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
//  1. Read configuration (flags, config file, environment)
//  2. Create dependencies (logger, runner, history database, etc.)
//  3. Start the application
//
// All actual logic lives in internal/. The commands here only parse flags and
// call the same wiring (app.go), so "serve" and the one-shot "run" exercise
// exactly the same dispatcher.
//
// COMMANDS:
//
//	server serve                       start the HTTP API (default)
//	server run --language c main.c     execute one file and print the output
//	server languages                   list profiles and toolchain availability
//	server token --subject quiz-app    mint a bearer token for /execute
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Shree113/newcd/internal/config"
)

var (
	configFlag string

	// Set by the root command's PersistentPreRunE before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Compile-and-run service for student code submissions",
	Long: `server accepts source code in a configured language, compiles it if the
language needs compiling, runs it under time and output limits, and returns
a single text result.

Configuration is read from codeexec.yaml (in . or /etc/codeexec, or --config)
and CODEEXEC_* environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configFlag)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
	// Bare "server" behaves like "server serve", the way the container
	// image starts it.
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a config file (default: search ./codeexec.yaml, /etc/codeexec/codeexec.yaml)")
}

func main() {
	// SIGINT and SIGTERM cancel the command context: serve shuts down
	// gracefully and run kills the program it is executing.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds the logger from config. The server logs to stdout; the
// one-shot commands log to stderr so their stdout stays the program output.
func newLogger(toStderr bool) *slog.Logger {
	level, _ := config.ParseLevel(cfg.Log.Level) // validated by Load
	w := os.Stdout
	if toStderr {
		w = os.Stderr
	}
	return config.NewLogger(w, level, cfg.Log.Format)
}
