package main

import (
	"github.com/spf13/cobra"

	"github.com/Shree113/newcd/internal/auth"
	"github.com/Shree113/newcd/internal/server"
)

var portFlag int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP server. POST /execute runs a submission; GET /api/languages,
/api/executions, /healthz and /metrics are read-only.

Examples:
  server serve
  server serve --port 9090
  CODEEXEC_EXECUTOR_BACKEND=docker server serve`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger(false)
	if portFlag != 0 {
		cfg.Server.Port = portFlag
	}

	a, err := newApp(cmd.Context(), cfg, logger, true)
	if err != nil {
		return err
	}
	defer a.Close()

	// JWT auth is optional. Without a secret /execute is open, which is
	// fine behind the quiz app's own gateway but nowhere else.
	var tokens *auth.TokenService
	if cfg.Auth.JWTSecret != "" {
		tokens, err = auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
		if err != nil {
			return err
		}
	} else {
		logger.Warn("auth.jwt_secret not set, /execute accepts unauthenticated requests")
	}

	// Toolchain availability is not checked here: the registry probes each
	// language on its first request, so startup stays fast and "server
	// languages" is the place to see what is installed.
	srv := server.New(server.Config{
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		WriteTimeout:   cfg.Server.WriteTimeout,
	}, server.Dependencies{
		Executor: a.service,
		Catalog:  a.registry,
		History:  a.history,
		Metrics:  a.metrics,
		Tokens:   tokens,
	}, logger)

	// Serve blocks until SIGINT or SIGTERM cancels the command context.
	return srv.Serve(cmd.Context())
}
