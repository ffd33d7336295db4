// Package config loads the service configuration.
//
// LAYERING:
// Values come from three places, later ones winning:
//  1. Defaults set in Load
//  2. An optional YAML file (codeexec.yaml in . or /etc/codeexec, or --config)
//  3. Environment variables prefixed CODEEXEC_, with dots as underscores:
//     CODEEXEC_SERVER_PORT=9000 overrides server.port
//
// Config is read once at startup. Nothing reloads it at runtime, so the
// language registry built from it is immutable for the life of the process.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/spf13/viper"

	"github.com/Shree113/newcd/internal/language"
)

const (
	BackendProcess = "process"
	BackendDocker  = "docker"

	envPrefix  = "CODEEXEC"
	configName = "codeexec"
)

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ExecutorConfig struct {
	Backend       string        `mapstructure:"backend"`
	MaxConcurrent int64         `mapstructure:"max_concurrent"`
	QueueTimeout  time.Duration `mapstructure:"queue_timeout"`
	// Sizes are strings like "64k" or "512m".
	MaxOutput     string        `mapstructure:"max_output"`
	MemoryLimit   string        `mapstructure:"memory_limit"`
	CPUTimeLimit  time.Duration `mapstructure:"cpu_time_limit"`
	MaxProcesses  int           `mapstructure:"max_processes"`
	WorkspaceRoot string        `mapstructure:"workspace_root"`
}

type DockerConfig struct {
	User      string  `mapstructure:"user"`
	CPUs      float64 `mapstructure:"cpus"`
	PidsLimit int64   `mapstructure:"pids_limit"`
	TmpfsSize string  `mapstructure:"tmpfs_size"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	DBPath  string `mapstructure:"db_path"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

// LanguageConfig overrides fields of a built-in profile, or defines a new one
// when the key is not built in. Zero fields keep the built-in value.
type LanguageConfig struct {
	Extension      string        `mapstructure:"extension"`
	SourceName     string        `mapstructure:"source_name"`
	Artifact       string        `mapstructure:"artifact"`
	Compile        []string      `mapstructure:"compile"`
	Run            []string      `mapstructure:"run"`
	CompileTimeout time.Duration `mapstructure:"compile_timeout"`
	RunTimeout     time.Duration `mapstructure:"run_timeout"`
	Image          string        `mapstructure:"image"`
	// MemoryLimit replaces executor.memory_limit for this language. A size
	// like "1g", or "unlimited".
	MemoryLimit string `mapstructure:"memory_limit"`
	Disabled    bool   `mapstructure:"disabled"`
}

// languageMemory converts a language memory_limit to the profile field:
// 0 keeps the runner default, -1 removes the ceiling.
func languageMemory(s string) (int64, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return 0, nil
	case "unlimited":
		return -1, nil
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive or \"unlimited\"")
	}
	return n, nil
}

type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Log       LogConfig                 `mapstructure:"log"`
	Executor  ExecutorConfig            `mapstructure:"executor"`
	Docker    DockerConfig              `mapstructure:"docker"`
	History   HistoryConfig             `mapstructure:"history"`
	Auth      AuthConfig                `mapstructure:"auth"`
	Languages map[string]LanguageConfig `mapstructure:"languages"`
}

// Load reads the configuration. An empty path searches the default
// locations and tolerates a missing file; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/codeexec")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key. AutomaticEnv only consults the
// environment for keys viper already knows, so a key without a default could
// never be set from CODEEXEC_*.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	// The quiz frontend's deployed and local origins.
	v.SetDefault("server.allowed_origins", []string{"https://new-fd.vercel.app", "http://localhost:3000"})
	v.SetDefault("server.write_timeout", "60s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("executor.backend", BackendProcess)
	v.SetDefault("executor.max_concurrent", 4)
	v.SetDefault("executor.queue_timeout", "10s")
	v.SetDefault("executor.max_output", "64k")
	v.SetDefault("executor.memory_limit", "512m")
	v.SetDefault("executor.cpu_time_limit", "10s")
	v.SetDefault("executor.max_processes", 0)
	v.SetDefault("executor.workspace_root", "")

	v.SetDefault("docker.user", "")
	v.SetDefault("docker.cpus", 1.0)
	v.SetDefault("docker.pids_limit", 64)
	v.SetDefault("docker.tmpfs_size", "64m")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.db_path", "data/executions.db")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "newcd")
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d is out of range", c.Server.Port)
	}
	switch c.Executor.Backend {
	case BackendProcess, BackendDocker:
	default:
		return fmt.Errorf("executor.backend must be %q or %q, got %q", BackendProcess, BackendDocker, c.Executor.Backend)
	}
	if c.Executor.MaxConcurrent <= 0 {
		return fmt.Errorf("executor.max_concurrent must be positive")
	}
	if _, err := c.MaxOutputBytes(); err != nil {
		return err
	}
	if _, err := c.MemoryLimitBytes(); err != nil {
		return err
	}
	for key, lc := range c.Languages {
		if _, err := languageMemory(lc.MemoryLimit); err != nil {
			return fmt.Errorf("languages.%s.memory_limit: %w", key, err)
		}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// MaxOutputBytes is the per-stream capture ceiling.
func (c *Config) MaxOutputBytes() (int, error) {
	n, err := units.RAMInBytes(c.Executor.MaxOutput)
	if err != nil {
		return 0, fmt.Errorf("executor.max_output: %w", err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("executor.max_output must be positive")
	}
	return int(n), nil
}

// MemoryLimitBytes is the per-child memory ceiling. Zero disables it.
func (c *Config) MemoryLimitBytes() (int64, error) {
	n, err := units.RAMInBytes(c.Executor.MemoryLimit)
	if err != nil {
		return 0, fmt.Errorf("executor.memory_limit: %w", err)
	}
	if n < 0 {
		return 0, fmt.Errorf("executor.memory_limit cannot be negative")
	}
	return n, nil
}

// Profiles merges the configured language entries over the built-in
// profiles. The result is sorted by key so the listing is stable.
func (c *Config) Profiles() []language.Profile {
	byKey := make(map[string]language.Profile)
	for _, p := range language.Defaults() {
		byKey[p.Key] = p
	}

	for key, lc := range c.Languages {
		key = strings.ToLower(strings.TrimSpace(key))
		if lc.Disabled {
			delete(byKey, key)
			continue
		}
		p, ok := byKey[key]
		if !ok {
			p = language.Profile{Key: key}
		}
		if lc.Extension != "" {
			p.Extension = lc.Extension
		}
		if lc.SourceName != "" {
			p.SourceName = lc.SourceName
		}
		if lc.Artifact != "" {
			p.Artifact = lc.Artifact
		}
		if len(lc.Compile) > 0 {
			p.CompileCommand = lc.Compile
		}
		if len(lc.Run) > 0 {
			p.RunCommand = lc.Run
		}
		if lc.CompileTimeout > 0 {
			p.CompileTimeout = lc.CompileTimeout
		}
		if lc.RunTimeout > 0 {
			p.RunTimeout = lc.RunTimeout
		}
		if lc.Image != "" {
			p.Image = lc.Image
		}
		if memory, _ := languageMemory(lc.MemoryLimit); memory != 0 { // validated by Load
			p.MemoryLimit = memory
		}
		byKey[key] = p
	}

	profiles := make([]language.Profile, 0, len(byKey))
	for _, key := range slices.Sorted(maps.Keys(byKey)) {
		profiles = append(profiles, byKey[key])
	}
	return profiles
}

// ParseLevel accepts debug, info, warn and error.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log.level %q is not one of debug, info, warn, error", s)
	}
}

// NewLogger builds the process logger. "json" suits log shippers; anything
// else gets the human-readable text handler.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
