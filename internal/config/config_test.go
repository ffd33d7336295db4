package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shree113/newcd/internal/language"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "codeexec.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	// No codeexec.yaml in an empty working directory.
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"https://new-fd.vercel.app", "http://localhost:3000"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, BackendProcess, cfg.Executor.Backend)
	assert.Equal(t, int64(4), cfg.Executor.MaxConcurrent)
	assert.Equal(t, 10*time.Second, cfg.Executor.QueueTimeout)
	assert.True(t, cfg.History.Enabled)
	assert.Empty(t, cfg.Auth.JWTSecret)

	out, err := cfg.MaxOutputBytes()
	require.NoError(t, err)
	assert.Equal(t, 64*1024, out)

	mem, err := cfg.MemoryLimitBytes()
	require.NoError(t, err)
	assert.Equal(t, int64(512*1024*1024), mem)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9000
log:
  level: debug
  format: json
executor:
  backend: docker
  max_concurrent: 8
  queue_timeout: 2s
  max_output: 1m
history:
  enabled: false
`)
	t.Setenv("CODEEXEC_SERVER_PORT", "9100")
	t.Setenv("CODEEXEC_AUTH_JWT_SECRET", "0123456789abcdef0123")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, BackendDocker, cfg.Executor.Backend)
	assert.Equal(t, int64(8), cfg.Executor.MaxConcurrent)
	assert.Equal(t, 2*time.Second, cfg.Executor.QueueTimeout)
	assert.False(t, cfg.History.Enabled)
	assert.Equal(t, "0123456789abcdef0123", cfg.Auth.JWTSecret)

	out, err := cfg.MaxOutputBytes()
	require.NoError(t, err)
	assert.Equal(t, 1024*1024, out)
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown backend", "executor:\n  backend: vm\n"},
		{"zero concurrency", "executor:\n  max_concurrent: 0\n"},
		{"bad size", "executor:\n  max_output: lots\n"},
		{"bad level", "log:\n  level: chatty\n"},
		{"bad format", "log:\n  format: xml\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"bad language memory", "languages:\n  python:\n    memory_limit: plenty\n"},
		{"zero language memory", "languages:\n  python:\n    memory_limit: \"0\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestProfiles_Merge(t *testing.T) {
	path := writeConfig(t, `
languages:
  python:
    run: ["pypy3", "{source}"]
    run_timeout: 8s
  java:
    disabled: true
  ruby:
    extension: .rb
    run: ["ruby", "{source}"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	profiles := cfg.Profiles()
	byKey := make(map[string]language.Profile)
	var keys []string
	for _, p := range profiles {
		byKey[p.Key] = p
		keys = append(keys, p.Key)
	}

	assert.IsIncreasing(t, keys)
	assert.NotContains(t, byKey, "java")

	py := byKey["python"]
	assert.Equal(t, []string{"pypy3", "{source}"}, py.RunCommand)
	assert.Equal(t, 8*time.Second, py.RunTimeout)
	assert.Equal(t, ".py", py.Extension, "unset fields keep the built-in value")

	require.Contains(t, byKey, "ruby")
	assert.Equal(t, ".rb", byKey["ruby"].Extension)

	// The merged set must be a valid registry.
	_, err = language.NewRegistry(profiles)
	require.NoError(t, err)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelInfo, "json").Info("hello", slog.String("k", "v"))
	assert.Contains(t, buf.String(), `"msg":"hello"`)

	buf.Reset()
	logger := NewLogger(&buf, slog.LevelWarn, "text")
	logger.Info("dropped")
	logger.Warn("kept")
	assert.NotContains(t, buf.String(), "dropped")
	assert.Contains(t, buf.String(), "msg=kept")
}

func TestProfiles_MemoryLimit(t *testing.T) {
	path := writeConfig(t, `
languages:
  python:
    memory_limit: 128m
  java:
    memory_limit: unlimited
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	byKey := make(map[string]language.Profile)
	for _, p := range cfg.Profiles() {
		byKey[p.Key] = p
	}
	assert.Equal(t, int64(128*1024*1024), byKey["python"].MemoryLimit)
	assert.Equal(t, int64(-1), byKey["java"].MemoryLimit)
	assert.Equal(t, int64(1<<30), byKey["javascript"].MemoryLimit, "built-in override survives")
	assert.Zero(t, byKey["c"].MemoryLimit, "c keeps the executor default")
}
