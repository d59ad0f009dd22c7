package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.HTTP.Port)
	assert.Equal(t, 9090, cfg.GRPC.Port)
	assert.Equal(t, "/data/auditor.db", cfg.Database.Path)
	assert.Equal(t, 8, cfg.Runner.Workers)
	assert.Equal(t, 5*time.Minute, cfg.Runner.Timeout)
	assert.Equal(t, 15*time.Second, cfg.Runner.ConnectTimeout)
	assert.Equal(t, []string{"local"}, cfg.Runner.LocalHosts)
	assert.Equal(t, 168*time.Hour, cfg.Retention.Period)
	assert.Contains(t, cfg.HTTP.CORSOrigins, "http://localhost:3000")
}

func TestLoadFileAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())

	path := filepath.Join(t.TempDir(), "auditor.toml")
	content := `
[database]
path = "/tmp/audit.db"

[runner]
workers = 3
timeout = "30s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("AUDITOR_HTTP_PORT", "8080")
	t.Setenv("AUDITOR_RUNNER_CONNECT_TIMEOUT", "2s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/audit.db", cfg.Database.Path)
	assert.Equal(t, 3, cfg.Runner.Workers)
	assert.Equal(t, 30*time.Second, cfg.Runner.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Runner.ConnectTimeout)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, ":8080", cfg.HTTPAddr())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runner.workers")
	assert.Contains(t, err.Error(), "database.path")
}
