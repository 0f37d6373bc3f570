package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:17171", cfg.Server.GRPC.Address)
	assert.Equal(t, 1000, cfg.Server.GRPC.MaxConcurrentStreams)
	assert.Equal(t, 2*time.Minute, cfg.Server.GRPC.KeepaliveTime)
	assert.Equal(t, "/ws", cfg.Server.WebSocket.Path)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 1, cfg.Engine.PlanVersion)
	assert.True(t, cfg.Engine.Mulligans)
}

func TestLoadFileAndEnvironment(t *testing.T) {
	path := writeConfig(t, `
server:
  grpc:
    address: 127.0.0.1:5000
database:
  driver: sqlite
  path: /tmp/referee.db
logging:
  level: debug
  format: json
`)
	t.Setenv("PTCG_ENGINE_PLAN_VERSION", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:5000", cfg.Server.GRPC.Address)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/referee.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, 3, cfg.Engine.PlanVersion)
}

func TestValidationFailures(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown driver", "database:\n  driver: mysql\n", "Driver"},
		{"postgres without url", "database:\n  driver: postgres\n  url: \"\"\n", "URL"},
		{"bad level", "logging:\n  level: verbose\n", "Level"},
		{"bad address", "server:\n  grpc:\n    address: nowhere\n", "Address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestShippedConfigIsValid(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}
