package config

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(envFrom(nil), nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 8787, cfg.Port)
	assert.Equal(t, 8788, cfg.GRPCPort)
	assert.Empty(t, cfg.RulesDir)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "0.0.0.0:8787", cfg.Addr())
	assert.Equal(t, "0.0.0.0:8788", cfg.GRPCAddr())
}

func TestLoadEnvAndOverrides(t *testing.T) {
	dir := t.TempDir()
	env := envFrom(map[string]string{
		"PORT":      "9000",
		"HOST":      "127.0.0.1",
		"RULES_DIR": dir,
		"LOG_LEVEL": "debug",
		"GRPC_PORT": "",
	})

	cfg, err := Load(env, nil)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, dir, cfg.RulesDir)
	assert.Equal(t, 8788, cfg.GRPCPort, "empty env values are ignored")
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())

	// Flags win over the environment.
	cfg, err = Load(env, map[string]any{"port": 9100, "grpc_port": 9101})
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 9101, cfg.GRPCPort)
	assert.Equal(t, "127.0.0.1:9100", cfg.Addr())
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		overrides map[string]any
		wantErr   string
	}{
		{"port out of range", map[string]string{"PORT": "70000"}, nil, "'Port'"},
		{"port not a number", map[string]string{"PORT": "http"}, nil, "failed to apply config values"},
		{"same ports", nil, map[string]any{"port": 9000, "grpc_port": 9000}, "'GRPCPort'"},
		{"bad log level", map[string]string{"LOG_LEVEL": "trace"}, nil, "'LogLevel'"},
		{"missing rules dir", nil, map[string]any{"rules_dir": filepath.Join(t.TempDir(), "nope")}, "'RulesDir'"},
		{"unknown key", nil, map[string]any{"workers": 4}, "workers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(envFrom(tt.env), tt.overrides)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSlogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, (&Config{LogLevel: "warn"}).SlogLevel())
	assert.Equal(t, slog.LevelError, (&Config{LogLevel: "error"}).SlogLevel())
	assert.Equal(t, slog.LevelInfo, (&Config{LogLevel: "bogus"}).SlogLevel())
}
