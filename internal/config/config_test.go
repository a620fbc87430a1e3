package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	chdir(t, t.TempDir()) // no .env
	t.Setenv("JWT_SECRET", "s3cret")

	require.NoError(t, LoadConfig())
	assert.Equal(t, "8080", AppConfig.HTTPPort)
	assert.Equal(t, "bolt", AppConfig.StorageBackend)
	assert.Equal(t, "data/mindfulspace.db", AppConfig.DatabaseURL)
	assert.Equal(t, 5*time.Second, AppConfig.StorageTimeout)
	assert.Equal(t, 24*time.Hour, AppConfig.TokenTTL)
	assert.Equal(t, []string{"*"}, AppConfig.CORSOrigins)
	assert.Empty(t, AppConfig.GeminiAPIKey)
}

func TestLoadConfig_Overrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("STORAGE_BACKEND", "SQLite")
	t.Setenv("STORAGE_TIMEOUT", "250ms")
	t.Setenv("CORS_ORIGINS", "http://a.test, http://b.test,")
	t.Setenv("LOG_LEVEL", "DEBUG")

	require.NoError(t, LoadConfig())
	assert.Equal(t, "sqlite", AppConfig.StorageBackend)
	assert.Equal(t, 250*time.Millisecond, AppConfig.StorageTimeout)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, AppConfig.CORSOrigins)
	assert.Equal(t, "debug", AppConfig.LogLevel)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad backend", map[string]string{"JWT_SECRET": "x", "STORAGE_BACKEND": "redis"}},
		{"bad timeout", map[string]string{"JWT_SECRET": "x", "STORAGE_TIMEOUT": "soon"}},
		{"negative ttl", map[string]string{"JWT_SECRET": "x", "TOKEN_TTL": "-1h"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			assert.Error(t, LoadConfig())
		})
	}
}

func TestRequireJWTSecret(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("JWT_SECRET", "")

	require.NoError(t, LoadConfig(), "loading never needs a secret")
	assert.ErrorIs(t, RequireJWTSecret(), ErrMissingJWTSecret)

	t.Setenv("JWT_SECRET", "s3cret")
	require.NoError(t, LoadConfig())
	assert.NoError(t, RequireJWTSecret())
}
