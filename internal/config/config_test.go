package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://project.backend.example/")
	t.Setenv("BACKEND_ANON_KEY", "anon")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://project.backend.example", cfg.Backend.URL)
	assert.Equal(t, "http://localhost:3000", cfg.Server.SiteURL)
	assert.Equal(t, 30*time.Second, cfg.Redis.BoardCacheTTL)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://project.backend.example")
	t.Setenv("BACKEND_ANON_KEY", "anon")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("TOKEN_REFRESH_WINDOW", "1h")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, time.Hour, cfg.Refresh.Window)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoad_MissingBackend(t *testing.T) {
	t.Setenv("BACKEND_URL", "")
	t.Setenv("BACKEND_ANON_KEY", "anon")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend URL is required")
}

func TestValidate_Port(t *testing.T) {
	cfg := &Config{
		Server:   ServerConfig{Port: 70000, SiteURL: "http://localhost"},
		Database: DatabaseConfig{DSN: "postgres://"},
		Backend:  BackendConfig{URL: "http://b", AnonKey: "k"},
	}
	assert.Error(t, cfg.Validate())
}

func TestServerConfig_Origins(t *testing.T) {
	explicit := ServerConfig{SiteURL: "https://app.example", AllowedOrigins: []string{"https://a.example"}}
	assert.Equal(t, []string{"https://a.example"}, explicit.Origins())

	fallback := ServerConfig{SiteURL: "https://app.example"}
	assert.Equal(t, []string{"https://app.example"}, fallback.Origins())

	assert.Empty(t, ServerConfig{}.Origins())
}

func TestLoad_BackendTimeout(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://project.backend.example")
	t.Setenv("BACKEND_ANON_KEY", "anon")
	t.Setenv("BACKEND_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Backend.Timeout)
}
