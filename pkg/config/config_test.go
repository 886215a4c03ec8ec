package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"MCP_SANDBOX_ROOT", "MCP_TRANSPORT", "MCP_HOST", "PORT"} {
		t.Setenv(k, "")
	}
}

func TestDefault(t *testing.T) {
	clearEnv(t)

	cfg := Default()
	assert.Equal(t, "", cfg.Root)
	assert.Equal(t, TransportHTTP, cfg.Transport)
	assert.Equal(t, "localhost:8000", cfg.Addr())
	assert.Equal(t, 30*time.Second, cfg.Heartbeat)
	assert.Equal(t, 30*time.Second, cfg.ShellTimeout)
	assert.EqualValues(t, 16<<20, cfg.MaxBodyBytes)
}

func TestEnvironmentFallbacks(t *testing.T) {
	clearEnv(t)
	t.Setenv("MCP_SANDBOX_ROOT", "/srv/box")
	t.Setenv("MCP_TRANSPORT", "stdio")
	t.Setenv("MCP_HOST", "0.0.0.0")
	t.Setenv("PORT", "9123")

	cfg := Default()
	assert.Equal(t, "/srv/box", cfg.Root)
	assert.Equal(t, TransportStdio, cfg.Transport)
	assert.Equal(t, "0.0.0.0:9123", cfg.Addr())
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9123")

	cfg := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	cfg.AddFlags(fs)
	require.NoError(t, fs.Parse([]string{"--port", "7000", "--heartbeat", "5s", "--log-level", "debug"}))

	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, 5*time.Second, cfg.Heartbeat)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	valid := func() *Config {
		c := Default()
		c.Root = "/tmp"
		return c
	}
	require.NoError(t, valid().Validate())

	cases := map[string]func(*Config){
		"missing root":      func(c *Config) { c.Root = "" },
		"bad transport":     func(c *Config) { c.Transport = "ws" },
		"port zero":         func(c *Config) { c.Port = 0 },
		"port too big":      func(c *Config) { c.Port = 70000 },
		"zero heartbeat":    func(c *Config) { c.Heartbeat = 0 },
		"negative timeout":  func(c *Config) { c.ShellTimeout = -time.Second },
		"zero body limit":   func(c *Config) { c.MaxBodyBytes = 0 },
		"unknown logformat": func(c *Config) { c.LogFormat = "xml" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestLevelFallsBackToInfo(t *testing.T) {
	assert.Equal(t, slog.LevelInfo, (&Config{LogLevel: "loud"}).Level())
	assert.Equal(t, slog.LevelWarn, (&Config{LogLevel: "WARN"}).Level())
}
