// Package config holds the server settings assembled from flags and the
// environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// Config holds the application configuration.
type Config struct {
	Root         string
	Transport    string
	Host         string
	Port         int
	Heartbeat    time.Duration
	ShellTimeout time.Duration
	MaxBodyBytes int64
	LogFormat    string
	LogLevel     string
}

// Default returns the built-in settings with environment overrides applied.
func Default() *Config {
	cfg := &Config{
		Root:         os.Getenv("MCP_SANDBOX_ROOT"),
		Transport:    envOr("MCP_TRANSPORT", TransportHTTP),
		Host:         envOr("MCP_HOST", "localhost"),
		Port:         8000,
		Heartbeat:    30 * time.Second,
		ShellTimeout: 30 * time.Second,
		MaxBodyBytes: 16 << 20,
		LogFormat:    "text",
		LogLevel:     "info",
	}
	if p, err := strconv.Atoi(os.Getenv("PORT")); err == nil {
		cfg.Port = p
	}
	return cfg
}

// AddFlags binds cfg's fields to fs. Current field values become the flag
// defaults, so call it after Default.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Root, "root", c.Root, "Directory all tools are confined to (env: MCP_SANDBOX_ROOT)")
	fs.StringVar(&c.Transport, "transport", c.Transport, "Transport to use: 'http' or 'stdio' (env: MCP_TRANSPORT)")
	fs.StringVar(&c.Host, "host", c.Host, "Host to bind for HTTP transport (env: MCP_HOST)")
	fs.IntVar(&c.Port, "port", c.Port, "Port for HTTP transport (env: PORT)")
	fs.DurationVar(&c.Heartbeat, "heartbeat", c.Heartbeat, "Interval between SSE ping events")
	fs.DurationVar(&c.ShellTimeout, "shell-timeout", c.ShellTimeout, "Default timeout for the shell tool")
	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", c.MaxBodyBytes, "Maximum accepted request body size")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "Log format: 'text' or 'json'")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "Log level: 'debug', 'info', 'warn', 'error'")
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Root == "" {
		errs = append(errs, errors.New("a root directory is required (argument, --root or MCP_SANDBOX_ROOT)"))
	}
	if c.Transport != TransportHTTP && c.Transport != TransportStdio {
		errs = append(errs, fmt.Errorf("--transport must be 'http' or 'stdio', got %q", c.Transport))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("--port must be between 1 and 65535, got %d", c.Port))
	}
	if c.Heartbeat <= 0 {
		errs = append(errs, errors.New("--heartbeat must be positive"))
	}
	if c.ShellTimeout <= 0 {
		errs = append(errs, errors.New("--shell-timeout must be positive"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("--max-body-bytes must be positive"))
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("--log-format must be 'text' or 'json', got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

var logLevelMap = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Level maps LogLevel to a slog level, falling back to info.
func (c *Config) Level() slog.Level {
	level, exists := logLevelMap[strings.ToLower(c.LogLevel)]
	if !exists {
		return slog.LevelInfo
	}
	return level
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
