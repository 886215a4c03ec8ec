package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"mcp-sandbox-server/pkg/command"
	"mcp-sandbox-server/pkg/config"
	"mcp-sandbox-server/pkg/router"
	"mcp-sandbox-server/pkg/sandbox"
	"mcp-sandbox-server/pkg/tool"
	"mcp-sandbox-server/pkg/transport"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newApp().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cobra.Command {
	cfg := config.Default()
	cmd := &cobra.Command{
		Use:           "mcp-sandbox-server [directory]",
		Short:         "MCP server exposing filesystem, shell and patch tools confined to one directory",
		Version:       router.ServerVersion,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cfg.Root = args[0]
			}
			if err := cfg.Validate(); err != nil {
				_ = cmd.Usage()
				return fmt.Errorf("configuration error: %w", err)
			}
			setupLogger(cfg, os.Stderr)
			return run(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cfg.AddFlags(cmd.Flags())
	return cmd
}

func run(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout io.Writer) error {
	root, err := sandbox.NewRoot(cfg.Root)
	if err != nil {
		return fmt.Errorf("failed to initialize sandbox: %w", err)
	}

	slog.Info("Starting MCP sandbox server",
		"version", router.ServerVersion,
		"transport", cfg.Transport,
		"root", root.Path(),
	)

	registry := tool.NewRegistry(root, command.NewRunner(cfg.ShellTimeout))
	rt := router.New(registry)

	switch cfg.Transport {
	case config.TransportStdio:
		return transport.RunStdio(ctx, stdin, stdout, rt.Handle)
	default:
		handler := transport.NewHTTPHandler(rt.Handle, transport.Options{
			Heartbeat:    cfg.Heartbeat,
			MaxBodyBytes: cfg.MaxBodyBytes,
			Probe:        router.InitializeResult(),
		})
		return transport.RunHTTP(ctx, cfg.Addr(), handler)
	}
}

func setupLogger(cfg *config.Config, w io.Writer) {
	var logHandler slog.Handler
	if cfg.LogFormat == "json" {
		logHandler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.Level()})
	} else {
		logHandler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Level()})
	}
	slog.SetDefault(slog.New(logHandler))
}
