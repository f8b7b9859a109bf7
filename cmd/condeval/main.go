// Package main is the entry point for the condeval command.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lemonberrylabs/condeval/pkg/api"
	grpcapi "github.com/lemonberrylabs/condeval/pkg/api/grpc"
	"github.com/lemonberrylabs/condeval/pkg/config"
	"github.com/lemonberrylabs/condeval/pkg/expr"
	"github.com/lemonberrylabs/condeval/pkg/store"
	"github.com/lemonberrylabs/condeval/web"
)

// Set via -ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "condeval",
		Short:        "Evaluate safe condition expressions",
		SilenceUsage: true,
	}
	root.Version = version + " (commit=" + commit + ", built=" + date + ")"
	root.SetVersionTemplate("condeval version {{.Version}}\n")

	root.AddCommand(newEvalCmd(), newCheckCmd(), newTokensCmd(), newServeCmd())
	return root
}

// serveFlags maps serve flags to configuration keys.
var serveFlags = map[string]string{
	"host":      "host",
	"port":      "port",
	"grpc-port": "grpc_port",
	"rules-dir": "rules_dir",
	"log-level": "log_level",
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, dashboard and gRPC server",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().Int("port", 0, "HTTP server port (default 8787, env PORT)")
	cmd.Flags().Int("grpc-port", 0, "gRPC server port (default 8788, env GRPC_PORT)")
	cmd.Flags().String("host", "", "Bind address (default 0.0.0.0, env HOST)")
	cmd.Flags().String("rules-dir", "", "Directory of YAML rule files to load (env RULES_DIR)")
	cmd.Flags().String("log-level", "", "Log level: debug, info, warn or error (default info, env LOG_LEVEL)")
	return cmd
}

// flagOverrides collects the serve flags the user set explicitly.
func flagOverrides(cmd *cobra.Command) (map[string]any, error) {
	overrides := make(map[string]any)
	for flag, key := range serveFlags {
		f := cmd.Flags().Lookup(flag)
		if f == nil || !f.Changed {
			continue
		}
		switch f.Value.Type() {
		case "int":
			v, err := cmd.Flags().GetInt(flag)
			if err != nil {
				return nil, err
			}
			overrides[key] = v
		default:
			overrides[key] = f.Value.String()
		}
	}
	return overrides, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	overrides, err := flagOverrides(cmd)
	if err != nil {
		return err
	}
	cfg, err := config.Load(os.LookupEnv, overrides)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	s := store.New(store.WithExprOptions(expr.WithLogger(logger)))
	server := api.New(s, api.WithLogger(logger))
	grpcServer := grpcapi.New(s)

	if cfg.RulesDir != "" {
		n, err := server.WatchDir(cfg.RulesDir)
		if err != nil {
			logger.Warn("some rule files failed to load", "dir", cfg.RulesDir, "error", err)
			grpcServer.SetRulesHealthy(false)
		}
		logger.Info("rules loaded", "dir", cfg.RulesDir, "count", n)
	} else {
		logger.Info("API-only mode (no --rules-dir specified)")
	}

	if ui, err := web.New(s); err != nil {
		logger.Warn("web UI disabled", "error", err)
	} else {
		ui.Register(server.App())
	}

	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr())
		if err := grpcServer.Serve(cfg.GRPCAddr()); err != nil {
			logger.Error("gRPC server error", "error", err)
			os.Exit(1)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		logger.Info("shutting down")
		grpcServer.GracefulStop()
		if err := server.Shutdown(); err != nil {
			logger.Error("error during shutdown", "error", err)
		}
	}()

	logger.Info("condeval listening", "addr", cfg.Addr(), "version", version)
	return server.Listen(cfg.Addr())
}
