// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface of testd, the driver adapter
// test executor. The root command serves JSON-RPC requests on stdin and
// writes responses to stdout; every diagnostic goes to stderr.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"testd/executor/internal/config"
	"testd/executor/internal/logging"
	"testd/executor/internal/server"
	"testd/executor/internal/terminal"
	"testd/executor/internal/xdg"
)

var (
	configPath string
	logLevel   string
)

// rootCmd runs the executor until stdin closes or the process is signalled.
var rootCmd = &cobra.Command{
	Use:   "testd",
	Short: "Driver adapter test executor speaking JSON-RPC over stdio",
	Long: `testd answers newline-delimited JSON-RPC 2.0 requests on stdin, one response
line per request on stdout. Each initializeSchema request opens an isolated
session: a driver adapter for the given connection URL and a query engine
hosted according to EXTERNAL_TEST_EXECUTOR.

Settings come from an optional --config file (.toml, .yaml or .yml) and the
environment, which takes precedence.`,
	Args:          cobra.NoArgs,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

// Execute runs the CLI application and exits with status 1 on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "testd: panic: %v\n%s", r, debug.Stack())
			stop()
			os.Exit(1)
		}
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, logging.PresentError("testd", err))
		stop()
		os.Exit(1)
	}
	stop()
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to a .toml or .yaml config file (default: $XDG_CONFIG_HOME/testd/config.toml if present)")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error or off (overrides TESTD_LOG_LEVEL)")
}

func run(ctx context.Context) error {
	path := configPath
	if path == "" {
		found, err := xdg.FindConfigFile()
		if err != nil {
			return err
		}
		path = found
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if !terminal.IsTerminal(os.Stderr) {
		pterm.DisableColor()
	}
	logger, err := logging.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	logEnvironment(logger, cfg)

	d := server.NewDispatcher(cfg, server.Deps{Logger: logger})
	return server.New(d, logger).Serve(ctx, os.Stdin, os.Stdout)
}

// logEnvironment reports the settings the executor started with.
func logEnvironment(logger *pterm.Logger, cfg config.Config) {
	env := make([]any, 0, 2*len(config.EnvKeys))
	for _, key := range config.EnvKeys {
		if v, ok := os.LookupEnv(key); ok {
			env = append(env, key, logging.Mask(v))
		}
	}
	logger.Info("environment", logger.Args(env...))
	logger.Info("starting executor", logger.Args(
		"version", Version,
		"executor", string(cfg.Executor),
		"driver_adapter", string(cfg.DriverAdapter),
		"max_connections", cfg.DriverAdapterConfig.MaxConnections,
	))
}
