package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"taskbeat/internal/app"
	"taskbeat/internal/config"
)

var version = "dev"

type rootOptions struct {
	cfgPath string
	url     string
	token   string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "taskbeat",
		Short:         "Run built-in scheduled tasks and inspect them over the management API",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts.cfgPath)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.cfgPath, "config", "", "path to config (json or yaml); empty uses built-in defaults")
	pf.StringVar(&opts.url, "url", "http://"+config.DefaultManagementAddr+config.DefaultBasePath, "management base URL")
	pf.StringVar(&opts.token, "token", os.Getenv("TASKBEAT_TOKEN"), "management bearer token")

	root.AddCommand(
		newServeCommand(opts),
		newTasksCommand(opts),
		newHealthCommand(opts),
		newInfoCommand(opts),
		newLoggersCommand(opts),
		newMetricsCommand(opts),
		newEnvCommand(opts),
		newThreadDumpCommand(opts),
		newRawCommand(opts),
	)
	return root
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and management server (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts.cfgPath)
		},
	}
}

func runServe(ctx context.Context, cfgPath string) error {
	a, err := app.NewApp(cfgPath, app.WithVersion(version))
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout(a.Config()))
		defer cancel()
		_ = a.Stop(shutdownCtx, app.StopFatalError)
		return fmt.Errorf("start: %w", err)
	}

	reason := app.StopSignal
	select {
	case <-ctx.Done():
	case <-a.Done():
		reason = app.StopFatalError
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.ShutdownTimeout(a.Config()))
	defer cancel()
	return a.Stop(shutdownCtx, reason)
}
