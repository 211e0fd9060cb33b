// Package cmd defines the argus command line interface.
package cmd

import (
	"context"
	"fmt"
	"os"

	"argus/bootstrap"

	"github.com/spf13/cobra"
)

var configPath string

// NewRootCmd builds the root command: run the Argus server.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "argus",
		Short: "Argus security log analysis engine",
		Long: "Argus ingests security logs (SSH, HTTP, Windows Event Log), normalizes\n" +
			"them into MongoDB and runs windowed detectors that raise deduplicated alerts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the directory holding config.yaml")
	rootCmd.AddCommand(newIngestCmd())
	return rootCmd
}

// newIngestCmd builds the ingest subcommand: run the server while also
// consuming raw log lines from files or stdin.
func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Run the server and ingest raw log lines from files or stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(args)
		},
	}
}

func runServer() error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx, configPath)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	app.WaitForShutdown()
	app.Shutdown()
	return nil
}

func runIngest(files []string) error {
	ctx := context.Background()

	app, err := bootstrap.NewApp(ctx, configPath)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	if err := app.Start(ctx); err != nil {
		app.Shutdown()
		return fmt.Errorf("failed to start application: %w", err)
	}

	go func() {
		if len(files) == 0 {
			if err := app.Pipeline.Run(ctx, os.Stdin); err != nil {
				app.Sugar.Errorf("Ingestion error: %v", err)
			}
			return
		}
		for _, path := range files {
			f, err := os.Open(path)
			if err != nil {
				app.Sugar.Errorf("Failed to open %s: %v", path, err)
				continue
			}
			if err := app.Pipeline.Run(ctx, f); err != nil {
				app.Sugar.Errorf("Ingestion error in %s: %v", path, err)
			}
			f.Close()
		}
	}()

	app.WaitForShutdown()
	app.Shutdown()
	return nil
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
