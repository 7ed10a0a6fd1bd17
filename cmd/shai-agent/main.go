// Package main provides a minimal CLI that wires a Brain adapter, a
// handful of example tools, and a terminal-line adapter together so the
// agent core can be exercised end to end from a shell.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/haasonsaas/nexus/internal/config"
	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "shai-agent",
		Short:   "Drive a single agent session from a terminal",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Long: `shai-agent runs one agent session against a configured LLM provider,
exposing the core's state machine, tool permission gate, and event stream
through a line-oriented terminal adapter.`,
		SilenceUsage: true,
	}
	root.AddCommand(buildRunCmd())
	root.AddCommand(buildSchemaCmd())
	return root
}

func buildSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON Schema for the config file format",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := config.JSONSchema()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
}
