// Package main runs the fixture-backed mock generation server.
//
// Usage:
//
//	mock-llm --fixtures ./testdata/fixtures --port 11434
//
// Point genguard at it with generation.endpoint: http://localhost:11434/v1
// and a model name matching a fixture file stem.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/c360studio/genguard/llm/mockserver"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		fixtureDir string
		port       int
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:          "mock-llm",
		Short:        "Serve OpenAI-compatible completions from fixture files",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Allow env var override
			if envDir := os.Getenv("MOCK_LLM_FIXTURES"); envDir != "" && fixtureDir == "" {
				fixtureDir = envDir
			}
			if fixtureDir == "" {
				fixtureDir = "/fixtures"
			}

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			fixtures, err := mockserver.LoadFixtures(fixtureDir)
			if err != nil {
				return fmt.Errorf("load fixtures from %s: %w", fixtureDir, err)
			}
			for model, seq := range fixtures {
				logger.Info("Loaded fixtures", "model", model, "count", len(seq))
			}

			addr := fmt.Sprintf(":%d", port)
			logger.Info("Mock LLM server listening", "addr", addr)
			return http.ListenAndServe(addr, mockserver.New(fixtures, logger))
		},
	}

	cmd.Flags().StringVar(&fixtureDir, "fixtures", "", "Directory containing fixture response files")
	cmd.Flags().IntVar(&port, "port", 11434, "Port to listen on")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log every served fixture")
	return cmd
}
