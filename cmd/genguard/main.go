// Package main provides the genguard binary entry point.
// Genguard validates generated code and agent specs, and drives a
// generate-validate-retry loop against a generation backend.
package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	// Register language parsers via init()
	_ "github.com/c360studio/genguard/ast/python"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "genguard"
)

// errInvalid makes the process exit non-zero after a report was printed.
var errInvalid = errors.New("validation failed")

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		if !errors.Is(err, errInvalid) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Validate generated artifacts and retry generation until they pass",
		Long: `Genguard checks generated Python code and agent specs before they are used.

It provides:
- Syntax, import policy and credential checks for code
- Structure and completeness checks for agent specs
- A generate-validate-retry loop that feeds failures back to the generator`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		checkCmd(&flags),
		generateCmd(&flags),
		watchCmd(&flags),
		runsCmd(&flags),
		initCmd(&flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)

	return cmd
}

func initCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the user config file with defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader := newLoader(flags.logLevel)
			path, err := loader.EnsureUserConfig()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
