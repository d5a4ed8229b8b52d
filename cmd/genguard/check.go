package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/c360studio/genguard/validation"
)

func checkCmd(flags *globalFlags) *cobra.Command {
	var (
		asJSON bool
		hints  bool
	)

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate existing artifacts",
	}
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Print results as JSON")

	code := &cobra.Command{
		Use:   "code <glob>...",
		Short: "Validate source files (doublestar globs, e.g. 'agents/**/*.py')",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("hints") {
				app.cfg.Policy.Hints = hints
			}
			paths, err := expandPatterns(args)
			if err != nil {
				return err
			}
			return app.check(cmd.Context(), paths, app.codeValidator, asJSON)
		},
	}
	code.Flags().BoolVar(&hints, "hints", false, "Include INFO quality hints")

	spec := &cobra.Command{
		Use:   "spec <file>...",
		Short: "Validate agent spec documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			v := app.specValidator()
			pick := func(string) (validation.Validator, error) { return v, nil }
			return app.check(cmd.Context(), args, pick, asJSON)
		},
	}

	cmd.AddCommand(code, spec)
	return cmd
}

// expandPatterns resolves doublestar globs into a sorted, de-duplicated
// list of files. A pattern without meta characters must name an existing file.
func expandPatterns(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("no files match %q", pattern)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// check validates every path and prints the report. It returns errInvalid
// when any artifact fails.
func (a *App) check(ctx context.Context, paths []string, pick func(string) (validation.Validator, error), asJSON bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	reports := make([]report, 0, len(paths))
	for _, path := range paths {
		v, err := pick(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		result := v.Validate(ctx, string(data))
		a.logger.Debug("Validated artifact", "path", path, "valid", result.Valid(), "score", result.Score)
		reports = append(reports, report{Path: path, Result: result})
	}

	if asJSON {
		if err := writeJSONReports(a.out, reports); err != nil {
			return err
		}
	} else {
		writeTextReports(a.out, reports)
	}
	if anyInvalid(reports) {
		return errInvalid
	}
	return nil
}
