package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/c360studio/genguard/llm"
	"github.com/c360studio/genguard/retry"
	"github.com/c360studio/genguard/validation"
)

const (
	kindCode = "code"
	kindSpec = "spec"
)

const codeSystemPrompt = `You write a single Python module that implements the requested agent.
Return only the code in one fenced python block.`

const specSystemPrompt = `You write an agent specification as a YAML document with the fields
agent_name, agent_type, version, description, role, capabilities, workflow
(with steps as a mapping of step name to details) and dependencies, plus data_sources, tools, performance, logging
and testing (with test_scenarios) where they apply.
Return only the YAML document.`

type generateOptions struct {
	kind     string
	prompts  []string
	out      string
	attempts int
	parallel int
}

func generateCmd(flags *globalFlags) *cobra.Command {
	var opts generateOptions

	cmd := &cobra.Command{
		Use:   "generate --prompt <file> [--prompt <file>...]",
		Short: "Generate artifacts, retrying with validation feedback until they pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(flags, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			gen, err := newGenerator(app.cfg.Generation, app.logger)
			if err != nil {
				return err
			}
			return app.generate(ctx, gen, opts)
		},
	}

	cmd.Flags().StringVar(&opts.kind, "kind", kindCode, "Artifact kind (code, spec)")
	cmd.Flags().StringArrayVarP(&opts.prompts, "prompt", "p", nil, "Prompt file (repeatable)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "Output file, or directory when several prompts are given")
	cmd.Flags().IntVar(&opts.attempts, "attempts", 0, "Max attempts per artifact (default from config)")
	cmd.Flags().IntVar(&opts.parallel, "parallel", 2, "Artifacts generated concurrently")
	_ = cmd.MarkFlagRequired("prompt")

	return cmd
}

// kindSetup returns the per-kind validator, extractor, file extension,
// system prompt and feedback constraints.
func (a *App) kindSetup(kind string) (validation.Validator, retry.Extractor, string, string, string, error) {
	switch kind {
	case kindCode:
		v, err := a.codeValidator("agent.py")
		if err != nil {
			return nil, nil, "", "", "", err
		}
		return v, llm.ExtractCode, "py", codeSystemPrompt, retry.CodeConstraints, nil
	case kindSpec:
		return a.specValidator(), llm.ExtractYAML, "yaml", specSystemPrompt, retry.SpecConstraints, nil
	default:
		return nil, nil, "", "", "", fmt.Errorf("unknown kind %q (want %s or %s)", kind, kindCode, kindSpec)
	}
}

func (a *App) generate(ctx context.Context, gen llm.Generator, opts generateOptions) error {
	v, extract, ext, system, constraints, err := a.kindSetup(opts.kind)
	if err != nil {
		return err
	}

	attempts := a.cfg.Retry.MaxAttempts
	if opts.attempts > 0 {
		attempts = opts.attempts
	}

	orchOpts := []retry.Option{
		retry.WithMaxAttempts(attempts),
		retry.WithContextLines(a.cfg.Retry.ContextLines),
		retry.WithConstraints(constraints),
		retry.WithLogger(a.logger),
	}
	if a.cfg.Retry.DebugDir != "" {
		orchOpts = append(orchOpts, retry.WithSink(retry.NewDirSink(a.cfg.Retry.DebugDir, ext)))
	}
	if a.cfg.Events.NATSURL != "" {
		observers, closeConn, err := a.natsObservers(ctx, opts.kind)
		if err != nil {
			return err
		}
		defer closeConn()
		orchOpts = append(orchOpts, retry.WithObserver(observers))
	}
	if a.cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		orchOpts = append(orchOpts, retry.WithMetrics(retry.NewMetrics(reg)))
		stopMetrics := serveMetrics(a.cfg.Metrics.Addr, reg, a.logger)
		defer stopMetrics()
	}
	orch := retry.New(v, orchOpts...)

	jobs := make([]retry.Job, 0, len(opts.prompts))
	for _, path := range opts.prompts {
		prompt, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read prompt: %w", err)
		}
		req := llm.Request{
			System:    system,
			User:      string(prompt),
			MaxTokens: a.cfg.Generation.MaxTokens,
		}
		if t := a.cfg.Generation.Temperature; t > 0 {
			req.Temperature = &t
		}
		jobs = append(jobs, retry.Job{
			Name:     path,
			Generate: retry.FromGenerator(gen, req, extract),
		})
	}

	results := orch.RunBatch(ctx, jobs, opts.parallel)

	var failed int
	for _, res := range results {
		if res.Err != nil {
			failed++
			a.reportFailure(res)
			continue
		}
		if err := a.writeArtifact(res, opts.out, ext, len(results) > 1); err != nil {
			return err
		}
		a.logger.Info("Artifact generated",
			"prompt", res.Name,
			"run_id", res.Outcome.RunID,
			"attempts", res.Outcome.AttemptsUsed+1,
			"score", res.Outcome.Result.Score)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d artifact(s) failed: %w", failed, len(results), errInvalid)
	}
	return nil
}

func (a *App) reportFailure(res retry.JobResult) {
	var exhausted *retry.ExhaustedError
	if errors.As(res.Err, &exhausted) {
		if exhausted.Last != nil && exhausted.Last.Result != nil {
			writeTextReport(a.out, report{Path: res.Name, Result: exhausted.Last.Result})
		}
		if path := exhausted.ArtifactPath(); path != "" {
			fmt.Fprintf(a.out, "  last artifact: %s\n", path)
		}
	}
	a.logger.Error("Generation failed", "prompt", res.Name, "error", res.Err)
}

// writeArtifact writes to out (a file, or a directory when multi is set),
// or to stdout when out is empty.
func (a *App) writeArtifact(res retry.JobResult, out, ext string, multi bool) error {
	artifact := res.Outcome.Artifact
	if !strings.HasSuffix(artifact, "\n") {
		artifact += "\n"
	}
	if out == "" {
		if multi {
			fmt.Fprintf(a.out, "# %s\n", res.Name)
		}
		_, err := fmt.Fprint(a.out, artifact)
		return err
	}

	path := out
	if multi {
		base := strings.TrimSuffix(filepath.Base(res.Name), filepath.Ext(res.Name))
		path = filepath.Join(out, base+"."+ext)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(artifact), 0644); err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	fmt.Fprintln(a.out, path)
	return nil
}
