package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/c360studio/genguard/ast"
	"github.com/c360studio/genguard/config"
	"github.com/c360studio/genguard/llm"
	"github.com/c360studio/genguard/policy"
	"github.com/c360studio/genguard/validation"
)

// App holds the loaded configuration and the shared validation state.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
	table  *policy.Table
	out    io.Writer
}

func newLogger(logLevel string) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func newLoader(logLevel string) *config.Loader {
	return config.NewLoader(newLogger(logLevel))
}

// newApp loads the layered config and the policy table it names.
func newApp(flags *globalFlags, out io.Writer) (*App, error) {
	logger := newLogger(flags.logLevel)
	slog.SetDefault(logger)

	cfg, err := config.NewLoader(logger).Load(flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return newAppWithConfig(cfg, logger, out)
}

func newAppWithConfig(cfg *config.Config, logger *slog.Logger, out io.Writer) (*App, error) {
	table, err := policy.Load(cfg.Policy.File)
	if err != nil {
		return nil, fmt.Errorf("load policy: %w", err)
	}
	return &App{cfg: cfg, logger: logger, table: table, out: out}, nil
}

// codeValidator builds the validator for a source file, picking the parser
// by extension.
func (a *App) codeValidator(path string) (validation.Validator, error) {
	parser, err := ast.DefaultRegistry.ParserFor(path)
	if err != nil {
		return nil, err
	}
	return validation.NewCodeValidator(parser, a.table,
		validation.WithHints(a.cfg.Policy.Hints),
		validation.WithFunctionLimit(a.cfg.Policy.MaxFunctions),
		validation.WithLogger(a.logger),
	), nil
}

func (a *App) specValidator() validation.Validator {
	return validation.NewAgentSpecValidator()
}

func isSpecFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// watchValidators maps every watched extension to its validator.
func (a *App) watchValidators() (map[string]validation.Validator, error) {
	validators := map[string]validation.Validator{
		".yaml": a.specValidator(),
		".yml":  a.specValidator(),
	}
	for _, lang := range ast.DefaultRegistry.Languages() {
		for _, ext := range ast.DefaultRegistry.Extensions(lang) {
			v, err := a.codeValidator("file" + ext)
			if err != nil {
				return nil, err
			}
			validators[ext] = v
		}
	}
	return validators, nil
}

// newGenerator selects the generation backend named by the config.
func newGenerator(gen config.GenerationConfig, logger *slog.Logger) (llm.Generator, error) {
	switch gen.Provider {
	case config.ProviderOpenAI:
		return llm.NewOpenAIClient(gen.Endpoint, gen.Model,
			llm.WithAPIKey(gen.APIKey()),
			llm.WithHTTPClient(&http.Client{Timeout: gen.Timeout}),
			llm.WithLogger(logger),
		), nil
	case config.ProviderAnthropic:
		cfg := llm.AnthropicConfig{
			Model:  gen.Model,
			APIKey: gen.APIKey(),
			Logger: logger,
		}
		// The default endpoint is the local OpenAI-compatible one.
		if gen.Endpoint != "" && gen.Endpoint != config.DefaultConfig().Generation.Endpoint {
			cfg.BaseURL = gen.Endpoint
		}
		if gen.Timeout > 0 {
			cfg.Options = append(cfg.Options, option.WithRequestTimeout(gen.Timeout))
		}
		return llm.NewAnthropicClient(cfg)
	default:
		return nil, fmt.Errorf("unknown generation provider %q", gen.Provider)
	}
}
