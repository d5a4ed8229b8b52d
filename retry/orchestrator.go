// Package retry runs the bounded generate, validate and retry loop.
//
// Each attempt regenerates the artifact from scratch. When validation fails,
// feedback describing the failure is appended to the feedback accumulated so
// far and handed to the next generation. The loop ends when an artifact
// passes (SUCCEEDED), when attempts run out (EXHAUSTED), or when the
// generator fails with a non-retryable error or the context is done
// (ABORTED).
package retry

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/c360studio/genguard/llm"
	"github.com/c360studio/genguard/validation"
)

// DefaultMaxAttempts is used when no WithMaxAttempts option is given.
const DefaultMaxAttempts = 3

// State of an orchestration.
type State string

const (
	StateGenerating State = "GENERATING"
	StateValidating State = "VALIDATING"
	StateSucceeded  State = "SUCCEEDED"
	StateRetrying   State = "RETRYING"
	StateExhausted  State = "EXHAUSTED"
	StateAborted    State = "ABORTED"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateExhausted || s == StateAborted
}

// GenerateFunc produces an artifact. feedback is empty on the first attempt
// and holds all feedback accumulated so far afterwards.
type GenerateFunc func(ctx context.Context, feedback string) (string, error)

// Attempt records one generation and its validation.
type Attempt struct {
	// Index is 0-based.
	Index    int
	Artifact string
	Result   *validation.Result
	// Feedback is what this attempt contributed for the next one.
	Feedback string
	// ArtifactPath is where a failing artifact was preserved, if anywhere.
	ArtifactPath string
	// Err is a transient generator error that consumed this attempt.
	Err error
}

// Outcome is returned on success.
type Outcome struct {
	RunID    string
	Artifact string
	Result   *validation.Result
	// AttemptsUsed is the 0-based index of the passing attempt.
	AttemptsUsed int
	State        State
}

// Orchestrator drives the loop for one validator. It holds no per-run state
// and is safe for concurrent Run calls.
type Orchestrator struct {
	validator    validation.Validator
	maxAttempts  int
	contextLines int
	constraints  string
	sink         ArtifactSink
	observer     Observer
	metrics      *Metrics
	logger       *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxAttempts sets the attempt budget. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithContextLines sets the feedback context window half-width.
func WithContextLines(n int) Option {
	return func(o *Orchestrator) {
		if n >= 0 {
			o.contextLines = n
		}
	}
}

// WithConstraints replaces the constraints block appended to feedback.
func WithConstraints(text string) Option {
	return func(o *Orchestrator) { o.constraints = text }
}

// WithSink preserves failing artifacts.
func WithSink(s ArtifactSink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithObserver registers an observer.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithMetrics records prometheus metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// New creates an Orchestrator validating with v.
func New(v validation.Validator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		validator:    v,
		maxAttempts:  DefaultMaxAttempts,
		contextLines: DefaultContextLines,
		constraints:  CodeConstraints,
		observer:     nopObserver{},
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// MaxAttempts returns the attempt budget.
func (o *Orchestrator) MaxAttempts() int { return o.maxAttempts }

// Run executes the loop. On success it returns the passing artifact. On
// failure it returns an *ExhaustedError, an *AbortedError, or the
// generator's non-retryable error unchanged.
func (o *Orchestrator) Run(ctx context.Context, generate GenerateFunc) (*Outcome, error) {
	runID := uuid.NewString()
	log := o.logger.With("run_id", runID)

	var (
		feedback string
		last     *Attempt
		cause    error
	)
	for i := 0; i < o.maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, o.finish(runID, StateAborted, i, &AbortedError{Err: err, Attempts: i, Last: last})
		}

		log.Info("Generating artifact", "attempt", i+1, "max_attempts", o.maxAttempts)
		artifact, err := generate(ctx, feedback)
		if err != nil {
			if !llm.IsTransient(err) {
				log.Error("Generation failed", "attempt", i+1, "error", err)
				return nil, o.finish(runID, StateAborted, i+1, err)
			}
			log.Warn("Transient generation error", "attempt", i+1, "error", err)
			cause = err
			o.observer.OnAttempt(runID, Attempt{Index: i, Err: err})
			continue
		}
		cause = nil

		// Validation is never interrupted; cancellation is honored between attempts.
		result := o.validator.Validate(context.WithoutCancel(ctx), artifact)
		o.metrics.observeAttempt(result)
		current := Attempt{Index: i, Artifact: artifact, Result: result}

		if result.Valid() {
			log.Info("Artifact passed validation", "attempt", i+1, "summary", result.Summary)
			o.observer.OnAttempt(runID, current)
			o.finish(runID, StateSucceeded, i+1, nil)
			return &Outcome{
				RunID:        runID,
				Artifact:     artifact,
				Result:       result,
				AttemptsUsed: i,
				State:        StateSucceeded,
			}, nil
		}

		current.ArtifactPath = o.preserve(log, runID, i, artifact)
		if i < o.maxAttempts-1 {
			log.Warn("Artifact failed validation", "attempt", i+1, "state", StateRetrying, "summary", result.Summary)
			current.Feedback = Feedback(artifact, result, o.contextLines, o.constraints)
			feedback = appendFeedback(feedback, current.Feedback)
		}
		o.observer.OnAttempt(runID, current)
		last = &current
	}

	log.Error("Retries exhausted", "attempts", o.maxAttempts)
	return nil, o.finish(runID, StateExhausted, o.maxAttempts,
		&ExhaustedError{Attempts: o.maxAttempts, Last: last, Cause: cause})
}

func (o *Orchestrator) preserve(log *slog.Logger, runID string, i int, artifact string) string {
	if o.sink == nil {
		return ""
	}
	path, err := o.sink.Save(runID, i, artifact)
	if err != nil {
		log.Warn("Failed to preserve artifact", "attempt", i+1, "error", err)
		return ""
	}
	log.Debug("Preserved failing artifact", "path", path)
	return path
}

func (o *Orchestrator) finish(runID string, s State, attempts int, err error) error {
	o.metrics.observeOutcome(s)
	o.observer.OnFinish(runID, Finish{State: s, Attempts: attempts, Err: err})
	return err
}
