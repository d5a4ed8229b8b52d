package retry_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/genguard/ast/python"
	"github.com/c360studio/genguard/llm"
	"github.com/c360studio/genguard/llm/testutil"
	"github.com/c360studio/genguard/policy"
	"github.com/c360studio/genguard/retry"
	"github.com/c360studio/genguard/validation"
)

const (
	goodCode = "import os\n\ndef run():\n    return os.getenv(\"HOME\")\n"
	badCode  = "x = 1\nimport subprocess\ndef run():\n    return x\n"
)

func codeValidator() validation.Validator {
	return validation.NewCodeValidator(python.NewParser(), policy.Default())
}

func specValidator() validation.Validator {
	return validation.NewAgentSpecValidator()
}

// recorder captures observer callbacks.
type recorder struct {
	mu       sync.Mutex
	attempts []retry.Attempt
	finishes []retry.Finish
}

func (r *recorder) OnAttempt(_ string, a retry.Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
}

func (r *recorder) OnFinish(_ string, f retry.Finish) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishes = append(r.finishes, f)
}

func TestRun_FirstAttemptPasses(t *testing.T) {
	mock := &testutil.MockGenerator{Steps: []testutil.Step{{Text: goodCode}}}
	o := retry.New(codeValidator())

	out, err := o.Run(context.Background(), retry.FromGenerator(mock, llm.Request{System: "sys"}, nil))
	require.NoError(t, err)

	assert.Equal(t, 1, mock.GetCallCount())
	assert.Equal(t, 0, out.AttemptsUsed)
	assert.Equal(t, retry.StateSucceeded, out.State)
	assert.True(t, out.Result.Valid())
	assert.Equal(t, strings.TrimSpace(goodCode), out.Artifact)
	assert.Equal(t, "sys", mock.Requests()[0].System)
}

func TestRun_AlwaysFailingExhausts(t *testing.T) {
	calls := 0
	gen := func(_ context.Context, _ string) (string, error) {
		calls++
		return badCode + strings.Repeat("\n", calls), nil
	}
	rec := &recorder{}
	o := retry.New(codeValidator(), retry.WithMaxAttempts(3), retry.WithObserver(rec))

	out, err := o.Run(context.Background(), gen)
	assert.Nil(t, out)
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, retry.ErrRetriesExhausted)

	var exhausted *retry.ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, 3, exhausted.Attempts)
	require.NotNil(t, exhausted.Last)
	assert.Equal(t, 2, exhausted.Last.Index)
	assert.Equal(t, badCode+"\n\n\n", exhausted.Last.Artifact)
	assert.False(t, exhausted.Last.Result.Valid())
	assert.Empty(t, exhausted.Last.Feedback, "no feedback is built after the final attempt")

	require.Len(t, rec.attempts, 3)
	require.Len(t, rec.finishes, 1)
	assert.Equal(t, retry.StateExhausted, rec.finishes[0].State)
}

func TestRun_RetrySucceedsWithAccumulatedFeedback(t *testing.T) {
	mock := &testutil.MockGenerator{Steps: []testutil.Step{
		{Text: badCode},
		{Text: "password = \"hunter22\"\ndef run():\n    return 1\n"},
		{Text: goodCode},
	}}
	o := retry.New(codeValidator(), retry.WithMaxAttempts(5))

	out, err := o.Run(context.Background(), retry.FromGenerator(mock, llm.Request{System: "BASE", User: "write it"}, nil))
	require.NoError(t, err)
	assert.Equal(t, 2, out.AttemptsUsed)
	assert.Equal(t, 3, mock.GetCallCount())

	reqs := mock.Requests()
	assert.Equal(t, "BASE", reqs[0].System)
	assert.True(t, strings.HasPrefix(reqs[1].System, "BASE\n\n"))
	assert.Contains(t, reqs[1].System, "Dangerous import: subprocess")

	// Feedback accumulates rather than replacing.
	assert.Contains(t, reqs[2].System, "Dangerous import: subprocess")
	assert.Contains(t, reqs[2].System, "Hardcoded password")
	assert.Equal(t, "write it", reqs[2].User)
}

func TestRun_TransientErrorsConsumeAttempts(t *testing.T) {
	rateLimited := llm.NewTransientError(errors.New("429"))
	mock := &testutil.MockGenerator{Steps: []testutil.Step{
		{Err: rateLimited},
		{Text: goodCode},
	}}
	o := retry.New(codeValidator(), retry.WithMaxAttempts(3))

	out, err := o.Run(context.Background(), retry.FromGenerator(mock, llm.Request{}, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, out.AttemptsUsed)
	assert.Equal(t, 2, mock.GetCallCount())
	assert.Empty(t, mock.Requests()[1].System, "transient errors add no feedback")
}

func TestRun_TransientErrorsExhaust(t *testing.T) {
	rateLimited := llm.NewTransientError(errors.New("429"))
	mock := &testutil.MockGenerator{Steps: []testutil.Step{{Err: rateLimited}}}
	o := retry.New(codeValidator(), retry.WithMaxAttempts(2))

	_, err := o.Run(context.Background(), retry.FromGenerator(mock, llm.Request{}, nil))
	assert.ErrorIs(t, err, retry.ErrRetriesExhausted)
	assert.True(t, llm.IsTransient(err))
	assert.Equal(t, 2, mock.GetCallCount())

	var exhausted *retry.ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Nil(t, exhausted.Last)
	assert.Empty(t, exhausted.ArtifactPath())
}

func TestRun_UnavailableAbortsUnchanged(t *testing.T) {
	down := llm.NewFatalError(llm.ErrUnavailable)
	mock := &testutil.MockGenerator{Steps: []testutil.Step{{Err: down}}}
	rec := &recorder{}
	o := retry.New(codeValidator(), retry.WithMaxAttempts(3), retry.WithObserver(rec))

	out, err := o.Run(context.Background(), retry.FromGenerator(mock, llm.Request{}, nil))
	assert.Nil(t, out)
	assert.Same(t, down, err)
	assert.Equal(t, 1, mock.GetCallCount())
	require.Len(t, rec.finishes, 1)
	assert.Equal(t, retry.StateAborted, rec.finishes[0].State)
}

func TestRun_CancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	gen := func(_ context.Context, _ string) (string, error) {
		calls++
		cancel()
		return badCode, nil
	}
	o := retry.New(codeValidator(), retry.WithMaxAttempts(3))

	_, err := o.Run(ctx, gen)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, context.Canceled)

	var aborted *retry.AbortedError
	require.True(t, errors.As(err, &aborted))
	assert.Equal(t, 1, aborted.Attempts)
	require.NotNil(t, aborted.Last)
	assert.Equal(t, badCode, aborted.Last.Artifact)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mock := &testutil.MockGenerator{Steps: []testutil.Step{{Text: goodCode}}}

	_, err := retry.New(codeValidator()).Run(ctx, retry.FromGenerator(mock, llm.Request{}, nil))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, mock.GetCallCount())
}

func TestRun_PreservesFailingArtifacts(t *testing.T) {
	dir := t.TempDir()
	mock := &testutil.MockGenerator{Steps: []testutil.Step{{Text: badCode}}}
	o := retry.New(codeValidator(), retry.WithMaxAttempts(2), retry.WithSink(retry.NewDirSink(dir, "py")))

	_, err := o.Run(context.Background(), retry.FromGenerator(mock, llm.Request{}, nil))
	var exhausted *retry.ExhaustedError
	require.True(t, errors.As(err, &exhausted))

	path := exhausted.ArtifactPath()
	assert.Equal(t, "attempt_2.py", filepath.Base(path))
	assert.Contains(t, err.Error(), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSpace(badCode), string(data))

	first := filepath.Join(filepath.Dir(path), "attempt_1.py")
	assert.FileExists(t, first)
}

type failingSink struct{}

func (failingSink) Save(string, int, string) (string, error) { return "", errors.New("disk full") }

func TestRun_SinkErrorsAreNotFatal(t *testing.T) {
	mock := &testutil.MockGenerator{Steps: []testutil.Step{{Text: badCode}, {Text: goodCode}}}
	o := retry.New(codeValidator(), retry.WithSink(failingSink{}))

	out, err := o.Run(context.Background(), retry.FromGenerator(mock, llm.Request{}, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, out.AttemptsUsed)
}

func TestRun_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := retry.NewMetrics(reg)
	mock := &testutil.MockGenerator{Steps: []testutil.Step{{Text: badCode}, {Text: goodCode}}}
	o := retry.New(codeValidator(), retry.WithMetrics(m))

	_, err := o.Run(context.Background(), retry.FromGenerator(mock, llm.Request{}, nil))
	require.NoError(t, err)

	assert.Equal(t, 1.0, promtest.ToFloat64(m.AttemptsCounter().WithLabelValues("false")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.AttemptsCounter().WithLabelValues("true")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.OutcomesCounter().WithLabelValues(string(retry.StateSucceeded))))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.OutcomesCounter().WithLabelValues(string(retry.StateExhausted))))
}

func TestRun_SchemaValidator(t *testing.T) {
	mock := &testutil.MockGenerator{Steps: []testutil.Step{{Text: "```yaml\nname: only\n```"}}}
	o := retry.New(validation.NewAgentSpecValidator(),
		retry.WithMaxAttempts(2),
		retry.WithConstraints(retry.SpecConstraints))

	_, err := o.Run(context.Background(), retry.FromGenerator(mock, llm.Request{}, llm.ExtractYAML))
	assert.ErrorIs(t, err, retry.ErrRetriesExhausted)

	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[1].System, "Location: ")
	assert.Contains(t, reqs[1].System, "workflow.steps must be a mapping")
}

func TestState_Terminal(t *testing.T) {
	assert.True(t, retry.StateSucceeded.Terminal())
	assert.True(t, retry.StateExhausted.Terminal())
	assert.True(t, retry.StateAborted.Terminal())
	assert.False(t, retry.StateGenerating.Terminal())
	assert.False(t, retry.StateRetrying.Terminal())
}
