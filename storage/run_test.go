package storage

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/c360studio/genguard/ast/python"
	"github.com/c360studio/genguard/llm"
	"github.com/c360studio/genguard/llm/testutil"
	"github.com/c360studio/genguard/policy"
	"github.com/c360studio/genguard/retry"
	"github.com/c360studio/genguard/validation"
)

// memBucket is an in-memory Bucket.
type memBucket struct {
	mu      sync.Mutex
	data    map[string][]byte
	puts    int
	failPut bool
}

func newMemBucket() *memBucket {
	return &memBucket{data: make(map[string][]byte)}
}

func (b *memBucket) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (b *memBucket) Put(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPut {
		return errors.New("bucket unavailable")
	}
	b.puts++
	b.data[key] = append([]byte(nil), value...)
	return nil
}

func (b *memBucket) Keys(_ context.Context) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	keys := make([]string, 0, len(b.data))
	for k := range b.data {
		keys = append(keys, k)
	}
	return keys, nil
}

const (
	goodCode = "import os\n\ndef run():\n    return os.getenv(\"HOME\")\n"
	badCode  = "import subprocess\n\ndef run():\n    return 1\n"
)

func newOrchestrator(store *RunStore) *retry.Orchestrator {
	v := validation.NewCodeValidator(python.NewParser(), policy.Default())
	return retry.New(v, retry.WithObserver(store))
}

func TestRunStore_RecordsSucceededRun(t *testing.T) {
	bucket := newMemBucket()
	store := NewRunStore(bucket, "code", nil)

	gen := &testutil.MockGenerator{Steps: []testutil.Step{
		{Err: llm.NewTransientError(errors.New("rate limited"))},
		{Text: badCode},
		{Text: goodCode},
	}}
	out, err := newOrchestrator(store).Run(context.Background(), retry.FromGenerator(gen, llm.Request{}, nil))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	run, err := store.Get(context.Background(), out.RunID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if run.State != retry.StateSucceeded || !run.Valid() {
		t.Errorf("expected succeeded run, got %s", run.State)
	}
	if run.Kind != "code" {
		t.Errorf("unexpected kind: %s", run.Kind)
	}
	if len(run.Attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(run.Attempts))
	}
	if run.Attempts[0].Error == "" {
		t.Error("first attempt should record the generator error")
	}
	if run.Attempts[1].Valid || run.Attempts[1].FirstError != "Dangerous import: subprocess" {
		t.Errorf("unexpected second attempt: %+v", run.Attempts[1])
	}
	if !run.Attempts[2].Valid || run.Attempts[2].Attempt != 3 {
		t.Errorf("unexpected third attempt: %+v", run.Attempts[2])
	}
	if run.Artifact != strings.TrimSpace(goodCode) {
		t.Errorf("unexpected artifact: %q", run.Artifact)
	}
	if bucket.puts != 4 {
		t.Errorf("expected a write per attempt plus the finish, got %d", bucket.puts)
	}
}

func TestRunStore_RecordsExhaustedRun(t *testing.T) {
	store := NewRunStore(newMemBucket(), "code", nil)
	gen := &testutil.MockGenerator{Steps: []testutil.Step{{Text: badCode}}}

	_, err := newOrchestrator(store).Run(context.Background(), retry.FromGenerator(gen, llm.Request{}, nil))
	if !errors.Is(err, retry.ErrRetriesExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}

	runs, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].State != retry.StateExhausted || runs[0].Valid() {
		t.Errorf("unexpected state %s", runs[0].State)
	}
	if runs[0].Error == "" || runs[0].Artifact != "" {
		t.Errorf("unexpected record %+v", runs[0])
	}
}

func TestRunStore_PutErrorsAreNotFatal(t *testing.T) {
	bucket := newMemBucket()
	bucket.failPut = true
	store := NewRunStore(bucket, "code", nil)
	gen := &testutil.MockGenerator{Steps: []testutil.Step{{Text: goodCode}}}

	if _, err := newOrchestrator(store).Run(context.Background(), retry.FromGenerator(gen, llm.Request{}, nil)); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestRunStore_GetMissing(t *testing.T) {
	store := NewRunStore(newMemBucket(), "spec", nil)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRunStore_ListNewestFirst(t *testing.T) {
	store := NewRunStore(newMemBucket(), "code", nil)
	store.OnFinish("first", retry.Finish{State: retry.StateSucceeded, Attempts: 1})
	time.Sleep(2 * time.Millisecond)
	store.OnFinish("second", retry.Finish{State: retry.StateAborted, Attempts: 0})

	runs, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "second" {
		t.Errorf("expected newest first, got %+v", runs)
	}
}
