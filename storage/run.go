// Package storage persists retry run records in NATS KV.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/genguard/retry"
)

// DefaultBucket is the KV bucket used when none is configured.
const DefaultBucket = "GENGUARD_RUNS"

// AttemptRecord summarizes one attempt of a run.
type AttemptRecord struct {
	Attempt      int     `json:"attempt"` // 1-indexed
	Valid        bool    `json:"valid"`
	Score        float64 `json:"score"`
	Summary      string  `json:"summary,omitempty"`
	FirstError   string  `json:"first_error,omitempty"`
	ArtifactPath string  `json:"artifact_path,omitempty"`
	Error        string  `json:"error,omitempty"`
}

// RunRecord is the stored history of one orchestrator run.
type RunRecord struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	State     retry.State     `json:"state"`
	Attempts  []AttemptRecord `json:"attempts"`
	Artifact  string          `json:"artifact,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Valid reports whether the run ended with a passing artifact.
func (r *RunRecord) Valid() bool {
	return r.State == retry.StateSucceeded
}

// Bucket is the key-value subset the store needs.
type Bucket interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Keys(ctx context.Context) ([]string, error)
}

// kvBucket adapts a JetStream KeyValue to Bucket.
type kvBucket struct {
	kv jetstream.KeyValue
}

func (b kvBucket) Get(ctx context.Context, key string) ([]byte, error) {
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return entry.Value(), nil
}

func (b kvBucket) Put(ctx context.Context, key string, value []byte) error {
	_, err := b.kv.Put(ctx, key, value)
	return err
}

func (b kvBucket) Keys(ctx context.Context) ([]string, error) {
	keys, err := b.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	return keys, err
}

// OpenBucket returns the named KV bucket, creating it if it doesn't exist.
func OpenBucket(ctx context.Context, js jetstream.JetStream, name string) (Bucket, error) {
	if name == "" {
		name = DefaultBucket
	}
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kvBucket{kv: kv}, nil
	}
	// Bucket doesn't exist, create it
	kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: fmt.Sprintf("Genguard %s storage", strings.ToLower(name)),
		History:     5, // Keep last 5 revisions
	})
	if err != nil {
		return nil, fmt.Errorf("create bucket %s: %w", name, err)
	}
	return kvBucket{kv: kv}, nil
}

// RunStore records runs as they progress. It implements retry.Observer, so a
// run's record is written after every attempt and again when it finishes.
type RunStore struct {
	bucket  Bucket
	kind    string
	timeout time.Duration
	logger  *slog.Logger

	mu   sync.Mutex
	runs map[string]*RunRecord
}

var _ retry.Observer = (*RunStore)(nil)

// NewRunStore creates a store writing records of the given artifact kind.
func NewRunStore(bucket Bucket, kind string, logger *slog.Logger) *RunStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunStore{
		bucket:  bucket,
		kind:    kind,
		timeout: 5 * time.Second,
		logger:  logger,
		runs:    make(map[string]*RunRecord),
	}
}

// OnAttempt implements retry.Observer.
func (s *RunStore) OnAttempt(runID string, a retry.Attempt) {
	rec := AttemptRecord{
		Attempt:      a.Index + 1,
		ArtifactPath: a.ArtifactPath,
	}
	if a.Result != nil {
		rec.Valid = a.Result.Valid()
		rec.Score = a.Result.Score
		rec.Summary = a.Result.Summary
		if is, ok := a.Result.FirstError(); ok {
			rec.FirstError = is.Message
		}
	}
	if a.Err != nil {
		rec.Error = a.Err.Error()
	}

	s.mu.Lock()
	run := s.runLocked(runID)
	run.Attempts = append(run.Attempts, rec)
	if rec.Valid {
		run.State = retry.StateValidating
		run.Artifact = a.Artifact
	} else {
		run.State = retry.StateRetrying
	}
	snapshot := *run
	s.mu.Unlock()

	s.write(&snapshot)
}

// OnFinish implements retry.Observer.
func (s *RunStore) OnFinish(runID string, f retry.Finish) {
	s.mu.Lock()
	run := s.runLocked(runID)
	run.State = f.State
	if f.Err != nil {
		run.Error = f.Err.Error()
	}
	snapshot := *run
	delete(s.runs, runID)
	s.mu.Unlock()

	s.write(&snapshot)
}

func (s *RunStore) runLocked(runID string) *RunRecord {
	run, ok := s.runs[runID]
	if !ok {
		run = &RunRecord{
			ID:        runID,
			Kind:      s.kind,
			State:     retry.StateGenerating,
			CreatedAt: time.Now(),
		}
		s.runs[runID] = run
	}
	run.UpdatedAt = time.Now()
	return run
}

func (s *RunStore) write(run *RunRecord) {
	data, err := json.Marshal(run)
	if err != nil {
		s.logger.Warn("Failed to marshal run record", "run_id", run.ID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.bucket.Put(ctx, run.ID, data); err != nil {
		s.logger.Warn("Failed to store run record", "run_id", run.ID, "error", err)
	}
}

// Get retrieves a run record by ID.
func (s *RunStore) Get(ctx context.Context, runID string) (*RunRecord, error) {
	data, err := s.bucket.Get(ctx, runID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}

	var run RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &run, nil
}

// List returns all stored runs, newest first.
func (s *RunStore) List(ctx context.Context) ([]*RunRecord, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list run keys: %w", err)
	}

	runs := make([]*RunRecord, 0, len(keys))
	for _, key := range keys {
		run, err := s.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})
	return runs, nil
}
