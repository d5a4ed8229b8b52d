// Package events publishes retry lifecycle events over NATS.
//
// Subjects live under a configurable prefix ("genguard.events" by default):
//
//	<prefix>.attempt   one message per generation attempt
//	<prefix>.outcome   one message per finished run
//
// Payloads are plain JSON.
package events

import (
	"github.com/c360studio/genguard/validation"
)

// DefaultPrefix is the subject prefix used when none is configured.
const DefaultPrefix = "genguard.events"

// Subject suffixes.
const (
	SuffixAttempt = "attempt"
	SuffixOutcome = "outcome"
)

// AttemptSubject returns the attempt subject under prefix.
func AttemptSubject(prefix string) string { return subject(prefix, SuffixAttempt) }

// OutcomeSubject returns the outcome subject under prefix.
func OutcomeSubject(prefix string) string { return subject(prefix, SuffixOutcome) }

func subject(prefix, suffix string) string {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return prefix + "." + suffix
}

// AttemptEvent is published after each attempt.
type AttemptEvent struct {
	RunID        string             `json:"run_id"`
	Attempt      int                `json:"attempt"`
	Valid        bool               `json:"valid"`
	Result       *validation.Result `json:"result,omitempty"`
	ArtifactPath string             `json:"artifact_path,omitempty"`
	Feedback     string             `json:"feedback,omitempty"`
	Error        string             `json:"error,omitempty"`
}

// OutcomeEvent is published when a run terminates.
type OutcomeEvent struct {
	RunID    string `json:"run_id"`
	State    string `json:"state"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}
