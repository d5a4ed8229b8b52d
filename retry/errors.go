package retry

import (
	"errors"
	"fmt"
)

// ErrRetriesExhausted is matched by errors.Is on an *ExhaustedError.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ExhaustedError is returned when every attempt failed validation or failed
// with a transient generator error.
type ExhaustedError struct {
	Attempts int
	// Last is the last attempt that produced an artifact. It is nil when every
	// attempt failed in the generator.
	Last *Attempt
	// Cause is the generator error of the final attempt, if it had one.
	Cause error
}

func (e *ExhaustedError) Error() string {
	msg := fmt.Sprintf("%v after %d attempt(s)", ErrRetriesExhausted, e.Attempts)
	if e.Last != nil && e.Last.Result != nil {
		msg += ": " + e.Last.Result.Summary
		if is, ok := e.Last.Result.FirstError(); ok {
			msg += ": " + is.Message
		}
		if e.Last.ArtifactPath != "" {
			msg += " (last artifact: " + e.Last.ArtifactPath + ")"
		}
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Is matches ErrRetriesExhausted.
func (e *ExhaustedError) Is(target error) bool { return target == ErrRetriesExhausted }

func (e *ExhaustedError) Unwrap() error { return e.Cause }

// ArtifactPath returns where the last failing artifact was preserved, or "".
func (e *ExhaustedError) ArtifactPath() string {
	if e.Last == nil {
		return ""
	}
	return e.Last.ArtifactPath
}

// AbortedError is returned when the context is done between attempts.
type AbortedError struct {
	Err      error
	Attempts int
	Last     *Attempt
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("generation aborted after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *AbortedError) Unwrap() error { return e.Err }
