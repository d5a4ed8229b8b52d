package events

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/c360studio/genguard/retry"
)

// Publisher is the subset of *nats.Conn used here.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSObserver implements retry.Observer by publishing JSON events.
// Publish failures are logged and never affect the run.
type NATSObserver struct {
	pub    Publisher
	prefix string
	logger *slog.Logger
}

var _ retry.Observer = (*NATSObserver)(nil)

// NewNATSObserver creates an observer publishing through pub.
func NewNATSObserver(pub Publisher, prefix string, logger *slog.Logger) *NATSObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSObserver{pub: pub, prefix: prefix, logger: logger}
}

// Connect dials url and returns an observer plus the connection, which the
// caller must drain or close.
func Connect(url, prefix string, logger *slog.Logger) (*NATSObserver, *nats.Conn, error) {
	conn, err := nats.Connect(url, nats.Name("genguard"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return NewNATSObserver(conn, prefix, logger), conn, nil
}

// OnAttempt implements retry.Observer.
func (o *NATSObserver) OnAttempt(runID string, a retry.Attempt) {
	ev := AttemptEvent{
		RunID:        runID,
		Attempt:      a.Index + 1,
		Result:       a.Result,
		ArtifactPath: a.ArtifactPath,
		Feedback:     a.Feedback,
	}
	if a.Result != nil {
		ev.Valid = a.Result.Valid()
	}
	if a.Err != nil {
		ev.Error = a.Err.Error()
	}
	o.publish(AttemptSubject(o.prefix), ev)
}

// OnFinish implements retry.Observer.
func (o *NATSObserver) OnFinish(runID string, f retry.Finish) {
	ev := OutcomeEvent{
		RunID:    runID,
		State:    string(f.State),
		Attempts: f.Attempts,
	}
	if f.Err != nil {
		ev.Error = f.Err.Error()
	}
	o.publish(OutcomeSubject(o.prefix), ev)
}

func (o *NATSObserver) publish(subject string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		o.logger.Warn("Failed to marshal event", "subject", subject, "error", err)
		return
	}
	if err := o.pub.Publish(subject, data); err != nil {
		o.logger.Warn("Failed to publish event", "subject", subject, "error", err)
	}
}
