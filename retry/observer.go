package retry

// Observer is notified as a run progresses. Calls happen on the goroutine
// running the orchestration and must not block for long.
type Observer interface {
	OnAttempt(runID string, a Attempt)
	OnFinish(runID string, f Finish)
}

// Finish describes a terminated run.
type Finish struct {
	State    State
	Attempts int
	Err      error
}

// Observers fans out to several observers in order.
type Observers []Observer

// OnAttempt implements Observer.
func (obs Observers) OnAttempt(runID string, a Attempt) {
	for _, o := range obs {
		o.OnAttempt(runID, a)
	}
}

// OnFinish implements Observer.
func (obs Observers) OnFinish(runID string, f Finish) {
	for _, o := range obs {
		o.OnFinish(runID, f)
	}
}

type nopObserver struct{}

func (nopObserver) OnAttempt(string, Attempt) {}
func (nopObserver) OnFinish(string, Finish)   {}
