package pipeline

// ProgressSink receives stage-by-stage progress while a document is
// processed. Implementations must be safe for use from a single pipeline
// goroutine; the pipeline never calls them concurrently for one run.
type ProgressSink interface {
	// OnStage is called when a stage begins. step counts from 1 to total.
	OnStage(runID string, step, total int, state State, message string)

	// OnFinished is called once with the terminal state.
	OnFinished(runID string, state State, err error)
}

// NoOpProgressSink ignores all progress. Useful as a default.
type NoOpProgressSink struct{}

func (NoOpProgressSink) OnStage(string, int, int, State, string) {}

func (NoOpProgressSink) OnFinished(string, State, error) {}

// FuncProgressSink adapts plain functions into a ProgressSink. Nil fields
// are skipped.
type FuncProgressSink struct {
	Stage    func(runID string, step, total int, state State, message string)
	Finished func(runID string, state State, err error)
}

func (f FuncProgressSink) OnStage(runID string, step, total int, state State, message string) {
	if f.Stage != nil {
		f.Stage(runID, step, total, state, message)
	}
}

func (f FuncProgressSink) OnFinished(runID string, state State, err error) {
	if f.Finished != nil {
		f.Finished(runID, state, err)
	}
}
