package pipeline

import "fmt"

// State is a processing run's position in the pipeline.
type State string

const (
	StateUploaded    State = "uploaded"
	StateRectifying  State = "rectifying"
	StateExtracting  State = "extracting"
	StateResolving   State = "resolving"
	StateClassifying State = "classifying"
	StatePackaging   State = "packaging"
	StatePersisting  State = "persisting"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// transitions lists the legal successor states. Failure is only reachable
// from validation, text extraction and persistence; the geometry,
// resolution, classification and packaging stages always degrade instead of
// failing.
var transitions = map[State][]State{
	StateUploaded:    {StateRectifying, StateFailed},
	StateRectifying:  {StateExtracting},
	StateExtracting:  {StateResolving, StateFailed},
	StateResolving:   {StateClassifying},
	StateClassifying: {StatePackaging},
	StatePackaging:   {StatePersisting},
	StatePersisting:  {StateDone, StateFailed},
	StateDone:        {},
	StateFailed:      {},
}

// advance moves the run to next, panicking on an illegal transition. The
// transition table is fixed at compile time, so an illegal move is a
// programming error, not a runtime condition.
func (r *Run) advance(next State) {
	for _, allowed := range transitions[r.State] {
		if allowed == next {
			r.State = next
			return
		}
	}
	panic(fmt.Sprintf("illegal pipeline transition %s -> %s", r.State, next))
}
