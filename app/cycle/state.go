package cycle

type State string

const (
	StateIdle          State = "idle"
	StateFetching      State = "fetching"
	StateExtracting    State = "extracting"
	StateDeduplicating State = "deduplicating"
	StateEvaluating    State = "evaluating"
	StateScoring       State = "scoring"
	StateDone          State = "done"
	StateFailed        State = "failed"
)

// Running reports whether a cycle is between Idle and a terminal state.
func (s State) Running() bool {
	switch s {
	case StateIdle, StateDone, StateFailed:
		return false
	default:
		return true
	}
}
