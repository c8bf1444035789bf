package pipeline

// State is the position of one document in the pipeline.
type State int

const (
	StateReceived State = iota
	StateRasterized
	StateRecognized
	StateExtracted
	StateAssembled
	StateCompleted
	StateFailed
)

var stateNames = [...]string{
	StateReceived:   "received",
	StateRasterized: "rasterized",
	StateRecognized: "recognized",
	StateExtracted:  "extracted",
	StateAssembled:  "assembled",
	StateCompleted:  "completed",
	StateFailed:     "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}
