package model

// State is the lifecycle of the process-wide model handle.
//
//	NotLoaded -> Loading -> Ready
//	                     -> Failed
type State int32

const (
	NotLoaded State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case NotLoaded:
		return "not_loaded"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}
