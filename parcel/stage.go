package parcel

import "time"

// LifecycleStage is the ordered per-parcel progress register. Normal flow
// moves strictly forward through the ordered stages; the terminal
// alternates Timeout, Lost and Error are reachable from any non-terminal
// stage.
type LifecycleStage int

// Ordered stages followed by terminal alternates
const (
	StageCreated LifecycleStage = iota
	StageDwsReceived
	StageApiRequested
	StageChuteAssigned
	StageLanded
	StageBagged
	StageCompleted

	StageTimeout
	StageLost
	StageError
)

// String returns the stage name
func (s LifecycleStage) String() string {
	switch s {
	case StageCreated:
		return "Created"
	case StageDwsReceived:
		return "DwsReceived"
	case StageApiRequested:
		return "ApiRequested"
	case StageChuteAssigned:
		return "ChuteAssigned"
	case StageLanded:
		return "Landed"
	case StageBagged:
		return "Bagged"
	case StageCompleted:
		return "Completed"
	case StageTimeout:
		return "Timeout"
	case StageLost:
		return "Lost"
	case StageError:
		return "Error"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether no further transition is allowed from s.
func (s LifecycleStage) IsTerminal() bool {
	switch s {
	case StageCompleted, StageTimeout, StageLost, StageError:
		return true
	}
	return false
}

// CanTransitionTo reports whether a parcel at stage s may move to next.
// Forward moves through the ordered stages are allowed; Timeout, Lost and
// Error are allowed from any non-terminal stage; nothing leaves a
// terminal stage.
func (s LifecycleStage) CanTransitionTo(next LifecycleStage) bool {
	if s.IsTerminal() {
		return false
	}
	switch next {
	case StageTimeout, StageLost, StageError:
		return true
	}
	return next > s && next <= StageCompleted
}

// LifecycleNode is one immutable entry in a parcel's append-only stage
// log. Nodes are never mutated after append; the log is the audit trail.
type LifecycleNode struct {
	EventTime   time.Time
	Stage       LifecycleStage
	Description string
}
