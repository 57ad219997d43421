package training

import "fmt"

type PhaseState string

const (
	StateLocked     PhaseState = "locked"
	StateNotStarted PhaseState = "not started"
	StateInProgress PhaseState = "in progress"
	StateComplete   PhaseState = "complete"
)

// PhaseStatus is the state of a phase for a given student, as displayed by the portals.
type PhaseStatus struct {
	ID                   PhaseID    `json:"id"`
	Name                 string     `json:"name"`
	Completed            int        `json:"completed"`
	Total                int        `json:"total"`
	Percentage           int        `json:"percentage"`
	IsComplete           bool       `json:"is_complete"`
	SignedOff            bool       `json:"signed_off"`
	Accessible           bool       `json:"accessible"`
	AlwaysAccessible     bool       `json:"always_accessible"`
	MissingPrerequisites []PhaseID  `json:"missing_prerequisites,omitempty"`
	State                PhaseState `json:"state"`
}

func (ps PhaseStatus) resolveState() PhaseState {
	switch {
	case ps.IsComplete:
		return StateComplete
	case !ps.Accessible:
		return StateLocked
	case ps.Completed == 0:
		return StateNotStarted
	default:
		return StateInProgress
	}
}

// Label is the human readable state, eg. "In progress (40%)".
func (ps PhaseStatus) Label() string {
	switch ps.State {
	case StateComplete:
		if ps.SignedOff && ps.Completed < ps.Total {
			return "Complete (signed off)"
		}
		return "Complete"
	case StateLocked:
		return "Locked"
	case StateInProgress:
		return fmt.Sprintf("In progress (%d%%)", ps.Percentage)
	default:
		return "Not started"
	}
}

// CurrentPhase returns the first accessible phase that is not complete yet, in program order.
// Nil means every phase is complete.
func CurrentPhase(statuses []PhaseStatus) *PhaseStatus {
	for i := range statuses {
		if statuses[i].Accessible && !statuses[i].IsComplete {
			ps := statuses[i]
			return &ps
		}
	}
	return nil
}
