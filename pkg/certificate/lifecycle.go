package certificate

import "fmt"

// Transition is an allowed status change.
type Transition struct {
	From Status
	To   Status
}

// DefaultTransitions lists the status changes the lifecycle manager performs.
// Expiry is not a transition; see ClassifyExpiry.
var DefaultTransitions = []Transition{
	{From: StatusDraft, To: StatusPending},
	{From: StatusPending, To: StatusApproved},
	{From: StatusPending, To: StatusRejected},
	{From: StatusRejected, To: StatusPending},
}

// StateMachine validates certificate status transitions.
type StateMachine struct {
	transitions []Transition
}

// NewStateMachine creates a machine with the default rules.
func NewStateMachine() *StateMachine {
	return &StateMachine{transitions: DefaultTransitions}
}

// Validate returns nil if from->to is allowed.
func (m *StateMachine) Validate(from, to Status) error {
	for _, t := range m.transitions {
		if t.From == from && t.To == to {
			return nil
		}
	}
	return &Error{
		Kind:    KindValidation,
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("certificate cannot move from %s to %s", from, to),
	}
}

// Allowed returns the statuses reachable from from.
func (m *StateMachine) Allowed(from Status) []Status {
	var out []Status
	for _, t := range m.transitions {
		if t.From == from {
			out = append(out, t.To)
		}
	}
	return out
}

// targetStatus maps an audit action onto the status it produces.
func targetStatus(a Action) (Status, bool) {
	switch a {
	case ActionApprove:
		return StatusApproved, true
	case ActionReject:
		return StatusRejected, true
	}
	return "", false
}
