package workflow

import (
	"fmt"
	"slices"

	"github.com/pbaille/notes/internal/audit"
	"github.com/pbaille/notes/internal/domain"
)

// Action is a review action applied to a single note.
type Action string

const (
	ActionApprove Action = audit.ActionApprove
	ActionReject  Action = audit.ActionReject
	ActionRestore Action = audit.ActionRestore
	ActionEdit    Action = audit.ActionEdit
	ActionDelete  Action = audit.ActionDelete
)

type transition struct {
	from []domain.ApprovalStatus
	// to is empty when the action keeps the current status.
	to domain.ApprovalStatus
}

var transitions = map[Action]transition{
	ActionApprove: {from: []domain.ApprovalStatus{domain.StatusPending}, to: domain.StatusApproved},
	ActionReject:  {from: []domain.ApprovalStatus{domain.StatusPending}, to: domain.StatusRejected},
	ActionRestore: {from: []domain.ApprovalStatus{domain.StatusRejected}, to: domain.StatusPending},
	ActionEdit:    {from: []domain.ApprovalStatus{domain.StatusPending, domain.StatusApproved}},
	ActionDelete:  {from: domain.Statuses},
}

// Allowed reports whether action may be applied to a note in status from.
func Allowed(from domain.ApprovalStatus, action Action) bool {
	t, ok := transitions[action]
	return ok && slices.Contains(t.from, from)
}

// Actions lists the actions available for a note in status s, in a stable order.
func Actions(s domain.ApprovalStatus) []Action {
	var out []Action
	for _, a := range []Action{ActionApprove, ActionReject, ActionRestore, ActionEdit, ActionDelete} {
		if Allowed(s, a) {
			out = append(out, a)
		}
	}
	return out
}

func checkTransition(n *domain.Note, action Action) error {
	if !Allowed(n.ApprovalStatus, action) {
		return fmt.Errorf("%w: cannot %s a %s note", ErrInvalidTransition, action, n.ApprovalStatus)
	}
	return nil
}
