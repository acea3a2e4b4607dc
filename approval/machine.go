// ABOUTME: Approval state machine shared by tasks, visit targets and sales submissions
// ABOUTME: Validates transitions and computes the approval metadata each one leaves behind
package approval

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/fieldsync/models"
)

var (
	ErrInvalidTransition = errors.New("invalid approval transition")
	ErrReasonRequired    = errors.New("rejection reason is required")
	ErrNotPermitted      = errors.New("actor may not review records")
)

type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
	ActionReopen  Action = "reopen"
)

// transitions maps each action to the states it may start from.
var transitions = map[Action]map[models.ApprovalStatus]models.ApprovalStatus{
	ActionApprove: {models.ApprovalPending: models.ApprovalApproved},
	ActionReject:  {models.ApprovalPending: models.ApprovalRejected},
	ActionReopen: {
		models.ApprovalApproved: models.ApprovalPending,
		models.ApprovalRejected: models.ApprovalPending,
	},
}

// Apply returns the approval state after action. noop is true for approving
// an already approved record, which must trigger no side effects.
func Apply(current models.Approval, action Action, actor models.Actor, reason string, at time.Time) (next models.Approval, noop bool, err error) {
	if action == ActionApprove && current.Status == models.ApprovalApproved {
		return current, true, nil
	}

	to, ok := transitions[action][current.Status]
	if !ok {
		return current, false, fmt.Errorf("%w: cannot %s a %s record", ErrInvalidTransition, action, current.Status)
	}

	at = at.UTC()
	switch to {
	case models.ApprovalApproved:
		next = models.Approval{Status: to, ApprovedBy: &actor.ID, ApprovedAt: &at}
	case models.ApprovalRejected:
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return current, false, ErrReasonRequired
		}
		next = models.Approval{Status: to, RejectedBy: &actor.ID, RejectedAt: &at, RejectionReason: reason}
	default:
		next = models.Approval{Status: to}
	}

	return next, false, nil
}

// Initial is the approval a newly created record starts with. Elevated
// actors skip review.
func Initial(actor models.Actor, at time.Time) models.Approval {
	if !actor.IsElevated() {
		return models.Approval{Status: models.ApprovalPending}
	}
	at = at.UTC()
	return models.Approval{Status: models.ApprovalApproved, ApprovedBy: &actor.ID, ApprovedAt: &at}
}
