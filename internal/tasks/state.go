package tasks

import (
	"fmt"

	"github.com/sealtrack/sealtrack-backend/pkg/enums"
	apperrors "github.com/sealtrack/sealtrack-backend/pkg/errors"
)

// allowedTransitions is the delivery lifecycle. COMPLETED is terminal.
// SUSPICIOUS has no outbound edges; clearing a flagged task is an admin
// workflow that does not exist yet, and adding an edge here is how it would
// start.
var allowedTransitions = map[enums.TaskStatus][]enums.TaskStatus{
	enums.TaskStatusPending:    {enums.TaskStatusInProgress, enums.TaskStatusSuspicious},
	enums.TaskStatusInProgress: {enums.TaskStatusCompleted, enums.TaskStatusSuspicious},
	enums.TaskStatusCompleted:  {},
	enums.TaskStatusSuspicious: {},
}

// CanTransition reports whether the lifecycle permits moving from one status
// to another.
func CanTransition(from, to enums.TaskStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// GuardTransition returns a state-conflict error when the transition is not
// permitted.
func GuardTransition(from, to enums.TaskStatus) error {
	if !CanTransition(from, to) {
		return apperrors.New(
			apperrors.CodeStateConflict,
			fmt.Sprintf("cannot move task from %s to %s", from, to),
		)
	}
	return nil
}
