package tasks

import (
	"testing"

	"github.com/sealtrack/sealtrack-backend/pkg/enums"
	apperrors "github.com/sealtrack/sealtrack-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from    enums.TaskStatus
		to      enums.TaskStatus
		allowed bool
	}{
		{enums.TaskStatusPending, enums.TaskStatusInProgress, true},
		{enums.TaskStatusPending, enums.TaskStatusSuspicious, true},
		{enums.TaskStatusPending, enums.TaskStatusCompleted, false},
		{enums.TaskStatusInProgress, enums.TaskStatusCompleted, true},
		{enums.TaskStatusInProgress, enums.TaskStatusSuspicious, true},
		{enums.TaskStatusInProgress, enums.TaskStatusPending, false},
		{enums.TaskStatusCompleted, enums.TaskStatusInProgress, false},
		{enums.TaskStatusCompleted, enums.TaskStatusSuspicious, false},
		{enums.TaskStatusSuspicious, enums.TaskStatusInProgress, false},
		{enums.TaskStatusSuspicious, enums.TaskStatusCompleted, false},
	}

	for _, tc := range cases {
		assert.Equalf(t, tc.allowed, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestGuardTransition(t *testing.T) {
	require.NoError(t, GuardTransition(enums.TaskStatusPending, enums.TaskStatusInProgress))

	err := GuardTransition(enums.TaskStatusCompleted, enums.TaskStatusInProgress)
	require.Error(t, err)
	appErr := apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeStateConflict, appErr.Code())
}
