package locations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sealtrack/sealtrack-backend/internal/tasks"
	"github.com/sealtrack/sealtrack-backend/pkg/db/models"
	"github.com/sealtrack/sealtrack-backend/pkg/enums"
	apperrors "github.com/sealtrack/sealtrack-backend/pkg/errors"
	"github.com/sealtrack/sealtrack-backend/pkg/geo"
	"github.com/sealtrack/sealtrack-backend/pkg/logger"
	"github.com/sealtrack/sealtrack-backend/pkg/types"
	"gorm.io/gorm"
)

// taskLifecycle is the slice of the task service the ping pipeline drives.
type taskLifecycle interface {
	FlagSuspicious(ctx context.Context, taskID uuid.UUID, actorID *uuid.UUID, reason enums.TaskEventType, payload types.JSONMap, clientIP string) error
	Transition(ctx context.Context, taskID uuid.UUID, to enums.TaskStatus, actorID *uuid.UUID, clientIP string) error
}

// Service validates and persists location pings. Telemetry is never dropped:
// a ping that fails the geofence or time-window check is stored like any
// other and the task is flagged instead.
type Service struct {
	repo      Repository
	taskRepo  tasks.Repository
	lifecycle taskLifecycle
	logg      *logger.Logger
	now       func() time.Time
}

// NewService wires the location pipeline against the task state machine.
func NewService(repo Repository, taskRepo tasks.Repository, taskSvc *tasks.Service, logg *logger.Logger) *Service {
	return &Service{
		repo:      repo,
		taskRepo:  taskRepo,
		lifecycle: taskSvc,
		logg:      logg,
		now:       time.Now,
	}
}

// ValidateAssignment decides whether the agent may report against the task.
// Policy refusals are data, not errors; only infrastructure failures return
// a non-nil error.
func (s *Service) ValidateAssignment(ctx context.Context, agentID, taskID uuid.UUID) (Policy, error) {
	task, err := s.taskRepo.FindByID(ctx, taskID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Policy{Reason: ReasonTaskNotFound}, nil
		}
		return Policy{}, apperrors.Wrap(apperrors.CodeInternal, err, "looking up task")
	}
	if task.AssignedAgentID != agentID {
		return Policy{Reason: ReasonNotAssignee}, nil
	}
	if !task.Status.AcceptsPings() {
		return Policy{Reason: ReasonTaskCompleted}, nil
	}
	return Policy{Valid: true, StoreHistory: task.StoreLocationHistory}, nil
}

// Report handles one agent ping: assignment check, persistence, policy
// checks, and the resulting state-machine effects.
func (s *Service) Report(ctx context.Context, agentID uuid.UUID, req ReportRequest) (*ReportResult, error) {
	if err := req.Coordinate.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, err, "invalid coordinate")
	}

	policy, err := s.ValidateAssignment(ctx, agentID, req.TaskID)
	if err != nil {
		return nil, err
	}
	if !policy.Valid {
		return nil, policyError(policy.Reason)
	}

	task, err := s.taskRepo.FindByID(ctx, req.TaskID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "looking up task")
	}

	now := s.now()
	recordedAt := now
	if req.RecordedAt != nil {
		recordedAt = req.RecordedAt.UTC()
	}
	current := &models.CurrentAgentLocation{
		TaskID:     task.ID,
		AgentID:    agentID,
		Latitude:   req.Coordinate.Latitude,
		Longitude:  req.Coordinate.Longitude,
		Heading:    req.Heading,
		Speed:      req.Speed,
		Accuracy:   req.Accuracy,
		RecordedAt: recordedAt,
	}
	if err := s.repo.UpsertCurrent(ctx, current); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "persisting location")
	}
	if policy.StoreHistory {
		history := &models.AgentLocationHistory{
			ID:         uuid.New(),
			TaskID:     task.ID,
			AgentID:    agentID,
			Latitude:   req.Coordinate.Latitude,
			Longitude:  req.Coordinate.Longitude,
			Heading:    req.Heading,
			Speed:      req.Speed,
			Accuracy:   req.Accuracy,
			RecordedAt: recordedAt,
		}
		if err := s.repo.AppendHistory(ctx, history); err != nil {
			s.logg.Error(ctx, "appending location history", err)
		}
	}

	result := &ReportResult{
		Snapshot: snapshotFrom(current),
		Status:   task.Status,
	}

	breach := s.detectBreach(task, req.Coordinate, now)
	if breach != "" {
		payload := types.JSONMap{
			"latitude":  req.Coordinate.Latitude,
			"longitude": req.Coordinate.Longitude,
		}
		if err := s.lifecycle.FlagSuspicious(ctx, task.ID, &agentID, breach, payload, req.ClientIP); err != nil {
			return nil, err
		}
		result.Status = enums.TaskStatusSuspicious
		result.Flagged = true
		return result, nil
	}

	// First clean in-fence ping on a pending task counts as pickup evidence.
	if task.Status == enums.TaskStatusPending {
		if err := s.lifecycle.Transition(ctx, task.ID, enums.TaskStatusInProgress, &agentID, req.ClientIP); err != nil {
			appErr := apperrors.As(err)
			if appErr == nil || appErr.Code() != apperrors.CodeStateConflict {
				return nil, err
			}
			// Lost a race with another transition; the ping itself stands.
		} else {
			result.Status = enums.TaskStatusInProgress
		}
	}
	return result, nil
}

// Latest returns the current known position for a task, or nil when no ping
// has been recorded.
func (s *Service) Latest(ctx context.Context, taskID uuid.UUID) (*Snapshot, error) {
	row, err := s.repo.Latest(ctx, taskID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "reading location")
	}
	if row == nil {
		return nil, nil
	}
	snapshot := snapshotFrom(row)
	return &snapshot, nil
}

// detectBreach applies the time-window and geofence policy for the task's
// current leg. Pending tasks are measured against the pickup point, everything
// else against the destination; legs without coordinates pass vacuously.
func (s *Service) detectBreach(task *models.Task, reported types.Coordinate, at time.Time) enums.TaskEventType {
	if at.Before(task.StartTime) || at.After(task.EndTime) {
		return enums.TaskEventTimeWindowBreach
	}

	var lat, lon *float64
	if task.Status == enums.TaskStatusPending {
		lat, lon = task.PickupLatitude, task.PickupLongitude
	} else {
		lat, lon = task.DestinationLatitude, task.DestinationLongitude
	}
	if lat == nil || lon == nil {
		return ""
	}
	fence := types.Coordinate{Latitude: *lat, Longitude: *lon}
	if !geo.IsWithinFence(reported, fence, float64(task.GeofenceRadiusMeters)) {
		return enums.TaskEventGeofenceBreach
	}
	return ""
}

func policyError(reason string) error {
	switch reason {
	case ReasonTaskNotFound:
		return apperrors.New(apperrors.CodeNotFound, "task not found")
	case ReasonNotAssignee:
		return apperrors.New(apperrors.CodeForbidden, "task is assigned to another agent")
	case ReasonTaskCompleted:
		return apperrors.New(apperrors.CodeStateConflict, "task is already completed")
	default:
		return apperrors.New(apperrors.CodeInternal, "unknown policy refusal")
	}
}
