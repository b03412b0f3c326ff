package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sealtrack/sealtrack-backend/internal/audit"
	"github.com/sealtrack/sealtrack-backend/internal/notifications"
	"github.com/sealtrack/sealtrack-backend/internal/users"
	"github.com/sealtrack/sealtrack-backend/pkg/db"
	"github.com/sealtrack/sealtrack-backend/pkg/db/models"
	"github.com/sealtrack/sealtrack-backend/pkg/enums"
	apperrors "github.com/sealtrack/sealtrack-backend/pkg/errors"
	"github.com/sealtrack/sealtrack-backend/pkg/geo"
	"github.com/sealtrack/sealtrack-backend/pkg/logger"
	"github.com/sealtrack/sealtrack-backend/pkg/pagination"
	"github.com/sealtrack/sealtrack-backend/pkg/types"
	"gorm.io/gorm"
)

const (
	minGeofenceRadiusMeters = 10
	maxGeofenceRadiusMeters = 1000
)

// Service owns task lifecycle: creation, listings, and the pickup/delivery
// confirmations that march a task through its state machine. Out-of-window
// or out-of-fence confirmations flag the task instead of rejecting the
// evidence.
type Service struct {
	repo          Repository
	users         users.Repository
	audit         audit.Recorder
	notifier      notifications.Notifier
	logg          *logger.Logger
	defaultRadius int
	now           func() time.Time
}

// NewService wires the task service against its collaborators.
func NewService(
	repo Repository,
	userRepo users.Repository,
	recorder audit.Recorder,
	notifier notifications.Notifier,
	logg *logger.Logger,
	defaultRadiusMeters int,
) *Service {
	if defaultRadiusMeters <= 0 {
		defaultRadiusMeters = 100
	}
	return &Service{
		repo:          repo,
		users:         userRepo,
		audit:         recorder,
		notifier:      notifier,
		logg:          logg,
		defaultRadius: defaultRadiusMeters,
		now:           time.Now,
	}
}

// Create validates and persists a new delivery task, appends the assignment
// event, and notifies the assigned agent.
func (s *Service) Create(ctx context.Context, actorID uuid.UUID, req CreateTaskRequest) (*TaskDTO, error) {
	if !req.EndTime.After(req.StartTime) {
		return nil, apperrors.New(apperrors.CodeValidation, "end_time must be after start_time")
	}
	if !req.ExamType.IsValid() {
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid exam_type %q", req.ExamType))
	}

	radius := s.defaultRadius
	if req.GeofenceRadiusMeters != nil {
		radius = *req.GeofenceRadiusMeters
		if radius < minGeofenceRadiusMeters || radius > maxGeofenceRadiusMeters {
			return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf(
				"geofence_radius_meters must be between %d and %d",
				minGeofenceRadiusMeters, maxGeofenceRadiusMeters,
			))
		}
	}

	for _, coord := range []*types.Coordinate{req.PickupCoordinate, req.DestinationCoordinate} {
		if coord == nil {
			continue
		}
		if err := coord.Validate(); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeValidation, err, "invalid coordinate")
		}
	}

	agent, err := s.users.FindByID(ctx, req.AssignedAgentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeValidation, "assigned agent does not exist")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "looking up agent")
	}
	if agent.Role != enums.RoleFieldAgent {
		return nil, apperrors.New(apperrors.CodeValidation, "assignee must be a field agent")
	}
	if !agent.IsActive {
		return nil, apperrors.New(apperrors.CodeValidation, "assigned agent is disabled")
	}

	task := &models.Task{
		ID:                   uuid.New(),
		SealedPackCode:       req.SealedPackCode,
		SourceLocation:       req.SourceLocation,
		DestinationLocation:  req.DestinationLocation,
		GeofenceRadiusMeters: radius,
		AssignedAgentID:      agent.ID,
		StartTime:            req.StartTime,
		EndTime:              req.EndTime,
		Status:               enums.TaskStatusPending,
		ExamType:             req.ExamType,
		StoreLocationHistory: req.StoreLocationHistory,
		CreatedByUserID:      &actorID,
	}
	if req.PickupCoordinate != nil {
		task.PickupLatitude = &req.PickupCoordinate.Latitude
		task.PickupLongitude = &req.PickupCoordinate.Longitude
	}
	if req.DestinationCoordinate != nil {
		task.DestinationLatitude = &req.DestinationCoordinate.Latitude
		task.DestinationLongitude = &req.DestinationCoordinate.Longitude
	}

	if err := s.repo.Create(ctx, task); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, apperrors.New(apperrors.CodeConflict, "sealed pack code already in use")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "creating task")
	}

	s.appendEvent(ctx, task.ID, enums.TaskEventAssigned, &actorID, types.JSONMap{
		"agent_id":         agent.ID.String(),
		"sealed_pack_code": task.SealedPackCode,
	})
	s.record(ctx, audit.Entry{
		Action:     audit.ActionTaskCreated,
		EntityType: "task",
		EntityID:   &task.ID,
		ActorID:    &actorID,
	})
	if err := s.notifier.Notify(ctx, agent.ID, enums.NotificationTaskAssigned,
		"New delivery task",
		fmt.Sprintf("Sealed pack %s: %s to %s", task.SealedPackCode, task.SourceLocation, task.DestinationLocation),
	); err != nil {
		s.logg.Error(ctx, "notifying assigned agent", err)
	}

	s.logg.Info(s.logg.WithTaskID(ctx, task.ID.String()), "task created")
	return TaskFromModel(task), nil
}

// Get returns a task by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*TaskDTO, error) {
	task, err := s.findTask(ctx, id)
	if err != nil {
		return nil, err
	}
	return TaskFromModel(task), nil
}

// List returns one admin page of tasks, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter, params pagination.Params) (*TaskPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, err, "invalid cursor")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.List(ctx, filter, limit+1, cursor)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "listing tasks")
	}

	page := &TaskPage{Items: make([]TaskDTO, 0, len(rows))}
	if len(rows) > limit {
		last := rows[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
		rows = rows[:limit]
	}
	for i := range rows {
		page.Items = append(page.Items, *TaskFromModel(&rows[i]))
	}
	return page, nil
}

// ListEvents returns the append-only event log of a task, oldest first.
func (s *Service) ListEvents(ctx context.Context, taskID uuid.UUID) ([]TaskEventDTO, error) {
	if _, err := s.findTask(ctx, taskID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListEvents(ctx, taskID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "listing task events")
	}
	out := make([]TaskEventDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *EventFromModel(&rows[i]))
	}
	return out, nil
}

// ListMine returns every task assigned to the agent, earliest window first.
func (s *Service) ListMine(ctx context.Context, agentID uuid.UUID) ([]TaskDTO, error) {
	rows, err := s.repo.ListByAgent(ctx, agentID)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "listing agent tasks")
	}
	out := make([]TaskDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *TaskFromModel(&rows[i]))
	}
	return out, nil
}

// GetForAgent returns the task only when the caller is its assignee.
func (s *Service) GetForAgent(ctx context.Context, agentID, taskID uuid.UUID) (*TaskDTO, error) {
	task, err := s.findAssignedTask(ctx, agentID, taskID)
	if err != nil {
		return nil, err
	}
	return TaskFromModel(task), nil
}

// ConfirmPickup records the agent's pickup at the source location. In-window,
// in-fence pickups move PENDING to IN_PROGRESS; anything else records the
// evidence and flags the task.
func (s *Service) ConfirmPickup(ctx context.Context, agentID, taskID uuid.UUID, req ConfirmRequest) (*TaskDTO, error) {
	return s.confirm(ctx, agentID, taskID, req, confirmationSpec{
		eventType:  enums.TaskEventPickupConfirmed,
		wantStatus: enums.TaskStatusPending,
		nextStatus: enums.TaskStatusInProgress,
		fenceOf: func(task *models.Task) *types.Coordinate {
			return coordinateFrom(task.PickupLatitude, task.PickupLongitude)
		},
	})
}

// ConfirmDelivery records the agent's handover at the destination. In-window,
// in-fence deliveries move IN_PROGRESS to COMPLETED; completed tasks accept
// further confirmations as events without changing status.
func (s *Service) ConfirmDelivery(ctx context.Context, agentID, taskID uuid.UUID, req ConfirmRequest) (*TaskDTO, error) {
	return s.confirm(ctx, agentID, taskID, req, confirmationSpec{
		eventType:  enums.TaskEventDeliveryConfirmed,
		wantStatus: enums.TaskStatusInProgress,
		nextStatus: enums.TaskStatusCompleted,
		fenceOf: func(task *models.Task) *types.Coordinate {
			return coordinateFrom(task.DestinationLatitude, task.DestinationLongitude)
		},
	})
}

type confirmationSpec struct {
	eventType  enums.TaskEventType
	wantStatus enums.TaskStatus
	nextStatus enums.TaskStatus
	fenceOf    func(task *models.Task) *types.Coordinate
}

func (s *Service) confirm(ctx context.Context, agentID, taskID uuid.UUID, req ConfirmRequest, spec confirmationSpec) (*TaskDTO, error) {
	if err := req.Coordinate.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, err, "invalid coordinate")
	}

	task, err := s.findAssignedTask(ctx, agentID, taskID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	payload := types.JSONMap{
		"latitude":  req.Coordinate.Latitude,
		"longitude": req.Coordinate.Longitude,
	}

	// The confirmation itself is always recorded, whatever happens to the
	// status afterwards.
	s.appendEvent(ctx, task.ID, spec.eventType, &agentID, payload)

	if task.Status == enums.TaskStatusCompleted {
		return TaskFromModel(task), nil
	}

	breach := s.detectBreach(task, spec.fenceOf(task), req.Coordinate, now)
	if breach != "" {
		if err := s.flagSuspicious(ctx, task, &agentID, breach, payload, req.ClientIP); err != nil {
			return nil, err
		}
		return TaskFromModel(task), nil
	}

	if task.Status != spec.wantStatus {
		return nil, apperrors.New(apperrors.CodeStateConflict, fmt.Sprintf(
			"task is %s; expected %s", task.Status, spec.wantStatus,
		))
	}
	if err := s.transition(ctx, task, spec.nextStatus, &agentID, req.ClientIP); err != nil {
		return nil, err
	}

	if task.Status == enums.TaskStatusCompleted {
		if err := s.notifier.NotifyAdmins(ctx, enums.NotificationTaskCompleted,
			"Delivery completed",
			fmt.Sprintf("Sealed pack %s delivered to %s", task.SealedPackCode, task.DestinationLocation),
		); err != nil {
			s.logg.Error(ctx, "notifying admins of completion", err)
		}
	}
	return TaskFromModel(task), nil
}

// detectBreach names the policy violation of a confirmation, or returns the
// empty string when the report is clean. Geofence checks are skipped when the
// leg has no coordinate.
func (s *Service) detectBreach(task *models.Task, fence *types.Coordinate, reported types.Coordinate, at time.Time) enums.TaskEventType {
	if at.Before(task.StartTime) || at.After(task.EndTime) {
		return enums.TaskEventTimeWindowBreach
	}
	if fence != nil && !geo.IsWithinFence(reported, *fence, float64(task.GeofenceRadiusMeters)) {
		return enums.TaskEventGeofenceBreach
	}
	return ""
}

// FlagSuspicious marks the task SUSPICIOUS on behalf of another component
// (the live tracking pipeline uses this for out-of-policy pings). A task
// already flagged or completed is left untouched.
func (s *Service) FlagSuspicious(ctx context.Context, taskID uuid.UUID, actorID *uuid.UUID, reason enums.TaskEventType, payload types.JSONMap, clientIP string) error {
	task, err := s.findTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status == enums.TaskStatusSuspicious {
		// Already flagged; keep appending the evidence.
		s.appendEvent(ctx, task.ID, reason, actorID, payload)
		return nil
	}
	if !CanTransition(task.Status, enums.TaskStatusSuspicious) {
		return nil
	}
	return s.flagSuspicious(ctx, task, actorID, reason, payload, clientIP)
}

func (s *Service) flagSuspicious(ctx context.Context, task *models.Task, actorID *uuid.UUID, reason enums.TaskEventType, payload types.JSONMap, clientIP string) error {
	if err := s.repo.UpdateStatus(ctx, task.ID, task.Status, enums.TaskStatusSuspicious); err != nil {
		if errors.Is(err, ErrStaleStatus) {
			// Concurrent flag; the task is already where we wanted it.
			task.Status = enums.TaskStatusSuspicious
			return nil
		}
		return apperrors.Wrap(apperrors.CodeInternal, err, "flagging task")
	}
	previous := task.Status
	task.Status = enums.TaskStatusSuspicious

	s.appendEvent(ctx, task.ID, reason, actorID, payload)
	s.appendEvent(ctx, task.ID, enums.TaskEventFlaggedSuspicious, actorID, types.JSONMap{
		"reason":          string(reason),
		"previous_status": previous.String(),
	})
	s.record(ctx, audit.Entry{
		Action:     audit.ActionLocationBreach,
		EntityType: "task",
		EntityID:   &task.ID,
		ActorID:    actorID,
		IPAddress:  clientIP,
		Detail:     types.JSONMap{"reason": string(reason)},
	})
	if err := s.notifier.NotifyAdmins(ctx, enums.NotificationTaskSuspicious,
		"Task flagged suspicious",
		fmt.Sprintf("Sealed pack %s flagged: %s", task.SealedPackCode, reason),
	); err != nil {
		s.logg.Error(ctx, "notifying admins of flag", err)
	}
	s.logg.Warn(s.logg.WithTaskID(ctx, task.ID.String()), "task flagged suspicious")
	return nil
}

// Transition moves a task along a legal lifecycle edge and records the
// status-change event. Used by the live tracking pipeline for the first valid
// in-fence ping.
func (s *Service) Transition(ctx context.Context, taskID uuid.UUID, to enums.TaskStatus, actorID *uuid.UUID, clientIP string) error {
	task, err := s.findTask(ctx, taskID)
	if err != nil {
		return err
	}
	return s.transition(ctx, task, to, actorID, clientIP)
}

func (s *Service) transition(ctx context.Context, task *models.Task, to enums.TaskStatus, actorID *uuid.UUID, clientIP string) error {
	if err := GuardTransition(task.Status, to); err != nil {
		return err
	}
	if err := s.repo.UpdateStatus(ctx, task.ID, task.Status, to); err != nil {
		if errors.Is(err, ErrStaleStatus) {
			return apperrors.New(apperrors.CodeStateConflict, "task status changed concurrently")
		}
		return apperrors.Wrap(apperrors.CodeInternal, err, "updating task status")
	}
	previous := task.Status
	task.Status = to

	s.appendEvent(ctx, task.ID, enums.TaskEventStatusChanged, actorID, types.JSONMap{
		"from": previous.String(),
		"to":   to.String(),
	})
	s.record(ctx, audit.Entry{
		Action:     audit.ActionTaskStatusChanged,
		EntityType: "task",
		EntityID:   &task.ID,
		ActorID:    actorID,
		IPAddress:  clientIP,
		Detail: types.JSONMap{
			"from": previous.String(),
			"to":   to.String(),
		},
	})
	s.logg.Info(s.logg.WithTaskID(ctx, task.ID.String()), "task status changed")
	return nil
}

func (s *Service) findTask(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	task, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "task not found")
		}
		return nil, apperrors.Wrap(apperrors.CodeInternal, err, "looking up task")
	}
	return task, nil
}

func (s *Service) findAssignedTask(ctx context.Context, agentID, taskID uuid.UUID) (*models.Task, error) {
	task, err := s.findTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if task.AssignedAgentID != agentID {
		return nil, apperrors.New(apperrors.CodeForbidden, "task is assigned to another agent")
	}
	return task, nil
}

func (s *Service) appendEvent(ctx context.Context, taskID uuid.UUID, eventType enums.TaskEventType, actorID *uuid.UUID, payload types.JSONMap) {
	event := &models.TaskEvent{
		ID:        uuid.New(),
		TaskID:    taskID,
		EventType: eventType,
		ActorID:   actorID,
		Payload:   payload,
	}
	if err := s.repo.AppendEvent(ctx, event); err != nil {
		s.logg.Error(ctx, "appending task event", err)
	}
}

func (s *Service) record(ctx context.Context, entry audit.Entry) {
	if err := s.audit.Record(ctx, entry); err != nil {
		s.logg.Error(ctx, "writing audit entry", err)
	}
}
