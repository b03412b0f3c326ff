package tasks

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sealtrack/sealtrack-backend/internal/audit"
	"github.com/sealtrack/sealtrack-backend/internal/notifications"
	"github.com/sealtrack/sealtrack-backend/internal/users"
	"github.com/sealtrack/sealtrack-backend/pkg/db/models"
	"github.com/sealtrack/sealtrack-backend/pkg/enums"
	apperrors "github.com/sealtrack/sealtrack-backend/pkg/errors"
	"github.com/sealtrack/sealtrack-backend/pkg/logger"
	"github.com/sealtrack/sealtrack-backend/pkg/pagination"
	"github.com/sealtrack/sealtrack-backend/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTasksTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	usersDDL := `
CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  username TEXT NOT NULL UNIQUE,
  password_hash TEXT NOT NULL,
  full_name TEXT NOT NULL,
  phone TEXT,
  role TEXT NOT NULL,
  is_active INTEGER NOT NULL DEFAULT 1,
  last_login_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`
	tasksDDL := `
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  sealed_pack_code TEXT NOT NULL UNIQUE,
  source_location TEXT NOT NULL,
  destination_location TEXT NOT NULL,
  pickup_latitude REAL,
  pickup_longitude REAL,
  destination_latitude REAL,
  destination_longitude REAL,
  geofence_radius_meters INTEGER NOT NULL DEFAULT 100,
  assigned_agent_id TEXT NOT NULL,
  start_time DATETIME NOT NULL,
  end_time DATETIME NOT NULL,
  status TEXT NOT NULL DEFAULT 'PENDING',
  exam_type TEXT NOT NULL,
  store_location_history INTEGER NOT NULL DEFAULT 0,
  created_by_user_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	eventsDDL := `
CREATE TABLE IF NOT EXISTS task_events (
  id TEXT PRIMARY KEY,
  task_id TEXT NOT NULL,
  event_type TEXT NOT NULL,
  actor_id TEXT,
  payload TEXT,
  created_at DATETIME
);`
	auditDDL := `
CREATE TABLE IF NOT EXISTS audit_logs (
  id TEXT PRIMARY KEY,
  action TEXT NOT NULL,
  entity_type TEXT NOT NULL,
  entity_id TEXT,
  actor_id TEXT,
  ip_address TEXT,
  detail TEXT,
  created_at DATETIME
);`
	notificationsDDL := `
CREATE TABLE IF NOT EXISTS notifications (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  type TEXT NOT NULL,
  title TEXT NOT NULL,
  message TEXT NOT NULL,
  read_at DATETIME,
  created_at DATETIME
);`
	for _, ddl := range []string{usersDDL, tasksDDL, eventsDDL, auditDDL, notificationsDDL} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

type tasksFixture struct {
	db    *gorm.DB
	svc   *Service
	admin *models.User
	agent *models.User
	now   time.Time
}

func newTasksFixture(t *testing.T) *tasksFixture {
	t.Helper()

	db := setupTasksTestDB(t)
	userRepo := users.NewRepository(db)
	now := time.Now().UTC().Truncate(time.Second)

	svc := &Service{
		repo:          NewRepository(db),
		users:         userRepo,
		audit:         audit.NewRecorder(db),
		notifier:      notifications.NewNotifier(db, userRepo),
		logg:          logger.New(logger.Options{Level: zerolog.ErrorLevel, Output: io.Discard}),
		defaultRadius: 100,
		now:           func() time.Time { return now },
	}

	fix := &tasksFixture{db: db, svc: svc, now: now}
	fix.admin = fix.createUser(t, enums.RoleAdmin)
	fix.agent = fix.createUser(t, enums.RoleFieldAgent)
	return fix
}

func (f *tasksFixture) createUser(t *testing.T, role enums.Role) *models.User {
	t.Helper()

	user := &models.User{
		ID:           uuid.New(),
		Username:     uuid.NewString()[:8],
		PasswordHash: "x",
		FullName:     "Fixture User",
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

func (f *tasksFixture) createRequest(code string) CreateTaskRequest {
	return CreateTaskRequest{
		SealedPackCode:        code,
		SourceLocation:        "District Treasury",
		DestinationLocation:   "Exam Centre 12",
		PickupCoordinate:      &types.Coordinate{Latitude: 35.0, Longitude: 78.0},
		DestinationCoordinate: &types.Coordinate{Latitude: 35.2, Longitude: 78.2},
		AssignedAgentID:       f.agent.ID,
		StartTime:             f.now.Add(-time.Hour),
		EndTime:               f.now.Add(time.Hour),
		ExamType:              enums.ExamTypeRegular,
	}
}

func (f *tasksFixture) eventTypes(t *testing.T, taskID uuid.UUID) []enums.TaskEventType {
	t.Helper()

	events, err := f.svc.ListEvents(context.Background(), taskID)
	require.NoError(t, err)
	out := make([]enums.TaskEventType, 0, len(events))
	for _, e := range events {
		out = append(out, e.EventType)
	}
	return out
}

func TestCreateTask(t *testing.T) {
	fix := newTasksFixture(t)
	ctx := context.Background()

	dto, err := fix.svc.Create(ctx, fix.admin.ID, fix.createRequest("PACK-0001"))
	require.NoError(t, err)
	assert.Equal(t, enums.TaskStatusPending, dto.Status)
	assert.Equal(t, 100, dto.GeofenceRadiusMeters)
	assert.Equal(t, fix.agent.ID, dto.AssignedAgentID)

	assert.Contains(t, fix.eventTypes(t, dto.ID), enums.TaskEventAssigned)

	// The assigned agent got an in-app notification.
	var count int64
	require.NoError(t, fix.db.Model(&models.Notification{}).Where("user_id = ?", fix.agent.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestCreateTask_DuplicatePackCode(t *testing.T) {
	fix := newTasksFixture(t)
	ctx := context.Background()

	_, err := fix.svc.Create(ctx, fix.admin.ID, fix.createRequest("PACK-0002"))
	require.NoError(t, err)

	_, err = fix.svc.Create(ctx, fix.admin.ID, fix.createRequest("PACK-0002"))
	require.Error(t, err)
	appErr := apperrors.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperrors.CodeConflict, appErr.Code())
}

func TestCreateTask_InvertedWindow(t *testing.T) {
	fix := newTasksFixture(t)

	req := fix.createRequest("PACK-0003")
	req.StartTime, req.EndTime = req.EndTime, req.StartTime
	_, err := fix.svc.Create(context.Background(), fix.admin.ID, req)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.As(err).Code())
}

func TestCreateTask_RadiusBounds(t *testing.T) {
	fix := newTasksFixture(t)

	tooSmall := 5
	req := fix.createRequest("PACK-0004")
	req.GeofenceRadiusMeters = &tooSmall
	_, err := fix.svc.Create(context.Background(), fix.admin.ID, req)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.As(err).Code())

	tooBig := 5000
	req = fix.createRequest("PACK-0005")
	req.GeofenceRadiusMeters = &tooBig
	_, err = fix.svc.Create(context.Background(), fix.admin.ID, req)
	require.Error(t, err)

	custom := 250
	req = fix.createRequest("PACK-0006")
	req.GeofenceRadiusMeters = &custom
	dto, err := fix.svc.Create(context.Background(), fix.admin.ID, req)
	require.NoError(t, err)
	assert.Equal(t, 250, dto.GeofenceRadiusMeters)
}

func TestCreateTask_AssigneeMustBeActiveAgent(t *testing.T) {
	fix := newTasksFixture(t)
	ctx := context.Background()

	req := fix.createRequest("PACK-0007")
	req.AssignedAgentID = fix.admin.ID
	_, err := fix.svc.Create(ctx, fix.admin.ID, req)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.As(err).Code())

	req = fix.createRequest("PACK-0008")
	req.AssignedAgentID = uuid.New()
	_, err = fix.svc.Create(ctx, fix.admin.ID, req)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeValidation, apperrors.As(err).Code())
}

func TestConfirmPickup_MovesPendingToInProgress(t *testing.T) {
	fix := newTasksFixture(t)
	ctx := context.Background()

	dto, err := fix.svc.Create(ctx, fix.admin.ID, fix.createRequest("PACK-0100"))
	require.NoError(t, err)

	// ~55 m north of the pickup point, well inside the 100 m fence.
	updated, err := fix.svc.ConfirmPickup(ctx, fix.agent.ID, dto.ID, ConfirmRequest{
		Coordinate: types.Coordinate{Latitude: 35.0005, Longitude: 78.0},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.TaskStatusInProgress, updated.Status)
	assert.Contains(t, fix.eventTypes(t, dto.ID), enums.TaskEventPickupConfirmed)
}

func TestConfirmPickup_OutsideFenceFlagsSuspicious(t *testing.T) {
	fix := newTasksFixture(t)
	ctx := context.Background()

	dto, err := fix.svc.Create(ctx, fix.admin.ID, fix.createRequest("PACK-0101"))
	require.NoError(t, err)

	// ~1.1 km away from the pickup point.
	updated, err := fix.svc.ConfirmPickup(ctx, fix.agent.ID, dto.ID, ConfirmRequest{
		Coordinate: types.Coordinate{Latitude: 35.01, Longitude: 78.0},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.TaskStatusSuspicious, updated.Status)

	eventTypes := fix.eventTypes(t, dto.ID)
	assert.Contains(t, eventTypes, enums.TaskEventPickupConfirmed)
	assert.Contains(t, eventTypes, enums.TaskEventGeofenceBreach)
	assert.Contains(t, eventTypes, enums.TaskEventFlaggedSuspicious)

	// Admins were alerted.
	var count int64
	require.NoError(t, fix.db.Model(&models.Notification{}).
		Where("user_id = ? AND type = ?", fix.admin.ID, enums.NotificationTaskSuspicious).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestConfirmPickup_OutsideWindowFlagsSuspicious(t *testing.T) {
	fix := newTasksFixture(t)
	ctx := context.Background()

	req := fix.createRequest("PACK-0102")
	req.StartTime = fix.now.Add(time.Hour)
	req.EndTime = fix.now.Add(2 * time.Hour)
	dto, err := fix.svc.Create(ctx, fix.admin.ID, req)
	require.NoError(t, err)

	updated, err := fix.svc.ConfirmPickup(ctx, fix.agent.ID, dto.ID, ConfirmRequest{
		Coordinate: types.Coordinate{Latitude: 35.0, Longitude: 78.0},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.TaskStatusSuspicious, updated.Status)
	assert.Contains(t, fix.eventTypes(t, dto.ID), enums.TaskEventTimeWindowBreach)
}

func TestConfirmDelivery_CompletesTask(t *testing.T) {
	fix := newTasksFixture(t)
	ctx := context.Background()

	dto, err := fix.svc.Create(ctx, fix.admin.ID, fix.createRequest("PACK-0103"))
	require.NoError(t, err)

	_, err = fix.svc.ConfirmPickup(ctx, fix.agent.ID, dto.ID, ConfirmRequest{
		Coordinate: types.Coordinate{Latitude: 35.0, Longitude: 78.0},
	})
	require.NoError(t, err)

	updated, err := fix.svc.ConfirmDelivery(ctx, fix.agent.ID, dto.ID, ConfirmRequest{
		Coordinate: types.Coordinate{Latitude: 35.2, Longitude: 78.2},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.TaskStatusCompleted, updated.Status)
	assert.Contains(t, fix.eventTypes(t, dto.ID), enums.TaskEventDeliveryConfirmed)
}

func TestConfirmDelivery_AfterCompletionRecordsEventOnly(t *testing.T) {
	fix := newTasksFixture(t)
	ctx := context.Background()

	dto, err := fix.svc.Create(ctx, fix.admin.ID, fix.createRequest("PACK-0104"))
	require.NoError(t, err)
	_, err = fix.svc.ConfirmPickup(ctx, fix.agent.ID, dto.ID, ConfirmRequest{
		Coordinate: types.Coordinate{Latitude: 35.0, Longitude: 78.0},
	})
	require.NoError(t, err)
	_, err = fix.svc.ConfirmDelivery(ctx, fix.agent.ID, dto.ID, ConfirmRequest{
		Coordinate: types.Coordinate{Latitude: 35.2, Longitude: 78.2},
	})
	require.NoError(t, err)

	// A second delivery confirmation keeps the terminal status but still
	// leaves a trace in the event log.
	updated, err := fix.svc.ConfirmDelivery(ctx, fix.agent.ID, dto.ID, ConfirmRequest{
		Coordinate: types.Coordinate{Latitude: 35.2, Longitude: 78.2},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.TaskStatusCompleted, updated.Status)

	deliveries := 0
	for _, et := range fix.eventTypes(t, dto.ID) {
		if et == enums.TaskEventDeliveryConfirmed {
			deliveries++
		}
	}
	assert.Equal(t, 2, deliveries)
}

func TestConfirmDelivery_WhilePendingIsStateConflict(t *testing.T) {
	fix := newTasksFixture(t)
	ctx := context.Background()

	dto, err := fix.svc.Create(ctx, fix.admin.ID, fix.createRequest("PACK-0105"))
	require.NoError(t, err)

	_, err = fix.svc.ConfirmDelivery(ctx, fix.agent.ID, dto.ID, ConfirmRequest{
		Coordinate: types.Coordinate{Latitude: 35.2, Longitude: 78.2},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeStateConflict, apperrors.As(err).Code())
}

func TestConfirmPickup_WrongAgentForbidden(t *testing.T) {
	fix := newTasksFixture(t)
	ctx := context.Background()
	other := fix.createUser(t, enums.RoleFieldAgent)

	dto, err := fix.svc.Create(ctx, fix.admin.ID, fix.createRequest("PACK-0106"))
	require.NoError(t, err)

	_, err = fix.svc.ConfirmPickup(ctx, other.ID, dto.ID, ConfirmRequest{
		Coordinate: types.Coordinate{Latitude: 35.0, Longitude: 78.0},
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeForbidden, apperrors.As(err).Code())
}

func TestFlagSuspicious_IdempotentOnFlaggedTask(t *testing.T) {
	fix := newTasksFixture(t)
	ctx := context.Background()

	dto, err := fix.svc.Create(ctx, fix.admin.ID, fix.createRequest("PACK-0107"))
	require.NoError(t, err)

	require.NoError(t, fix.svc.FlagSuspicious(ctx, dto.ID, &fix.agent.ID, enums.TaskEventGeofenceBreach, nil, "10.0.0.9"))
	require.NoError(t, fix.svc.FlagSuspicious(ctx, dto.ID, &fix.agent.ID, enums.TaskEventGeofenceBreach, nil, "10.0.0.9"))

	task, err := fix.svc.Get(ctx, dto.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.TaskStatusSuspicious, task.Status)

	// The second flag appended evidence without a second status change.
	flags := 0
	for _, et := range fix.eventTypes(t, dto.ID) {
		if et == enums.TaskEventFlaggedSuspicious {
			flags++
		}
	}
	assert.Equal(t, 1, flags)
}

func TestListTasks_FilterAndPagination(t *testing.T) {
	fix := newTasksFixture(t)
	ctx := context.Background()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		task := &models.Task{
			ID:                   uuid.New(),
			SealedPackCode:       uuid.NewString(),
			SourceLocation:       "A",
			DestinationLocation:  "B",
			GeofenceRadiusMeters: 100,
			AssignedAgentID:      fix.agent.ID,
			StartTime:            base,
			EndTime:              base.Add(time.Hour),
			Status:               enums.TaskStatusPending,
			ExamType:             enums.ExamTypeRegular,
			CreatedAt:            base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:            base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, fix.db.Create(task).Error)
	}

	mine := ListFilter{AgentID: &fix.agent.ID}
	page, err := fix.svc.List(ctx, mine, pagination.Params{Limit: 3})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	require.NotEmpty(t, page.NextCursor)
	// Newest first.
	assert.True(t, page.Items[0].CreatedAt.After(page.Items[2].CreatedAt))

	rest, err := fix.svc.List(ctx, mine, pagination.Params{Limit: 3, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Items, 2)
	assert.Empty(t, rest.NextCursor)

	status := enums.TaskStatusCompleted
	none, err := fix.svc.List(ctx, ListFilter{AgentID: &fix.agent.ID, Status: &status}, pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, none.Items)
}

func TestListMine_OnlyAssignedTasks(t *testing.T) {
	fix := newTasksFixture(t)
	ctx := context.Background()
	other := fix.createUser(t, enums.RoleFieldAgent)

	_, err := fix.svc.Create(ctx, fix.admin.ID, fix.createRequest("PACK-0108"))
	require.NoError(t, err)

	mine, err := fix.svc.ListMine(ctx, fix.agent.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := fix.svc.ListMine(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, theirs)
}

func TestConfirmPickup_WritesOneStatusChangeEvent(t *testing.T) {
	fix := newTasksFixture(t)
	ctx := context.Background()

	dto, err := fix.svc.Create(ctx, fix.admin.ID, fix.createRequest("PACK-0110"))
	require.NoError(t, err)

	_, err = fix.svc.ConfirmPickup(ctx, fix.agent.ID, dto.ID, ConfirmRequest{
		Coordinate: types.Coordinate{Latitude: 35.0005, Longitude: 78.0},
		ClientIP:   "198.51.100.4",
	})
	require.NoError(t, err)

	statusEvents := 0
	for _, et := range fix.eventTypes(t, dto.ID) {
		if et == enums.TaskEventStatusChanged {
			statusEvents++
		}
	}
	assert.Equal(t, 1, statusEvents)
}

func TestConfirmPickup_AuditCarriesClientIP(t *testing.T) {
	fix := newTasksFixture(t)
	ctx := context.Background()

	dto, err := fix.svc.Create(ctx, fix.admin.ID, fix.createRequest("PACK-0111"))
	require.NoError(t, err)

	_, err = fix.svc.ConfirmPickup(ctx, fix.agent.ID, dto.ID, ConfirmRequest{
		Coordinate: types.Coordinate{Latitude: 35.0005, Longitude: 78.0},
		ClientIP:   "198.51.100.4",
	})
	require.NoError(t, err)

	var row models.AuditLog
	require.NoError(t, fix.db.
		Where("action = ?", audit.ActionTaskStatusChanged).
		First(&row).Error)
	require.NotNil(t, row.IPAddress)
	assert.Equal(t, "198.51.100.4", *row.IPAddress)
}
