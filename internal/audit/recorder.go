package audit

import (
	"context"

	"github.com/google/uuid"
	"github.com/sealtrack/sealtrack-backend/pkg/db/models"
	"github.com/sealtrack/sealtrack-backend/pkg/types"
	"gorm.io/gorm"
)

// Actions recorded to the security audit trail.
const (
	ActionLoginSuccess      = "auth.login_success"
	ActionLoginFailed       = "auth.login_failed"
	ActionDeviceBound       = "auth.device_bound"
	ActionDeviceMismatch    = "auth.device_mismatch"
	ActionDeviceReset       = "auth.device_reset"
	ActionTokenRefreshed    = "auth.token_refreshed"
	ActionLogout            = "auth.logout"
	ActionTaskCreated       = "task.created"
	ActionTaskStatusChanged = "task.status_changed"
	ActionLocationBreach    = "task.location_breach"
)

// Entry is one append-only audit record.
type Entry struct {
	Action     string
	EntityType string
	EntityID   *uuid.UUID
	ActorID    *uuid.UUID
	IPAddress  string
	Detail     types.JSONMap
}

// Recorder is the durable audit log collaborator. Implementations append;
// nothing ever updates or deletes an entry.
type Recorder interface {
	Record(ctx context.Context, entry Entry) error
}

type dbRecorder struct {
	db *gorm.DB
}

// NewRecorder builds the relational-store-backed audit recorder.
func NewRecorder(db *gorm.DB) Recorder {
	return &dbRecorder{db: db}
}

func (r *dbRecorder) Record(ctx context.Context, entry Entry) error {
	row := models.AuditLog{
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		ActorID:    entry.ActorID,
		Detail:     entry.Detail,
	}
	if entry.IPAddress != "" {
		ip := entry.IPAddress
		row.IPAddress = &ip
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// Noop discards every entry. Useful for tests that do not assert on audit.
type Noop struct{}

func (Noop) Record(ctx context.Context, entry Entry) error {
	return nil
}
