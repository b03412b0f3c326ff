package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/sealtrack/sealtrack-backend/pkg/enums"
	"github.com/sealtrack/sealtrack-backend/pkg/types"
)

// TaskEvent is one entry in a task's append-only event log. Rows are never
// updated or deleted; status derivations read this log.
type TaskEvent struct {
	ID        uuid.UUID           `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TaskID    uuid.UUID           `gorm:"column:task_id;type:uuid;not null;index"`
	EventType enums.TaskEventType `gorm:"column:event_type;type:text;not null"`
	ActorID   *uuid.UUID          `gorm:"column:actor_id;type:uuid"`
	Payload   types.JSONMap       `gorm:"column:payload;type:jsonb"`
	CreatedAt time.Time           `gorm:"column:created_at;autoCreateTime"`
}
