package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/sealtrack/sealtrack-backend/pkg/types"
)

// AuditLog is the durable append-only record of security-relevant actions.
type AuditLog struct {
	ID         uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Action     string        `gorm:"column:action;type:text;not null"`
	EntityType string        `gorm:"column:entity_type;type:text;not null"`
	EntityID   *uuid.UUID    `gorm:"column:entity_id;type:uuid"`
	ActorID    *uuid.UUID    `gorm:"column:actor_id;type:uuid"`
	IPAddress  *string       `gorm:"column:ip_address;type:text"`
	Detail     types.JSONMap `gorm:"column:detail;type:jsonb"`
	CreatedAt  time.Time     `gorm:"column:created_at;autoCreateTime"`
}
