package models

import (
	"time"

	"github.com/google/uuid"
)

// CurrentAgentLocation is the latest known position for an active task+agent
// pair. Each accepted ping fully overwrites the row; the assigned agent is
// the single writer.
type CurrentAgentLocation struct {
	TaskID     uuid.UUID `gorm:"column:task_id;type:uuid;primaryKey"`
	AgentID    uuid.UUID `gorm:"column:agent_id;type:uuid;primaryKey"`
	Latitude   float64   `gorm:"column:latitude;not null"`
	Longitude  float64   `gorm:"column:longitude;not null"`
	Heading    *float64  `gorm:"column:heading"`
	Speed      *float64  `gorm:"column:speed"`
	Accuracy   *float64  `gorm:"column:accuracy"`
	RecordedAt time.Time `gorm:"column:recorded_at;not null"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// AgentLocationHistory mirrors accepted pings for tasks whose assignment
// policy requires a retained trail.
type AgentLocationHistory struct {
	ID         uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	TaskID     uuid.UUID `gorm:"column:task_id;type:uuid;not null;index"`
	AgentID    uuid.UUID `gorm:"column:agent_id;type:uuid;not null"`
	Latitude   float64   `gorm:"column:latitude;not null"`
	Longitude  float64   `gorm:"column:longitude;not null"`
	Heading    *float64  `gorm:"column:heading"`
	Speed      *float64  `gorm:"column:speed"`
	Accuracy   *float64  `gorm:"column:accuracy"`
	RecordedAt time.Time `gorm:"column:recorded_at;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
