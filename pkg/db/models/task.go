package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/sealtrack/sealtrack-backend/pkg/enums"
)

// Task is a sealed-pack delivery assignment with its geofence and window.
// Pickup/destination coordinates are optional: tasks created without them
// skip geofence checks for that leg.
type Task struct {
	ID                   uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	SealedPackCode       string           `gorm:"column:sealed_pack_code;type:text;not null;uniqueIndex"`
	SourceLocation       string           `gorm:"column:source_location;type:text;not null"`
	DestinationLocation  string           `gorm:"column:destination_location;type:text;not null"`
	PickupLatitude       *float64         `gorm:"column:pickup_latitude"`
	PickupLongitude      *float64         `gorm:"column:pickup_longitude"`
	DestinationLatitude  *float64         `gorm:"column:destination_latitude"`
	DestinationLongitude *float64         `gorm:"column:destination_longitude"`
	GeofenceRadiusMeters int              `gorm:"column:geofence_radius_meters;not null;default:100"`
	AssignedAgentID      uuid.UUID        `gorm:"column:assigned_agent_id;type:uuid;not null;index"`
	StartTime            time.Time        `gorm:"column:start_time;not null"`
	EndTime              time.Time        `gorm:"column:end_time;not null"`
	Status               enums.TaskStatus `gorm:"column:status;type:text;not null;default:'PENDING'"`
	ExamType             enums.ExamType   `gorm:"column:exam_type;type:text;not null"`
	StoreLocationHistory bool             `gorm:"column:store_location_history;not null;default:false"`
	CreatedByUserID      *uuid.UUID       `gorm:"column:created_by_user_id;type:uuid"`
	CreatedAt            time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
