package models

import (
	"time"

	"github.com/google/uuid"
)

// DeviceBinding pins a field-agent account to one physical device. At most
// one binding per user; deleted only by an explicit admin reset, after which
// the next login rebinds.
type DeviceBinding struct {
	ID               uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	DeviceIdentifier string    `gorm:"column:device_identifier;type:text;not null"`
	BoundAt          time.Time `gorm:"column:bound_at;autoCreateTime"`
}
