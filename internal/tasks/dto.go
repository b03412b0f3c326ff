package tasks

import (
	"time"

	"github.com/google/uuid"
	"github.com/sealtrack/sealtrack-backend/pkg/db/models"
	"github.com/sealtrack/sealtrack-backend/pkg/enums"
	"github.com/sealtrack/sealtrack-backend/pkg/types"
)

// CreateTaskRequest is the admin payload for assigning a sealed-pack
// delivery. Omitting the radius falls back to the configured default; the
// coordinate pairs are optional and disable geofencing for their leg when
// absent.
type CreateTaskRequest struct {
	SealedPackCode        string            `json:"sealed_pack_code" validate:"required,min=4,max=64"`
	SourceLocation        string            `json:"source_location" validate:"required,max=256"`
	DestinationLocation   string            `json:"destination_location" validate:"required,max=256"`
	PickupCoordinate      *types.Coordinate `json:"pickup_coordinate,omitempty"`
	DestinationCoordinate *types.Coordinate `json:"destination_coordinate,omitempty"`
	GeofenceRadiusMeters  *int              `json:"geofence_radius_meters,omitempty"`
	AssignedAgentID       uuid.UUID         `json:"assigned_agent_id" validate:"required"`
	StartTime             time.Time         `json:"start_time" validate:"required"`
	EndTime               time.Time         `json:"end_time" validate:"required"`
	ExamType              enums.ExamType    `json:"exam_type" validate:"required"`
	StoreLocationHistory  bool              `json:"store_location_history"`
}

// ConfirmRequest carries the agent's reported position for a pickup or
// delivery confirmation.
type ConfirmRequest struct {
	Coordinate types.Coordinate `json:"coordinate" validate:"required"`

	// ClientIP is filled by the transport layer for the audit trail.
	ClientIP string `json:"-"`
}

// TaskDTO is the API shape of a delivery task.
type TaskDTO struct {
	ID                    uuid.UUID         `json:"id"`
	SealedPackCode        string            `json:"sealed_pack_code"`
	SourceLocation        string            `json:"source_location"`
	DestinationLocation   string            `json:"destination_location"`
	PickupCoordinate      *types.Coordinate `json:"pickup_coordinate,omitempty"`
	DestinationCoordinate *types.Coordinate `json:"destination_coordinate,omitempty"`
	GeofenceRadiusMeters  int               `json:"geofence_radius_meters"`
	AssignedAgentID       uuid.UUID         `json:"assigned_agent_id"`
	StartTime             time.Time         `json:"start_time"`
	EndTime               time.Time         `json:"end_time"`
	Status                enums.TaskStatus  `json:"status"`
	ExamType              enums.ExamType    `json:"exam_type"`
	StoreLocationHistory  bool              `json:"store_location_history"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// TaskEventDTO is one entry of a task's event log.
type TaskEventDTO struct {
	ID        uuid.UUID           `json:"id"`
	TaskID    uuid.UUID           `json:"task_id"`
	EventType enums.TaskEventType `json:"event_type"`
	ActorID   *uuid.UUID          `json:"actor_id,omitempty"`
	Payload   types.JSONMap       `json:"payload,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
}

// TaskPage is one page of an admin task listing.
type TaskPage struct {
	Items      []TaskDTO `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

// TaskFromModel maps the persistence model onto the API shape.
func TaskFromModel(task *models.Task) *TaskDTO {
	if task == nil {
		return nil
	}
	return &TaskDTO{
		ID:                    task.ID,
		SealedPackCode:        task.SealedPackCode,
		SourceLocation:        task.SourceLocation,
		DestinationLocation:   task.DestinationLocation,
		PickupCoordinate:      coordinateFrom(task.PickupLatitude, task.PickupLongitude),
		DestinationCoordinate: coordinateFrom(task.DestinationLatitude, task.DestinationLongitude),
		GeofenceRadiusMeters:  task.GeofenceRadiusMeters,
		AssignedAgentID:       task.AssignedAgentID,
		StartTime:             task.StartTime,
		EndTime:               task.EndTime,
		Status:                task.Status,
		ExamType:              task.ExamType,
		StoreLocationHistory:  task.StoreLocationHistory,
		CreatedAt:             task.CreatedAt,
		UpdatedAt:             task.UpdatedAt,
	}
}

// EventFromModel maps an event log row onto the API shape.
func EventFromModel(event *models.TaskEvent) *TaskEventDTO {
	if event == nil {
		return nil
	}
	return &TaskEventDTO{
		ID:        event.ID,
		TaskID:    event.TaskID,
		EventType: event.EventType,
		ActorID:   event.ActorID,
		Payload:   event.Payload,
		CreatedAt: event.CreatedAt,
	}
}

func coordinateFrom(lat, lon *float64) *types.Coordinate {
	if lat == nil || lon == nil {
		return nil
	}
	return &types.Coordinate{Latitude: *lat, Longitude: *lon}
}
