package locations

import (
	"time"

	"github.com/google/uuid"
	"github.com/sealtrack/sealtrack-backend/pkg/db/models"
	"github.com/sealtrack/sealtrack-backend/pkg/enums"
	"github.com/sealtrack/sealtrack-backend/pkg/types"
)

// ReportRequest is one location ping from a field agent.
type ReportRequest struct {
	TaskID     uuid.UUID        `json:"task_id" validate:"required"`
	Coordinate types.Coordinate `json:"coordinate" validate:"required"`
	Heading    *float64         `json:"heading,omitempty" validate:"omitempty,gte=0,lt=360"`
	Speed      *float64         `json:"speed,omitempty" validate:"omitempty,gte=0"`
	Accuracy   *float64         `json:"accuracy,omitempty" validate:"omitempty,gte=0"`

	// RecordedAt is the device clock at capture time. Absent, the server
	// receive time is used. Policy checks always run on server time.
	RecordedAt *time.Time `json:"recorded_at,omitempty"`

	// ClientIP is filled by the transport layer for the audit trail.
	ClientIP string `json:"-"`
}

// Snapshot is the latest known position of a task's agent, as sent to admin
// observers.
type Snapshot struct {
	TaskID     uuid.UUID `json:"task_id"`
	AgentID    uuid.UUID `json:"agent_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Heading    *float64  `json:"heading,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// ReportResult tells the caller what the ping did to the task.
type ReportResult struct {
	Snapshot Snapshot         `json:"snapshot"`
	Status   enums.TaskStatus `json:"status"`
	Flagged  bool             `json:"flagged"`
}

// Assignment reasons a ping can be refused for.
const (
	ReasonTaskNotFound  = "task_not_found"
	ReasonNotAssignee   = "not_assignee"
	ReasonTaskCompleted = "task_completed"
)

// Policy is the outcome of validating an agent/task pairing. Invalid policies
// carry the refusal reason; valid ones carry the per-task retention setting.
type Policy struct {
	Valid        bool
	Reason       string
	StoreHistory bool
}

func snapshotFrom(row *models.CurrentAgentLocation) Snapshot {
	return Snapshot{
		TaskID:     row.TaskID,
		AgentID:    row.AgentID,
		Latitude:   row.Latitude,
		Longitude:  row.Longitude,
		Heading:    row.Heading,
		Speed:      row.Speed,
		Accuracy:   row.Accuracy,
		RecordedAt: row.RecordedAt,
	}
}
