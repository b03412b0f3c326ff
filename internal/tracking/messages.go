package tracking

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sealtrack/sealtrack-backend/internal/locations"
)

// Frame types exchanged over the tracking channel.
const (
	TypeLocationReport  = "location:report"
	TypeLocationUpdate  = "location:update"
	TypeTaskSubscribe   = "task:subscribe"
	TypeTaskUnsubscribe = "task:unsubscribe"
	TypeAck             = "ack"
	TypeError           = "error"
)

// Frame is the wire envelope for every tracking message, client- or
// server-originated.
type Frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SubscribePayload addresses a task room.
type SubscribePayload struct {
	TaskID uuid.UUID `json:"task_id"`
}

// Ack answers every client frame. Failed acks carry the machine-readable
// code alongside the human-readable reason. Snapshot is always present on
// the wire: a subscribe ack with no ping yet says so with an explicit null
// rather than omitting the field.
type Ack struct {
	Of       string                  `json:"of"`
	Success  bool                    `json:"success"`
	Code     string                  `json:"code,omitempty"`
	Error    string                  `json:"error,omitempty"`
	Snapshot *locations.Snapshot     `json:"snapshot"`
	Result   *locations.ReportResult `json:"result,omitempty"`
}

// LocationUpdate is the fan-out payload sent to subscribed admin
// connections.
type LocationUpdate struct {
	TaskID     uuid.UUID `json:"task_id"`
	AgentID    uuid.UUID `json:"agent_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Heading    *float64  `json:"heading,omitempty"`
	Speed      *float64  `json:"speed,omitempty"`
	Accuracy   *float64  `json:"accuracy,omitempty"`
	Flagged    bool      `json:"flagged"`
	ServerTime string    `json:"server_time"`
}

func marshalFrame(frameType string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: frameType, Data: data}, nil
}
