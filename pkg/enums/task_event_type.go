package enums

import "fmt"

// TaskEventType names an entry in a task's append-only event log.
type TaskEventType string

const (
	TaskEventAssigned          TaskEventType = "task_assigned"
	TaskEventPackScanned       TaskEventType = "pack_scanned"
	TaskEventPickupConfirmed   TaskEventType = "pickup_confirmed"
	TaskEventDeliveryConfirmed TaskEventType = "delivery_confirmed"
	TaskEventStatusChanged     TaskEventType = "status_changed"
	TaskEventGeofenceBreach    TaskEventType = "geofence_breach"
	TaskEventTimeWindowBreach  TaskEventType = "time_window_breach"
	TaskEventFlaggedSuspicious TaskEventType = "flagged_suspicious"
)

var validTaskEventTypes = []TaskEventType{
	TaskEventAssigned,
	TaskEventPackScanned,
	TaskEventPickupConfirmed,
	TaskEventDeliveryConfirmed,
	TaskEventStatusChanged,
	TaskEventGeofenceBreach,
	TaskEventTimeWindowBreach,
	TaskEventFlaggedSuspicious,
}

// String implements fmt.Stringer.
func (t TaskEventType) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TaskEventType.
func (t TaskEventType) IsValid() bool {
	for _, candidate := range validTaskEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTaskEventType converts raw input into a TaskEventType.
func ParseTaskEventType(value string) (TaskEventType, error) {
	for _, candidate := range validTaskEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid task event type %q", value)
}
