package enums

// NotificationType labels in-app notification payloads.
type NotificationType string

const (
	NotificationTaskAssigned   NotificationType = "task_assigned"
	NotificationTaskSuspicious NotificationType = "task_suspicious"
	NotificationTaskCompleted  NotificationType = "task_completed"
)

// String implements fmt.Stringer.
func (n NotificationType) String() string {
	return string(n)
}
