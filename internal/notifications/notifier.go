package notifications

import (
	"context"

	"github.com/google/uuid"
	"github.com/sealtrack/sealtrack-backend/internal/users"
	"github.com/sealtrack/sealtrack-backend/pkg/db/models"
	"github.com/sealtrack/sealtrack-backend/pkg/enums"
	"gorm.io/gorm"
)

// Notifier is the push/real-time notification collaborator.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationType, title, message string) error
	NotifyAdmins(ctx context.Context, kind enums.NotificationType, title, message string) error
}

type service struct {
	db    *gorm.DB
	users users.Repository
}

// NewNotifier builds the store-backed notifier. Delivery to devices is the
// mobile app's pull; this service only persists the rows.
func NewNotifier(db *gorm.DB, userRepo users.Repository) Notifier {
	return &service{db: db, users: userRepo}
}

func (s *service) Notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationType, title, message string) error {
	row := models.Notification{
		UserID:  userID,
		Type:    kind,
		Title:   title,
		Message: message,
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *service) NotifyAdmins(ctx context.Context, kind enums.NotificationType, title, message string) error {
	admins, err := s.users.ListByRole(ctx, enums.RoleAdmin)
	if err != nil {
		return err
	}
	for _, admin := range admins {
		if err := s.Notify(ctx, admin.ID, kind, title, message); err != nil {
			return err
		}
	}
	return nil
}

// NoopNotifier drops notifications. Useful in tests.
type NoopNotifier struct{}

func (NoopNotifier) Notify(ctx context.Context, userID uuid.UUID, kind enums.NotificationType, title, message string) error {
	return nil
}

func (NoopNotifier) NotifyAdmins(ctx context.Context, kind enums.NotificationType, title, message string) error {
	return nil
}
