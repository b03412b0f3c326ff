package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sealtrack/sealtrack-backend/pkg/db/models"
	"github.com/sealtrack/sealtrack-backend/pkg/enums"
	"gorm.io/gorm"
)

// Repository exposes the identity reads this service needs. User CRUD itself
// belongs to the admin CMS.
type Repository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	ListByRole(ctx context.Context, role enums.Role) ([]models.User, error)
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error

	FindBinding(ctx context.Context, userID uuid.UUID) (*models.DeviceBinding, error)
	CreateBinding(ctx context.Context, binding *models.DeviceBinding) error
	DeleteBinding(ctx context.Context, userID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a users repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *repository) ListByRole(ctx context.Context, role enums.Role) ([]models.User, error) {
	var users []models.User
	err := r.db.WithContext(ctx).
		Where("role = ? AND is_active = ?", role, true).
		Order("created_at ASC").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

func (r *repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Update("last_login_at", at).Error
}

func (r *repository) FindBinding(ctx context.Context, userID uuid.UUID) (*models.DeviceBinding, error) {
	var binding models.DeviceBinding
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&binding).Error; err != nil {
		return nil, err
	}
	return &binding, nil
}

func (r *repository) CreateBinding(ctx context.Context, binding *models.DeviceBinding) error {
	return r.db.WithContext(ctx).Create(binding).Error
}

func (r *repository) DeleteBinding(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&models.DeviceBinding{}).Error
}
