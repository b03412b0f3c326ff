package locations

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sealtrack/sealtrack-backend/pkg/db/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists live agent positions. The current-location row is a
// pure overwrite target; history rows are append-only.
type Repository interface {
	UpsertCurrent(ctx context.Context, row *models.CurrentAgentLocation) error
	AppendHistory(ctx context.Context, row *models.AgentLocationHistory) error
	Latest(ctx context.Context, taskID uuid.UUID) (*models.CurrentAgentLocation, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the GORM-backed location repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) UpsertCurrent(ctx context.Context, row *models.CurrentAgentLocation) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "task_id"}, {Name: "agent_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"latitude", "longitude", "heading", "speed", "accuracy", "recorded_at", "updated_at",
			}),
		}).
		Create(row).Error
}

func (r *repository) AppendHistory(ctx context.Context, row *models.AgentLocationHistory) error {
	return r.db.WithContext(ctx).Create(row).Error
}

// Latest returns the most recent position reported for the task, or nil when
// no ping has arrived yet.
func (r *repository) Latest(ctx context.Context, taskID uuid.UUID) (*models.CurrentAgentLocation, error) {
	var row models.CurrentAgentLocation
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("recorded_at DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
