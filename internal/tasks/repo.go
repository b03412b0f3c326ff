package tasks

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sealtrack/sealtrack-backend/pkg/db/models"
	"github.com/sealtrack/sealtrack-backend/pkg/enums"
	"github.com/sealtrack/sealtrack-backend/pkg/pagination"
	"gorm.io/gorm"
)

// ErrStaleStatus is returned by UpdateStatus when the row no longer holds the
// expected current status. Callers re-read and re-evaluate.
var ErrStaleStatus = errors.New("task status changed concurrently")

// ListFilter narrows admin task listings.
type ListFilter struct {
	Status   *enums.TaskStatus
	AgentID  *uuid.UUID
	ExamType *enums.ExamType
}

// Repository is the persistence surface for tasks and their event logs.
type Repository interface {
	Create(ctx context.Context, task *models.Task) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error)
	List(ctx context.Context, filter ListFilter, limit int, cursor *pagination.Cursor) ([]models.Task, error)
	ListByAgent(ctx context.Context, agentID uuid.UUID) ([]models.Task, error)
	UpdateStatus(ctx context.Context, taskID uuid.UUID, from, to enums.TaskStatus) error
	AppendEvent(ctx context.Context, event *models.TaskEvent) error
	ListEvents(ctx context.Context, taskID uuid.UUID) ([]models.TaskEvent, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the GORM-backed task repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, task *models.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter, limit int, cursor *pagination.Cursor) ([]models.Task, error) {
	query := r.db.WithContext(ctx).Model(&models.Task{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.AgentID != nil {
		query = query.Where("assigned_agent_id = ?", *filter.AgentID)
	}
	if filter.ExamType != nil {
		query = query.Where("exam_type = ?", *filter.ExamType)
	}
	query = pagination.ApplyDescending(query, cursor)

	var rows []models.Task
	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *repository) ListByAgent(ctx context.Context, agentID uuid.UUID) ([]models.Task, error) {
	var rows []models.Task
	err := r.db.WithContext(ctx).
		Where("assigned_agent_id = ?", agentID).
		Order("start_time ASC").
		Find(&rows).Error
	return rows, err
}

// UpdateStatus performs a compare-and-set on the status column so concurrent
// transitions cannot clobber each other.
func (r *repository) UpdateStatus(ctx context.Context, taskID uuid.UUID, from, to enums.TaskStatus) error {
	result := r.db.WithContext(ctx).
		Model(&models.Task{}).
		Where("id = ? AND status = ?", taskID, from).
		Update("status", to)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStaleStatus
	}
	return nil
}

func (r *repository) AppendEvent(ctx context.Context, event *models.TaskEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repository) ListEvents(ctx context.Context, taskID uuid.UUID) ([]models.TaskEvent, error) {
	var rows []models.TaskEvent
	err := r.db.WithContext(ctx).
		Where("task_id = ?", taskID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}
