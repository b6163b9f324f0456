package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/codegrade-labs/codegrade-api/internal/models"
)

// TaskRepository exposes read-only access to a project's tasks for the
// association heuristic.
type TaskRepository interface {
	ListByProject(ctx context.Context, projectID uint) ([]models.ProjectTask, error)
}

type taskRepository struct {
	db *gorm.DB
}

// NewTaskRepository instantiates the repository.
func NewTaskRepository(db *gorm.DB) TaskRepository {
	return &taskRepository{db: db}
}

func (r *taskRepository) ListByProject(ctx context.Context, projectID uint) ([]models.ProjectTask, error) {
	var tasks []models.ProjectTask
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("id ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, err
	}
	return tasks, nil
}
