package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/codegrade-labs/codegrade-api/internal/models"
)

// SubmissionFilter narrows submission listing queries.
type SubmissionFilter struct {
	ProjectID *uint
	UserID    *uint
	Status    *string
}

// SubmissionRepository defines data operations for submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	Update(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	GetByPublicID(ctx context.Context, publicID string) (models.Submission, error)
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error)
	TransitionStatus(ctx context.Context, id uint, fromStatus string, updates map[string]interface{}) (bool, error)
	SaveFileRecords(ctx context.Context, records []models.FileRecord) error
	UpdateFileRecord(ctx context.Context, record *models.FileRecord) error
	Delete(ctx context.Context, id uint) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).Preload("Files")
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Save(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) GetByPublicID(ctx context.Context, publicID string) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).Where("public_id = ?", publicID).First(&submission).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, error) {
	query := r.baseQuery(ctx)

	if filter.ProjectID != nil {
		query = query.Where("project_id = ?", *filter.ProjectID)
	}

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var submissions []models.Submission
	if err := query.Order("created_at DESC").Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

// TransitionStatus applies updates only while the record still holds
// fromStatus. The watchdog and a late-finishing pipeline both funnel
// through this conditional write, so the first terminal writer wins and
// the loser's update is discarded.
func (r *submissionRepository) TransitionStatus(ctx context.Context, id uint, fromStatus string, updates map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", id).
		Where("status = ?", fromStatus).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *submissionRepository) SaveFileRecords(ctx context.Context, records []models.FileRecord) error {
	if len(records) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&records).Error
}

func (r *submissionRepository) UpdateFileRecord(ctx context.Context, record *models.FileRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

func (r *submissionRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Select("Files").Delete(&models.Submission{ID: id}).Error
}
