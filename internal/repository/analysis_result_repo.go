package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/codegrade-labs/codegrade-api/internal/models"
)

// AnalysisResultRepository persists analysis outcomes. Results survive
// their file records for audit purposes, but deleting a submission removes
// every result that references it.
type AnalysisResultRepository interface {
	Create(ctx context.Context, result *models.AnalysisResult) error
	Update(ctx context.Context, result *models.AnalysisResult) error
	GetByID(ctx context.Context, id uint) (models.AnalysisResult, error)
	ListBySubmission(ctx context.Context, submissionPublicID string) ([]models.AnalysisResult, error)
	DeleteBySubmission(ctx context.Context, submissionPublicID string) error
}

type analysisResultRepository struct {
	db *gorm.DB
}

// NewAnalysisResultRepository instantiates the repository.
func NewAnalysisResultRepository(db *gorm.DB) AnalysisResultRepository {
	return &analysisResultRepository{db: db}
}

func (r *analysisResultRepository) Create(ctx context.Context, result *models.AnalysisResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

func (r *analysisResultRepository) Update(ctx context.Context, result *models.AnalysisResult) error {
	return r.db.WithContext(ctx).Save(result).Error
}

func (r *analysisResultRepository) GetByID(ctx context.Context, id uint) (models.AnalysisResult, error) {
	var result models.AnalysisResult
	if err := r.db.WithContext(ctx).First(&result, id).Error; err != nil {
		return models.AnalysisResult{}, err
	}
	return result, nil
}

func (r *analysisResultRepository) ListBySubmission(ctx context.Context, submissionPublicID string) ([]models.AnalysisResult, error) {
	var results []models.AnalysisResult
	err := r.db.WithContext(ctx).
		Where("submission_public_id = ?", submissionPublicID).
		Order("created_at ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (r *analysisResultRepository) DeleteBySubmission(ctx context.Context, submissionPublicID string) error {
	return r.db.WithContext(ctx).
		Where("submission_public_id = ?", submissionPublicID).
		Delete(&models.AnalysisResult{}).Error
}
