package models

import (
	"time"

	"gorm.io/datatypes"
)

// AnalysisResult captures the outcome of one analysis run against a whole
// submission or a single file within it. Re-analysis creates a new row;
// only a tutor review mutates an existing one.
type AnalysisResult struct {
	ID                 uint              `gorm:"primaryKey" json:"id"`
	SubmissionPublicID string            `gorm:"size:64;not null;index" json:"submission_public_id"`
	ProjectID          uint              `gorm:"not null;index" json:"project_id"`
	StudentID          uint              `gorm:"not null;index" json:"student_id"`
	TaskID             *uint             `json:"task_id"`
	FileName           string            `gorm:"size:255" json:"file_name"`
	FileType           string            `gorm:"size:32" json:"file_type"`
	Language           string            `gorm:"size:32" json:"language"`
	ProjectKey         string            `gorm:"size:255" json:"project_key"`
	Metrics            datatypes.JSONMap `json:"metrics"`
	Score              float64           `gorm:"default:0" json:"score"`
	DetailedScores     datatypes.JSONMap `json:"detailed_scores"`
	Status             string            `gorm:"size:32;not null" json:"status"`
	Feedback           string            `gorm:"type:text" json:"feedback"`
	AnalysisSource     string            `gorm:"size:32" json:"analysis_source"`
	ReviewerID         *uint             `json:"reviewer_id"`
	ReviewScore        *float64          `json:"review_score"`
	ReviewComments     string            `gorm:"type:text" json:"review_comments"`
	ReviewedAt         *time.Time        `json:"reviewed_at"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// IsReviewed reports whether a tutor has overridden the automated score.
func (r AnalysisResult) IsReviewed() bool {
	return r.ReviewedAt != nil
}
