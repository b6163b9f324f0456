package models

import (
	"time"

	"gorm.io/datatypes"
)

// SubmissionStatus values walk the analysis lifecycle.
const (
	SubmissionStatusUploaded   = "uploaded"
	SubmissionStatusProcessing = "processing"
	SubmissionStatusPending    = "pending"
	SubmissionStatusAnalyzed   = "analyzed"
	SubmissionStatusFailed     = "failed"
	SubmissionStatusReviewed   = "reviewed"
)

// AnalysisSource identifies which engine produced a score.
const (
	AnalysisSourceSonarCloud      = "sonarcloud"
	AnalysisSourceLocalAnalyzer   = "localAnalyzer"
	AnalysisSourceDefaultFallback = "defaultFallback"
)

// Submission represents one uploaded code or archive artifact and the
// state of its quality analysis.
type Submission struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	PublicID       string            `gorm:"size:64;uniqueIndex;not null" json:"public_id"`
	UserID         uint              `gorm:"not null;index" json:"user_id"`
	ProjectID      uint              `gorm:"not null;index" json:"project_id"`
	TaskID         *uint             `json:"task_id"`
	OriginalName   string            `gorm:"size:255" json:"original_name"`
	RawFilePath    string            `gorm:"size:512" json:"raw_file_path"`
	ExtractedPath  *string           `gorm:"size:512" json:"extracted_path"`
	ArchiveURL     string            `gorm:"size:512" json:"archive_url"`
	Status         string            `gorm:"size:32;not null;index" json:"status"`
	Score          *float64          `json:"score"`
	Metrics        datatypes.JSONMap `json:"metrics"`
	DetailedScores datatypes.JSONMap `json:"detailed_scores"`
	Feedback       string            `gorm:"type:text" json:"feedback"`
	AnalysisSource string            `gorm:"size:32" json:"analysis_source"`
	ReviewerID     *uint             `json:"reviewer_id"`
	ReviewScore    *float64          `json:"review_score"`
	ReviewComments string            `gorm:"type:text" json:"review_comments"`
	ReviewedAt     *time.Time        `json:"reviewed_at"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Files          []FileRecord      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"files"`
}

// IsTerminal reports whether the submission can no longer change state.
func (s Submission) IsTerminal() bool {
	return s.Status == SubmissionStatusFailed || s.Status == SubmissionStatusReviewed
}

// HasScore reports whether the submission carries an analysis result.
func (s Submission) HasScore() bool {
	switch s.Status {
	case SubmissionStatusPending, SubmissionStatusAnalyzed, SubmissionStatusReviewed:
		return s.Score != nil
	default:
		return false
	}
}
