package dto

import (
	"time"

	"github.com/codegrade-labs/codegrade-api/internal/models"
)

// SubmissionCreateRequest describes the multipart payload for a code or
// archive upload.
type SubmissionCreateRequest struct {
	ProjectID uint  `form:"project_id" validate:"required,gt=0"`
	UserID    uint  `form:"user_id" validate:"required,gt=0"`
	TaskID    *uint `form:"task_id" validate:"omitempty,gt=0"`
}

// SubmissionAckResponse is returned immediately on intake while the
// analysis pipeline runs in the background.
type SubmissionAckResponse struct {
	PublicID string `json:"public_id"`
	Status   string `json:"status"`
}

// SubmissionStatusResponse is the lightweight status-poll payload.
type SubmissionStatusResponse struct {
	PublicID       string                 `json:"public_id"`
	Status         string                 `json:"status"`
	Score          *float64               `json:"score,omitempty"`
	AnalysisSource string                 `json:"analysis_source,omitempty"`
	DetailedScores map[string]interface{} `json:"detailed_scores,omitempty"`
}

// SubmissionReviewRequest carries a tutor's score override.
type SubmissionReviewRequest struct {
	ReviewerID uint    `json:"reviewer_id" validate:"required,gt=0"`
	Score      float64 `json:"score" validate:"gte=0,lte=100"`
	Comments   string  `json:"comments" validate:"omitempty,min=3"`
}

// SubmissionFilter describes query string filters for listing submissions.
type SubmissionFilter struct {
	ProjectID *uint   `query:"project_id"`
	UserID    *uint   `query:"user_id"`
	Status    *string `query:"status" validate:"omitempty,oneof=uploaded processing pending analyzed failed reviewed"`
}

// FileRecordResponse serializes one discovered file.
type FileRecordResponse struct {
	ID               uint   `json:"id"`
	Name             string `json:"name"`
	RelativePath     string `json:"relative_path"`
	SizeBytes        int64  `json:"size_bytes"`
	FileType         string `json:"file_type"`
	Language         string `json:"language"`
	StudentID        *uint  `json:"student_id,omitempty"`
	TaskID           *uint  `json:"task_id,omitempty"`
	AnalysisResultID *uint  `json:"analysis_result_id,omitempty"`
}

// SubmissionResponse is the full submission view.
type SubmissionResponse struct {
	PublicID       string                 `json:"public_id"`
	ProjectID      uint                   `json:"project_id"`
	UserID         uint                   `json:"user_id"`
	TaskID         *uint                  `json:"task_id,omitempty"`
	OriginalName   string                 `json:"original_name"`
	ArchiveURL     string                 `json:"archive_url,omitempty"`
	Status         string                 `json:"status"`
	Score          *float64               `json:"score,omitempty"`
	DetailedScores map[string]interface{} `json:"detailed_scores,omitempty"`
	Feedback       string                 `json:"feedback,omitempty"`
	AnalysisSource string                 `json:"analysis_source,omitempty"`
	ReviewerID     *uint                  `json:"reviewer_id,omitempty"`
	ReviewScore    *float64               `json:"review_score,omitempty"`
	ReviewComments string                 `json:"review_comments,omitempty"`
	ReviewedAt     *time.Time             `json:"reviewed_at,omitempty"`
	Files          []FileRecordResponse   `json:"files"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		PublicID:       model.PublicID,
		ProjectID:      model.ProjectID,
		UserID:         model.UserID,
		TaskID:         model.TaskID,
		OriginalName:   model.OriginalName,
		ArchiveURL:     model.ArchiveURL,
		Status:         model.Status,
		Score:          model.Score,
		DetailedScores: model.DetailedScores,
		Feedback:       model.Feedback,
		AnalysisSource: model.AnalysisSource,
		ReviewerID:     model.ReviewerID,
		ReviewScore:    model.ReviewScore,
		ReviewComments: model.ReviewComments,
		ReviewedAt:     model.ReviewedAt,
		CreatedAt:      model.CreatedAt,
		UpdatedAt:      model.UpdatedAt,
	}

	response.Files = make([]FileRecordResponse, 0, len(model.Files))
	for _, file := range model.Files {
		response.Files = append(response.Files, FileRecordResponse{
			ID:               file.ID,
			Name:             file.Name,
			RelativePath:     file.RelativePath,
			SizeBytes:        file.SizeBytes,
			FileType:         file.FileType,
			Language:         file.Language,
			StudentID:        file.StudentID,
			TaskID:           file.TaskID,
			AnalysisResultID: file.AnalysisResultID,
		})
	}

	return response
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(submissions []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(submissions))
	for _, submission := range submissions {
		responses = append(responses, NewSubmissionResponse(submission))
	}
	return responses
}
