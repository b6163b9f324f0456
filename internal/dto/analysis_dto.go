package dto

import (
	"time"

	"github.com/codegrade-labs/codegrade-api/internal/models"
)

// AnalysisResultResponse serializes one analysis run.
type AnalysisResultResponse struct {
	ID                 uint                   `json:"id"`
	SubmissionPublicID string                 `json:"submission_public_id"`
	ProjectID          uint                   `json:"project_id"`
	StudentID          uint                   `json:"student_id"`
	TaskID             *uint                  `json:"task_id,omitempty"`
	FileName           string                 `json:"file_name,omitempty"`
	FileType           string                 `json:"file_type,omitempty"`
	Language           string                 `json:"language,omitempty"`
	ProjectKey         string                 `json:"project_key"`
	Score              float64                `json:"score"`
	DetailedScores     map[string]interface{} `json:"detailed_scores,omitempty"`
	Status             string                 `json:"status"`
	Feedback           string                 `json:"feedback,omitempty"`
	AnalysisSource     string                 `json:"analysis_source"`
	CreatedAt          time.Time              `json:"created_at"`
}

// NewAnalysisResultResponse converts an AnalysisResult model into a DTO.
func NewAnalysisResultResponse(model models.AnalysisResult) AnalysisResultResponse {
	return AnalysisResultResponse{
		ID:                 model.ID,
		SubmissionPublicID: model.SubmissionPublicID,
		ProjectID:          model.ProjectID,
		StudentID:          model.StudentID,
		TaskID:             model.TaskID,
		FileName:           model.FileName,
		FileType:           model.FileType,
		Language:           model.Language,
		ProjectKey:         model.ProjectKey,
		Score:              model.Score,
		DetailedScores:     model.DetailedScores,
		Status:             model.Status,
		Feedback:           model.Feedback,
		AnalysisSource:     model.AnalysisSource,
		CreatedAt:          model.CreatedAt,
	}
}

// NewAnalysisResultResponseSlice converts result models into DTOs.
func NewAnalysisResultResponseSlice(results []models.AnalysisResult) []AnalysisResultResponse {
	responses := make([]AnalysisResultResponse, 0, len(results))
	for _, result := range results {
		responses = append(responses, NewAnalysisResultResponse(result))
	}
	return responses
}
