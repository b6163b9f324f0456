package models

import "time"

// File type categories assigned by the directory scanner.
const (
	FileTypeWeb           = "Web"
	FileTypeBackend       = "Backend"
	FileTypeConfiguration = "Configuration"
	FileTypeDatabase      = "Database"
	FileTypeArchive       = "Archive"
	FileTypeImage         = "Image"
	FileTypeDocument      = "Document"
	FileTypeUnknown       = "Unknown"
)

// FileRecord is one file discovered inside a submission's payload.
// Records are written once during a scan pass; only the analysis
// back-reference changes afterwards.
type FileRecord struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	SubmissionID     uint      `gorm:"not null;index" json:"submission_id"`
	Name             string    `gorm:"size:255;not null" json:"name"`
	Path             string    `gorm:"size:512;not null" json:"path"`
	RelativePath     string    `gorm:"size:512" json:"relative_path"`
	SizeBytes        int64     `gorm:"default:0" json:"size_bytes"`
	FileType         string    `gorm:"size:32;not null" json:"file_type"`
	Language         string    `gorm:"size:32;not null" json:"language"`
	StudentID        *uint     `json:"student_id"`
	TaskID           *uint     `json:"task_id"`
	AnalysisResultID *uint     `json:"analysis_result_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// IsAnalyzable reports whether the file category is worth sending
// through the per-file analysis pipeline.
func (f FileRecord) IsAnalyzable() bool {
	switch f.FileType {
	case FileTypeWeb, FileTypeBackend, FileTypeConfiguration, FileTypeDatabase:
		return true
	default:
		return false
	}
}
