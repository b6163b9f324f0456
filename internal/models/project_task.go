package models

import "time"

// ProjectTask is a task belonging to a project, optionally assigned to a
// student. The scanner reads these to infer which task or student a file
// inside an archive belongs to; this service never writes them.
type ProjectTask struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	ProjectID         uint      `gorm:"not null;index" json:"project_id"`
	Name              string    `gorm:"size:255;not null" json:"name"`
	AssignedStudentID *uint     `json:"assigned_student_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
