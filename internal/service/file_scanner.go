package service

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/codegrade-labs/codegrade-api/internal/models"
	"github.com/codegrade-labs/codegrade-api/internal/repository"
)

// FileClassification pairs a file-type category with a language label.
type FileClassification struct {
	FileType string
	Language string
}

// extensionTable maps lowercase extensions to their classification.
// Lookups are pure; unknown extensions classify as Unknown/Unknown.
var extensionTable = map[string]FileClassification{
	".html": {models.FileTypeWeb, "HTML"},
	".htm":  {models.FileTypeWeb, "HTML"},
	".css":  {models.FileTypeWeb, "CSS"},
	".scss": {models.FileTypeWeb, "SCSS"},
	".js":   {models.FileTypeWeb, "JavaScript"},
	".jsx":  {models.FileTypeWeb, "JavaScript"},
	".ts":   {models.FileTypeWeb, "TypeScript"},
	".tsx":  {models.FileTypeWeb, "TypeScript"},
	".vue":  {models.FileTypeWeb, "Vue"},

	".py":   {models.FileTypeBackend, "Python"},
	".go":   {models.FileTypeBackend, "Go"},
	".java": {models.FileTypeBackend, "Java"},
	".rb":   {models.FileTypeBackend, "Ruby"},
	".php":  {models.FileTypeBackend, "PHP"},
	".c":    {models.FileTypeBackend, "C"},
	".h":    {models.FileTypeBackend, "C"},
	".cpp":  {models.FileTypeBackend, "C++"},
	".cs":   {models.FileTypeBackend, "C#"},
	".rs":   {models.FileTypeBackend, "Rust"},
	".kt":   {models.FileTypeBackend, "Kotlin"},

	".json": {models.FileTypeConfiguration, "JSON"},
	".yaml": {models.FileTypeConfiguration, "YAML"},
	".yml":  {models.FileTypeConfiguration, "YAML"},
	".toml": {models.FileTypeConfiguration, "TOML"},
	".ini":  {models.FileTypeConfiguration, "INI"},
	".env":  {models.FileTypeConfiguration, "Env"},
	".xml":  {models.FileTypeConfiguration, "XML"},

	".sql":    {models.FileTypeDatabase, "SQL"},
	".db":     {models.FileTypeDatabase, "SQLite"},
	".sqlite": {models.FileTypeDatabase, "SQLite"},

	".zip": {models.FileTypeArchive, "Archive"},
	".rar": {models.FileTypeArchive, "Archive"},
	".tar": {models.FileTypeArchive, "Archive"},
	".gz":  {models.FileTypeArchive, "Archive"},
	".7z":  {models.FileTypeArchive, "Archive"},

	".png":  {models.FileTypeImage, "PNG"},
	".jpg":  {models.FileTypeImage, "JPEG"},
	".jpeg": {models.FileTypeImage, "JPEG"},
	".gif":  {models.FileTypeImage, "GIF"},
	".svg":  {models.FileTypeImage, "SVG"},

	".md":   {models.FileTypeDocument, "Markdown"},
	".txt":  {models.FileTypeDocument, "Text"},
	".pdf":  {models.FileTypeDocument, "PDF"},
	".doc":  {models.FileTypeDocument, "Word"},
	".docx": {models.FileTypeDocument, "Word"},
}

// ClassifyExtension resolves an extension to its file type and language.
func ClassifyExtension(ext string) FileClassification {
	if classification, ok := extensionTable[strings.ToLower(ext)]; ok {
		return classification
	}
	return FileClassification{models.FileTypeUnknown, "Unknown"}
}

// FileScanner walks an extracted tree and produces classified file
// records, best-effort associated with the project's tasks and students.
type FileScanner interface {
	Scan(ctx context.Context, rootDir string, projectID uint) ([]models.FileRecord, error)
}

type fileScanner struct {
	tasks  repository.TaskRepository
	logger zerolog.Logger
}

// NewFileScanner constructs a scanner backed by the task repository.
func NewFileScanner(tasks repository.TaskRepository, logger zerolog.Logger) FileScanner {
	return &fileScanner{
		tasks:  tasks,
		logger: logger.With().Str("component", "file_scanner").Logger(),
	}
}

// Scan walks rootDir recursively and returns one record per regular file.
// Task and student associations are inferred where the path or filename
// heuristics find a match; a miss is a normal outcome, not an error.
func (s *fileScanner) Scan(ctx context.Context, rootDir string, projectID uint) ([]models.FileRecord, error) {
	var tasks []models.ProjectTask
	if s.tasks != nil {
		loaded, err := s.tasks.ListByProject(ctx, projectID)
		if err != nil {
			// Association lookup failures degrade to unassociated records.
			s.logger.Warn().Err(err).Uint("project_id", projectID).Msg("task lookup failed, scanning without associations")
		} else {
			tasks = loaded
		}
	}

	var records []models.FileRecord
	err := filepath.WalkDir(rootDir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}

		info, err := entry.Info()
		if err != nil {
			return err
		}

		relative, err := filepath.Rel(rootDir, path)
		if err != nil {
			relative = entry.Name()
		}

		classification := ClassifyExtension(filepath.Ext(entry.Name()))
		record := models.FileRecord{
			Name:         entry.Name(),
			Path:         path,
			RelativePath: filepath.ToSlash(relative),
			SizeBytes:    info.Size(),
			FileType:     classification.FileType,
			Language:     classification.Language,
		}

		if task, student, ok := associate(record.RelativePath, record.Name, tasks); ok {
			record.TaskID = task
			record.StudentID = student
		}

		records = append(records, record)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", rootDir, err)
	}

	s.logger.Debug().Int("files", len(records)).Str("root", rootDir).Msg("directory scan complete")

	return records, nil
}

// associate applies the documented heuristic order: path-segment matches
// win over filename-token matches. Ambiguity between tasks sharing a name
// substring is accepted behavior.
func associate(relativePath, fileName string, tasks []models.ProjectTask) (*uint, *uint, bool) {
	if len(tasks) == 0 {
		return nil, nil, false
	}

	segments := strings.Split(filepath.ToSlash(filepath.Dir(relativePath)), "/")
	for _, segment := range segments {
		if segment == "" || segment == "." {
			continue
		}
		lowered := strings.ToLower(segment)
		for i := range tasks {
			task := &tasks[i]
			if strings.Contains(segment, strconv.FormatUint(uint64(task.ID), 10)) ||
				(task.Name != "" && strings.Contains(lowered, strings.ToLower(task.Name))) {
				return uintPtr(task.ID), task.AssignedStudentID, true
			}
		}
	}

	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	for _, token := range strings.Split(base, "_") {
		id, err := strconv.ParseUint(token, 10, 64)
		if err != nil {
			continue
		}
		candidate := uint(id)
		for i := range tasks {
			task := &tasks[i]
			if task.ID == candidate {
				return uintPtr(task.ID), task.AssignedStudentID, true
			}
			if task.AssignedStudentID != nil && *task.AssignedStudentID == candidate {
				return uintPtr(task.ID), task.AssignedStudentID, true
			}
		}
	}

	return nil, nil, false
}

func uintPtr(v uint) *uint {
	return &v
}
