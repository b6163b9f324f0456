package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/codegrade-labs/codegrade-api/internal/dto"
	"github.com/codegrade-labs/codegrade-api/internal/models"
	"github.com/codegrade-labs/codegrade-api/internal/observability"
	"github.com/codegrade-labs/codegrade-api/internal/repository"
)

// ErrSubmissionNotFound indicates a submission could not be located.
var ErrSubmissionNotFound = errors.New("submission not found")

// ErrSubmissionNotReviewable indicates the submission is not awaiting review.
var ErrSubmissionNotReviewable = errors.New("submission is not awaiting review")

// ErrUnsupportedUpload indicates the uploaded file is neither a supported
// archive nor an analyzable source file.
var ErrUnsupportedUpload = errors.New("unsupported upload type")

// FileStorage abstracts the optional raw-artifact archival destination.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// SubmissionConfig carries lifecycle knobs.
type SubmissionConfig struct {
	UploadDir          string
	WorkRoot           string
	WatchdogTimeout    time.Duration
	AllowFallback      bool
	MaxPerFileAnalyses int
	StatusCacheTTL     time.Duration
}

// SubmissionService owns the submission state machine and coordinates
// extraction, scanning, analysis and persistence.
type SubmissionService interface {
	Submit(ctx context.Context, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionAckResponse, error)
	Status(ctx context.Context, publicID string) (dto.SubmissionStatusResponse, error)
	Get(ctx context.Context, publicID string) (dto.SubmissionResponse, error)
	List(ctx context.Context, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, error)
	Results(ctx context.Context, publicID string) ([]dto.AnalysisResultResponse, error)
	Review(ctx context.Context, publicID string, payload dto.SubmissionReviewRequest) (dto.SubmissionResponse, error)
	Delete(ctx context.Context, publicID string) error
}

type submissionService struct {
	submissions  repository.SubmissionRepository
	results      repository.AnalysisResultRepository
	extractor    ArchiveExtractor
	scanner      FileScanner
	orchestrator AnalysisOrchestrator
	storage      FileStorage
	cache        *redis.Client
	events       EventPublisher
	validator    *validator.Validate
	sanitizer    *bluemonday.Policy
	logger       zerolog.Logger
	cfg          SubmissionConfig
	now          func() time.Time
	runAsync     func(func())
}

// NewSubmissionService constructs the lifecycle manager.
func NewSubmissionService(
	submissions repository.SubmissionRepository,
	results repository.AnalysisResultRepository,
	extractor ArchiveExtractor,
	scanner FileScanner,
	orchestrator AnalysisOrchestrator,
	storage FileStorage,
	cache *redis.Client,
	events EventPublisher,
	validate *validator.Validate,
	logger zerolog.Logger,
	cfg SubmissionConfig,
) SubmissionService {
	if cfg.UploadDir == "" {
		cfg.UploadDir = filepath.Join(os.TempDir(), "codegrade-uploads")
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = os.TempDir()
	}
	if cfg.WatchdogTimeout <= 0 {
		cfg.WatchdogTimeout = 3 * time.Minute
	}
	if cfg.MaxPerFileAnalyses <= 0 {
		cfg.MaxPerFileAnalyses = 20
	}
	if cfg.StatusCacheTTL <= 0 {
		cfg.StatusCacheTTL = 10 * time.Second
	}
	if events == nil {
		events = NopEventPublisher{}
	}

	return &submissionService{
		submissions:  submissions,
		results:      results,
		extractor:    extractor,
		scanner:      scanner,
		orchestrator: orchestrator,
		storage:      storage,
		cache:        cache,
		events:       events,
		validator:    validate,
		sanitizer:    bluemonday.StrictPolicy(),
		logger:       logger.With().Str("component", "submission_service").Logger(),
		cfg:          cfg,
		now:          time.Now,
		runAsync:     func(f func()) { go f() },
	}
}

// Submit persists the upload, acknowledges immediately with the record in
// Processing, and runs the analysis pipeline in the background under a
// watchdog timer.
func (s *submissionService) Submit(ctx context.Context, payload dto.SubmissionCreateRequest, file *multipart.FileHeader) (dto.SubmissionAckResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionAckResponse{}, err
	}
	if file == nil {
		return dto.SubmissionAckResponse{}, fmt.Errorf("submission file is required")
	}

	publicID := strings.ReplaceAll(uuid.NewString(), "-", "")

	rawPath, err := s.storeUpload(publicID, file)
	if err != nil {
		return dto.SubmissionAckResponse{}, err
	}

	submission := models.Submission{
		PublicID:     publicID,
		UserID:       payload.UserID,
		ProjectID:    payload.ProjectID,
		TaskID:       payload.TaskID,
		OriginalName: file.Filename,
		RawFilePath:  rawPath,
		Status:       models.SubmissionStatusUploaded,
	}

	if s.storage != nil {
		if url, archiveErr := s.archiveRaw(ctx, publicID, rawPath); archiveErr != nil {
			s.logger.Warn().Err(archiveErr).Str("submission_id", publicID).Msg("raw artifact archival failed")
		} else {
			submission.ArchiveURL = url
		}
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		return dto.SubmissionAckResponse{}, err
	}

	// The caller sees Processing before the slow pipeline starts.
	if _, err := s.submissions.TransitionStatus(ctx, submission.ID, models.SubmissionStatusUploaded, map[string]interface{}{
		"status": models.SubmissionStatusProcessing,
	}); err != nil {
		return dto.SubmissionAckResponse{}, err
	}
	submission.Status = models.SubmissionStatusProcessing

	s.publishEvent(submission, "")

	watchdog := time.AfterFunc(s.cfg.WatchdogTimeout, func() {
		s.fireWatchdog(submission.ID, submission.PublicID, submission.ProjectID, submission.UserID)
	})

	s.runAsync(func() {
		defer watchdog.Stop()
		s.runPipeline(context.Background(), submission)
	})

	s.logger.Info().Str("submission_id", publicID).Uint("project_id", payload.ProjectID).Msg("submission accepted")

	return dto.SubmissionAckResponse{PublicID: publicID, Status: models.SubmissionStatusProcessing}, nil
}

// runPipeline walks extraction, scanning, orchestration and persistence
// for one submission. Terminal writes go through the conditional
// transition so a watchdog that already fired wins the race.
func (s *submissionService) runPipeline(ctx context.Context, submission models.Submission) {
	sourcePath := submission.RawFilePath
	ext := strings.ToLower(filepath.Ext(submission.RawFilePath))
	isArchive := ext == ".zip" || ext == ".rar"

	var extractionDir string
	if isArchive {
		extractionDir = filepath.Join(s.cfg.WorkRoot, "extract-"+submission.PublicID)
		root, err := s.extractor.Extract(submission.RawFilePath, extractionDir)
		if err != nil {
			s.failSubmission(ctx, submission, err)
			s.cleanupDir(extractionDir)
			return
		}
		sourcePath = root
		if _, err := s.submissions.TransitionStatus(ctx, submission.ID, models.SubmissionStatusProcessing, map[string]interface{}{
			"extracted_path": root,
		}); err != nil {
			s.logger.Error().Err(err).Str("submission_id", submission.PublicID).Msg("failed to record extraction path")
		}
	}
	defer s.cleanupDir(extractionDir)

	records := s.inventory(ctx, submission, sourcePath, isArchive)

	outcome, err := s.orchestrator.Analyze(ctx, AnalysisRequest{
		SourcePath:    sourcePath,
		SubmissionID:  submission.PublicID,
		UserID:        submission.UserID,
		ProjectID:     submission.ProjectID,
		DisplayName:   submission.OriginalName,
		AllowFallback: s.cfg.AllowFallback,
	})
	if err != nil {
		s.failSubmission(ctx, submission, err)
		return
	}

	s.completeSubmission(ctx, submission, outcome)
	s.analyzeIndividualFiles(ctx, submission, records)
}

// inventory scans the extracted tree (or classifies the single file) and
// persists the file records. Scan problems degrade to an empty inventory.
func (s *submissionService) inventory(ctx context.Context, submission models.Submission, sourcePath string, isArchive bool) []models.FileRecord {
	var records []models.FileRecord

	if isArchive {
		scanned, err := s.scanner.Scan(ctx, sourcePath, submission.ProjectID)
		if err != nil {
			s.logger.Warn().Err(err).Str("submission_id", submission.PublicID).Msg("directory scan failed")
			return nil
		}
		records = scanned
	} else {
		classification := ClassifyExtension(filepath.Ext(sourcePath))
		info, err := os.Stat(sourcePath)
		var size int64
		if err == nil {
			size = info.Size()
		}
		records = []models.FileRecord{{
			Name:         filepath.Base(sourcePath),
			Path:         sourcePath,
			RelativePath: filepath.Base(sourcePath),
			SizeBytes:    size,
			FileType:     classification.FileType,
			Language:     classification.Language,
		}}
	}

	for i := range records {
		records[i].SubmissionID = submission.ID
	}

	if err := s.submissions.SaveFileRecords(ctx, records); err != nil {
		s.logger.Error().Err(err).Str("submission_id", submission.PublicID).Msg("failed to persist file records")
	}

	return records
}

// completeSubmission moves the record to Pending with the analysis
// outcome, unless a watchdog already force-failed it.
func (s *submissionService) completeSubmission(ctx context.Context, submission models.Submission, outcome AnalysisOutcome) {
	feedback := synthesizeFeedback(outcome)
	detailed := outcome.Score.Breakdown.ToMap()
	detailed["raw"] = outcome.RawMetrics

	metrics := make(map[string]interface{}, len(outcome.Metrics))
	for key, value := range outcome.Metrics {
		metrics[key] = value
	}

	applied, err := s.submissions.TransitionStatus(ctx, submission.ID, models.SubmissionStatusProcessing, map[string]interface{}{
		"status":          models.SubmissionStatusPending,
		"score":           outcome.Score.Total,
		"metrics":         datatypes.JSONMap(metrics),
		"detailed_scores": datatypes.JSONMap(detailed),
		"feedback":        feedback,
		"analysis_source": outcome.Source,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("submission_id", submission.PublicID).Msg("failed to persist analysis outcome")
		return
	}
	if !applied {
		// A watchdog timeout won the race; the late success is discarded.
		s.logger.Warn().Str("submission_id", submission.PublicID).Msg("analysis finished after terminal state, result discarded")
		return
	}

	result := models.AnalysisResult{
		SubmissionPublicID: submission.PublicID,
		ProjectID:          submission.ProjectID,
		StudentID:          submission.UserID,
		TaskID:             submission.TaskID,
		FileName:           submission.OriginalName,
		ProjectKey:         outcome.ProjectKey,
		Metrics:            datatypes.JSONMap(metrics),
		Score:              outcome.Score.Total,
		DetailedScores:     datatypes.JSONMap(detailed),
		Status:             models.SubmissionStatusPending,
		Feedback:           feedback,
		AnalysisSource:     outcome.Source,
	}
	if err := s.results.Create(ctx, &result); err != nil {
		s.logger.Error().Err(err).Str("submission_id", submission.PublicID).Msg("failed to persist analysis result")
	}

	s.invalidateStatusCache(ctx, submission.PublicID)

	submission.Status = models.SubmissionStatusPending
	s.publishEvent(submission, outcome.Source)

	s.logger.Info().Str("submission_id", submission.PublicID).Float64("score", outcome.Score.Total).Str("source", outcome.Source).Msg("analysis complete")
}

// analyzeIndividualFiles runs the per-file sub-pipeline for bounded
// submissions. Files are analyzed sequentially to bound engine load and
// avoid project-key collisions; one file's failure never aborts the batch.
func (s *submissionService) analyzeIndividualFiles(ctx context.Context, submission models.Submission, records []models.FileRecord) {
	if len(records) == 0 || len(records) > s.cfg.MaxPerFileAnalyses {
		return
	}

	for i := range records {
		record := &records[i]
		if !record.IsAnalyzable() {
			continue
		}

		outcome, err := s.orchestrator.Analyze(ctx, AnalysisRequest{
			SourcePath:    record.Path,
			SubmissionID:  fmt.Sprintf("%s_f%d", submission.PublicID, record.ID),
			UserID:        submission.UserID,
			ProjectID:     submission.ProjectID,
			DisplayName:   record.Name,
			AllowFallback: true,
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("submission_id", submission.PublicID).Str("file", record.Name).Msg("per-file analysis failed")
			continue
		}

		studentID := submission.UserID
		if record.StudentID != nil {
			studentID = *record.StudentID
		}

		metrics := make(map[string]interface{}, len(outcome.Metrics))
		for key, value := range outcome.Metrics {
			metrics[key] = value
		}
		detailed := outcome.Score.Breakdown.ToMap()
		detailed["raw"] = outcome.RawMetrics

		result := models.AnalysisResult{
			SubmissionPublicID: submission.PublicID,
			ProjectID:          submission.ProjectID,
			StudentID:          studentID,
			TaskID:             record.TaskID,
			FileName:           record.Name,
			FileType:           record.FileType,
			Language:           record.Language,
			ProjectKey:         outcome.ProjectKey,
			Metrics:            datatypes.JSONMap(metrics),
			Score:              outcome.Score.Total,
			DetailedScores:     datatypes.JSONMap(detailed),
			Status:             models.SubmissionStatusAnalyzed,
			Feedback:           synthesizeFeedback(outcome),
			AnalysisSource:     outcome.Source,
		}
		if err := s.results.Create(ctx, &result); err != nil {
			s.logger.Error().Err(err).Str("submission_id", submission.PublicID).Str("file", record.Name).Msg("failed to persist per-file result")
			continue
		}

		record.AnalysisResultID = &result.ID
		if err := s.submissions.UpdateFileRecord(ctx, record); err != nil {
			s.logger.Error().Err(err).Str("submission_id", submission.PublicID).Str("file", record.Name).Msg("failed to link per-file result")
		}
	}
}

// failSubmission records a terminal failure with user-facing feedback
// derived from the typed error kind.
func (s *submissionService) failSubmission(ctx context.Context, submission models.Submission, cause error) {
	feedback := classifyFailure(cause)

	applied, err := s.submissions.TransitionStatus(ctx, submission.ID, models.SubmissionStatusProcessing, map[string]interface{}{
		"status":   models.SubmissionStatusFailed,
		"feedback": feedback,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("submission_id", submission.PublicID).Msg("failed to persist failure state")
		return
	}
	if !applied {
		s.logger.Warn().Str("submission_id", submission.PublicID).Msg("failure arrived after terminal state, ignored")
		return
	}

	s.invalidateStatusCache(ctx, submission.PublicID)

	submission.Status = models.SubmissionStatusFailed
	s.publishEvent(submission, "")

	s.logger.Info().Err(cause).Str("submission_id", submission.PublicID).Msg("submission failed")
}

// fireWatchdog force-fails a submission stuck in Processing. The
// conditional transition makes a concurrent pipeline conclusion safe.
func (s *submissionService) fireWatchdog(id uint, publicID string, projectID, userID uint) {
	ctx := context.Background()

	applied, err := s.submissions.TransitionStatus(ctx, id, models.SubmissionStatusProcessing, map[string]interface{}{
		"status":   models.SubmissionStatusFailed,
		"feedback": "Analysis timed out: the submission was still processing after the allowed window. Please try again.",
	})
	if err != nil {
		s.logger.Error().Err(err).Str("submission_id", publicID).Msg("watchdog transition failed")
		return
	}
	if !applied {
		return
	}

	observability.WatchdogTimeouts().Inc()
	s.invalidateStatusCache(ctx, publicID)
	s.publishEvent(models.Submission{ID: id, PublicID: publicID, ProjectID: projectID, UserID: userID, Status: models.SubmissionStatusFailed}, "")

	s.logger.Warn().Str("submission_id", publicID).Msg("watchdog force-failed submission")
}

func (s *submissionService) Status(ctx context.Context, publicID string) (dto.SubmissionStatusResponse, error) {
	cacheKey := "submission:status:" + publicID

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var response dto.SubmissionStatusResponse
			if unmarshalErr := json.Unmarshal([]byte(cached), &response); unmarshalErr == nil {
				return response, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("failed to read status cache")
		}
	}

	submission, err := s.submissions.GetByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionStatusResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionStatusResponse{}, err
	}

	response := dto.SubmissionStatusResponse{
		PublicID:       submission.PublicID,
		Status:         submission.Status,
		Score:          submission.Score,
		AnalysisSource: submission.AnalysisSource,
		DetailedScores: submission.DetailedScores,
	}

	if s.cache != nil {
		if payload, err := json.Marshal(response); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cfg.StatusCacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to store status cache")
			}
		}
	}

	return response, nil
}

func (s *submissionService) Get(ctx context.Context, publicID string) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}
	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) List(ctx context.Context, filter dto.SubmissionFilter) ([]dto.SubmissionResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, err
	}

	submissions, err := s.submissions.List(ctx, repository.SubmissionFilter{
		ProjectID: filter.ProjectID,
		UserID:    filter.UserID,
		Status:    filter.Status,
	})
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) Results(ctx context.Context, publicID string) ([]dto.AnalysisResultResponse, error) {
	if _, err := s.submissions.GetByPublicID(ctx, publicID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}

	results, err := s.results.ListBySubmission(ctx, publicID)
	if err != nil {
		return nil, err
	}

	return dto.NewAnalysisResultResponseSlice(results), nil
}

// Review applies a tutor override. The review mutates the existing
// whole-submission result in place rather than creating a new one.
func (s *submissionService) Review(ctx context.Context, publicID string, payload dto.SubmissionReviewRequest) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, err
	}

	submission, err := s.submissions.GetByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	if submission.Status != models.SubmissionStatusPending && submission.Status != models.SubmissionStatusAnalyzed {
		return dto.SubmissionResponse{}, ErrSubmissionNotReviewable
	}

	reviewedAt := s.now()
	comments := s.sanitizer.Sanitize(payload.Comments)

	submission.Status = models.SubmissionStatusReviewed
	submission.ReviewerID = &payload.ReviewerID
	submission.ReviewScore = &payload.Score
	submission.ReviewComments = comments
	submission.ReviewedAt = &reviewedAt

	if err := s.submissions.Update(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	results, err := s.results.ListBySubmission(ctx, publicID)
	if err == nil {
		for i := range results {
			if results[i].FileType != "" {
				continue // per-file results keep their automated scores
			}
			results[i].Status = models.SubmissionStatusReviewed
			results[i].ReviewerID = &payload.ReviewerID
			results[i].ReviewScore = &payload.Score
			results[i].ReviewComments = comments
			results[i].ReviewedAt = &reviewedAt
			if err := s.results.Update(ctx, &results[i]); err != nil {
				s.logger.Error().Err(err).Str("submission_id", publicID).Msg("failed to update reviewed result")
			}
		}
	}

	s.invalidateStatusCache(ctx, publicID)
	s.publishEvent(submission, submission.AnalysisSource)

	s.logger.Info().Str("submission_id", publicID).Uint("reviewer_id", payload.ReviewerID).Msg("submission reviewed")

	return dto.NewSubmissionResponse(submission), nil
}

// Delete removes the submission, its stored raw file, its extraction
// directory and every analysis result that references it. Orphaned
// storage is a correctness bug, not an optimization concern.
func (s *submissionService) Delete(ctx context.Context, publicID string) error {
	submission, err := s.submissions.GetByPublicID(ctx, publicID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSubmissionNotFound
		}
		return err
	}

	if err := s.results.DeleteBySubmission(ctx, publicID); err != nil {
		return err
	}

	if err := s.submissions.Delete(ctx, submission.ID); err != nil {
		return err
	}

	if submission.RawFilePath != "" {
		if err := os.Remove(submission.RawFilePath); err != nil && !os.IsNotExist(err) {
			s.logger.Error().Err(err).Str("submission_id", publicID).Msg("failed to remove raw file")
		}
	}
	if submission.ExtractedPath != nil {
		s.cleanupDir(*submission.ExtractedPath)
	}

	s.invalidateStatusCache(ctx, publicID)

	s.logger.Info().Str("submission_id", publicID).Msg("submission deleted")

	return nil
}

func (s *submissionService) storeUpload(publicID string, file *multipart.FileHeader) (string, error) {
	ext := strings.ToLower(filepath.Ext(file.Filename))

	handle, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("failed to open upload: %w", err)
	}
	defer handle.Close()

	// Archives are accepted on extension alone. Their magic bytes are
	// validated by the extractor so a corrupt archive becomes a failed
	// submission with feedback rather than a rejected request.
	if ext != ".zip" && ext != ".rar" {
		if ClassifyExtension(ext).FileType == models.FileTypeUnknown {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedUpload, file.Filename)
		}

		mime, err := mimetype.DetectReader(handle)
		if err != nil {
			return "", fmt.Errorf("failed to detect upload type: %w", err)
		}
		if !isTextContent(mime) {
			return "", fmt.Errorf("%w: %s claims %s but detected %s", ErrUnsupportedUpload, file.Filename, ext, mime.String())
		}
		if _, err := handle.Seek(0, io.SeekStart); err != nil {
			return "", fmt.Errorf("failed to rewind upload: %w", err)
		}
	}

	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}

	rawPath := filepath.Join(s.cfg.UploadDir, publicID+ext)
	out, err := os.OpenFile(rawPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to store upload: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, handle); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}

	return rawPath, nil
}

// isTextContent walks the detected type's parent chain looking for
// text/plain, the documented way to separate text from binary payloads.
func isTextContent(mime *mimetype.MIME) bool {
	for ; mime != nil; mime = mime.Parent() {
		if mime.Is("text/plain") {
			return true
		}
	}
	return false
}

func (s *submissionService) archiveRaw(ctx context.Context, publicID, rawPath string) (string, error) {
	handle, err := os.Open(rawPath)
	if err != nil {
		return "", err
	}
	defer handle.Close()

	return s.storage.Upload(ctx, publicID+filepath.Ext(rawPath), handle)
}

func (s *submissionService) cleanupDir(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		s.logger.Error().Err(err).Str("dir", dir).Msg("cleanup failed")
	}
}

func (s *submissionService) invalidateStatusCache(ctx context.Context, publicID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, "submission:status:"+publicID).Err(); err != nil {
		s.logger.Warn().Err(err).Str("submission_id", publicID).Msg("failed to invalidate status cache")
	}
}

func (s *submissionService) publishEvent(submission models.Submission, source string) {
	err := s.events.PublishSubmissionEvent(SubmissionEvent{
		SubmissionID: submission.PublicID,
		ProjectID:    submission.ProjectID,
		UserID:       submission.UserID,
		Status:       submission.Status,
		Source:       source,
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("submission_id", submission.PublicID).Msg("event publish failed")
	}
}

// synthesizeFeedback builds the user-facing summary from the analysis
// source and the dimension breakdown.
func synthesizeFeedback(outcome AnalysisOutcome) string {
	b := outcome.Score.Breakdown

	var prefix string
	switch outcome.Source {
	case models.AnalysisSourceSonarCloud:
		prefix = "Automated analysis completed."
	case models.AnalysisSourceLocalAnalyzer:
		prefix = "Automated analysis completed using the local analyzer (the remote engine was unavailable)."
	default:
		prefix = "Automated analysis could not inspect this submission; a provisional score was assigned pending tutor review."
	}

	return fmt.Sprintf(
		"%s Overall score: %.0f/100. Correctness %.0f/30, Security %.0f/20, Maintainability %.0f/20, Documentation %.0f/15, Clean code %.0f/10, Simplicity %.0f/5.",
		prefix, outcome.Score.Total, b.Correctness, b.Security, b.Maintainability, b.Documentation, b.CleanCode, b.Simplicity,
	)
}

// classifyFailure maps a typed pipeline error onto user-facing feedback.
// Classification only shapes the message, never control flow.
func classifyFailure(err error) string {
	switch AnalysisErrorKindOf(err) {
	case ErrKindInvalidArchiveSignature:
		return "Archive rejected: the file signature does not match a ZIP or RAR archive. Please re-export your project and upload again."
	case ErrKindEmptyOrCorruptArchive:
		return "Archive rejected: the archive is empty or corrupt and could not be extracted."
	case ErrKindEngineTimeout:
		return "Analysis failed: the analysis engine timed out. Please try again later."
	case ErrKindScannerInvocationFailed:
		return "Analysis failed: the analysis engine could not process this submission."
	case ErrKindMetricsRetrievalFailed:
		return "Analysis failed: results could not be retrieved from the analysis engine."
	case ErrKindLocalAnalysisFailed:
		return "Analysis failed: the submission could not be analyzed locally."
	default:
		return "Analysis failed due to an unexpected error. Please contact your tutor."
	}
}
