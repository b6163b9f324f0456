package service

import (
	"bytes"
	"context"
	"mime/multipart"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/codegrade-labs/codegrade-api/internal/dto"
	"github.com/codegrade-labs/codegrade-api/internal/models"
	"github.com/codegrade-labs/codegrade-api/internal/repository"
)

type stubOrchestrator struct {
	outcome  AnalysisOutcome
	err      error
	calls    int
	requests []AnalysisRequest
}

func (s *stubOrchestrator) Analyze(ctx context.Context, req AnalysisRequest) (AnalysisOutcome, error) {
	s.calls++
	s.requests = append(s.requests, req)
	if s.err != nil {
		return AnalysisOutcome{}, s.err
	}
	outcome := s.outcome
	outcome.ProjectKey = BuildProjectKey(req.UserID, req.ProjectID, req.SubmissionID)
	return outcome, nil
}

func goodOutcome() AnalysisOutcome {
	return AnalysisOutcome{
		Metrics:    map[string]float64{MetricBugs: 1, MetricLinesOfCode: 200},
		RawMetrics: map[string]string{"bugs": "1", "ncloc": "200"},
		Score: ScoreResult{
			Total: 75,
			Breakdown: ScoreBreakdown{
				Correctness: 25, Security: 15, Maintainability: 15,
				Documentation: 10, CleanCode: 7, Simplicity: 3,
			},
		},
		Source: models.AnalysisSourceSonarCloud,
	}
}

type lifecycleFixture struct {
	svc         *submissionService
	db          *gorm.DB
	submissions repository.SubmissionRepository
	results     repository.AnalysisResultRepository
	orch        *stubOrchestrator
}

func newLifecycleFixture(t *testing.T, orch *stubOrchestrator, cache *redis.Client) *lifecycleFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:submission_service_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Submission{}, &models.FileRecord{}, &models.AnalysisResult{}, &models.ProjectTask{}))
	t.Cleanup(func() {
		db.Exec("DELETE FROM file_records")
		db.Exec("DELETE FROM analysis_results")
		db.Exec("DELETE FROM project_tasks")
		db.Exec("DELETE FROM submissions")
	})

	submissions := repository.NewSubmissionRepository(db)
	results := repository.NewAnalysisResultRepository(db)

	svc := NewSubmissionService(
		submissions,
		results,
		NewArchiveExtractor(zerolog.Nop()),
		NewFileScanner(&stubTaskRepo{}, zerolog.Nop()),
		orch,
		nil,
		cache,
		NopEventPublisher{},
		validator.New(validator.WithRequiredStructEnabled()),
		zerolog.Nop(),
		SubmissionConfig{
			UploadDir:       filepath.Join(t.TempDir(), "uploads"),
			WorkRoot:        t.TempDir(),
			WatchdogTimeout: time.Minute,
			AllowFallback:   true,
			StatusCacheTTL:  time.Minute,
		},
	).(*submissionService)

	// Tests run the pipeline inline so assertions see the final state.
	svc.runAsync = func(f func()) { f() }

	return &lifecycleFixture{svc: svc, db: db, submissions: submissions, results: results, orch: orch}
}

func makeFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	form, err := multipart.NewReader(&buf, writer.Boundary()).ReadForm(32 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { _ = form.RemoveAll() })

	return form.File["file"][0]
}

func zipPayload(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "payload.zip")
	writeZip(t, path, entries)
	payload, err := os.ReadFile(path)
	require.NoError(t, err)
	return payload
}

func TestSubmitArchiveRunsFullPipeline(t *testing.T) {
	orch := &stubOrchestrator{outcome: goodOutcome()}
	fx := newLifecycleFixture(t, orch, nil)

	payload := zipPayload(t, map[string]string{
		"proj/main.py":   "print('hello')\n",
		"proj/README.md": "# readme\n",
	})

	ack, err := fx.svc.Submit(context.Background(), dto.SubmissionCreateRequest{ProjectID: 3, UserID: 7}, makeFileHeader(t, "project.zip", payload))
	require.NoError(t, err)
	require.NotEmpty(t, ack.PublicID)
	require.Equal(t, models.SubmissionStatusProcessing, ack.Status)

	full, err := fx.svc.Get(context.Background(), ack.PublicID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusPending, full.Status)
	require.NotNil(t, full.Score)
	require.Equal(t, 75.0, *full.Score)
	require.Equal(t, models.AnalysisSourceSonarCloud, full.AnalysisSource)
	require.Contains(t, full.Feedback, "75")
	require.Len(t, full.Files, 2)

	// One whole-submission run plus one per analyzable file (main.py).
	require.Equal(t, 2, orch.calls)

	results, err := fx.svc.Results(context.Background(), ack.PublicID)
	require.NoError(t, err)
	require.Len(t, results, 2)
}

func TestSubmitBadArchiveSignatureFailsSubmission(t *testing.T) {
	orch := &stubOrchestrator{outcome: goodOutcome()}
	fx := newLifecycleFixture(t, orch, nil)

	// A .zip whose first bytes are not the ZIP magic is accepted at intake
	// and must end as a failed submission carrying signature feedback.
	ack, err := fx.svc.Submit(context.Background(), dto.SubmissionCreateRequest{ProjectID: 1, UserID: 1}, makeFileHeader(t, "bad.zip", []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x02}))
	require.NoError(t, err)

	full, err := fx.svc.Get(context.Background(), ack.PublicID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusFailed, full.Status)
	require.Contains(t, full.Feedback, "signature")
	require.Contains(t, full.Feedback, "ZIP")
	require.Zero(t, orch.calls)
}

func TestSubmitRejectsBinaryContentWithSourceExtension(t *testing.T) {
	orch := &stubOrchestrator{outcome: goodOutcome()}
	fx := newLifecycleFixture(t, orch, nil)

	_, err := fx.svc.Submit(context.Background(), dto.SubmissionCreateRequest{ProjectID: 1, UserID: 1}, makeFileHeader(t, "sneaky.py", []byte{0x7F, 0x45, 0x4C, 0x46, 0x02, 0x01, 0x01, 0x00}))
	require.ErrorIs(t, err, ErrUnsupportedUpload)
	require.Zero(t, orch.calls)
}

func TestSubmitRejectsUnknownFileType(t *testing.T) {
	orch := &stubOrchestrator{outcome: goodOutcome()}
	fx := newLifecycleFixture(t, orch, nil)

	_, err := fx.svc.Submit(context.Background(), dto.SubmissionCreateRequest{ProjectID: 1, UserID: 1}, makeFileHeader(t, "virus.exe", []byte{0x4D, 0x5A, 0x00}))
	require.ErrorIs(t, err, ErrUnsupportedUpload)
}

func TestSubmitSingleSourceFile(t *testing.T) {
	orch := &stubOrchestrator{outcome: goodOutcome()}
	fx := newLifecycleFixture(t, orch, nil)

	ack, err := fx.svc.Submit(context.Background(), dto.SubmissionCreateRequest{ProjectID: 2, UserID: 4}, makeFileHeader(t, "solution.py", []byte("print('answer')\n")))
	require.NoError(t, err)

	full, err := fx.svc.Get(context.Background(), ack.PublicID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusPending, full.Status)
	require.Len(t, full.Files, 1)
	require.Equal(t, models.FileTypeBackend, full.Files[0].FileType)
}

func TestPipelineFailsOnInvalidSignature(t *testing.T) {
	orch := &stubOrchestrator{outcome: goodOutcome()}
	fx := newLifecycleFixture(t, orch, nil)

	fakeArchive := filepath.Join(t.TempDir(), "broken.zip")
	require.NoError(t, os.WriteFile(fakeArchive, []byte("no signature here"), 0o644))

	submission := models.Submission{
		PublicID:    "brokenzip",
		UserID:      1,
		ProjectID:   1,
		RawFilePath: fakeArchive,
		Status:      models.SubmissionStatusProcessing,
	}
	require.NoError(t, fx.submissions.Create(context.Background(), &submission))

	fx.svc.runPipeline(context.Background(), submission)

	stored, err := fx.submissions.GetByID(context.Background(), submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusFailed, stored.Status)
	require.Contains(t, stored.Feedback, "signature")
	require.Contains(t, stored.Feedback, "ZIP")
	require.Zero(t, orch.calls, "analysis must not run after extraction fails")
}

func TestLateSuccessLosesToWatchdog(t *testing.T) {
	orch := &stubOrchestrator{outcome: goodOutcome()}
	fx := newLifecycleFixture(t, orch, nil)
	ctx := context.Background()

	submission := models.Submission{PublicID: "raced", UserID: 1, ProjectID: 1, Status: models.SubmissionStatusProcessing}
	require.NoError(t, fx.submissions.Create(ctx, &submission))

	// The watchdog fires first and takes the terminal slot.
	fx.svc.fireWatchdog(submission.ID, submission.PublicID, submission.ProjectID, submission.UserID)

	// The pipeline concludes afterwards; its success must be discarded.
	fx.svc.completeSubmission(ctx, submission, goodOutcome())

	stored, err := fx.submissions.GetByID(ctx, submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusFailed, stored.Status)
	require.Nil(t, stored.Score)
	require.Contains(t, stored.Feedback, "timed out")

	results, err := fx.results.ListBySubmission(ctx, submission.PublicID)
	require.NoError(t, err)
	require.Empty(t, results, "discarded outcomes must not leave result rows")
}

func TestReviewSanitizesAndFinalizes(t *testing.T) {
	orch := &stubOrchestrator{outcome: goodOutcome()}
	fx := newLifecycleFixture(t, orch, nil)
	ctx := context.Background()

	payload := zipPayload(t, map[string]string{"proj/main.py": "print('x')\n"})
	ack, err := fx.svc.Submit(ctx, dto.SubmissionCreateRequest{ProjectID: 5, UserID: 6}, makeFileHeader(t, "work.zip", payload))
	require.NoError(t, err)

	reviewed, err := fx.svc.Review(ctx, ack.PublicID, dto.SubmissionReviewRequest{
		ReviewerID: 99,
		Score:      88,
		Comments:   "<script>alert('x')</script>Solid error handling",
	})
	require.NoError(t, err)

	require.Equal(t, models.SubmissionStatusReviewed, reviewed.Status)
	require.NotNil(t, reviewed.ReviewScore)
	require.Equal(t, 88.0, *reviewed.ReviewScore)
	require.NotContains(t, reviewed.ReviewComments, "<script>")
	require.Contains(t, reviewed.ReviewComments, "Solid error handling")
	require.NotNil(t, reviewed.ReviewedAt)

	// Reviewing again must fail: the submission left the pending state.
	_, err = fx.svc.Review(ctx, ack.PublicID, dto.SubmissionReviewRequest{ReviewerID: 99, Score: 50})
	require.ErrorIs(t, err, ErrSubmissionNotReviewable)
}

func TestReviewRejectsFailedSubmission(t *testing.T) {
	orch := &stubOrchestrator{outcome: goodOutcome()}
	fx := newLifecycleFixture(t, orch, nil)
	ctx := context.Background()

	submission := models.Submission{PublicID: "deadend", UserID: 1, ProjectID: 1, Status: models.SubmissionStatusFailed}
	require.NoError(t, fx.submissions.Create(ctx, &submission))

	_, err := fx.svc.Review(ctx, "deadend", dto.SubmissionReviewRequest{ReviewerID: 1, Score: 10})
	require.ErrorIs(t, err, ErrSubmissionNotReviewable)
}

func TestDeleteRemovesStorageAndResults(t *testing.T) {
	orch := &stubOrchestrator{outcome: goodOutcome()}
	fx := newLifecycleFixture(t, orch, nil)
	ctx := context.Background()

	payload := zipPayload(t, map[string]string{"proj/main.py": "print('x')\n"})
	ack, err := fx.svc.Submit(ctx, dto.SubmissionCreateRequest{ProjectID: 8, UserID: 9}, makeFileHeader(t, "cleanup.zip", payload))
	require.NoError(t, err)

	stored, err := fx.submissions.GetByPublicID(ctx, ack.PublicID)
	require.NoError(t, err)
	rawPath := stored.RawFilePath
	_, err = os.Stat(rawPath)
	require.NoError(t, err)

	require.NoError(t, fx.svc.Delete(ctx, ack.PublicID))

	_, err = os.Stat(rawPath)
	require.True(t, os.IsNotExist(err), "raw upload must be removed")

	_, err = fx.svc.Get(ctx, ack.PublicID)
	require.ErrorIs(t, err, ErrSubmissionNotFound)

	results, err := fx.results.ListBySubmission(ctx, ack.PublicID)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestStatusUsesRedisCache(t *testing.T) {
	server := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = cache.Close() })

	orch := &stubOrchestrator{outcome: goodOutcome()}
	fx := newLifecycleFixture(t, orch, cache)
	ctx := context.Background()

	payload := zipPayload(t, map[string]string{"proj/main.py": "print('x')\n"})
	ack, err := fx.svc.Submit(ctx, dto.SubmissionCreateRequest{ProjectID: 1, UserID: 2}, makeFileHeader(t, "cache.zip", payload))
	require.NoError(t, err)

	first, err := fx.svc.Status(ctx, ack.PublicID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusPending, first.Status)

	// A direct DB change is invisible while the cache entry lives.
	require.NoError(t, fx.db.Model(&models.Submission{}).Where("public_id = ?", ack.PublicID).Update("status", models.SubmissionStatusFailed).Error)

	second, err := fx.svc.Status(ctx, ack.PublicID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusPending, second.Status)

	// Expiry falls through to the database again.
	server.FastForward(2 * time.Minute)

	third, err := fx.svc.Status(ctx, ack.PublicID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusFailed, third.Status)
}

func TestStatusUnknownSubmission(t *testing.T) {
	fx := newLifecycleFixture(t, &stubOrchestrator{outcome: goodOutcome()}, nil)

	_, err := fx.svc.Status(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestListFiltersByProjectAndStatus(t *testing.T) {
	orch := &stubOrchestrator{outcome: goodOutcome()}
	fx := newLifecycleFixture(t, orch, nil)
	ctx := context.Background()

	seedStatuses := []models.Submission{
		{PublicID: "list-1", UserID: 1, ProjectID: 20, Status: models.SubmissionStatusPending},
		{PublicID: "list-2", UserID: 1, ProjectID: 20, Status: models.SubmissionStatusFailed},
		{PublicID: "list-3", UserID: 2, ProjectID: 21, Status: models.SubmissionStatusPending},
	}
	for i := range seedStatuses {
		require.NoError(t, fx.submissions.Create(ctx, &seedStatuses[i]))
	}

	projectID := uint(20)
	status := models.SubmissionStatusPending
	listed, err := fx.svc.List(ctx, dto.SubmissionFilter{ProjectID: &projectID, Status: &status})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, "list-1", listed[0].PublicID)
}
