package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/codegrade-labs/codegrade-api/internal/models"
)

func setupSubmissionDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:submission_repo_test?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Submission{}, &models.FileRecord{}, &models.AnalysisResult{}))
	t.Cleanup(func() {
		db.Exec("DELETE FROM file_records")
		db.Exec("DELETE FROM analysis_results")
		db.Exec("DELETE FROM submissions")
	})
	return db
}

func TestSubmissionRepositoryTransitionStatusGuardsCurrentState(t *testing.T) {
	db := setupSubmissionDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	submission := models.Submission{PublicID: "abc123", UserID: 1, ProjectID: 2, Status: models.SubmissionStatusProcessing}
	require.NoError(t, repo.Create(ctx, &submission))

	applied, err := repo.TransitionStatus(ctx, submission.ID, models.SubmissionStatusProcessing, map[string]interface{}{
		"status":   models.SubmissionStatusFailed,
		"feedback": "timed out",
	})
	require.NoError(t, err)
	require.True(t, applied)

	// A second writer expecting the old state must lose.
	applied, err = repo.TransitionStatus(ctx, submission.ID, models.SubmissionStatusProcessing, map[string]interface{}{
		"status": models.SubmissionStatusPending,
		"score":  88.0,
	})
	require.NoError(t, err)
	require.False(t, applied)

	stored, err := repo.GetByID(ctx, submission.ID)
	require.NoError(t, err)
	require.Equal(t, models.SubmissionStatusFailed, stored.Status)
	require.Equal(t, "timed out", stored.Feedback)
	require.Nil(t, stored.Score)
}

func TestSubmissionRepositoryListFilters(t *testing.T) {
	db := setupSubmissionDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	first := models.Submission{PublicID: "s-1", UserID: 1, ProjectID: 10, Status: models.SubmissionStatusPending}
	second := models.Submission{PublicID: "s-2", UserID: 2, ProjectID: 10, Status: models.SubmissionStatusFailed}
	third := models.Submission{PublicID: "s-3", UserID: 1, ProjectID: 11, Status: models.SubmissionStatusPending}
	require.NoError(t, repo.Create(ctx, &first))
	require.NoError(t, repo.Create(ctx, &second))
	require.NoError(t, repo.Create(ctx, &third))

	projectID := uint(10)
	listed, err := repo.List(ctx, SubmissionFilter{ProjectID: &projectID})
	require.NoError(t, err)
	require.Len(t, listed, 2)

	status := models.SubmissionStatusPending
	listed, err = repo.List(ctx, SubmissionFilter{ProjectID: &projectID, Status: &status})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, "s-1", listed[0].PublicID)
}

func TestSubmissionRepositoryDeleteCascadesFiles(t *testing.T) {
	db := setupSubmissionDB(t)
	repo := NewSubmissionRepository(db)
	ctx := context.Background()

	submission := models.Submission{PublicID: "cascade", UserID: 3, ProjectID: 4, Status: models.SubmissionStatusPending}
	require.NoError(t, repo.Create(ctx, &submission))
	require.NoError(t, repo.SaveFileRecords(ctx, []models.FileRecord{
		{SubmissionID: submission.ID, Name: "main.py", Path: "/tmp/main.py", FileType: models.FileTypeBackend, Language: "Python"},
		{SubmissionID: submission.ID, Name: "index.html", Path: "/tmp/index.html", FileType: models.FileTypeWeb, Language: "HTML"},
	}))

	require.NoError(t, repo.Delete(ctx, submission.ID))

	_, err := repo.GetByID(ctx, submission.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	var remaining int64
	require.NoError(t, db.Model(&models.FileRecord{}).Where("submission_id = ?", submission.ID).Count(&remaining).Error)
	require.Zero(t, remaining)
}

func TestAnalysisResultRepositoryListBySubmission(t *testing.T) {
	db := setupSubmissionDB(t)
	repo := NewAnalysisResultRepository(db)
	ctx := context.Background()

	whole := models.AnalysisResult{SubmissionPublicID: "abc", ProjectID: 1, StudentID: 2, FileName: "project.zip", Score: 75, Status: models.SubmissionStatusPending}
	perFile := models.AnalysisResult{SubmissionPublicID: "abc", ProjectID: 1, StudentID: 2, FileName: "main.py", FileType: models.FileTypeBackend, Score: 60, Status: models.SubmissionStatusAnalyzed}
	other := models.AnalysisResult{SubmissionPublicID: "xyz", ProjectID: 1, StudentID: 3, FileName: "app.js", Score: 50, Status: models.SubmissionStatusAnalyzed}
	require.NoError(t, repo.Create(ctx, &whole))
	require.NoError(t, repo.Create(ctx, &perFile))
	require.NoError(t, repo.Create(ctx, &other))

	results, err := repo.ListBySubmission(ctx, "abc")
	require.NoError(t, err)
	require.Len(t, results, 2)

	require.NoError(t, repo.DeleteBySubmission(ctx, "abc"))
	results, err = repo.ListBySubmission(ctx, "abc")
	require.NoError(t, err)
	require.Empty(t, results)
}
