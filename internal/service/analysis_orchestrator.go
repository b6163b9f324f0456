package service

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/codegrade-labs/codegrade-api/internal/models"
	"github.com/codegrade-labs/codegrade-api/internal/observability"
	dockerexec "github.com/codegrade-labs/codegrade-api/pkg/docker"
	"github.com/codegrade-labs/codegrade-api/pkg/sonar"
)

// AnalysisRequest identifies the subject of one analysis run.
type AnalysisRequest struct {
	SourcePath    string
	SubmissionID  string
	UserID        uint
	ProjectID     uint
	DisplayName   string
	AllowFallback bool
}

// AnalysisOutcome is the terminal result of the orchestration pipeline.
type AnalysisOutcome struct {
	Metrics    map[string]float64
	RawMetrics map[string]string
	ProjectKey string
	Score      ScoreResult
	Source     string
}

// OrchestratorConfig carries the retry and timing knobs for the pipeline.
type OrchestratorConfig struct {
	ScannerImage   string
	ScannerTimeout time.Duration
	ScannerRetries int
	ScannerBackoff time.Duration
	MetricsRetries int
	MetricsBackoff time.Duration
	SettleInterval time.Duration
	WorkRoot       string
	ServerURL      string
	Token          string
	Organization   string
}

// AnalysisOrchestrator drives the external static-analysis engine end to
// end, with a local analyzer and placeholder metrics as fallbacks.
type AnalysisOrchestrator interface {
	Analyze(ctx context.Context, req AnalysisRequest) (AnalysisOutcome, error)
}

type analysisOrchestrator struct {
	extractor ArchiveExtractor
	executor  dockerexec.Executor
	measures  sonar.MeasuresClient
	local     LocalAnalyzer
	scores    *ScoreEngine
	cfg       OrchestratorConfig
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewAnalysisOrchestrator wires the pipeline stages together.
func NewAnalysisOrchestrator(extractor ArchiveExtractor, executor dockerexec.Executor, measures sonar.MeasuresClient, local LocalAnalyzer, scores *ScoreEngine, cfg OrchestratorConfig, logger zerolog.Logger) AnalysisOrchestrator {
	if cfg.ScannerImage == "" {
		cfg.ScannerImage = "sonarsource/sonar-scanner-cli:latest"
	}
	if cfg.ScannerTimeout <= 0 {
		cfg.ScannerTimeout = 60 * time.Second
	}
	if cfg.ScannerRetries <= 0 {
		cfg.ScannerRetries = 3
	}
	if cfg.ScannerBackoff <= 0 {
		cfg.ScannerBackoff = 2 * time.Second
	}
	if cfg.MetricsRetries <= 0 {
		cfg.MetricsRetries = 3
	}
	if cfg.MetricsBackoff <= 0 {
		cfg.MetricsBackoff = time.Second
	}
	if cfg.SettleInterval <= 0 {
		cfg.SettleInterval = 5 * time.Second
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = os.TempDir()
	}

	return &analysisOrchestrator{
		extractor: extractor,
		executor:  executor,
		measures:  measures,
		local:     local,
		scores:    scores,
		cfg:       cfg,
		logger:    logger.With().Str("component", "analysis_orchestrator").Logger(),
		tracer:    otel.Tracer("github.com/codegrade-labs/codegrade-api/internal/service/analysis"),
	}
}

// Analyze runs the full pipeline for one subject. Exactly one of remote
// success, local-fallback success or placeholder fallback is the terminal
// outcome when fallback is allowed; otherwise the first failure
// propagates unchanged.
func (o *analysisOrchestrator) Analyze(ctx context.Context, req AnalysisRequest) (AnalysisOutcome, error) {
	ctx, span := o.tracer.Start(ctx, "analysis.orchestrate", trace.WithAttributes(
		attribute.String("submission.id", req.SubmissionID),
		attribute.Bool("analysis.allow_fallback", req.AllowFallback),
	))
	defer span.End()

	start := time.Now()

	outcome, err := o.analyzeRemote(ctx, req)
	if err == nil {
		span.SetStatus(codes.Ok, "remote analysis succeeded")
		observability.AnalysisRuns().WithLabelValues(outcome.Source).Inc()
		observability.AnalysisDuration().WithLabelValues(outcome.Source).Observe(time.Since(start).Seconds())
		return outcome, nil
	}

	span.RecordError(err)

	if !req.AllowFallback {
		span.SetStatus(codes.Error, "remote analysis failed")
		return AnalysisOutcome{}, err
	}

	observability.AnalysisFallbacks().WithLabelValues(string(AnalysisErrorKindOf(err))).Inc()
	o.logger.Warn().Err(err).Str("submission_id", req.SubmissionID).Msg("remote analysis failed, trying local analyzer")

	outcome, localErr := o.analyzeLocal(ctx, req)
	if localErr == nil {
		span.SetStatus(codes.Ok, "local analysis succeeded")
		observability.AnalysisRuns().WithLabelValues(outcome.Source).Inc()
		observability.AnalysisDuration().WithLabelValues(outcome.Source).Observe(time.Since(start).Seconds())
		return outcome, nil
	}

	observability.AnalysisFallbacks().WithLabelValues(string(ErrKindLocalAnalysisFailed)).Inc()
	o.logger.Warn().Err(localErr).Str("submission_id", req.SubmissionID).Msg("local analysis failed, using placeholder metrics")

	outcome = o.placeholderOutcome(req)
	span.SetStatus(codes.Ok, "placeholder fallback")
	observability.AnalysisRuns().WithLabelValues(outcome.Source).Inc()
	observability.AnalysisDuration().WithLabelValues(outcome.Source).Observe(time.Since(start).Seconds())

	return outcome, nil
}

// analyzeRemote performs stages 1-6: resolve the source, prepare the
// workspace, invoke the scanner, settle, query measures, score.
func (o *analysisOrchestrator) analyzeRemote(ctx context.Context, req AnalysisRequest) (AnalysisOutcome, error) {
	analysisPath, extractionDir, err := o.resolveSource(req)
	if extractionDir != "" {
		defer o.cleanup(extractionDir)
	}
	if err != nil {
		return AnalysisOutcome{}, err
	}

	projectKey := BuildProjectKey(req.UserID, req.ProjectID, req.SubmissionID)

	workspace, err := o.prepareWorkspace(analysisPath, projectKey, req.DisplayName)
	if workspace != "" {
		defer o.cleanup(workspace)
	}
	if err != nil {
		return AnalysisOutcome{}, NewAnalysisError(ErrKindScannerInvocationFailed, "workspace preparation failed", err)
	}

	if err := o.invokeScanner(ctx, workspace); err != nil {
		return AnalysisOutcome{}, err
	}

	// The engine computes measures asynchronously server-side.
	if err := sleepCtx(ctx, o.cfg.SettleInterval); err != nil {
		return AnalysisOutcome{}, NewAnalysisError(ErrKindMetricsRetrievalFailed, "interrupted while waiting for measures", err)
	}

	raw, err := o.fetchMeasures(ctx, projectKey)
	if err != nil {
		return AnalysisOutcome{}, err
	}

	metrics := parseMetrics(raw)
	score := o.scores.Score(metrics)

	return AnalysisOutcome{
		Metrics:    metrics,
		RawMetrics: raw,
		ProjectKey: projectKey,
		Score:      score,
		Source:     models.AnalysisSourceSonarCloud,
	}, nil
}

func (o *analysisOrchestrator) analyzeLocal(ctx context.Context, req AnalysisRequest) (AnalysisOutcome, error) {
	if o.local == nil {
		return AnalysisOutcome{}, NewAnalysisError(ErrKindLocalAnalysisFailed, "no local analyzer configured", nil)
	}

	metrics, err := o.local.AnalyzeCode(ctx, req.SourcePath)
	if err != nil {
		return AnalysisOutcome{}, err
	}

	return AnalysisOutcome{
		Metrics:    metrics,
		RawMetrics: stringifyMetrics(metrics),
		ProjectKey: BuildProjectKey(req.UserID, req.ProjectID, req.SubmissionID),
		Score:      o.scores.Score(metrics),
		Source:     models.AnalysisSourceLocalAnalyzer,
	}, nil
}

func (o *analysisOrchestrator) placeholderOutcome(req AnalysisRequest) AnalysisOutcome {
	metrics := DefaultMetrics()
	return AnalysisOutcome{
		Metrics:    metrics,
		RawMetrics: stringifyMetrics(metrics),
		ProjectKey: BuildProjectKey(req.UserID, req.ProjectID, req.SubmissionID),
		Score:      o.scores.Score(metrics),
		Source:     models.AnalysisSourceDefaultFallback,
	}
}

// resolveSource extracts archives into a fresh directory; plain files and
// directories pass through unchanged.
func (o *analysisOrchestrator) resolveSource(req AnalysisRequest) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(req.SourcePath))
	if ext != ".zip" && ext != ".rar" {
		return req.SourcePath, "", nil
	}

	extractionDir := filepath.Join(o.cfg.WorkRoot, "extract-"+req.SubmissionID)
	root, err := o.extractor.Extract(req.SourcePath, extractionDir)
	if err != nil {
		return "", extractionDir, err
	}
	return root, extractionDir, nil
}

// prepareWorkspace copies the analysis subject into an isolated directory
// and materializes the project descriptor so the scanner can run without
// version-control metadata.
func (o *analysisOrchestrator) prepareWorkspace(analysisPath, projectKey, displayName string) (string, error) {
	workspace := filepath.Join(o.cfg.WorkRoot, "workspace-"+projectKey)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return "", err
	}

	info, err := os.Stat(analysisPath)
	if err != nil {
		return workspace, err
	}

	if info.IsDir() {
		if err := copyTree(analysisPath, workspace); err != nil {
			return workspace, err
		}
	} else {
		if err := copyFile(analysisPath, filepath.Join(workspace, filepath.Base(analysisPath))); err != nil {
			return workspace, err
		}
	}

	properties := sonar.Properties{
		ProjectKey:   projectKey,
		ProjectName:  displayName,
		Organization: o.cfg.Organization,
		ServerURL:    o.cfg.ServerURL,
		Sources:      ".",
	}
	if err := os.WriteFile(filepath.Join(workspace, "sonar-project.properties"), []byte(properties.Render()), 0o644); err != nil {
		return workspace, err
	}

	return workspace, nil
}

// invokeScanner runs the scanner CLI with a linear-backoff retry budget.
// Each attempt is bounded by its own hard timeout.
func (o *analysisOrchestrator) invokeScanner(ctx context.Context, workspace string) error {
	var lastErr error
	for attempt := 1; attempt <= o.cfg.ScannerRetries; attempt++ {
		result, err := o.executor.Run(ctx, dockerexec.RunRequest{
			Image:      o.cfg.ScannerImage,
			Timeout:    o.cfg.ScannerTimeout,
			Workspace:  workspace,
			WorkingDir: "/usr/src",
			Env: []string{
				"SONAR_HOST_URL=" + o.cfg.ServerURL,
				"SONAR_TOKEN=" + o.cfg.Token,
			},
		})

		switch {
		case err == nil && result.ExitCode == 0:
			return nil
		case result.TimedOut:
			lastErr = NewAnalysisError(ErrKindEngineTimeout, fmt.Sprintf("scanner attempt %d timed out", attempt), err)
		case err != nil:
			lastErr = NewAnalysisError(ErrKindScannerInvocationFailed, fmt.Sprintf("scanner attempt %d failed", attempt), err)
		default:
			lastErr = NewAnalysisError(ErrKindScannerInvocationFailed, fmt.Sprintf("scanner attempt %d exited with code %d", attempt, result.ExitCode), nil)
		}

		o.logger.Warn().Err(lastErr).Int("attempt", attempt).Msg("scanner invocation failed")

		if attempt < o.cfg.ScannerRetries {
			if err := sleepCtx(ctx, time.Duration(attempt)*o.cfg.ScannerBackoff); err != nil {
				return NewAnalysisError(ErrKindScannerInvocationFailed, "retry interrupted", err)
			}
		}
	}

	return lastErr
}

// fetchMeasures queries the measurement API with its own retry budget,
// independent of the scanner retries.
func (o *analysisOrchestrator) fetchMeasures(ctx context.Context, projectKey string) (map[string]string, error) {
	var lastErr error
	for attempt := 1; attempt <= o.cfg.MetricsRetries; attempt++ {
		measures, err := o.measures.FetchMeasures(ctx, projectKey)
		if err == nil {
			return measures, nil
		}

		lastErr = err
		o.logger.Warn().Err(err).Int("attempt", attempt).Str("project_key", projectKey).Msg("measures query failed")

		if attempt < o.cfg.MetricsRetries {
			if err := sleepCtx(ctx, time.Duration(attempt)*o.cfg.MetricsBackoff); err != nil {
				break
			}
		}
	}

	return nil, NewAnalysisError(ErrKindMetricsRetrievalFailed, "measures query retries exhausted", lastErr)
}

// cleanup removes a working directory. Failures are logged, never
// re-raised; a second call on an already-removed directory is a no-op.
func (o *analysisOrchestrator) cleanup(dir string) {
	if dir == "" {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		o.logger.Error().Err(err).Str("dir", dir).Msg("workspace cleanup failed")
	}
}

// BuildProjectKey produces an engine-safe key from the identifiers by
// stripping everything outside [A-Za-z0-9_].
func BuildProjectKey(userID, projectID uint, submissionID string) string {
	parts := []string{
		strconv.FormatUint(uint64(userID), 10),
		strconv.FormatUint(uint64(projectID), 10),
		submissionID,
	}
	for i, part := range parts {
		parts[i] = strings.Map(func(r rune) rune {
			if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
				return r
			}
			return -1
		}, part)
	}
	return strings.Join(parts, "_")
}

// DefaultMetrics is the placeholder set used when every analyzer failed.
func DefaultMetrics() map[string]float64 {
	return map[string]float64{
		MetricBugs:                  0,
		MetricVulnerabilities:       0,
		MetricCodeSmells:            0,
		MetricCoverage:              0,
		MetricDuplication:           0,
		MetricReliabilityRating:     1,
		MetricSecurityRating:        1,
		MetricMaintainabilityRating: 1,
		MetricComplexity:            0,
		MetricLinesOfCode:           0,
		MetricCommentDensity:        0,
	}
}

func parseMetrics(raw map[string]string) map[string]float64 {
	metrics := make(map[string]float64, len(raw))
	for key, value := range raw {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			continue
		}
		metrics[key] = parsed
	}
	return metrics
}

func stringifyMetrics(metrics map[string]float64) map[string]string {
	raw := make(map[string]string, len(metrics))
	for key, value := range metrics {
		raw[key] = strconv.FormatFloat(value, 'f', -1, 64)
	}
	return raw
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relative, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, relative)
		if entry.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
