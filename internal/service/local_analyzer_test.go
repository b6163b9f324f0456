package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestLocalAnalyzerProducesEngineMetricKeys(t *testing.T) {
	root := t.TempDir()
	source := `# entry point
def main():
    if True:
        for i in range(10):
            print(i)

# TODO: handle the empty input case
def helper():
    while False:
        pass
`
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.py"), []byte(source), 0o644))

	analyzer := NewLocalAnalyzer(zerolog.Nop())
	metrics, err := analyzer.AnalyzeCode(context.Background(), root)
	require.NoError(t, err)

	for _, key := range []string{
		MetricBugs, MetricVulnerabilities, MetricCodeSmells, MetricCoverage,
		MetricDuplication, MetricReliabilityRating, MetricSecurityRating,
		MetricMaintainabilityRating, MetricComplexity, MetricLinesOfCode,
		MetricCommentDensity,
	} {
		require.Contains(t, metrics, key)
	}

	require.Equal(t, 1.0, metrics[MetricReliabilityRating])
	require.Equal(t, 1.0, metrics[MetricSecurityRating])
	require.Greater(t, metrics[MetricLinesOfCode], 0.0)
	require.Greater(t, metrics[MetricComplexity], 0.0, "branch tokens should register")
	require.GreaterOrEqual(t, metrics[MetricCodeSmells], 1.0, "the TODO marker should register")
	require.Greater(t, metrics[MetricCommentDensity], 0.0)
}

func TestLocalAnalyzerSingleFile(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "app.js")
	require.NoError(t, os.WriteFile(path, []byte("function f(a) {\n  if (a) { return 1; }\n  return 0;\n}\n"), 0o644))

	analyzer := NewLocalAnalyzer(zerolog.Nop())
	metrics, err := analyzer.AnalyzeCode(context.Background(), path)
	require.NoError(t, err)
	require.Greater(t, metrics[MetricLinesOfCode], 0.0)
}

func TestLocalAnalyzerRejectsTreesWithoutSources(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "logo.png"), []byte("binary"), 0o644))

	analyzer := NewLocalAnalyzer(zerolog.Nop())
	_, err := analyzer.AnalyzeCode(context.Background(), root)
	require.Error(t, err)
	require.Equal(t, ErrKindLocalAnalysisFailed, AnalysisErrorKindOf(err))
}

func TestLocalAnalyzerMissingPath(t *testing.T) {
	analyzer := NewLocalAnalyzer(zerolog.Nop())
	_, err := analyzer.AnalyzeCode(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	require.Equal(t, ErrKindLocalAnalysisFailed, AnalysisErrorKindOf(err))
}
