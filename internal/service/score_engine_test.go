package service

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func fixedRng(value float64) func() float64 {
	return func() float64 { return value }
}

func TestScoreEngineMetricBreakdown(t *testing.T) {
	engine := &ScoreEngine{rng: fixedRng(0.5)}

	metrics := map[string]float64{
		MetricBugs:                  2,
		MetricVulnerabilities:       1,
		MetricCodeSmells:            5,
		MetricDuplication:           4,
		MetricReliabilityRating:     3,
		MetricSecurityRating:        2,
		MetricMaintainabilityRating: 1,
		MetricComplexity:            10,
		MetricLinesOfCode:           500,
		MetricCommentDensity:        20,
	}

	result := engine.Score(metrics)

	// correctness: (30 - 2*5) * (6-3)/5 = 12
	require.Equal(t, 12.0, result.Breakdown.Correctness)
	// security: (20 - 1*7) * (6-2)/5 = 10.4 -> 10
	require.Equal(t, 10.0, result.Breakdown.Security)
	// maintainability: (20 - 5*0.8) * 1 = 16
	require.Equal(t, 16.0, result.Breakdown.Maintainability)
	// documentation: 15 * 20/40 = 7.5 -> 8
	require.Equal(t, 8.0, result.Breakdown.Documentation)
	// clean code: 10 - 4*0.5 = 8
	require.Equal(t, 8.0, result.Breakdown.CleanCode)
	// simplicity: 5 - 50*10/500 = 4
	require.Equal(t, 4.0, result.Breakdown.Simplicity)

	// rng 0.5 makes the final jitter zero.
	require.Equal(t, result.Breakdown.Sum(), result.Total)
}

func TestScoreEngineMoreBugsNeverScoreHigher(t *testing.T) {
	engine := &ScoreEngine{rng: fixedRng(0.5)}

	base := map[string]float64{
		MetricBugs:              0,
		MetricReliabilityRating: 2,
		MetricLinesOfCode:       100,
		MetricCommentDensity:    10,
	}

	previous := engine.Score(base).Total
	for bugs := 1.0; bugs <= 10; bugs++ {
		base[MetricBugs] = bugs
		current := engine.Score(base).Total
		require.LessOrEqual(t, current, previous, "bugs=%v", bugs)
		previous = current
	}
}

func TestScoreEngineBounds(t *testing.T) {
	engine := &ScoreEngine{rng: fixedRng(1)}

	worst := map[string]float64{
		MetricBugs:                  1000,
		MetricVulnerabilities:       1000,
		MetricCodeSmells:            1000,
		MetricDuplication:           100,
		MetricReliabilityRating:     5,
		MetricSecurityRating:        5,
		MetricMaintainabilityRating: 5,
		MetricComplexity:            10000,
		MetricLinesOfCode:           10,
		MetricCommentDensity:        100,
	}
	result := engine.Score(worst)
	require.GreaterOrEqual(t, result.Total, 0.0)
	require.LessOrEqual(t, result.Total, 100.0)

	best := map[string]float64{
		MetricBugs:                  0,
		MetricVulnerabilities:       0,
		MetricCodeSmells:            0,
		MetricDuplication:           0,
		MetricReliabilityRating:     1,
		MetricSecurityRating:        1,
		MetricMaintainabilityRating: 1,
		MetricComplexity:            1,
		MetricLinesOfCode:           1000,
		MetricCommentDensity:        40,
	}
	result = engine.Score(best)
	require.LessOrEqual(t, result.Total, 100.0)
	require.Equal(t, 30.0, result.Breakdown.Correctness)
	require.Equal(t, 20.0, result.Breakdown.Security)
	require.Equal(t, 15.0, result.Breakdown.Documentation)
}

func TestScoreEnginePlaceholderBand(t *testing.T) {
	engine := &ScoreEngine{rng: fixedRng(0.5)}

	result := engine.Score(DefaultMetrics())

	// rng 0.5 lands the banded total at round(45 + 15) = 60.
	require.Equal(t, 60.0, result.Total)
	require.Equal(t, result.Total, result.Breakdown.Sum())

	// Per-dimension values scale with the caps and stay within them.
	require.LessOrEqual(t, result.Breakdown.Correctness, 30.0)
	require.LessOrEqual(t, result.Breakdown.Security, 20.0)
	require.LessOrEqual(t, result.Breakdown.Simplicity, 5.0)
}

func TestScoreEnginePlaceholderStaysInBand(t *testing.T) {
	for _, rng := range []float64{0, 0.1, 0.33, 0.77, 0.999} {
		engine := &ScoreEngine{rng: fixedRng(rng)}
		result := engine.Score(DefaultMetrics())
		require.GreaterOrEqual(t, result.Total, 40.0, "rng=%v", rng)
		require.LessOrEqual(t, result.Total, 80.0, "rng=%v", rng)
		require.Equal(t, result.Total, result.Breakdown.Sum(), "rng=%v", rng)
	}
}

func TestScoreEnginePlaceholderBandHoldsAcrossSeededRuns(t *testing.T) {
	source := rand.New(rand.NewSource(42))
	engine := &ScoreEngine{rng: source.Float64}

	totals := map[float64]struct{}{}
	for i := 0; i < 200; i++ {
		result := engine.Score(DefaultMetrics())
		require.GreaterOrEqual(t, result.Total, 40.0, "run %d", i)
		require.LessOrEqual(t, result.Total, 80.0, "run %d", i)
		require.Equal(t, result.Total, result.Breakdown.Sum(), "run %d", i)
		totals[result.Total] = struct{}{}
	}

	// The band is sampled, not a constant.
	require.GreaterOrEqual(t, len(totals), 2)
}

func TestScoreEngineRealMetricsAreNotPlaceholder(t *testing.T) {
	metrics := DefaultMetrics()
	metrics[MetricLinesOfCode] = 120

	require.False(t, isPlaceholder(metrics))
	require.True(t, isPlaceholder(DefaultMetrics()))
}
