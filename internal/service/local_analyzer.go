package service

import (
	"bufio"
	"context"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/codegrade-labs/codegrade-api/internal/models"
)

// LocalAnalyzer computes quality metrics without the remote engine. It is
// the first rung of the fallback ladder and only has to approximate the
// remote metric set, not reproduce it.
type LocalAnalyzer interface {
	AnalyzeCode(ctx context.Context, path string) (map[string]float64, error)
}

type localAnalyzer struct {
	logger zerolog.Logger
}

// NewLocalAnalyzer constructs the heuristic analyzer.
func NewLocalAnalyzer(logger zerolog.Logger) LocalAnalyzer {
	return &localAnalyzer{
		logger: logger.With().Str("component", "local_analyzer").Logger(),
	}
}

var branchTokens = []string{"if ", "if(", "for ", "for(", "while ", "while(", "case ", "catch ", "catch(", "&&", "||", "elif ", "else if"}

var smellTokens = []string{"TODO", "FIXME", "HACK", "XXX"}

// AnalyzeCode walks path (a directory or single file) and derives the
// engine metric keys from lexical heuristics: branch tokens approximate
// cyclomatic complexity, repeated lines approximate duplication, and
// smell markers plus overlong lines approximate code smells.
func (a *localAnalyzer) AnalyzeCode(ctx context.Context, path string) (map[string]float64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, NewAnalysisError(ErrKindLocalAnalysisFailed, "analysis path cannot be read", err)
	}

	var files []string
	if info.IsDir() {
		walkErr := filepath.WalkDir(path, func(p string, entry fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if entry.Type().IsRegular() && isAnalyzableSource(p) {
				files = append(files, p)
			}
			return nil
		})
		if walkErr != nil {
			return nil, NewAnalysisError(ErrKindLocalAnalysisFailed, "source walk failed", walkErr)
		}
	} else if isAnalyzableSource(path) {
		files = append(files, path)
	}

	if len(files) == 0 {
		return nil, NewAnalysisError(ErrKindLocalAnalysisFailed, "no analyzable source files found", nil)
	}

	var totalLines, commentLines, blankLines, branchCount, smellCount, longLines, duplicateLines float64
	seen := map[string]int{}

	for _, file := range files {
		if err := a.accumulate(file, seen, &totalLines, &commentLines, &blankLines, &branchCount, &smellCount, &longLines, &duplicateLines); err != nil {
			a.logger.Warn().Err(err).Str("file", file).Msg("skipping unreadable source file")
		}
	}

	codeLines := totalLines - blankLines
	if codeLines <= 0 {
		return nil, NewAnalysisError(ErrKindLocalAnalysisFailed, "source contains no code lines", nil)
	}

	commentDensity := 100 * commentLines / codeLines
	duplicationDensity := 100 * duplicateLines / codeLines
	codeSmells := smellCount + math.Floor(longLines/10)

	metrics := map[string]float64{
		MetricBugs:                  0,
		MetricVulnerabilities:       0,
		MetricCodeSmells:            codeSmells,
		MetricCoverage:              0,
		MetricDuplication:           math.Round(duplicationDensity*10) / 10,
		MetricReliabilityRating:     1,
		MetricSecurityRating:        1,
		MetricMaintainabilityRating: maintainabilityRating(codeSmells, codeLines),
		MetricComplexity:            branchCount,
		MetricLinesOfCode:           codeLines,
		MetricCommentDensity:        math.Round(commentDensity*10) / 10,
	}

	a.logger.Info().Int("files", len(files)).Float64("ncloc", codeLines).Msg("local analysis complete")

	return metrics, nil
}

func (a *localAnalyzer) accumulate(file string, seen map[string]int, totalLines, commentLines, blankLines, branchCount, smellCount, longLines, duplicateLines *float64) error {
	handle, err := os.Open(file)
	if err != nil {
		return err
	}
	defer handle.Close()

	inBlockComment := false
	scanner := bufio.NewScanner(handle)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		*totalLines++

		if trimmed == "" {
			*blankLines++
			continue
		}

		if inBlockComment {
			*commentLines++
			if strings.Contains(trimmed, "*/") {
				inBlockComment = false
			}
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "//"), strings.HasPrefix(trimmed, "#"), strings.HasPrefix(trimmed, "*"), strings.HasPrefix(trimmed, "--"):
			*commentLines++
		case strings.HasPrefix(trimmed, "/*"):
			*commentLines++
			if !strings.Contains(trimmed, "*/") {
				inBlockComment = true
			}
		default:
			for _, token := range branchTokens {
				*branchCount += float64(strings.Count(trimmed, token))
			}
			if len(line) > 120 {
				*longLines++
			}
			seen[trimmed]++
			if seen[trimmed] > 1 && len(trimmed) > 20 {
				*duplicateLines++
			}
		}

		upper := strings.ToUpper(trimmed)
		for _, token := range smellTokens {
			if strings.Contains(upper, token) {
				*smellCount++
				break
			}
		}
	}

	return scanner.Err()
}

func isAnalyzableSource(path string) bool {
	switch ClassifyExtension(filepath.Ext(path)).FileType {
	case models.FileTypeWeb, models.FileTypeBackend, models.FileTypeConfiguration, models.FileTypeDatabase:
		return true
	default:
		return false
	}
}

func maintainabilityRating(codeSmells, codeLines float64) float64 {
	density := codeSmells / codeLines * 1000
	switch {
	case density <= 5:
		return 1
	case density <= 10:
		return 2
	case density <= 20:
		return 3
	case density <= 50:
		return 4
	default:
		return 5
	}
}
