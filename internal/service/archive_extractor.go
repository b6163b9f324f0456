package service

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nwaples/rardecode/v2"
	"github.com/rs/zerolog"
)

// Magic signatures checked before any extraction is attempted.
var (
	zipSignature = []byte{0x50, 0x4B, 0x03, 0x04}
	rarSignature = []byte("Rar!")
)

// ArchiveExtractor unpacks ZIP and RAR submissions into a working
// directory and normalizes the analysis root.
type ArchiveExtractor interface {
	Extract(archivePath, destinationDir string) (string, error)
}

type archiveExtractor struct {
	logger zerolog.Logger
}

// NewArchiveExtractor constructs the extractor.
func NewArchiveExtractor(logger zerolog.Logger) ArchiveExtractor {
	return &archiveExtractor{
		logger: logger.With().Str("component", "archive_extractor").Logger(),
	}
}

// Extract validates the archive signature, unpacks every entry into
// destinationDir and returns the effective analysis root. When the archive
// wraps a single top-level directory, that inner directory is the root.
// Failures are never retried here; the caller owns fallback decisions.
func (e *archiveExtractor) Extract(archivePath, destinationDir string) (string, error) {
	ext := strings.ToLower(filepath.Ext(archivePath))

	if err := e.validateSignature(archivePath, ext); err != nil {
		return "", err
	}

	if err := os.MkdirAll(destinationDir, 0o755); err != nil {
		return "", fmt.Errorf("create destination dir: %w", err)
	}

	var entries int
	var err error
	switch ext {
	case ".zip":
		entries, err = e.extractZip(archivePath, destinationDir)
	case ".rar":
		entries, err = e.extractRar(archivePath, destinationDir)
	}
	if err != nil {
		return "", err
	}

	if entries == 0 {
		return "", NewAnalysisError(ErrKindEmptyOrCorruptArchive, "archive contains no entries", nil)
	}

	root := e.effectiveRoot(destinationDir)
	e.logger.Debug().Str("archive", archivePath).Str("root", root).Int("entries", entries).Msg("archive extracted")

	return root, nil
}

func (e *archiveExtractor) validateSignature(archivePath, ext string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return NewAnalysisError(ErrKindEmptyOrCorruptArchive, "archive cannot be opened", err)
	}
	defer file.Close()

	header := make([]byte, 4)
	if _, err := io.ReadFull(file, header); err != nil {
		return NewAnalysisError(ErrKindInvalidArchiveSignature, "archive too small to carry a signature", err)
	}

	switch ext {
	case ".zip":
		if !bytes.Equal(header, zipSignature) {
			return NewAnalysisError(ErrKindInvalidArchiveSignature, "file does not carry the ZIP signature", nil)
		}
	case ".rar":
		if !bytes.Equal(header, rarSignature) {
			return NewAnalysisError(ErrKindInvalidArchiveSignature, "file does not carry the RAR signature", nil)
		}
	default:
		return NewAnalysisError(ErrKindInvalidArchiveSignature, fmt.Sprintf("unsupported archive extension %q", ext), nil)
	}

	return nil
}

func (e *archiveExtractor) extractZip(archivePath, destinationDir string) (int, error) {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return 0, NewAnalysisError(ErrKindEmptyOrCorruptArchive, "ZIP archive cannot be read", err)
	}
	defer reader.Close()

	if len(reader.File) == 0 {
		return 0, NewAnalysisError(ErrKindEmptyOrCorruptArchive, "ZIP archive contains no entries", nil)
	}

	entries := 0
	for _, entry := range reader.File {
		target, err := safeJoin(destinationDir, entry.Name)
		if err != nil {
			return entries, err
		}

		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return entries, fmt.Errorf("create dir %s: %w", entry.Name, err)
			}
			entries++
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return entries, fmt.Errorf("create parent dir for %s: %w", entry.Name, err)
		}

		source, err := entry.Open()
		if err != nil {
			return entries, NewAnalysisError(ErrKindEmptyOrCorruptArchive, fmt.Sprintf("ZIP entry %s cannot be opened", entry.Name), err)
		}

		if err := writeEntry(target, source); err != nil {
			source.Close()
			return entries, err
		}
		source.Close()
		entries++
	}

	return entries, nil
}

func (e *archiveExtractor) extractRar(archivePath, destinationDir string) (int, error) {
	reader, err := rardecode.OpenReader(archivePath)
	if err != nil {
		return 0, NewAnalysisError(ErrKindEmptyOrCorruptArchive, "RAR archive cannot be read", err)
	}
	defer reader.Close()

	entries := 0
	for {
		header, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return entries, NewAnalysisError(ErrKindEmptyOrCorruptArchive, "RAR archive is corrupt", err)
		}

		target, err := safeJoin(destinationDir, header.Name)
		if err != nil {
			return entries, err
		}

		if header.IsDir {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return entries, fmt.Errorf("create dir %s: %w", header.Name, err)
			}
			entries++
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return entries, fmt.Errorf("create parent dir for %s: %w", header.Name, err)
		}

		if err := writeEntry(target, reader); err != nil {
			return entries, err
		}
		entries++
	}

	return entries, nil
}

// effectiveRoot collapses the common "archive wraps a single project
// folder" layout so analysis starts at the real project root.
func (e *archiveExtractor) effectiveRoot(destinationDir string) string {
	entries, err := os.ReadDir(destinationDir)
	if err != nil || len(entries) != 1 {
		return destinationDir
	}
	if entries[0].IsDir() {
		return filepath.Join(destinationDir, entries[0].Name())
	}
	return destinationDir
}

func safeJoin(base, name string) (string, error) {
	target := filepath.Join(base, filepath.Clean("/"+name))
	if !strings.HasPrefix(target, filepath.Clean(base)+string(os.PathSeparator)) && target != filepath.Clean(base) {
		return "", NewAnalysisError(ErrKindEmptyOrCorruptArchive, fmt.Sprintf("entry %s escapes the extraction root", name), nil)
	}
	return target, nil
}

func writeEntry(target string, source io.Reader) error {
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create file %s: %w", target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, source); err != nil {
		return fmt.Errorf("write file %s: %w", target, err)
	}

	return nil
}
