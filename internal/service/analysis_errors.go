package service

import (
	"errors"
	"fmt"
)

// AnalysisErrorKind discriminates pipeline failures so callers classify by
// kind instead of sniffing message substrings.
type AnalysisErrorKind string

// Pipeline failure kinds.
const (
	ErrKindInvalidArchiveSignature AnalysisErrorKind = "invalid_archive_signature"
	ErrKindEmptyOrCorruptArchive   AnalysisErrorKind = "empty_or_corrupt_archive"
	ErrKindScannerInvocationFailed AnalysisErrorKind = "scanner_invocation_failed"
	ErrKindMetricsRetrievalFailed  AnalysisErrorKind = "metrics_retrieval_failed"
	ErrKindLocalAnalysisFailed     AnalysisErrorKind = "local_analysis_failed"
	ErrKindEngineTimeout           AnalysisErrorKind = "engine_timeout"
)

// AnalysisError is the typed error surfaced by the extraction and analysis
// pipeline. Kind is set at the throw site.
type AnalysisError struct {
	Kind    AnalysisErrorKind
	Message string
	Err     error
}

func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// NewAnalysisError builds a typed pipeline error.
func NewAnalysisError(kind AnalysisErrorKind, message string, cause error) *AnalysisError {
	return &AnalysisError{Kind: kind, Message: message, Err: cause}
}

// AnalysisErrorKindOf returns the kind carried by err, or an empty kind
// when err is not an AnalysisError.
func AnalysisErrorKindOf(err error) AnalysisErrorKind {
	var analysisErr *AnalysisError
	if errors.As(err, &analysisErr) {
		return analysisErr.Kind
	}
	return ""
}
