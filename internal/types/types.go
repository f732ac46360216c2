// Package types defines core data types and enums shared across the
// arXiv translation pipeline.
package types

import "fmt"

// SourceType 源码类型枚举
type SourceType string

const (
	SourceTypeURL          SourceType = "url"
	SourceTypeArxivID      SourceType = "arxiv_id"
	SourceTypeLocalArchive SourceType = "local_archive"
	SourceTypeLocalDir     SourceType = "local_dir"
)

// SourceInfo 源码信息
type SourceInfo struct {
	SourceType  SourceType `json:"source_type"`
	OriginalRef string     `json:"original_ref"`
	ExtractDir  string     `json:"extract_dir"`
	MainTexFile string     `json:"main_tex_file"`
	AllTexFiles []string   `json:"all_tex_files"`
}

// UnitState is the processing state of a single translation unit.
// Transitions are driven exclusively by the pipeline state machine;
// StateFailed is terminal and reachable from any state.
type UnitState string

const (
	StatePending    UnitState = "pending"
	StateMasked     UnitState = "masked"
	StateTranslated UnitState = "translated"
	StateVerifying  UnitState = "verifying"
	StateVerified   UnitState = "verified"
	StateRepairing  UnitState = "repairing"
	StateUnmasked   UnitState = "unmasked"
	StateDone       UnitState = "done"
	StateFailed     UnitState = "failed"
)

// Terminal reports whether no further transition can leave the state.
func (s UnitState) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// TranslationResult 翻译结果
type TranslationResult struct {
	OriginalContent   string `json:"original_content"`
	TranslatedContent string `json:"translated_content"`
	TokensUsed        int    `json:"tokens_used"`
}

// CompileResult 编译结果
type CompileResult struct {
	Success  bool   `json:"success"`
	PDFPath  string `json:"pdf_path"`
	Log      string `json:"log"`
	ErrorMsg string `json:"error_msg,omitempty"`
}

// ErrorCode 错误代码枚举
type ErrorCode string

const (
	// ErrClassificationDegraded marks a unit whose span classification
	// hit malformed delimiters and fell back to protecting the tail of
	// the buffer. Non-fatal, logged only.
	ErrClassificationDegraded ErrorCode = "CLASSIFICATION_DEGRADED"
	// ErrTransientCollaborator is a retryable failure of an external
	// collaborator (translator, terminology builder, fixer).
	ErrTransientCollaborator ErrorCode = "TRANSIENT_COLLABORATOR"
	// ErrReconstruction indicates a placeholder/mapping mismatch during
	// unmasking. Always surfaced: it means content was silently lost.
	ErrReconstruction ErrorCode = "RECONSTRUCTION_ERROR"
	// ErrRepairExhausted is the terminal unit failure after the bounded
	// repair loop ran out of attempts.
	ErrRepairExhausted ErrorCode = "REPAIR_EXHAUSTED"
	// ErrCycleTruncated is informational: an inclusion cycle was broken
	// at the second visit of a file.
	ErrCycleTruncated ErrorCode = "CYCLE_TRUNCATED"
	// ErrMissingInclude marks an inclusion directive whose target does
	// not exist; the unit is excluded, the run continues.
	ErrMissingInclude ErrorCode = "MISSING_INCLUDE"

	ErrNetwork      ErrorCode = "NETWORK_ERROR"
	ErrDownload     ErrorCode = "DOWNLOAD_ERROR"
	ErrExtract      ErrorCode = "EXTRACT_ERROR"
	ErrFileNotFound ErrorCode = "FILE_NOT_FOUND"
	ErrInvalidInput ErrorCode = "INVALID_INPUT"
	ErrAPICall      ErrorCode = "API_CALL_ERROR"
	ErrAPIRateLimit ErrorCode = "API_RATE_LIMIT"
	ErrCompile      ErrorCode = "COMPILE_ERROR"
	ErrConfig       ErrorCode = "CONFIG_ERROR"
	ErrInternal     ErrorCode = "INTERNAL_ERROR"
	ErrTranslation  ErrorCode = "TRANSLATION_ERROR"
)

// AppError 应用错误
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	Cause   error     `json:"-"`
}

// Error implements the error interface for AppError
func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new AppError with the given code, message, and optional cause
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewAppErrorWithDetails creates a new AppError with details
func NewAppErrorWithDetails(code ErrorCode, message, details string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Details: details,
		Cause:   cause,
	}
}

// CodeOf extracts the ErrorCode from err, or ErrInternal when err is
// not an AppError.
func CodeOf(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrInternal
}

// IsTransient reports whether an error should be retried with backoff.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case ErrTransientCollaborator, ErrNetwork, ErrAPIRateLimit:
		return true
	}
	return false
}
