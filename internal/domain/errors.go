package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes. Conflicts are expected and translated into the
// DUPLICATE success path by the preparer; transient infrastructure and
// analysis errors are retried, validation errors are not.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeIllegalTransition = "ILLEGAL_TRANSITION"
	ErrCodeTransientInfra    = "TRANSIENT_INFRA"
	ErrCodeAnalysis          = "ANALYSIS_ERROR"
	ErrCodeInternalError     = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrEmptyUpload        = NewDomainError(ErrCodeValidation, "uploaded file is empty")
	ErrInvalidEnvironment = NewDomainError(ErrCodeValidation, "invalid environment")
	ErrInvalidJobStatus   = NewDomainError(ErrCodeValidation, "invalid job status")
	ErrMissingTenant      = NewDomainError(ErrCodeValidation, "tenant id is required")
)

// Not found errors
var (
	ErrAssetNotFound = NewDomainError(ErrCodeNotFound, "knowledge asset not found")
	ErrBlobNotFound  = NewDomainError(ErrCodeNotFound, "physical blob not found")
	ErrJobNotFound   = NewDomainError(ErrCodeNotFound, "ingest job not found")
)

// Conflict errors
var (
	ErrAssetAlreadyExists = NewDomainError(ErrCodeConflict, "knowledge asset already exists for this content")
)

// Operation errors
var (
	ErrJobNotRetryable = NewDomainError(ErrCodeValidation, "only failed jobs can be retried")
	ErrJobStillRunning = NewDomainError(ErrCodeValidation, "cannot delete a running job")
)
