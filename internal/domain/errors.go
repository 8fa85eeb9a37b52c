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

// Common domain error codes
const (
	ErrCodeValidation     = "VALIDATION_ERROR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeUnavailable    = "UNAVAILABLE"
	ErrCodeInvalidContent = "INVALID_CONTENT"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrEmptyMessage     = NewDomainError(ErrCodeValidation, "message cannot be empty")
	ErrInvalidChunkSize = NewDomainError(ErrCodeValidation, "chunk size must be a positive integer")
	ErrEmptyQuery       = NewDomainError(ErrCodeValidation, "query cannot be empty")
)

// Not found errors
var (
	ErrKnowledgeEntryNotFound = NewDomainError(ErrCodeNotFound, "knowledge entry not found")
	ErrConversationNotFound   = NewDomainError(ErrCodeNotFound, "conversation not found")
)

// Configuration errors
var (
	ErrProviderNotConfigured = NewDomainError(ErrCodeUnavailable, "AI provider is not configured")
)

// Content errors
var (
	ErrMissingFrontMatterField = NewDomainError(ErrCodeInvalidContent, "knowledge entry is missing a required field")
	ErrCategoryMismatch        = NewDomainError(ErrCodeInvalidContent, "knowledge entry category does not match its directory")
	ErrInvalidFrontMatter      = NewDomainError(ErrCodeInvalidContent, "knowledge entry front matter is invalid")
)

// Storage errors
var (
	ErrVectorSizeMismatch = NewDomainError(ErrCodeInternalError, "vector size mismatch")
	ErrEmbeddingCount     = NewDomainError(ErrCodeInternalError, "embedding provider returned the wrong number of vectors")
)
