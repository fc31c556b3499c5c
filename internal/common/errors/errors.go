// Package errors provides standardized error handling for BPMN workflow integration.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Retrieval
	ErrCodeIndexUnavailable ErrorCode = "INDEX_UNAVAILABLE"
	ErrCodeEmbeddingFailed  ErrorCode = "EMBEDDING_FAILED"
	ErrCodeSearchTimeout    ErrorCode = "SEARCH_TIMEOUT"

	// Secondary search
	ErrCodeWebSearchFailed  ErrorCode = "WEB_SEARCH_FAILED"
	ErrCodeWebSearchTimeout ErrorCode = "WEB_SEARCH_TIMEOUT"
	ErrCodeCafeSearchFailed ErrorCode = "CAFE_SEARCH_FAILED"

	// Geocoding
	ErrCodeGeocodeNotFound ErrorCode = "GEOCODE_NOT_FOUND"
	ErrCodeGeocodeFailed   ErrorCode = "GEOCODE_FAILED"

	// Input / state
	ErrCodeMalformedInput        ErrorCode = "MALFORMED_INPUT"
	ErrCodeStateMiss             ErrorCode = "STATE_MISS"
	ErrCodeConversationIDMissing ErrorCode = "CONVERSATION_ID_MISSING"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func detailsOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewIndexUnavailableError reports that the facility index could not be queried.
// It is never retried: the conversation gets an apology instead of a fallback.
func NewIndexUnavailableError(err error) *StandardError {
	return newError(ErrCodeIndexUnavailable, "Facility index unavailable", detailsOf(err), false, err)
}

func NewEmbeddingFailedError(err error) *StandardError {
	return newError(ErrCodeEmbeddingFailed, "Query embedding failed", detailsOf(err), false, err)
}

func NewSearchTimeoutError(err error) *StandardError {
	return newError(ErrCodeSearchTimeout, "Facility search timeout", detailsOf(err), false, err)
}

func NewWebSearchFailedError(err error) *StandardError {
	return newError(ErrCodeWebSearchFailed, "Web search API error", detailsOf(err), false, err)
}

// NewWebSearchTimeoutError is treated as an empty result by the fallback chain.
func NewWebSearchTimeoutError(err error) *StandardError {
	return newError(ErrCodeWebSearchTimeout, "Web search API timeout", detailsOf(err), false, err)
}

func NewCafeSearchFailedError(err error) *StandardError {
	return newError(ErrCodeCafeSearchFailed, "Cafe search API error", detailsOf(err), false, err)
}

func NewGeocodeNotFoundError(place string) *StandardError {
	return newError(ErrCodeGeocodeNotFound, "No geocoding candidate matched", fmt.Sprintf("place: %s", place), false, nil)
}

// NewGeocodeFailedError wraps a transport failure from the geocoding API.
func NewGeocodeFailedError(err error) *StandardError {
	return newError(ErrCodeGeocodeFailed, "Geocoding API error", detailsOf(err), true, err)
}

func NewMalformedInputError(details string) *StandardError {
	return newError(ErrCodeMalformedInput, "Malformed job variables", details, false, nil)
}

func NewStateMissError(conversationID string) *StandardError {
	return newError(ErrCodeStateMiss, "No results to show", fmt.Sprintf("conversationId: %s", conversationID), false, nil)
}

func NewConversationIDMissingError() *StandardError {
	return newError(ErrCodeConversationIDMissing, "conversationId is required", "", false, nil)
}

// Generic constructors

func NewExternalServiceError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "EXTERNAL_SERVICE_ERROR",
		Message:   fmt.Sprintf("External service '%s' error", service),
		Details:   detailsOf(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewTimeoutError(service string, err error) *StandardError {
	return &StandardError{
		Code:      "TIMEOUT_ERROR",
		Message:   fmt.Sprintf("Service '%s' timeout", service),
		Details:   detailsOf(err),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal error codes to the error codes used in the BPMN models.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeIndexUnavailable:      "INDEX_UNAVAILABLE",
	ErrCodeEmbeddingFailed:       "INDEX_UNAVAILABLE",
	ErrCodeSearchTimeout:         "INDEX_UNAVAILABLE",
	ErrCodeWebSearchFailed:       "WEB_SEARCH_FAILED",
	ErrCodeWebSearchTimeout:      "WEB_SEARCH_FAILED",
	ErrCodeCafeSearchFailed:      "CAFE_SEARCH_FAILED",
	ErrCodeGeocodeNotFound:       "GEOCODE_NOT_FOUND",
	ErrCodeGeocodeFailed:         "GEOCODE_FAILED",
	ErrCodeMalformedInput:        "MALFORMED_INPUT",
	ErrCodeStateMiss:             "STATE_MISS",
	ErrCodeConversationIDMissing: "MALFORMED_INPUT",
}

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeGeocodeFailed, "EXTERNAL_SERVICE_ERROR":
		return 3
	case "TIMEOUT_ERROR":
		return 2
	default:
		// Index outages, malformed input and state misses are answered, not retried.
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandardError unwraps err to a StandardError if one is in its chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the StandardError code in err's chain, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := AsStandardError(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// IsTimeout reports whether err looks like a deadline or client timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline") ||
		strings.Contains(msg, "Client.Timeout")
}

// IsRetryableErrorCode checks if an error code is retryable.
func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "INDEX") || strings.Contains(codeStr, "EMBEDDING") || codeStr == string(ErrCodeSearchTimeout):
		return "RETRIEVAL"
	case strings.Contains(codeStr, "WEB") || strings.Contains(codeStr, "CAFE"):
		return "FALLBACK"
	case strings.Contains(codeStr, "GEOCODE"):
		return "GEOCODE"
	case strings.Contains(codeStr, "MALFORMED") || strings.Contains(codeStr, "MISSING"):
		return "VALIDATION"
	case strings.Contains(codeStr, "STATE"):
		return "CONVERSATION"
	default:
		return "OTHER"
	}
}
