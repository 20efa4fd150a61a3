// Package errors provides the standardized error model shared by the dispatch
// engine and the Zeebe job workers.
package errors

import (
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

// Dispatch taxonomy
const (
	ErrCodeNotFound               ErrorCode = "NOT_FOUND"
	ErrCodeUnsupportedChannelKind ErrorCode = "UNSUPPORTED_CHANNEL_KIND"
	ErrCodeStorage                ErrorCode = "STORAGE_ERROR"
	ErrCodeDeliveryTimeout        ErrorCode = "DELIVERY_TIMEOUT"
	ErrCodeDeliveryFailed         ErrorCode = "DELIVERY_FAILED"
	ErrCodeSubscriberLookupFailed ErrorCode = "SUBSCRIBER_LOOKUP_FAILED"
)

// Infrastructure and input errors
const (
	ErrCodeInvalidInput             ErrorCode = "INVALID_INPUT"
	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeSearchQueryFailed        ErrorCode = "SEARCH_QUERY_FAILED"
	ErrCodeSearchTimeout            ErrorCode = "SEARCH_TIMEOUT"
	ErrCodeIndexNotFound            ErrorCode = "INDEX_NOT_FOUND"
	ErrCodeEventPublishFailed       ErrorCode = "EVENT_PUBLISH_FAILED"
	ErrCodeExternalService          ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout                  ErrorCode = "TIMEOUT_ERROR"
	ErrCodeBusinessRule             ErrorCode = "BUSINESS_RULE_VIOLATION"
	ErrCodeAuthentication           ErrorCode = "AUTHENTICATION_ERROR"
	ErrCodeInternal                 ErrorCode = "INTERNAL_ERROR"
)

type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches any StandardError carrying the same code.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithMetadata attaches a metadata key and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// As extracts a StandardError from an error chain.
func As(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// CodeOf returns the code of the first StandardError in the chain or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	if stdErr, ok := As(err); ok {
		return stdErr.Code
	}
	return ErrCodeInternal
}

// Sentinels for errors.Is; any StandardError with the same code matches.
var (
	ErrNotFound               = &StandardError{Code: ErrCodeNotFound, Message: "not found"}
	ErrUnsupportedChannelKind = &StandardError{Code: ErrCodeUnsupportedChannelKind, Message: "unsupported channel kind"}
	ErrStorage                = &StandardError{Code: ErrCodeStorage, Message: "storage error"}
	ErrDeliveryTimeout        = &StandardError{Code: ErrCodeDeliveryTimeout, Message: "delivery timeout"}
	ErrInvalidInput           = &StandardError{Code: ErrCodeInvalidInput, Message: "invalid input"}
)

// ==========================
// 2. BPMN Error Types
// ==========================

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
// 3. Constructors
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

func NewNotFoundError(resource, id string) *StandardError {
	return newError(ErrCodeNotFound, "Referenced resource not found",
		fmt.Sprintf("%s: %s", resource, id), false, nil)
}

func NewUnsupportedChannelKindError(kind string) *StandardError {
	return newError(ErrCodeUnsupportedChannelKind, "Channel kind has no notifier",
		fmt.Sprintf("kind: %q", kind), false, nil)
}

func NewStorageError(err error) *StandardError {
	return newError(ErrCodeStorage, "Delivery log persistence failed", err.Error(), true, err)
}

func NewDeliveryTimeoutError(kind string, timeout time.Duration) *StandardError {
	return newError(ErrCodeDeliveryTimeout, "Channel delivery timed out",
		fmt.Sprintf("kind: %s, timeout: %s", kind, timeout), false, nil)
}

func NewDeliveryFailedError(kind string, err error) *StandardError {
	return newError(ErrCodeDeliveryFailed, "Channel delivery failed",
		fmt.Sprintf("kind: %s, error: %s", kind, err.Error()), false, err)
}

func NewSubscriberLookupFailedError(err error) *StandardError {
	return newError(ErrCodeSubscriberLookupFailed, "Subscriber lookup failed", err.Error(), true, err)
}

func NewInvalidInputError(details string) *StandardError {
	return newError(ErrCodeInvalidInput, "Invalid job input", details, false, nil)
}

func NewDatabaseConnectionFailedError(err error) *StandardError {
	return newError(ErrCodeDatabaseConnectionFailed, "Database connection error", err.Error(), true, err)
}

func NewSearchQueryFailedError(err error) *StandardError {
	return newError(ErrCodeSearchQueryFailed, "Elasticsearch query error", err.Error(), true, err)
}

func NewSearchTimeoutError(index string) *StandardError {
	return newError(ErrCodeSearchTimeout, "Elasticsearch query timeout",
		fmt.Sprintf("index: %s", index), true, nil)
}

func NewIndexNotFoundError(index string) *StandardError {
	return newError(ErrCodeIndexNotFound, "Elasticsearch index not found",
		fmt.Sprintf("index: %s", index), false, nil)
}

func NewEventPublishFailedError(err error) *StandardError {
	return newError(ErrCodeEventPublishFailed, "Dispatch event publish failed", err.Error(), true, err)
}

func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("External service %s failed", service),
		err.Error(), true, err)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Operation against %s timed out", service),
		err.Error(), true, err)
}

func NewResourceNotFoundError(service, details string) *StandardError {
	return newError(ErrCodeNotFound, fmt.Sprintf("Resource not found in %s", service), details, false, nil)
}

func NewBusinessRuleError(message, details string) *StandardError {
	return newError(ErrCodeBusinessRule, message, details, false, nil)
}

func NewAuthenticationError(details string) *StandardError {
	return newError(ErrCodeAuthentication, "Authentication failed", details, false, nil)
}

func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}

// ==========================
// 4. BPMN Mapping
// ==========================

var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeNotFound:                 "NOT_FOUND",
	ErrCodeUnsupportedChannelKind:   "UNSUPPORTED_CHANNEL_KIND",
	ErrCodeStorage:                  "STORAGE_ERROR",
	ErrCodeDeliveryTimeout:          "DELIVERY_TIMEOUT",
	ErrCodeDeliveryFailed:           "DELIVERY_FAILED",
	ErrCodeSubscriberLookupFailed:   "SUBSCRIBER_LOOKUP_FAILED",
	ErrCodeInvalidInput:             "INVALID_INPUT",
	ErrCodeDatabaseConnectionFailed: "DATABASE_CONNECTION_FAILED",
	ErrCodeSearchQueryFailed:        "SEARCH_QUERY_FAILED",
	ErrCodeSearchTimeout:            "SEARCH_TIMEOUT",
	ErrCodeIndexNotFound:            "INDEX_NOT_FOUND",
	ErrCodeEventPublishFailed:       "EVENT_PUBLISH_FAILED",
}

func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStorage,
		ErrCodeSubscriberLookupFailed,
		ErrCodeDatabaseConnectionFailed,
		ErrCodeSearchQueryFailed,
		ErrCodeEventPublishFailed,
		ErrCodeExternalService:
		return 3

	case ErrCodeSearchTimeout, ErrCodeTimeout:
		return 2

	default:
		return 0
	}
}

func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	vars := map[string]interface{}{
		"originalErrorCode": string(stdErr.Code),
		"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
	}
	for k, v := range stdErr.Metadata {
		vars[k] = v
	}

	return &BPMNError{
		Code:           bpmnCode,
		Message:        stdErr.Message,
		Details:        stdErr.Details,
		Retryable:      stdErr.Retryable,
		Retries:        retries,
		ErrorVariables: vars,
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "CHANNEL") || strings.Contains(codeStr, "DELIVERY"):
		return "DELIVERY"
	case strings.Contains(codeStr, "STORAGE") || strings.Contains(codeStr, "DATABASE") ||
		strings.Contains(codeStr, "SUBSCRIBER"):
		return "DATABASE"
	case strings.Contains(codeStr, "SEARCH") || strings.Contains(codeStr, "INDEX"):
		return "SEARCH"
	case strings.Contains(codeStr, "EVENT") || strings.Contains(codeStr, "EXTERNAL"):
		return "INTEGRATION"
	case strings.Contains(codeStr, "INVALID") || strings.Contains(codeStr, "NOT_FOUND"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}
