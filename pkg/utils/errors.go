package utils

import (
	"errors"
	"fmt"
	"net/http"
)

// Error type tags used to classify browser automation failures. Handlers and
// middleware branch on these rather than on message text.
const (
	ErrTypeTimeout                  = "timeout"
	ErrTypeNotRunning               = "browser_not_running"
	ErrTypeServiceUnavailable       = "service_unavailable"
	ErrTypeModelNotFound            = "model_not_found"
	ErrTypeModelSwitchFailed        = "model_switch_failed"
	ErrTypeChatInputNotFound        = "chat_input_not_found"
	ErrTypeSendButtonNotFound       = "send_button_not_found"
	ErrTypeResponseExtractionFailed = "response_extraction_failed"
	ErrTypeUpstreamError            = "upstream_error"
	ErrTypeValidation               = "validation_failed"
)

// CustomError represents a custom application error
type CustomError struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

func (e *CustomError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Detail)
	}
	return e.Message
}

// ErrorType returns the classification tag of err, or "" for plain errors.
func ErrorType(err error) string {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Type
	}
	return ""
}

// StatusCode returns the HTTP status carried by err, defaulting to 500.
func StatusCode(err error) int {
	var ce *CustomError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return http.StatusInternalServerError
}

// IsTimeout reports whether err is a selector/navigation timeout.
func IsTimeout(err error) bool {
	return ErrorType(err) == ErrTypeTimeout
}

// Common error constructors

func NewTimeoutError(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusGatewayTimeout,
		Type:    ErrTypeTimeout,
		Message: "Operation timed out",
		Detail:  detail,
	}
}

func NewNotRunningError(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusServiceUnavailable,
		Type:    ErrTypeNotRunning,
		Message: "Browser is not running",
		Detail:  detail,
	}
}

func NewServiceUnavailableError(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusServiceUnavailable,
		Type:    ErrTypeServiceUnavailable,
		Message: "Service unavailable",
		Detail:  detail,
	}
}

func NewModelNotFoundError(model string) *CustomError {
	return &CustomError{
		Code:    http.StatusBadRequest,
		Type:    ErrTypeModelNotFound,
		Message: fmt.Sprintf("Model '%s' not found", model),
	}
}

func NewModelSwitchFailedError(model, detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusBadGateway,
		Type:    ErrTypeModelSwitchFailed,
		Message: fmt.Sprintf("Failed to switch to model '%s'", model),
		Detail:  detail,
	}
}

func NewChatInputNotFoundError(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusBadGateway,
		Type:    ErrTypeChatInputNotFound,
		Message: "Chat input not found",
		Detail:  detail,
	}
}

func NewSendButtonNotFoundError(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusBadGateway,
		Type:    ErrTypeSendButtonNotFound,
		Message: "Send button not found",
		Detail:  detail,
	}
}

func NewResponseExtractionError(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusBadGateway,
		Type:    ErrTypeResponseExtractionFailed,
		Message: "Failed to extract response",
		Detail:  detail,
	}
}

// NewUpstreamError wraps an error message reported by the AI Studio UI
// itself, as opposed to an automation failure.
func NewUpstreamError(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusInternalServerError,
		Type:    ErrTypeUpstreamError,
		Message: "AI Studio error",
		Detail:  detail,
	}
}

func NewValidationError(detail string) *CustomError {
	return &CustomError{
		Code:    http.StatusBadRequest,
		Type:    ErrTypeValidation,
		Message: "Validation failed",
		Detail:  detail,
	}
}
