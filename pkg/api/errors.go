package api

import "fmt"

// ErrorType represents the category of an API error.
type ErrorType string

const (
	ErrorTypeInvalidRequest  ErrorType = "invalid_request_error"
	ErrorTypeServerError     ErrorType = "server_error"
	ErrorTypeNotFound        ErrorType = "not_found_error"
	ErrorTypeModelError      ErrorType = "model_error"
	ErrorTypeTooManyRequests ErrorType = "too_many_requests"
)

// Error codes for the tool-calling taxonomy. Request-level codes abort
// before any model call; call-level codes are terminal for a single call
// and are reported through ToolResult payloads, never thrown across the
// execution boundary.
const (
	CodeSchemaError      = "schema_error"
	CodeDuplicateName    = "duplicate_name"
	CodeTooManyTools     = "too_many_tools"
	CodeChoiceViolation  = "choice_violation"
	CodeToolCallError    = "tool_call_error"
	CodeAlreadyExecuting = "already_executing"
	CodeExecutionTimeout = "execution_timeout"
	CodeSecurityPolicy   = "security_policy"
)

// APIError represents a structured API error with type, code, param, and message.
type APIError struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Param   string    `json:"param,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Retryable reports whether the caller may retry the request unchanged.
// Choice violations are model misbehavior, not client mistakes.
func (e *APIError) Retryable() bool {
	return e.Code == CodeChoiceViolation || e.Type == ErrorTypeTooManyRequests
}

// ErrorResponse wraps an APIError as the top-level error response body.
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// NewInvalidRequestError creates an APIError for invalid request parameters.
func NewInvalidRequestError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Param:   param,
		Message: message,
	}
}

// NewSchemaError creates an APIError for a malformed tool parameter schema.
func NewSchemaError(param, message string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Code:    CodeSchemaError,
		Param:   param,
		Message: message,
	}
}

// NewDuplicateNameError creates an APIError for duplicate tool names.
func NewDuplicateNameError(name string) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Code:    CodeDuplicateName,
		Param:   "tools",
		Message: fmt.Sprintf("duplicate tool name %q", name),
	}
}

// NewTooManyToolsError creates an APIError for exceeding the tool count bound.
func NewTooManyToolsError(count, max int) *APIError {
	return &APIError{
		Type:    ErrorTypeInvalidRequest,
		Code:    CodeTooManyTools,
		Param:   "tools",
		Message: fmt.Sprintf("%d tools declared, maximum is %d", count, max),
	}
}

// NewChoiceViolationError creates an APIError for a model response that
// violated a pinned or disabled tool_choice directive. Retryable.
func NewChoiceViolationError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeModelError,
		Code:    CodeChoiceViolation,
		Param:   "tool_choice",
		Message: message,
	}
}

// NewNotFoundError creates an APIError for resources that cannot be found.
func NewNotFoundError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeNotFound,
		Message: message,
	}
}

// NewServerError creates an APIError for internal server errors.
func NewServerError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeServerError,
		Message: message,
	}
}

// NewModelError creates an APIError for model backend failures.
func NewModelError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeModelError,
		Message: message,
	}
}

// NewTooManyRequestsError creates an APIError for rate limiting.
func NewTooManyRequestsError(message string) *APIError {
	return &APIError{
		Type:    ErrorTypeTooManyRequests,
		Message: message,
	}
}
