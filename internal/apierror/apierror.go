// Package apierror defines the error envelopes written to API clients.
// Internal details (SQL errors, stack traces) never reach these types.
package apierror

// APIError is the canonical error envelope for 4xx/5xx responses.
type APIError struct {
	Detail string `json:"detail"`
	// Retryable tells the client the same request may succeed if resubmitted.
	Retryable bool `json:"retryable,omitempty"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}

func NewRetryable(msg string) *APIError {
	return &APIError{Detail: msg, Retryable: true}
}

// ValidationError wraps one or more field errors.
type ValidationError struct {
	Detail string            `json:"detail"`
	Fields map[string]string `json:"fields"`
}

func NewValidation(fields map[string]string) *ValidationError {
	return &ValidationError{Detail: "validation failed", Fields: fields}
}
