// Package apierror defines the error envelope shared between the terminal
// and the POS backend. The API client decodes every non-2xx body into these
// shapes; the stub backend produces them.
package apierror

// APIError is the canonical error envelope for all 4xx/5xx HTTP responses.
type APIError struct {
	Detail string `json:"detail"`
}

func New(msg string) *APIError {
	return &APIError{Detail: msg}
}
