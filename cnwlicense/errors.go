package cnwlicense

import (
	"errors"
	"fmt"
)

// Sentinel errors for activation failures.
var (
	ErrKeyNotFound    = errors.New("invalid or disabled key")
	ErrQuotaExceeded  = errors.New("activation limit reached")
	ErrNotConfigured  = errors.New("license server is not configured")
	ErrInvalidRequest = errors.New("product_key and machine_id are required")
)

// Sentinel errors for credential verification.
var (
	ErrSignatureInvalid  = errors.New("signature verification failed")
	ErrCredentialExpired = errors.New("credential expired")
	ErrCredentialInvalid = errors.New("invalid credential")
)

// Error codes carried in the server's error response body.
const (
	CodeKeyNotFound    = "KEY_NOT_FOUND"
	CodeQuotaExceeded  = "ACTIVATION_LIMIT"
	CodeNotConfigured  = "NOT_CONFIGURED"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeRateLimited    = "RATE_LIMITED"
	CodeTimeout        = "TIMEOUT"
	CodeInternal       = "INTERNAL"
)

// ServerError represents an error response from the license server.
// The server returns errors in the format:
// {"status": "error", "error": {"code": "...", "message": "..."}}.
type ServerError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server error %d: [%s] %s", e.StatusCode, e.Code, e.Message)
}

// mapServerError converts a ServerError to a well-known sentinel error if possible.
// The returned error wraps both the sentinel error and the original ServerError
// so callers can use errors.Is() for sentinel checks and errors.As() for details.
func mapServerError(se *ServerError) error {
	var sentinel error
	switch se.Code {
	case CodeKeyNotFound:
		sentinel = ErrKeyNotFound
	case CodeQuotaExceeded:
		sentinel = ErrQuotaExceeded
	case CodeNotConfigured:
		sentinel = ErrNotConfigured
	case CodeInvalidRequest:
		sentinel = ErrInvalidRequest
	default:
		return se
	}
	return &mappedError{sentinel: sentinel, server: se}
}

// mappedError wraps a sentinel error with the original ServerError details.
type mappedError struct {
	sentinel error
	server   *ServerError
}

func (e *mappedError) Error() string {
	return e.sentinel.Error()
}

func (e *mappedError) Is(target error) bool {
	return target == e.sentinel
}

func (e *mappedError) As(target any) bool {
	if t, ok := target.(**ServerError); ok {
		*t = e.server
		return true
	}
	return false
}

func (e *mappedError) Unwrap() error {
	return e.sentinel
}
