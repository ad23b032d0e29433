package openai

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
	ErrOverloaded     ErrorType = "overloaded_error"
	ErrProvider       ErrorType = "provider_error"
)

// Error is an API error from a Chat Completions endpoint.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Code    string    `json:"code,omitempty"`
	Status  int       `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("openai: %s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("openai: %s: %s", e.Type, e.Message)
}

// StatusCode returns the HTTP status.
func (e *Error) StatusCode() int { return e.Status }

// IsRetryable returns true if the error is retryable.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrOverloaded, ErrAPI:
		return true
	default:
		return false
	}
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code,omitempty"`
	} `json:"error"`
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var parsed apiError
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Error.Message == "" {
		return &Error{Type: statusType(resp.StatusCode, ErrProvider), Message: string(body), Status: resp.StatusCode}
	}

	var errType ErrorType
	switch parsed.Error.Type {
	case "invalid_request_error":
		errType = ErrInvalidRequest
	case "authentication_error":
		errType = ErrAuthentication
	case "rate_limit_error", "tokens":
		errType = ErrRateLimit
	case "server_error", "api_error":
		errType = ErrAPI
	default:
		errType = ErrProvider
	}

	out := &Error{
		Type:    statusType(resp.StatusCode, errType),
		Message: parsed.Error.Message,
		Status:  resp.StatusCode,
	}
	if parsed.Error.Code != nil {
		out.Code = fmt.Sprint(parsed.Error.Code)
	}
	return out
}

func statusType(status int, fallback ErrorType) ErrorType {
	switch status {
	case http.StatusUnauthorized:
		return ErrAuthentication
	case http.StatusTooManyRequests:
		return ErrRateLimit
	case http.StatusServiceUnavailable:
		return ErrOverloaded
	}
	return fallback
}
