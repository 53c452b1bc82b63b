package errors

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrBadRequest          = errors.New("bad request")
	ErrInternal            = errors.New("internal server error")
	ErrInvalidCredential   = errors.New("invalid credential")
	ErrMalformedCredential = errors.New("malformed credential")
	ErrInvalidUser         = errors.New("invalid user")
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrChatAlreadyExists   = errors.New("open chat already exists for customer")
	ErrChatNotFound        = errors.New("chat not found")
	ErrNotAssigned         = errors.New("chat is not assigned to this user")
	ErrMalformedMessage    = errors.New("malformed message")
	ErrDeliveryFailed      = errors.New("external delivery failed")
	ErrInvalidToken        = errors.New("invalid token")
	ErrTokenExpired        = errors.New("token expired")
)

type APIError struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

func (e *APIError) Error() string {
	return e.Message
}

func NewAPIError(message string, code int) *APIError {
	return &APIError{
		Message: message,
		Code:    code,
	}
}

func HTTPStatusFromError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrChatNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidCredential),
		errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrNotAssigned):
		return http.StatusForbidden
	case errors.Is(err, ErrBadRequest), errors.Is(err, ErrMalformedCredential),
		errors.Is(err, ErrMalformedMessage), errors.Is(err, ErrUserAlreadyExists),
		errors.Is(err, ErrInvalidUser):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
