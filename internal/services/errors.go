package services

import "errors"

type ErrorCode string

const (
	ErrorInvalid       ErrorCode = "invalid"
	ErrorInvalidConfig ErrorCode = "invalid_configuration"
	ErrorNotFound      ErrorCode = "not_found"
	ErrorConflict      ErrorCode = "conflict"
)

type ServiceError struct {
	Code    ErrorCode
	Message string
}

func (e *ServiceError) Error() string { return e.Message }

func NewInvalidError(msg string) error  { return &ServiceError{Code: ErrorInvalid, Message: msg} }
func NewNotFoundError(msg string) error { return &ServiceError{Code: ErrorNotFound, Message: msg} }
func NewConflictError(msg string) error { return &ServiceError{Code: ErrorConflict, Message: msg} }

// NewInvalidConfigurationError marks a request whose parameters can never
// produce a defined result (non-positive scale points, cluster count, or
// iteration budget). Degenerate but well-formed inputs do not use it; they
// get zero or empty results instead.
func NewInvalidConfigurationError(msg string) error {
	return &ServiceError{Code: ErrorInvalidConfig, Message: msg}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}
