package types

import (
	"errors"
	"fmt"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

const (
	ReasonMissing   = "missing"
	ReasonDuplicate = "duplicate"
	ReasonInvalid   = "invalid"
)

// ValidationError reports a missing required field, a uniqueness violation
// or an invalid value.
type ValidationError struct {
	Entity string `json:"entity"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonMissing:
		return fmt.Sprintf("%s: %s is required", e.Entity, e.Field)
	case ReasonDuplicate:
		return fmt.Sprintf("%s: %s already exists", e.Entity, e.Field)
	default:
		return fmt.Sprintf("%s: invalid %s", e.Entity, e.Field)
	}
}

func Missing(entity, field string) error {
	return &ValidationError{Entity: entity, Field: field, Reason: ReasonMissing}
}

func Duplicate(entity, field string) error {
	return &ValidationError{Entity: entity, Field: field, Reason: ReasonDuplicate}
}

func Invalid(entity, field string) error {
	return &ValidationError{Entity: entity, Field: field, Reason: ReasonInvalid}
}

type NotFoundError struct {
	Entity string `json:"entity"`
	ID     string `json:"id"`
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func NotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: fmt.Sprint(id)}
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserBlocked        = errors.New("user is blocked")
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExpired     = errors.New("session expired")
)

// AuthError wraps one of the authentication sentinels.
type AuthError struct {
	Reason error
}

func (e *AuthError) Error() string {
	return "auth: " + e.Reason.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Reason
}

func NewAuthError(reason error) error {
	return &AuthError{Reason: reason}
}

// UnavailableError reports a network or storage failure.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("backend unavailable during %s: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}

func Unavailable(op string, err error) error {
	return &UnavailableError{Op: op, Err: err}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsDuplicate(err error) bool {
	var target *ValidationError
	return errors.As(err, &target) && target.Reason == ReasonDuplicate
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

func IsAuth(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

func IsUnavailable(err error) bool {
	var target *UnavailableError
	return errors.As(err, &target)
}
