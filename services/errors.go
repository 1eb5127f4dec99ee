package services

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrorKind is the coarse class of a failure; handlers map it to an HTTP status.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindAuthentication ErrorKind = "authentication"
	KindAuthorization  ErrorKind = "authorization"
	KindNotFound       ErrorKind = "not_found"
	KindConflict       ErrorKind = "conflict"
	KindUpstream       ErrorKind = "upstream"
)

// AppError is a failure that is safe to show to the client.
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details any
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Is matches on Code so wrapped sentinels compare equal with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// WithDetails returns a copy carrying field-level details.
func (e *AppError) WithDetails(details any) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func newError(kind ErrorKind, code, message string) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message}
}

func Validation(code, message string) *AppError {
	return newError(KindValidation, code, message)
}

func Unauthenticated(message string) *AppError {
	return newError(KindAuthentication, "unauthorized", message)
}

func Forbidden(message string) *AppError {
	return newError(KindAuthorization, "forbidden", message)
}

func NotFound(what string) *AppError {
	return newError(KindNotFound, "not_found", what+" not found")
}

func Conflict(code, message string) *AppError {
	return newError(KindConflict, code, message)
}

// Upstream wraps a database or object store failure.
func Upstream(message string, err error) *AppError {
	e := newError(KindUpstream, "upstream_error", message)
	e.Err = err
	return e
}

// Domain errors.
var (
	ErrInvalidCredentials = newError(KindAuthentication, "invalid_credentials", "invalid email/username or password")
	ErrInactiveUser       = newError(KindAuthentication, "inactive_user", "user account is inactive")
	ErrAlreadyActive      = Conflict("already_active", "user account is already active")
	ErrEmailTaken         = Conflict("email_taken", "email is already registered")
	ErrUsernameTaken      = Conflict("username_taken", "username is already taken")

	ErrNotFamilyMember = Forbidden("user is not a member of this family")
	ErrNotFamilyOwner  = Forbidden("only the family owner can do this")
	ErrFamilyFull      = Conflict("family_full", "family has reached its member limit")
	ErrAlreadyMember   = Conflict("already_member", "user is already a member of this family")
	ErrInvalidInvite   = newError(KindNotFound, "invalid_invite_code", "invite code is invalid")

	ErrOwnerMustTransfer = Validation("owner_must_transfer",
		"the owner must transfer ownership before leaving a family with other members")

	ErrMissionExpired    = Validation("mission_expired", "mission has already ended")
	ErrMissionNotStarted = Validation("mission_not_started", "mission has not started yet")
	ErrMissionInactive   = Validation("mission_inactive", "mission is not active")
	ErrNotParticipating  = Validation("not_participating", "user has not joined this mission")
	ErrAlreadyJoined     = Conflict("already_joined", "user already has a participation for this mission")
	ErrAlreadyCompleted  = Conflict("already_completed", "mission already completed")

	ErrCriteriaNotMet = Validation("criteria_not_met", "badge criteria are not met")
)

// notFoundOr maps gorm.ErrRecordNotFound to a NotFound error and anything else to Upstream.
func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound(what)
	}
	return Upstream("failed to load "+what, err)
}
