package common

import (
	"errors"
	"fmt"
)

// Code is the stable identifier of an error class.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeDataIntegrity      Code = "data_integrity_violation"
	CodeDuplicateKey       Code = "duplicate_key"
	CodeDecryption         Code = "decryption_failure"
	CodePolicy             Code = "policy_violation"
	CodeExternal           Code = "external_failure"
	CodeUnauthorized       Code = "unauthorized"
	CodeInternal           Code = "internal"
	CodePermissionDenied   Code = "permission_denied"
	CodeFailedPrecondition Code = "failed_precondition"
)

// Severity drives the log level an error is reported with. It is never part
// of the contract with callers.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarn
	SeverityError
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Error is the error type shared by the data layer and the auth subsystem.
//
// Message is internal and may contain detail unsuitable for end users;
// UserMessage, when set, is safe to return over the transport.
type Error struct {
	Code        Code
	Message     string
	UserMessage string
	Severity    Severity
	Field       string
	Err         error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Field != "" {
		msg += " (field " + e.Field + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Code, so the sentinels below can be used
// with errors.Is regardless of message or field.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

var (
	// Repository-level errors.
	ErrorNotFound      = &Error{Code: CodeNotFound, Severity: SeverityInfo, Message: "not found"}
	ErrorDataIntegrity = &Error{Code: CodeDataIntegrity, Severity: SeverityCritical, Message: "more than one record matched a unique field"}
	ErrorDuplicateKey  = &Error{Code: CodeDuplicateKey, Severity: SeverityInfo, Message: "duplicate key"}
	ErrorDecryption    = &Error{Code: CodeDecryption, Severity: SeverityCritical, Message: "decryption failed"}

	// Validation errors.
	ErrorPolicy = &Error{Code: CodePolicy, Severity: SeverityInfo, Message: "policy violation"}

	// Collaborator errors (breach lookup, email, payment processor).
	ErrorExternal = &Error{Code: CodeExternal, Severity: SeverityError, Message: "external collaborator failure"}

	// Service-level errors.
	ErrorInternal     = &Error{Code: CodeInternal, Severity: SeverityError, Message: "internal error"}
	ErrorUnauthorized = &Error{Code: CodeUnauthorized, Severity: SeverityInfo, Message: "unauthorized", UserMessage: "invalid credentials"}
	ErrorPermission   = &Error{Code: CodePermissionDenied, Severity: SeverityWarn, Message: "permission denied", UserMessage: "not allowed"}
	ErrorPrecondition = &Error{Code: CodeFailedPrecondition, Severity: SeverityInfo, Message: "failed precondition"}

	// Token errors (invalid, malformed or expired bearer token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// NotFound reports zero matches for a lookup that expected one.
func NotFound(collection, field string) error {
	return &Error{
		Code:     CodeNotFound,
		Severity: SeverityInfo,
		Message:  "no " + collection + " record matched",
		Field:    field,
	}
}

// DataIntegrity reports more than one match on a field declared unique.
func DataIntegrity(collection, field string, matches int) error {
	return &Error{
		Code:     CodeDataIntegrity,
		Severity: SeverityCritical,
		Message:  fmt.Sprintf("%d %s records share a unique value", matches, collection),
		Field:    field,
	}
}

// DuplicateKey reports that a uniqueness probe found an existing owner.
func DuplicateKey(collection, field string) error {
	return &Error{
		Code:        CodeDuplicateKey,
		Severity:    SeverityInfo,
		Message:     collection + " value already taken",
		UserMessage: field + " is already in use",
		Field:       field,
	}
}

// Decryption wraps an authentication failure of a stored value.
func Decryption(field string, err error) error {
	return &Error{
		Code:     CodeDecryption,
		Severity: SeverityCritical,
		Message:  "stored value failed authentication",
		Field:    field,
		Err:      err,
	}
}

// Policy reports a validation failure with a user-facing message.
func Policy(field, userMessage string) error {
	return &Error{
		Code:        CodePolicy,
		Severity:    SeverityInfo,
		Message:     "validation failed",
		UserMessage: userMessage,
		Field:       field,
	}
}

// External wraps a failed collaborator call. The triggering operation must
// not complete.
func External(collaborator string, err error) error {
	return &Error{
		Code:        CodeExternal,
		Severity:    SeverityError,
		Message:     collaborator + " call failed",
		UserMessage: "a dependent service is unavailable, try again later",
		Err:         err,
	}
}

// Precondition reports a request that is valid but not allowed in the
// current state of the records it touches.
func Precondition(userMessage string) error {
	return &Error{
		Code:        CodeFailedPrecondition,
		Severity:    SeverityInfo,
		Message:     "failed precondition",
		UserMessage: userMessage,
	}
}

// CodeOf returns the Code of err, or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// SeverityOf returns the severity of err, or SeverityError for foreign errors.
func SeverityOf(err error) Severity {
	var e *Error
	if errors.As(err, &e) {
		return e.Severity
	}
	return SeverityError
}

// UserMessageOf returns the user-safe message carried by err, if any.
func UserMessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.UserMessage
	}
	return ""
}
