package magiclink

import (
	"fmt"
	"time"
)

type Code string

const (
	CodeUserNotFound      Code = "USER_NOT_FOUND"
	CodeUserExists        Code = "USER_EXISTS"
	CodeUserTypeMismatch  Code = "USER_TYPE_MISMATCH"
	CodeAccountInactive   Code = "ACCOUNT_INACTIVE"
	CodeInvalidToken      Code = "INVALID_TOKEN"
	CodeExpired           Code = "EXPIRED"
	CodeAlreadyUsed       Code = "ALREADY_USED"
	CodeRateLimitExceeded Code = "RATE_LIMIT_EXCEEDED"
	CodeDatabaseError     Code = "DATABASE_ERROR"
	CodeUserCreateFailed  Code = "USER_CREATE_FAILED"
	CodeInternalError     Code = "INTERNAL_ERROR"
)

// Error carries a machine-readable code alongside the user-facing message.
// Expected failures are returned, never panicked; callers dispatch on Code.
type Error struct {
	Code       Code          `json:"code"`
	Message    string        `json:"message"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

var (
	ErrUserNotFound = &Error{
		Code:    CodeUserNotFound,
		Message: "no account exists for this email address",
	}
	ErrUserExists = &Error{
		Code:    CodeUserExists,
		Message: "an account already exists for this email address",
	}
	ErrAccountInactive = &Error{
		Code:    CodeAccountInactive,
		Message: "this account has been deactivated",
	}
	ErrInvalidToken = &Error{
		Code:    CodeInvalidToken,
		Message: "this link is invalid",
	}
	ErrExpired = &Error{
		Code:    CodeExpired,
		Message: "this link has expired, please request a new one",
	}
	ErrAlreadyUsed = &Error{
		Code:    CodeAlreadyUsed,
		Message: "this link has already been used",
	}
	ErrDatabaseError = &Error{
		Code:    CodeDatabaseError,
		Message: "something went wrong, please try again",
	}
	ErrUserCreateFailed = &Error{
		Code:    CodeUserCreateFailed,
		Message: "something went wrong creating your account, please try again",
	}
	ErrInternalError = &Error{
		Code:    CodeInternalError,
		Message: "something went wrong, please try again",
	}
)

func typeMismatchError(registeredRole string) *Error {
	return &Error{
		Code:    CodeUserTypeMismatch,
		Message: fmt.Sprintf("this email is registered as a %s, please use the %s login page", registeredRole, registeredRole),
	}
}

func rateLimitError(retryAfter time.Duration) *Error {
	minutes := int(retryAfter.Minutes())
	if minutes < 1 {
		minutes = 1
	}

	return &Error{
		Code:       CodeRateLimitExceeded,
		Message:    fmt.Sprintf("too many attempts, please try again in %d minutes", minutes),
		RetryAfter: retryAfter,
	}
}

// CodeOf extracts the error code, collapsing unexpected errors to
// INTERNAL_ERROR.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}

	if mlErr, ok := err.(*Error); ok {
		return mlErr.Code
	}

	return CodeInternalError
}
