package identity

import (
	"errors"
	"fmt"
)

// ErrAuth matches every AuthError with errors.Is.
var ErrAuth = errors.New("authentication failed")

// AuthCode classifies an AuthError.
type AuthCode string

const (
	CodeCancelled     AuthCode = "cancelled"
	CodeProvider      AuthCode = "provider"
	CodeInvalidEmail  AuthCode = "invalid-email"
	CodeQuotaExceeded AuthCode = "quota-exceeded"
	CodeInvalidLink   AuthCode = "invalid-link"
	CodeExpiredLink   AuthCode = "expired-link"
)

// AuthError reports a failed sign-in or sign-out. It is surfaced to the user
// and never retried.
type AuthError struct {
	Code AuthCode
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("auth %s", e.Code)
	}
	return fmt.Sprintf("auth %s: %v", e.Code, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrAuth) hold for any AuthError.
func (e *AuthError) Is(target error) bool {
	return target == ErrAuth
}

func authError(code AuthCode, format string, args ...any) error {
	return &AuthError{Code: code, Err: fmt.Errorf(format, args...)}
}

// CodeOf returns the AuthCode of err, or "" if err is not an AuthError.
func CodeOf(err error) AuthCode {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}
