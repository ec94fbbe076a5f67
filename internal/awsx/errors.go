package awsx

import (
	"errors"
	"fmt"

	"github.com/aws/smithy-go"
)

// ErrorClass buckets a provider API error into the retry policy it deserves.
type ErrorClass int

const (
	// ErrorOther covers everything not otherwise classified. Not retried.
	ErrorOther ErrorClass = iota
	// ErrorAuth is a permission denial for a specific action or region.
	// Region-scoped callers swallow it to an empty result.
	ErrorAuth
	// ErrorThrottle is a rate-limit response. Retried with backoff.
	ErrorThrottle
	// ErrorFatal is a malformed request or missing resource. Never retried.
	ErrorFatal
)

var authCodes = map[string]bool{
	"UnauthorizedOperation": true,
	"AccessDenied":          true,
	"AccessDeniedException": true,
}

var throttleCodes = map[string]bool{
	"Throttling":               true,
	"ThrottlingException":      true,
	"RequestLimitExceeded":     true,
	"TooManyRequestsException": true,
	"RequestThrottled":         true,
}

var fatalCodes = map[string]bool{
	"ValidationError":              true,
	"InvalidParameterValue":        true,
	"MissingParameter":             true,
	"InvalidInstanceID.NotFound":   true,
	"InvalidSnapshot.NotFound":     true,
	"InvalidAMIID.NotFound":        true,
	"InvalidVolume.NotFound":       true,
	"ResourceNotFoundException":    true,
	"InvalidParameterCombination":  true,
}

// Classify maps a provider error to its ErrorClass using the API error code.
// Non-API errors (network failures, context deadlines) classify as ErrorOther.
func Classify(err error) ErrorClass {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return ErrorOther
	}

	code := apiErr.ErrorCode()
	switch {
	case authCodes[code]:
		return ErrorAuth
	case throttleCodes[code]:
		return ErrorThrottle
	case fatalCodes[code]:
		return ErrorFatal
	default:
		return ErrorOther
	}
}

// ErrorCode returns the provider error code, or "" for non-API errors.
func ErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

// SessionErrorKind names the ways deriving a session can fail.
type SessionErrorKind string

const (
	// SessionNotConnected: account missing, deleted, wrong provider, or not
	// in connected status.
	SessionNotConnected SessionErrorKind = "not_connected"
	// SessionCredentialCorrupt: stored ciphertext failed to decrypt.
	SessionCredentialCorrupt SessionErrorKind = "credential_corrupt"
	// SessionMalformedCredential: decrypted blob is missing required fields.
	SessionMalformedCredential SessionErrorKind = "malformed_credential"
	// SessionAssumeRoleFailed: the role-assumption call was rejected.
	SessionAssumeRoleFailed SessionErrorKind = "assume_role_failed"
)

// SessionError reports a failure to derive a usable session for an account.
type SessionError struct {
	Kind      SessionErrorKind
	AccountID string
	Err       error
}

func (e *SessionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session for account %s: %s: %v", e.AccountID, e.Kind, e.Err)
	}
	return fmt.Sprintf("session for account %s: %s", e.AccountID, e.Kind)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}

// IsSessionError reports whether err is a SessionError of the given kind.
func IsSessionError(err error, kind SessionErrorKind) bool {
	var se *SessionError
	return errors.As(err, &se) && se.Kind == kind
}
