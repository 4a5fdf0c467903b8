package bridge

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	// TextCodeInvalidCredentials marks a rejected credential exchange.
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	// TextCodeEmailNotConfirmed marks a login against an unconfirmed account.
	TextCodeEmailNotConfirmed = "EMAIL_NOT_CONFIRMED"
	// TextCodeDuplicateAccount marks a registration for an existing account.
	TextCodeDuplicateAccount = "DUPLICATE_ACCOUNT"
	// TextCodeWeakPassword marks a password rejected by the store's policy.
	TextCodeWeakPassword = "WEAK_PASSWORD"
	// TextCodeRateLimited marks a request throttled by the Session Store.
	TextCodeRateLimited = "RATE_LIMITED"
	// TextCodeStoreUnavailable marks a transport or service failure.
	TextCodeStoreUnavailable = "SESSION_STORE_UNAVAILABLE"
	// TextCodeNoActiveSession marks an operation that needs a session.
	TextCodeNoActiveSession = "NO_ACTIVE_SESSION"
)

// ErrInvalidCredentials is returned when the Session Store rejects the
// email/password pair.
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailNotConfirmed is returned when the account exists but its email
// address was never confirmed.
var ErrEmailNotConfirmed = goerrors.New("email address has not been confirmed", goerrors.CategoryAuth).
	WithTextCode(TextCodeEmailNotConfirmed).
	WithCode(goerrors.CodeUnauthorized)

// ErrDuplicateAccount is returned when registering an email that already
// has an account.
var ErrDuplicateAccount = goerrors.New("an account with this email already exists", goerrors.CategoryConflict).
	WithTextCode(TextCodeDuplicateAccount).
	WithCode(goerrors.CodeConflict)

// ErrWeakPassword is returned when the password fails the Session Store's
// strength policy.
var ErrWeakPassword = goerrors.New("password does not meet strength requirements", goerrors.CategoryValidation).
	WithTextCode(TextCodeWeakPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrRateLimited is returned when the Session Store throttles the caller.
var ErrRateLimited = goerrors.New("too many authentication attempts, slow down", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeRateLimited)

// ErrNoActiveSession is returned by operations that require an
// authenticated principal when none is published.
var ErrNoActiveSession = goerrors.New("no active session", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoActiveSession).
	WithCode(goerrors.CodeUnauthorized)

// IsCredentialError reports whether err is a credential rejection the UI
// should surface as blocking feedback.
func IsCredentialError(err error) bool {
	return goerrors.Is(err, ErrInvalidCredentials) || goerrors.Is(err, ErrEmailNotConfirmed)
}

// IsDuplicateAccount reports whether err is a duplicate-registration error.
func IsDuplicateAccount(err error) bool {
	return goerrors.Is(err, ErrDuplicateAccount)
}

// IsWeakPassword reports whether err is a password-policy rejection.
func IsWeakPassword(err error) bool {
	return goerrors.Is(err, ErrWeakPassword)
}

// IsRateLimited reports whether err is a Session Store throttle response.
func IsRateLimited(err error) bool {
	return goerrors.Is(err, ErrRateLimited)
}

// IsAuthRejection reports whether err is the Session Store rejecting the
// presented credentials or tokens, as opposed to a transport or service
// failure. Rejections mean "nobody is logged in", not "the store is down".
func IsAuthRejection(err error) bool {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		return false
	}
	return rich.Category == goerrors.CategoryAuth
}
