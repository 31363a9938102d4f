package usecase

import "errors"

var (
	// ErrInvalidInput indicates a required field is missing or malformed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrDuplicateEmail indicates an account is already registered with the email.
	ErrDuplicateEmail = errors.New("user already exists")
	// ErrAccountNotFound indicates no account matches the supplied identifier.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAlreadyVerified indicates registration verification already completed.
	ErrAlreadyVerified = errors.New("account already verified")
	// ErrInvalidCredentials indicates the email is unknown or the password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrVerificationRequired indicates the account must finish registration verification first.
	ErrVerificationRequired = errors.New("account not verified")
	// ErrNoChallenge indicates no one-time code is outstanding.
	ErrNoChallenge = errors.New("otp not generated")
	// ErrChallengeExpired indicates the outstanding code is past its expiry.
	ErrChallengeExpired = errors.New("otp expired")
	// ErrCodeMismatch indicates the supplied code differs from the outstanding one.
	ErrCodeMismatch = errors.New("invalid otp")
	// ErrTwoFactorNotEnabled indicates 2FA cannot be disabled because it is off.
	ErrTwoFactorNotEnabled = errors.New("2fa is not enabled")
	// ErrDeliveryFailed indicates the email gateway could not deliver a code.
	ErrDeliveryFailed = errors.New("failed to send otp email")
	// ErrUnauthorized indicates a missing, malformed or expired bearer token.
	ErrUnauthorized = errors.New("unauthorized")
)
