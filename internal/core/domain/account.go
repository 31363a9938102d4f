package domain

import "time"

// Role enumerates account roles.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ChallengeTTL is the fixed lifetime of an OTP challenge.
const ChallengeTTL = 10 * time.Minute

// Challenge is an outstanding one-time code and the instant it stops being accepted.
type Challenge struct {
	Code      string
	ExpiresAt time.Time
}

// NewChallenge builds a challenge for code issued at the supplied instant.
func NewChallenge(code string, issuedAt time.Time) *Challenge {
	return &Challenge{
		Code:      code,
		ExpiresAt: issuedAt.UTC().Add(ChallengeTTL),
	}
}

// Expired reports whether the challenge is no longer usable at now.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// LoginState summarises the verification and 2FA status of an account.
type LoginState string

const (
	LoginStateUnverified          LoginState = "unverified"
	LoginStateVerifiedNoOTP       LoginState = "verified_no_otp"
	LoginStateVerifiedOTPRequired LoginState = "verified_otp_required"
	LoginStateVerifiedOTPPending  LoginState = "verified_otp_pending"
)

// Account mirrors the persisted representation of a registered user.
// Challenge is nil when no code is outstanding.
type Account struct {
	ID               string
	Name             string
	Email            string
	PasswordHash     string
	Role             Role
	IsVerified       bool
	TwoFactorEnabled bool
	Challenge        *Challenge
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// LoginState reports the state machine position of the account at now.
func (a *Account) LoginState(now time.Time) LoginState {
	switch {
	case !a.IsVerified:
		return LoginStateUnverified
	case !a.TwoFactorEnabled:
		return LoginStateVerifiedNoOTP
	case a.Challenge == nil || a.Challenge.Expired(now):
		return LoginStateVerifiedOTPRequired
	default:
		return LoginStateVerifiedOTPPending
	}
}

// ClearChallenge drops any outstanding code.
func (a *Account) ClearChallenge() {
	a.Challenge = nil
}

// Clone returns a deep copy so stores never share challenge pointers with callers.
func (a Account) Clone() Account {
	if a.Challenge != nil {
		ch := *a.Challenge
		a.Challenge = &ch
	}
	return a
}
