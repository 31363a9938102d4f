package port

import "time"

// PasswordHasher hashes and verifies secrets using the configured algorithm.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password string, encoded string) (bool, error)
}

// CodeGenerator produces numeric one-time codes.
type CodeGenerator interface {
	Generate() (string, error)
}

// TokenIssuer mints and validates bearer session tokens.
type TokenIssuer interface {
	Issue(accountID string) (string, time.Time, error)
	Verify(token string) (string, error)
}
