package security

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"

	"github.com/dmflow/auth-service/internal/core/port"
)

const (
	otpMin = 100000
	otpMax = 999999
)

// OTPGenerator draws six digit codes uniformly from [100000, 999999].
type OTPGenerator struct{}

var _ port.CodeGenerator = OTPGenerator{}

// Generate returns a fresh code. Codes never start with zero.
func (OTPGenerator) Generate() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return strconv.FormatInt(n.Int64()+otpMin, 10), nil
}
