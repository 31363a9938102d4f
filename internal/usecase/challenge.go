package usecase

import (
	"context"
	"crypto/subtle"
	"fmt"

	"go.uber.org/zap"

	"github.com/dmflow/auth-service/internal/core/domain"
	"github.com/dmflow/auth-service/internal/core/port"
	"github.com/dmflow/auth-service/internal/infra/logger"
)

// WithCodeGenerator overrides the OTP generator, used in tests.
func (s *AuthService) WithCodeGenerator(codes port.CodeGenerator) *AuthService {
	if codes != nil {
		s.codes = codes
	}
	return s
}

// checkChallenge applies the ordered OTP checks shared by every verifying operation:
// absent, then expired, then mismatched.
func (s *AuthService) checkChallenge(account *domain.Account, otp string, purpose port.ChallengePurpose) error {
	ch := account.Challenge
	switch {
	case ch == nil || ch.Code == "":
		s.metrics.ChallengeChecked(purpose, "missing")
		return ErrNoChallenge
	case ch.Expired(s.now()):
		s.metrics.ChallengeChecked(purpose, "expired")
		return ErrChallengeExpired
	case subtle.ConstantTimeCompare([]byte(ch.Code), []byte(otp)) != 1:
		s.metrics.ChallengeChecked(purpose, "mismatch")
		return ErrCodeMismatch
	}

	s.metrics.ChallengeChecked(purpose, "ok")
	return nil
}

// issueChallenge replaces any outstanding code with a fresh one and persists it.
func (s *AuthService) issueChallenge(ctx context.Context, account *domain.Account, purpose port.ChallengePurpose) (string, error) {
	code, err := s.codes.Generate()
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}

	now := s.now().UTC()
	account.Challenge = domain.NewChallenge(code, now)
	account.UpdatedAt = now
	if err := s.accounts.Save(ctx, *account); err != nil {
		return "", fmt.Errorf("save challenge: %w", err)
	}

	s.metrics.ChallengeIssued(purpose)
	return code, nil
}

// deliver hands the code to the email gateway. Failures are logged and returned; the caller
// decides whether they matter.
func (s *AuthService) deliver(ctx context.Context, account *domain.Account, code string, purpose port.ChallengePurpose) error {
	if err := s.mailer.SendOTP(ctx, account.Email, code, account.Name); err != nil {
		s.metrics.DeliveryFailed(purpose)
		s.logger.Warn("otp delivery failed",
			zap.String("request_id", logger.RequestIDFromContext(ctx)),
			zap.String("account_id", account.ID),
			zap.String("email", logger.MaskEmail(account.Email)),
			zap.String("purpose", string(purpose)),
			zap.Error(err),
		)
		return err
	}
	return nil
}
