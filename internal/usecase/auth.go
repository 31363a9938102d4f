package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dmflow/auth-service/internal/core/domain"
	"github.com/dmflow/auth-service/internal/core/port"
	"github.com/dmflow/auth-service/internal/infra/logger"
	"github.com/dmflow/auth-service/internal/repository"
)

// Profile is the account view returned to clients after a successful authentication step.
type Profile struct {
	ID               string
	Name             string
	Email            string
	Role             domain.Role
	IsVerified       bool
	TwoFactorEnabled bool
	Token            string
	TokenExpiresAt   time.Time
}

// RegistrationResult describes the outcome of Register.
type RegistrationResult struct {
	Email                string
	RequiresVerification bool
	// Delivered is false when the gateway reported a failure; registration still succeeds.
	Delivered bool
}

// LoginResult is either a completed login (Profile set) or a pending 2FA step (RequiresOTP).
type LoginResult struct {
	Profile     *Profile
	RequiresOTP bool
	Email       string
}

// DisableResult is either a sent challenge or a completed disable.
type DisableResult struct {
	ChallengeSent bool
	Email         string
}

// AuthService coordinates registration, login and email-OTP two-factor flows.
type AuthService struct {
	accounts port.AccountRepository
	hasher   port.PasswordHasher
	codes    port.CodeGenerator
	mailer   port.EmailSender
	tokens   port.TokenIssuer
	metrics  port.AuthMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(
	accounts port.AccountRepository,
	hasher port.PasswordHasher,
	codes port.CodeGenerator,
	mailer port.EmailSender,
	tokens port.TokenIssuer,
) *AuthService {
	return &AuthService{
		accounts: accounts,
		hasher:   hasher,
		codes:    codes,
		mailer:   mailer,
		tokens:   tokens,
		metrics:  port.NopAuthMetrics{},
		logger:   zap.NewNop(),
		now:      time.Now,
	}
}

// WithLogger sets the structured logger.
func (s *AuthService) WithLogger(log *zap.Logger) *AuthService {
	if log != nil {
		s.logger = log
	}
	return s
}

// WithMetrics sets the flow metrics recorder.
func (s *AuthService) WithMetrics(metrics port.AuthMetrics) *AuthService {
	if metrics != nil {
		s.metrics = metrics
	}
	return s
}

// WithClock overrides the internal clock, used in tests.
func (s *AuthService) WithClock(clock func() time.Time) *AuthService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Register creates an unverified account with 2FA enabled and emails its first code.
// A failed delivery is logged and reported through Delivered; the account is kept.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (RegistrationResult, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	switch {
	case name == "":
		return RegistrationResult{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	case email == "":
		return RegistrationResult{}, fmt.Errorf("%w: email is required", ErrInvalidInput)
	case password == "":
		return RegistrationResult{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return RegistrationResult{}, ErrDuplicateEmail
	} else if !errors.Is(err, repository.ErrNotFound) {
		return RegistrationResult{}, fmt.Errorf("lookup account: %w", err)
	}

	passwordHash, err := s.hasher.Hash(password)
	if err != nil {
		return RegistrationResult{}, fmt.Errorf("hash password: %w", err)
	}

	code, err := s.codes.Generate()
	if err != nil {
		return RegistrationResult{}, fmt.Errorf("generate otp: %w", err)
	}

	now := s.now().UTC()
	account := domain.Account{
		ID:               uuid.NewString(),
		Name:             name,
		Email:            email,
		PasswordHash:     passwordHash,
		Role:             domain.RoleUser,
		IsVerified:       false,
		TwoFactorEnabled: true,
		Challenge:        domain.NewChallenge(code, now),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return RegistrationResult{}, ErrDuplicateEmail
		}
		return RegistrationResult{}, fmt.Errorf("create account: %w", err)
	}
	s.metrics.ChallengeIssued(port.PurposeRegistration)

	delivered := s.deliver(ctx, &account, code, port.PurposeRegistration) == nil

	s.logger.Info("account registered",
		zap.String("account_id", account.ID),
		zap.String("email", logger.MaskEmail(account.Email)),
		zap.Bool("otp_delivered", delivered),
	)

	return RegistrationResult{
		Email:                account.Email,
		RequiresVerification: true,
		Delivered:            delivered,
	}, nil
}

// VerifyRegistration marks the account verified when otp matches its outstanding challenge.
func (s *AuthService) VerifyRegistration(ctx context.Context, email, otp string) (Profile, error) {
	email = strings.TrimSpace(email)
	otp = strings.TrimSpace(otp)
	if email == "" || otp == "" {
		return Profile{}, fmt.Errorf("%w: email and otp are required", ErrInvalidInput)
	}

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Profile{}, ErrAccountNotFound
		}
		return Profile{}, fmt.Errorf("lookup account: %w", err)
	}

	if account.IsVerified {
		return Profile{}, ErrAlreadyVerified
	}

	if err := s.checkChallenge(account, otp, port.PurposeRegistration); err != nil {
		return Profile{}, err
	}

	account.IsVerified = true
	account.ClearChallenge()
	account.UpdatedAt = s.now().UTC()
	if err := s.accounts.Save(ctx, *account); err != nil {
		return Profile{}, fmt.Errorf("save account: %w", err)
	}

	s.logger.Info("account verified", zap.String("account_id", account.ID))

	return s.profile(account)
}

// Login authenticates email and password. With 2FA enabled, a call without otp emails a fresh
// code and returns RequiresOTP; a call with otp completes the login when the code matches.
// Verification status is checked before the password.
func (s *AuthService) Login(ctx context.Context, email, password, otp string) (LoginResult, error) {
	email = strings.TrimSpace(email)
	otp = strings.TrimSpace(otp)

	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.metrics.LoginCompleted("invalid_credentials")
			return LoginResult{}, ErrInvalidCredentials
		}
		return LoginResult{}, fmt.Errorf("lookup account: %w", err)
	}

	if !account.IsVerified {
		s.metrics.LoginCompleted("unverified")
		return LoginResult{Email: account.Email}, ErrVerificationRequired
	}

	ok, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		return LoginResult{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.metrics.LoginCompleted("invalid_credentials")
		return LoginResult{}, ErrInvalidCredentials
	}

	if account.TwoFactorEnabled {
		if otp == "" {
			code, err := s.issueChallenge(ctx, account, port.PurposeLogin)
			if err != nil {
				return LoginResult{}, err
			}
			_ = s.deliver(ctx, account, code, port.PurposeLogin)
			s.metrics.LoginCompleted("otp_required")
			return LoginResult{RequiresOTP: true, Email: account.Email}, nil
		}

		if err := s.checkChallenge(account, otp, port.PurposeLogin); err != nil {
			s.metrics.LoginCompleted("otp_rejected")
			return LoginResult{}, err
		}

		account.ClearChallenge()
		account.UpdatedAt = s.now().UTC()
		if err := s.accounts.Save(ctx, *account); err != nil {
			return LoginResult{}, fmt.Errorf("save account: %w", err)
		}
	}

	profile, err := s.profile(account)
	if err != nil {
		return LoginResult{}, err
	}
	s.metrics.LoginCompleted("success")

	return LoginResult{Profile: &profile, Email: account.Email}, nil
}

// SetupTwoFactor emails a fresh code unconditionally and returns the destination address.
// Delivery failure is returned as ErrDeliveryFailed.
func (s *AuthService) SetupTwoFactor(ctx context.Context, accountID string) (string, error) {
	account, err := s.findByID(ctx, accountID)
	if err != nil {
		return "", err
	}

	code, err := s.issueChallenge(ctx, account, port.PurposeSetup)
	if err != nil {
		return "", err
	}

	if err := s.deliver(ctx, account, code, port.PurposeSetup); err != nil {
		return "", fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	return account.Email, nil
}

// VerifyTwoFactor enables 2FA when otp matches the outstanding challenge.
func (s *AuthService) VerifyTwoFactor(ctx context.Context, accountID, otp string) error {
	account, err := s.findByID(ctx, accountID)
	if err != nil {
		return err
	}

	if err := s.checkChallenge(account, strings.TrimSpace(otp), port.PurposeSetup); err != nil {
		return err
	}

	account.ClearChallenge()
	account.TwoFactorEnabled = true
	account.UpdatedAt = s.now().UTC()
	if err := s.accounts.Save(ctx, *account); err != nil {
		return fmt.Errorf("save account: %w", err)
	}

	s.logger.Info("two-factor enabled", zap.String("account_id", account.ID))
	return nil
}

// DisableTwoFactor turns 2FA off in two steps: without otp it emails a code, with otp it
// checks the code and disables 2FA.
func (s *AuthService) DisableTwoFactor(ctx context.Context, accountID, otp string) (DisableResult, error) {
	account, err := s.findByID(ctx, accountID)
	if err != nil {
		return DisableResult{}, err
	}

	if !account.TwoFactorEnabled {
		return DisableResult{}, ErrTwoFactorNotEnabled
	}

	otp = strings.TrimSpace(otp)
	if otp == "" {
		code, err := s.issueChallenge(ctx, account, port.PurposeDisable)
		if err != nil {
			return DisableResult{}, err
		}
		_ = s.deliver(ctx, account, code, port.PurposeDisable)
		return DisableResult{ChallengeSent: true, Email: account.Email}, nil
	}

	if err := s.checkChallenge(account, otp, port.PurposeDisable); err != nil {
		return DisableResult{}, err
	}

	account.ClearChallenge()
	account.TwoFactorEnabled = false
	account.UpdatedAt = s.now().UTC()
	if err := s.accounts.Save(ctx, *account); err != nil {
		return DisableResult{}, fmt.Errorf("save account: %w", err)
	}

	s.logger.Info("two-factor disabled", zap.String("account_id", account.ID))
	return DisableResult{}, nil
}

// GetProfile returns the current account view with a newly signed token. Every call starts a
// fresh token validity window.
func (s *AuthService) GetProfile(ctx context.Context, accountID string) (Profile, error) {
	account, err := s.findByID(ctx, accountID)
	if err != nil {
		return Profile{}, err
	}
	return s.profile(account)
}

// Authenticate resolves a bearer token to the account identifier it was issued for.
func (s *AuthService) Authenticate(_ context.Context, token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrUnauthorized
	}

	accountID, err := s.tokens.Verify(token)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	return accountID, nil
}

func (s *AuthService) findByID(ctx context.Context, accountID string) (*domain.Account, error) {
	if strings.TrimSpace(accountID) == "" {
		return nil, ErrAccountNotFound
	}

	account, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	return account, nil
}

func (s *AuthService) profile(account *domain.Account) (Profile, error) {
	token, expiresAt, err := s.tokens.Issue(account.ID)
	if err != nil {
		return Profile{}, fmt.Errorf("issue token: %w", err)
	}

	return Profile{
		ID:               account.ID,
		Name:             account.Name,
		Email:            account.Email,
		Role:             account.Role,
		IsVerified:       account.IsVerified,
		TwoFactorEnabled: account.TwoFactorEnabled,
		Token:            token,
		TokenExpiresAt:   expiresAt,
	}, nil
}
