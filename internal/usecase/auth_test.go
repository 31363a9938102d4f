package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dmflow/auth-service/internal/core/domain"
	"github.com/dmflow/auth-service/internal/infra/security"
	"github.com/dmflow/auth-service/internal/repository"
)

type fakeAccountStore struct {
	mu       sync.Mutex
	byID     map[string]domain.Account
	saves    int
	saveErr  error
	findErr  error
	snapshot []domain.Account
}

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{byID: make(map[string]domain.Account)}
}

func (f *fakeAccountStore) FindByEmail(_ context.Context, email string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	for _, acc := range f.byID {
		if acc.Email == email {
			out := acc.Clone()
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeAccountStore) FindByID(_ context.Context, id string) (*domain.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := acc.Clone()
	return &out, nil
}

func (f *fakeAccountStore) Create(_ context.Context, account domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, acc := range f.byID {
		if acc.Email == account.Email {
			return repository.ErrDuplicateEmail
		}
	}
	f.byID[account.ID] = account.Clone()
	f.snapshot = append(f.snapshot, account.Clone())
	return nil
}

func (f *fakeAccountStore) Save(_ context.Context, account domain.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	if _, ok := f.byID[account.ID]; !ok {
		return repository.ErrNotFound
	}
	f.byID[account.ID] = account.Clone()
	f.snapshot = append(f.snapshot, account.Clone())
	return nil
}

func (f *fakeAccountStore) get(t *testing.T, email string) domain.Account {
	t.Helper()
	acc, err := f.FindByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("account %s not stored: %v", email, err)
	}
	return *acc
}

type sentOTP struct {
	to   string
	code string
	name string
}

type recordingSender struct {
	sent []sentOTP
	err  error
}

func (r *recordingSender) SendOTP(_ context.Context, to, code, recipientName string) error {
	r.sent = append(r.sent, sentOTP{to: to, code: code, name: recipientName})
	return r.err
}

func (r *recordingSender) last(t *testing.T) sentOTP {
	t.Helper()
	if len(r.sent) == 0 {
		t.Fatal("expected an email to be sent")
	}
	return r.sent[len(r.sent)-1]
}

type sequenceCodes struct {
	next int
	err  error
}

func (s *sequenceCodes) Generate() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.next++
	return fmt.Sprintf("%06d", 100000+s.next), nil
}

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }

func (plainHasher) Verify(password, encoded string) (bool, error) {
	return encoded == "plain:"+password, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type authFixture struct {
	svc    *AuthService
	store  *fakeAccountStore
	mail   *recordingSender
	clock  *fakeClock
	tokens *security.SessionTokenIssuer
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	tokens, err := security.NewSessionTokenIssuer("test-secret", security.DefaultSessionTTL)
	if err != nil {
		t.Fatalf("NewSessionTokenIssuer: %v", err)
	}
	tokens.WithClock(clock.Now)

	store := newFakeAccountStore()
	mail := &recordingSender{}
	svc := NewAuthService(store, plainHasher{}, &sequenceCodes{}, mail, tokens).WithClock(clock.Now)

	return &authFixture{svc: svc, store: store, mail: mail, clock: clock, tokens: tokens}
}

// registerVerified registers an account and completes verification with the emailed code.
func (f *authFixture) registerVerified(t *testing.T, name, email, password string) Profile {
	t.Helper()
	ctx := context.Background()
	if _, err := f.svc.Register(ctx, name, email, password); err != nil {
		t.Fatalf("Register: %v", err)
	}
	profile, err := f.svc.VerifyRegistration(ctx, email, f.mail.last(t).code)
	if err != nil {
		t.Fatalf("VerifyRegistration: %v", err)
	}
	return profile
}

func assertChallengeInvariant(t *testing.T, store *fakeAccountStore) {
	t.Helper()
	for _, acc := range store.snapshot {
		if acc.Challenge == nil {
			continue
		}
		if acc.Challenge.Code == "" || acc.Challenge.ExpiresAt.IsZero() {
			t.Fatalf("half-populated challenge persisted: %+v", acc.Challenge)
		}
	}
}

func TestRegisterCreatesUnverifiedAccountAndSendsCode(t *testing.T) {
	f := newAuthFixture(t)

	res, err := f.svc.Register(context.Background(), "Alice", "alice@x.com", "pw123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Email != "alice@x.com" || !res.RequiresVerification || !res.Delivered {
		t.Fatalf("unexpected result: %+v", res)
	}

	acc := f.store.get(t, "alice@x.com")
	if acc.IsVerified {
		t.Fatal("new account must be unverified")
	}
	if !acc.TwoFactorEnabled {
		t.Fatal("new account must have 2FA enabled")
	}
	if acc.Role != domain.RoleUser {
		t.Fatalf("unexpected role %q", acc.Role)
	}
	if acc.Challenge == nil {
		t.Fatal("expected registration challenge")
	}
	if want := f.clock.now.Add(10 * time.Minute); !acc.Challenge.ExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, acc.Challenge.ExpiresAt)
	}

	sent := f.mail.last(t)
	if sent.to != "alice@x.com" || sent.name != "Alice" || sent.code != acc.Challenge.Code {
		t.Fatalf("unexpected delivery: %+v", sent)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, "Alice", "alice@x.com", "pw123"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := f.svc.Register(ctx, "Alice Again", "alice@x.com", "other"); !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestRegisterSurvivesDeliveryFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.mail.err = errors.New("smtp down")

	res, err := f.svc.Register(context.Background(), "Alice", "alice@x.com", "pw123")
	if err != nil {
		t.Fatalf("registration must not fail on delivery error: %v", err)
	}
	if res.Delivered {
		t.Fatal("expected Delivered=false")
	}
	if !res.RequiresVerification {
		t.Fatal("expected RequiresVerification")
	}
	f.store.get(t, "alice@x.com")
}

func TestRegisterRejectsMissingFields(t *testing.T) {
	f := newAuthFixture(t)

	if _, err := f.svc.Register(context.Background(), "", "alice@x.com", "pw"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if len(f.mail.sent) != 0 {
		t.Fatal("no email expected for invalid input")
	}
}

func TestVerifyRegistrationTwiceReturnsAlreadyVerified(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if _, err := f.svc.Register(ctx, "Alice", "alice@x.com", "pw123"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	code := f.mail.last(t).code

	profile, err := f.svc.VerifyRegistration(ctx, "alice@x.com", code)
	if err != nil {
		t.Fatalf("VerifyRegistration: %v", err)
	}
	if !profile.IsVerified || profile.Token == "" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if f.store.get(t, "alice@x.com").Challenge != nil {
		t.Fatal("challenge must be cleared after verification")
	}

	if _, err := f.svc.VerifyRegistration(ctx, "alice@x.com", code); !errors.Is(err, ErrAlreadyVerified) {
		t.Fatalf("expected ErrAlreadyVerified, got %v", err)
	}
}

func TestVerifyRegistrationOrderedErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown account", func(t *testing.T) {
		f := newAuthFixture(t)
		if _, err := f.svc.VerifyRegistration(ctx, "ghost@x.com", "123456"); !errors.Is(err, ErrAccountNotFound) {
			t.Fatalf("expected ErrAccountNotFound, got %v", err)
		}
	})

	t.Run("no challenge", func(t *testing.T) {
		f := newAuthFixture(t)
		if _, err := f.svc.Register(ctx, "Alice", "alice@x.com", "pw123"); err != nil {
			t.Fatalf("Register: %v", err)
		}
		acc := f.store.get(t, "alice@x.com")
		acc.ClearChallenge()
		if err := f.store.Save(ctx, acc); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if _, err := f.svc.VerifyRegistration(ctx, "alice@x.com", "123456"); !errors.Is(err, ErrNoChallenge) {
			t.Fatalf("expected ErrNoChallenge, got %v", err)
		}
	})

	t.Run("expired beats matching code", func(t *testing.T) {
		f := newAuthFixture(t)
		if _, err := f.svc.Register(ctx, "Alice", "alice@x.com", "pw123"); err != nil {
			t.Fatalf("Register: %v", err)
		}
		code := f.mail.last(t).code
		f.clock.Advance(11 * time.Minute)
		if _, err := f.svc.VerifyRegistration(ctx, "alice@x.com", code); !errors.Is(err, ErrChallengeExpired) {
			t.Fatalf("expected ErrChallengeExpired, got %v", err)
		}
	})

	t.Run("still valid at the expiry instant", func(t *testing.T) {
		f := newAuthFixture(t)
		if _, err := f.svc.Register(ctx, "Alice", "alice@x.com", "pw123"); err != nil {
			t.Fatalf("Register: %v", err)
		}
		code := f.mail.last(t).code
		f.clock.Advance(10 * time.Minute)
		if _, err := f.svc.VerifyRegistration(ctx, "alice@x.com", code); err != nil {
			t.Fatalf("expected success at the expiry instant, got %v", err)
		}
	})

	t.Run("mismatch", func(t *testing.T) {
		f := newAuthFixture(t)
		if _, err := f.svc.Register(ctx, "Alice", "alice@x.com", "pw123"); err != nil {
			t.Fatalf("Register: %v", err)
		}
		if _, err := f.svc.VerifyRegistration(ctx, "alice@x.com", "000000"); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("expected ErrCodeMismatch, got %v", err)
		}
	})
}

func TestLoginBeforeVerificationRequiresVerification(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.svc.Register(ctx, "Alice", "alice@x.com", "pw123")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if res.Email != "alice@x.com" || !res.RequiresVerification {
		t.Fatalf("unexpected registration result: %+v", res)
	}

	login, err := f.svc.Login(ctx, "alice@x.com", "pw123", "")
	if !errors.Is(err, ErrVerificationRequired) {
		t.Fatalf("expected ErrVerificationRequired, got %v", err)
	}
	if login.Email != "alice@x.com" {
		t.Fatalf("expected email on verification-required result, got %+v", login)
	}

	if _, err := f.svc.Login(ctx, "alice@x.com", "wrong", ""); !errors.Is(err, ErrVerificationRequired) {
		t.Fatalf("verification must be checked before the password, got %v", err)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "Alice", "alice@x.com", "pw123")

	if _, err := f.svc.Login(ctx, "ghost@x.com", "pw123", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
	if _, err := f.svc.Login(ctx, "alice@x.com", "nope", ""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
}

func TestLoginWithoutTwoFactorReturnsVerifiableToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	profile := f.registerVerified(t, "Alice", "alice@x.com", "pw123")

	acc := f.store.get(t, "alice@x.com")
	acc.TwoFactorEnabled = false
	if err := f.store.Save(ctx, acc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	sentBefore := len(f.mail.sent)

	res, err := f.svc.Login(ctx, "alice@x.com", "pw123", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.RequiresOTP || res.Profile == nil {
		t.Fatalf("expected immediate profile, got %+v", res)
	}
	if len(f.mail.sent) != sentBefore {
		t.Fatal("no OTP round-trip expected when 2FA is off")
	}

	id, err := f.tokens.Verify(res.Profile.Token)
	if err != nil {
		t.Fatalf("token must verify: %v", err)
	}
	if id != profile.ID {
		t.Fatalf("token subject %q, want %q", id, profile.ID)
	}
}

func TestLoginTwoFactorRoundTrip(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "Alice", "alice@x.com", "pw123")

	first, err := f.svc.Login(ctx, "alice@x.com", "pw123", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !first.RequiresOTP || first.Email != "alice@x.com" || first.Profile != nil {
		t.Fatalf("expected OTP requirement, got %+v", first)
	}
	if state := f.store.get(t, "alice@x.com"); state.LoginState(f.clock.now) != domain.LoginStateVerifiedOTPPending {
		t.Fatalf("expected pending state, got %s", state.LoginState(f.clock.now))
	}

	code := f.mail.last(t).code
	second, err := f.svc.Login(ctx, "alice@x.com", "pw123", code)
	if err != nil {
		t.Fatalf("Login with code: %v", err)
	}
	if second.Profile == nil || second.Profile.Token == "" {
		t.Fatalf("expected profile with token, got %+v", second)
	}

	_, err = f.svc.Login(ctx, "alice@x.com", "pw123", code)
	if !errors.Is(err, ErrNoChallenge) && !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("reused code must be rejected, got %v", err)
	}
	assertChallengeInvariant(t, f.store)
}

func TestLoginIgnoresDeliveryFailure(t *testing.T) {
	f := newAuthFixture(t)
	f.registerVerified(t, "Alice", "alice@x.com", "pw123")
	f.mail.err = errors.New("smtp down")

	res, err := f.svc.Login(context.Background(), "alice@x.com", "pw123", "")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !res.RequiresOTP {
		t.Fatalf("expected OTP requirement, got %+v", res)
	}
}

func TestLoginNewChallengeReplacesPrevious(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.registerVerified(t, "Alice", "alice@x.com", "pw123")

	if _, err := f.svc.Login(ctx, "alice@x.com", "pw123", ""); err != nil {
		t.Fatalf("Login: %v", err)
	}
	stale := f.mail.last(t).code
	if _, err := f.svc.Login(ctx, "alice@x.com", "pw123", ""); err != nil {
		t.Fatalf("Login: %v", err)
	}

	if _, err := f.svc.Login(ctx, "alice@x.com", "pw123", stale); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected overwritten code to mismatch, got %v", err)
	}
}

func TestSetupAndVerifyTwoFactor(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	profile := f.registerVerified(t, "Alice", "alice@x.com", "pw123")

	acc := f.store.get(t, "alice@x.com")
	acc.TwoFactorEnabled = false
	if err := f.store.Save(ctx, acc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	email, err := f.svc.SetupTwoFactor(ctx, profile.ID)
	if err != nil {
		t.Fatalf("SetupTwoFactor: %v", err)
	}
	if email != "alice@x.com" {
		t.Fatalf("unexpected email %q", email)
	}

	if err := f.svc.VerifyTwoFactor(ctx, profile.ID, "999999"); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}
	if err := f.svc.VerifyTwoFactor(ctx, profile.ID, f.mail.last(t).code); err != nil {
		t.Fatalf("VerifyTwoFactor: %v", err)
	}

	acc = f.store.get(t, "alice@x.com")
	if !acc.TwoFactorEnabled || acc.Challenge != nil {
		t.Fatalf("expected 2FA enabled and challenge cleared, got %+v", acc)
	}
}

func TestSetupTwoFactorSurfacesDeliveryFailure(t *testing.T) {
	f := newAuthFixture(t)
	profile := f.registerVerified(t, "Alice", "alice@x.com", "pw123")
	f.mail.err = errors.New("smtp down")

	if _, err := f.svc.SetupTwoFactor(context.Background(), profile.ID); !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("expected ErrDeliveryFailed, got %v", err)
	}
}

func TestSetupTwoFactorUnknownAccount(t *testing.T) {
	f := newAuthFixture(t)
	if _, err := f.svc.SetupTwoFactor(context.Background(), "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestDisableTwoFactorFlow(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	profile := f.registerVerified(t, "Alice", "alice@x.com", "pw123")

	res, err := f.svc.DisableTwoFactor(ctx, profile.ID, "")
	if err != nil {
		t.Fatalf("DisableTwoFactor: %v", err)
	}
	if !res.ChallengeSent || res.Email != "alice@x.com" {
		t.Fatalf("unexpected result: %+v", res)
	}

	res, err = f.svc.DisableTwoFactor(ctx, profile.ID, f.mail.last(t).code)
	if err != nil {
		t.Fatalf("DisableTwoFactor with code: %v", err)
	}
	if res.ChallengeSent {
		t.Fatal("completion must not report a sent challenge")
	}

	acc := f.store.get(t, "alice@x.com")
	if acc.TwoFactorEnabled || acc.Challenge != nil {
		t.Fatalf("expected 2FA disabled and challenge cleared, got %+v", acc)
	}
}

func TestDisableTwoFactorWhenNotEnabled(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	profile := f.registerVerified(t, "Alice", "alice@x.com", "pw123")

	acc := f.store.get(t, "alice@x.com")
	acc.TwoFactorEnabled = false
	if err := f.store.Save(ctx, acc); err != nil {
		t.Fatalf("Save: %v", err)
	}
	sentBefore := len(f.mail.sent)

	if _, err := f.svc.DisableTwoFactor(ctx, profile.ID, ""); !errors.Is(err, ErrTwoFactorNotEnabled) {
		t.Fatalf("expected ErrTwoFactorNotEnabled, got %v", err)
	}
	if f.store.get(t, "alice@x.com").Challenge != nil {
		t.Fatal("no challenge may be created when 2FA is off")
	}
	if len(f.mail.sent) != sentBefore {
		t.Fatal("no email may be sent when 2FA is off")
	}
}

func TestGetProfileMintsFreshToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	profile := f.registerVerified(t, "Alice", "alice@x.com", "pw123")

	f.clock.Advance(time.Hour)
	fetched, err := f.svc.GetProfile(ctx, profile.ID)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if fetched.Token == profile.Token {
		t.Fatal("expected a newly signed token")
	}
	if want := f.clock.now.Add(security.DefaultSessionTTL); !fetched.TokenExpiresAt.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, fetched.TokenExpiresAt)
	}
}

func TestAuthenticate(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	profile := f.registerVerified(t, "Alice", "alice@x.com", "pw123")

	id, err := f.svc.Authenticate(ctx, profile.Token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id != profile.ID {
		t.Fatalf("unexpected id %q", id)
	}

	if _, err := f.svc.Authenticate(ctx, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for empty token, got %v", err)
	}
	if _, err := f.svc.Authenticate(ctx, "garbage"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for garbage token, got %v", err)
	}

	f.clock.Advance(security.DefaultSessionTTL + time.Second)
	_, err = f.svc.Authenticate(ctx, profile.Token)
	if !errors.Is(err, ErrUnauthorized) || !errors.Is(err, security.ErrExpiredToken) {
		t.Fatalf("expected expired token error, got %v", err)
	}
}

func TestChallengeInvariantAcrossFlows(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	profile := f.registerVerified(t, "Alice", "alice@x.com", "pw123")

	if _, err := f.svc.Login(ctx, "alice@x.com", "pw123", ""); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if _, err := f.svc.SetupTwoFactor(ctx, profile.ID); err != nil {
		t.Fatalf("SetupTwoFactor: %v", err)
	}
	if err := f.svc.VerifyTwoFactor(ctx, profile.ID, f.mail.last(t).code); err != nil {
		t.Fatalf("VerifyTwoFactor: %v", err)
	}
	if _, err := f.svc.DisableTwoFactor(ctx, profile.ID, ""); err != nil {
		t.Fatalf("DisableTwoFactor: %v", err)
	}

	assertChallengeInvariant(t, f.store)
	for _, acc := range f.store.snapshot {
		if acc.Challenge != nil && !acc.Challenge.ExpiresAt.Equal(acc.UpdatedAt.Add(domain.ChallengeTTL)) {
			t.Fatalf("challenge expiry %v not issue time + 10m (%v)", acc.Challenge.ExpiresAt, acc.UpdatedAt)
		}
	}
}

func TestStoreFailureIsWrapped(t *testing.T) {
	f := newAuthFixture(t)
	boom := errors.New("connection reset")
	f.store.findErr = boom

	_, err := f.svc.Login(context.Background(), "alice@x.com", "pw123", "")
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("store failures must not look like credential errors")
	}
}
