package memory

import (
	"context"
	"sync"

	"github.com/dmflow/auth-service/internal/core/domain"
	"github.com/dmflow/auth-service/internal/core/port"
	"github.com/dmflow/auth-service/internal/repository"
)

// AccountRepository keeps accounts in process memory. Callers always receive copies.
type AccountRepository struct {
	mu      sync.RWMutex
	byID    map[string]domain.Account
	byEmail map[string]string
}

var _ port.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository returns an empty store.
func NewAccountRepository() *AccountRepository {
	return &AccountRepository{
		byID:    make(map[string]domain.Account),
		byEmail: make(map[string]string),
	}
}

func (r *AccountRepository) Create(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byEmail[account.Email]; taken {
		return repository.ErrDuplicateEmail
	}
	r.byID[account.ID] = account.Clone()
	r.byEmail[account.Email] = account.ID
	return nil
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	r.mu.RLock()
	id, ok := r.byEmail[email]
	r.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *AccountRepository) FindByID(_ context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := account.Clone()
	return &out, nil
}

// Save replaces the stored account. Email is immutable and is kept from the stored copy.
func (r *AccountRepository) Save(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.byID[account.ID]
	if !ok {
		return repository.ErrNotFound
	}
	account.Email = current.Email
	r.byID[account.ID] = account.Clone()
	return nil
}

// Ping always succeeds; it lets the store take part in readiness checks.
func (r *AccountRepository) Ping(context.Context) error { return nil }
