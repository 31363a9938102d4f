package port

import (
	"context"

	"github.com/dmflow/auth-service/internal/core/domain"
)

// AccountRepository exposes persistence behavior for accounts.
type AccountRepository interface {
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	Create(ctx context.Context, account domain.Account) error
	Save(ctx context.Context, account domain.Account) error
}
