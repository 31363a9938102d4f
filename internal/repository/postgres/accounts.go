package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmflow/auth-service/internal/core/domain"
	"github.com/dmflow/auth-service/internal/core/port"
	"github.com/dmflow/auth-service/internal/repository"
)

const (
	accountsTable = "accounts"

	uniqueViolation = "23505"
)

var accountColumns = []string{
	"id",
	"name",
	"email",
	"password_hash",
	"role",
	"is_verified",
	"two_factor_enabled",
	"otp_code",
	"otp_expires_at",
	"created_at",
	"updated_at",
}

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// AccountRepository implements port.AccountRepository backed by PostgreSQL.
type AccountRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

var _ port.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAccountRepository(exec pgExecutor) *AccountRepository {
	return &AccountRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new account row.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) error {
	code, expiresAt := challengeColumns(account.Challenge)

	stmt, args, err := r.builder.Insert(accountsTable).
		Columns(accountColumns...).
		Values(
			account.ID,
			account.Name,
			account.Email,
			account.PasswordHash,
			string(account.Role),
			account.IsVerified,
			account.TwoFactorEnabled,
			code,
			expiresAt,
			account.CreatedAt,
			account.UpdatedAt,
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return repository.ErrDuplicateEmail
		}
		return fmt.Errorf("insert account: %w", err)
	}

	return nil
}

// FindByEmail retrieves an account by its exact email.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	return r.findOne(ctx, squirrel.Eq{"email": email})
}

// FindByID retrieves an account by identifier.
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.findOne(ctx, squirrel.Eq{"id": id})
}

// Save updates the mutable fields of an account. The challenge columns are always written together.
func (r *AccountRepository) Save(ctx context.Context, account domain.Account) error {
	code, expiresAt := challengeColumns(account.Challenge)

	stmt, args, err := r.builder.Update(accountsTable).
		Set("name", account.Name).
		Set("password_hash", account.PasswordHash).
		Set("role", string(account.Role)).
		Set("is_verified", account.IsVerified).
		Set("two_factor_enabled", account.TwoFactorEnabled).
		Set("otp_code", code).
		Set("otp_expires_at", expiresAt).
		Set("updated_at", account.UpdatedAt).
		Where(squirrel.Eq{"id": account.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update account sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func (r *AccountRepository) findOne(ctx context.Context, pred squirrel.Eq) (*domain.Account, error) {
	stmt, args, err := r.builder.
		Select(accountColumns...).
		From(accountsTable).
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	var (
		account   domain.Account
		role      string
		code      *string
		expiresAt *time.Time
	)

	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&account.ID,
		&account.Name,
		&account.Email,
		&account.PasswordHash,
		&role,
		&account.IsVerified,
		&account.TwoFactorEnabled,
		&code,
		&expiresAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	account.Role = domain.Role(role)
	if code != nil && *code != "" && expiresAt != nil {
		account.Challenge = &domain.Challenge{Code: *code, ExpiresAt: expiresAt.UTC()}
	}

	return &account, nil
}

func challengeColumns(ch *domain.Challenge) (any, any) {
	if ch == nil {
		return nil, nil
	}
	return ch.Code, ch.ExpiresAt
}
