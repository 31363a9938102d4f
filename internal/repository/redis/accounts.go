package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	red "github.com/redis/go-redis/v9"

	"github.com/dmflow/auth-service/internal/core/domain"
	"github.com/dmflow/auth-service/internal/core/port"
	"github.com/dmflow/auth-service/internal/repository"
)

const defaultAccountPrefix = "auth"

// accountDocument is the JSON shape stored per account. The otp pair is written together.
type accountDocument struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"password_hash"`
	Role             string     `json:"role"`
	IsVerified       bool       `json:"is_verified"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	OTPCode          string     `json:"otp_code,omitempty"`
	OTPExpiresAt     *time.Time `json:"otp_expires_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// AccountRepository stores accounts as JSON documents in Redis with an email index.
type AccountRepository struct {
	client *red.Client
	prefix string
}

var _ port.AccountRepository = (*AccountRepository)(nil)

// NewAccountRepository constructs a repository with the provided Redis client and key prefix.
func NewAccountRepository(client *red.Client, keyPrefix string) *AccountRepository {
	prefix := strings.TrimSpace(keyPrefix)
	if prefix == "" {
		prefix = defaultAccountPrefix
	}
	return &AccountRepository{client: client, prefix: prefix}
}

// Create writes the email index and the document in one MULTI while watching the index key.
// An index entry whose document is gone is treated as free and overwritten.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) error {
	if strings.TrimSpace(account.ID) == "" || strings.TrimSpace(account.Email) == "" {
		return errors.New("account id and email are required")
	}

	payload, err := json.Marshal(toDocument(account))
	if err != nil {
		return fmt.Errorf("encode account: %w", err)
	}

	emailKey := r.emailKey(account.Email)
	err = r.client.Watch(ctx, func(tx *red.Tx) error {
		ownerID, err := tx.Get(ctx, emailKey).Result()
		switch {
		case errors.Is(err, red.Nil):
		case err != nil:
			return fmt.Errorf("redis get email index: %w", err)
		default:
			n, err := tx.Exists(ctx, r.accountKey(ownerID)).Result()
			if err != nil {
				return fmt.Errorf("redis check account: %w", err)
			}
			if n > 0 {
				return repository.ErrDuplicateEmail
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe red.Pipeliner) error {
			pipe.Set(ctx, emailKey, account.ID, 0)
			pipe.Set(ctx, r.accountKey(account.ID), payload, 0)
			return nil
		})
		return err
	}, emailKey)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrDuplicateEmail), errors.Is(err, red.TxFailedErr):
		return repository.ErrDuplicateEmail
	default:
		return fmt.Errorf("redis create account: %w", err)
	}
}

// FindByEmail resolves the email index and loads the document.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*domain.Account, error) {
	id, err := r.client.Get(ctx, r.emailKey(email)).Result()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get email index: %w", err)
	}
	return r.FindByID(ctx, id)
}

// FindByID loads the document stored for id.
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	raw, err := r.client.Get(ctx, r.accountKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, red.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("redis get account: %w", err)
	}

	var doc accountDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode account: %w", err)
	}

	account := doc.toDomain()
	return &account, nil
}

// Save rewrites the whole document. The write only succeeds if the document still exists.
func (r *AccountRepository) Save(ctx context.Context, account domain.Account) error {
	payload, err := json.Marshal(toDocument(account))
	if err != nil {
		return fmt.Errorf("encode account: %w", err)
	}

	ok, err := r.client.SetXX(ctx, r.accountKey(account.ID), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("redis save account: %w", err)
	}
	if !ok {
		return repository.ErrNotFound
	}

	return nil
}

func (r *AccountRepository) accountKey(id string) string {
	return fmt.Sprintf("%s:account:%s", r.prefix, id)
}

func (r *AccountRepository) emailKey(email string) string {
	return fmt.Sprintf("%s:email:%s", r.prefix, email)
}

func toDocument(account domain.Account) accountDocument {
	doc := accountDocument{
		ID:               account.ID,
		Name:             account.Name,
		Email:            account.Email,
		PasswordHash:     account.PasswordHash,
		Role:             string(account.Role),
		IsVerified:       account.IsVerified,
		TwoFactorEnabled: account.TwoFactorEnabled,
		CreatedAt:        account.CreatedAt,
		UpdatedAt:        account.UpdatedAt,
	}
	if ch := account.Challenge; ch != nil {
		expiresAt := ch.ExpiresAt.UTC()
		doc.OTPCode = ch.Code
		doc.OTPExpiresAt = &expiresAt
	}
	return doc
}

func (d accountDocument) toDomain() domain.Account {
	account := domain.Account{
		ID:               d.ID,
		Name:             d.Name,
		Email:            d.Email,
		PasswordHash:     d.PasswordHash,
		Role:             domain.Role(d.Role),
		IsVerified:       d.IsVerified,
		TwoFactorEnabled: d.TwoFactorEnabled,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
	if d.OTPCode != "" && d.OTPExpiresAt != nil {
		account.Challenge = &domain.Challenge{Code: d.OTPCode, ExpiresAt: d.OTPExpiresAt.UTC()}
	}
	return account
}
