package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-originality-api/internal/models"
)

// AccountRepository stores service accounts for API clients.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository constructs the repository.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// FindByClientID loads one service account.
func (r *AccountRepository) FindByClientID(ctx context.Context, clientID string) (*models.ServiceAccount, error) {
	const query = `SELECT id, client_id, secret_hash, role, active, created_at, last_used_at
	FROM service_accounts WHERE client_id = $1`
	var account models.ServiceAccount
	if err := r.db.GetContext(ctx, &account, query, clientID); err != nil {
		return nil, err
	}
	return &account, nil
}

// TouchLastUsed records successful authentication.
func (r *AccountRepository) TouchLastUsed(ctx context.Context, id string, ts time.Time) error {
	const query = `UPDATE service_accounts SET last_used_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, ts); err != nil {
		return fmt.Errorf("touch service account: %w", err)
	}
	return nil
}
