package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"thinkshare/internal/models"
)

var ErrAccountNotFound = errors.New("account not found")

// AccountRepository resolves account display data.
type AccountRepository interface {
	GetAccount(ctx context.Context, accountID string) (models.Account, error)
	BulkAccounts(ctx context.Context, ids []string) ([]models.Account, error)
}

// AccountRepo is a sqlx implementation of AccountRepository.
type AccountRepo struct {
	db *sqlx.DB
}

// NewAccountRepo constructs an AccountRepo.
func NewAccountRepo(db *sqlx.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

const accountColumns = `id, display_name, username, avatar_url, account_type`

// GetAccount fetches one account.
func (r *AccountRepo) GetAccount(ctx context.Context, accountID string) (models.Account, error) {
	var acc models.Account
	err := r.db.GetContext(ctx, &acc, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, accountID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Account{}, ErrAccountNotFound
	}
	return acc, err
}

// BulkAccounts fetches multiple accounts in one query. Unknown ids are skipped.
func (r *AccountRepo) BulkAccounts(ctx context.Context, ids []string) ([]models.Account, error) {
	if len(ids) == 0 {
		return []models.Account{}, nil
	}
	accounts := []models.Account{}
	err := r.db.SelectContext(ctx, &accounts, `SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1)`, pq.Array(ids))
	return accounts, err
}
