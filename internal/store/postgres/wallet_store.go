package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xtrenches/trenchbot/internal/domain"
)

// WalletStore implements domain.WalletStore using PostgreSQL.
type WalletStore struct {
	pool *pgxpool.Pool
}

// NewWalletStore creates a new WalletStore backed by the given connection pool.
func NewWalletStore(pool *pgxpool.Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

const walletSelectCols = `id, user_id, public_key, encrypted_private_key, label, active, created_at`

func scanWalletRow(row pgx.Row) (domain.Wallet, error) {
	var w domain.Wallet
	err := row.Scan(
		&w.ID, &w.UserID, &w.PublicKey, &w.EncryptedPrivateKey,
		&w.Label, &w.Active, &w.CreatedAt,
	)
	return w, err
}

// Create inserts a new wallet.
func (s *WalletStore) Create(ctx context.Context, w domain.Wallet) error {
	const query = `
		INSERT INTO wallets (
			id, user_id, public_key, encrypted_private_key, label, active, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, query,
		w.ID, w.UserID, w.PublicKey, w.EncryptedPrivateKey, w.Label, w.Active, w.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create wallet %s: %w", w.ID, err)
	}
	return nil
}

// GetByID retrieves a wallet by its ID.
func (s *WalletStore) GetByID(ctx context.Context, id string) (domain.Wallet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+walletSelectCols+` FROM wallets WHERE id = $1`, id)

	w, err := scanWalletRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Wallet{}, domain.ErrNotFound
		}
		return domain.Wallet{}, fmt.Errorf("postgres: get wallet %s: %w", id, err)
	}
	return w, nil
}

// GetByAddress retrieves a wallet by its public key.
func (s *WalletStore) GetByAddress(ctx context.Context, publicKey string) (domain.Wallet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+walletSelectCols+` FROM wallets WHERE public_key = $1`, publicKey)

	w, err := scanWalletRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Wallet{}, domain.ErrNotFound
		}
		return domain.Wallet{}, fmt.Errorf("postgres: get wallet by address: %w", err)
	}
	return w, nil
}

// GetActive returns the user's active wallet.
func (s *WalletStore) GetActive(ctx context.Context, userID string) (domain.Wallet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+walletSelectCols+` FROM wallets WHERE user_id = $1 AND active`, userID)

	w, err := scanWalletRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Wallet{}, domain.ErrNotFound
		}
		return domain.Wallet{}, fmt.Errorf("postgres: get active wallet for %s: %w", userID, err)
	}
	return w, nil
}

// ListByUser returns all of a user's wallets, oldest first.
func (s *WalletStore) ListByUser(ctx context.Context, userID string) ([]domain.Wallet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+walletSelectCols+` FROM wallets
		 WHERE user_id = $1
		 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wallets for %s: %w", userID, err)
	}
	defer rows.Close()

	var wallets []domain.Wallet
	for rows.Next() {
		var w domain.Wallet
		if err := rows.Scan(
			&w.ID, &w.UserID, &w.PublicKey, &w.EncryptedPrivateKey,
			&w.Label, &w.Active, &w.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan wallets: %w", err)
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// CountByUser returns how many wallets the user has.
func (s *WalletStore) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM wallets WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count wallets for %s: %w", userID, err)
	}
	return n, nil
}

// SetActive marks the given wallet active and deactivates the user's other
// wallets in a single transaction.
func (s *WalletStore) SetActive(ctx context.Context, userID, walletID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: set active wallet: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`UPDATE wallets SET active = FALSE WHERE user_id = $1 AND active`, userID); err != nil {
		return fmt.Errorf("postgres: deactivate wallets: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE wallets SET active = TRUE WHERE id = $1 AND user_id = $2`, walletID, userID)
	if err != nil {
		return fmt.Errorf("postgres: activate wallet %s: %w", walletID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: set active wallet: commit: %w", err)
	}
	return nil
}

// Delete removes a wallet. Ownership is checked in the WHERE clause.
func (s *WalletStore) Delete(ctx context.Context, userID, walletID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM wallets WHERE id = $1 AND user_id = $2`, walletID, userID)
	if err != nil {
		return fmt.Errorf("postgres: delete wallet %s: %w", walletID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Compile-time interface check.
var _ domain.WalletStore = (*WalletStore)(nil)
