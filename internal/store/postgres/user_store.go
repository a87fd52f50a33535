package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xtrenches/trenchbot/internal/domain"
)

// UserStore implements domain.UserStore using PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore backed by the given connection pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userSelectCols = `id, telegram_id, pin_hash, auto_take_profit, auto_stop_loss, created_at`

func scanUserRow(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.ID, &u.TelegramID, &u.PinHash,
		&u.AutoTakeProfit, &u.AutoStopLoss, &u.CreatedAt,
	)
	return u, err
}

// Create inserts a new user. Inserting the same Telegram account twice
// returns domain.ErrAlreadyExists.
func (s *UserStore) Create(ctx context.Context, u domain.User) error {
	const query = `
		INSERT INTO users (
			id, telegram_id, pin_hash, auto_take_profit, auto_stop_loss,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, NOW())`

	_, err := s.pool.Exec(ctx, query,
		u.ID, u.TelegramID, u.PinHash, u.AutoTakeProfit, u.AutoStopLoss, u.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: create user %s: %w", u.ID, err)
	}
	return nil
}

// GetByID retrieves a user by their internal ID.
func (s *UserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userSelectCols+` FROM users WHERE id = $1`, id)

	u, err := scanUserRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", id, err)
	}
	return u, nil
}

// GetByTelegramID retrieves a user by their Telegram account ID.
func (s *UserStore) GetByTelegramID(ctx context.Context, telegramID int64) (domain.User, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+userSelectCols+` FROM users WHERE telegram_id = $1`, telegramID)

	u, err := scanUserRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("postgres: get user by telegram id %d: %w", telegramID, err)
	}
	return u, nil
}

// UpdateSettings applies the non-nil fields of the patch. The SET clause is
// built dynamically so untouched columns keep their values.
func (s *UserStore) UpdateSettings(ctx context.Context, id string, patch domain.UserPatch) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{id}
	argIdx := 2

	if patch.PinHash != nil {
		sets = append(sets, fmt.Sprintf("pin_hash = $%d", argIdx))
		args = append(args, *patch.PinHash)
		argIdx++
	}
	if patch.AutoTakeProfit != nil {
		sets = append(sets, fmt.Sprintf("auto_take_profit = $%d", argIdx))
		args = append(args, *patch.AutoTakeProfit)
		argIdx++
	}
	if patch.AutoStopLoss != nil {
		sets = append(sets, fmt.Sprintf("auto_stop_loss = $%d", argIdx))
		args = append(args, *patch.AutoStopLoss)
	}

	query := "UPDATE users SET "
	for i, set := range sets {
		if i > 0 {
			query += ", "
		}
		query += set
	}
	query += " WHERE id = $1"

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: update user settings %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Count returns the total number of registered users.
func (s *UserStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count users: %w", err)
	}
	return n, nil
}

// Compile-time interface check.
var _ domain.UserStore = (*UserStore)(nil)
