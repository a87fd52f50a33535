package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xtrenches/trenchbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, user_id, wallet_address, token_address,
	entry_price, amount_sol, token_amount, status,
	opened_at, closed_at, exit_price, pnl_sol, pnl_percent`

func scanTradeRow(row pgx.Row) (domain.Trade, error) {
	var t domain.Trade
	var status string

	err := row.Scan(
		&t.ID, &t.UserID, &t.WalletAddress, &t.TokenAddress,
		&t.EntryPrice, &t.AmountSol, &t.TokenAmount, &status,
		&t.OpenedAt, &t.ClosedAt, &t.ExitPrice, &t.PnlSol, &t.PnlPercent,
	)
	if err != nil {
		return domain.Trade{}, err
	}
	t.Status = domain.TradeStatus(status)
	return t, nil
}

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		var status string

		if err := rows.Scan(
			&t.ID, &t.UserID, &t.WalletAddress, &t.TokenAddress,
			&t.EntryPrice, &t.AmountSol, &t.TokenAmount, &status,
			&t.OpenedAt, &t.ClosedAt, &t.ExitPrice, &t.PnlSol, &t.PnlPercent,
		); err != nil {
			return nil, err
		}
		t.Status = domain.TradeStatus(status)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Create inserts a new trade. A unique partial index on
// (user_id, token_address) WHERE status = 'open' backs the one-open-trade
// rule; violations surface as domain.ErrPositionOpen.
func (s *TradeStore) Create(ctx context.Context, t domain.Trade) error {
	const query = `
		INSERT INTO trades (
			id, user_id, wallet_address, token_address,
			entry_price, amount_sol, token_amount, status,
			opened_at, closed_at, exit_price, pnl_sol, pnl_percent, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12, $13, NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		t.ID, t.UserID, t.WalletAddress, t.TokenAddress,
		t.EntryPrice, t.AmountSol, t.TokenAmount, string(t.Status),
		t.OpenedAt, t.ClosedAt, t.ExitPrice, t.PnlSol, t.PnlPercent,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrPositionOpen
		}
		return fmt.Errorf("postgres: create trade %s: %w", t.ID, err)
	}
	return nil
}

// GetByID retrieves a single trade by its ID.
func (s *TradeStore) GetByID(ctx context.Context, id string) (domain.Trade, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tradeSelectCols+` FROM trades WHERE id = $1`, id)

	t, err := scanTradeRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trade{}, domain.ErrNotFound
		}
		return domain.Trade{}, fmt.Errorf("postgres: get trade %s: %w", id, err)
	}
	return t, nil
}

// GetOpenByUser returns all open trades for the given user, newest first.
func (s *TradeStore) GetOpenByUser(ctx context.Context, userID string) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 WHERE user_id = $1 AND status = 'open'
		 ORDER BY opened_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres: get open trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open trades: %w", err)
	}
	return trades, nil
}

// GetOpenByToken returns the user's open trade for a token.
func (s *TradeStore) GetOpenByToken(ctx context.Context, userID, tokenAddress string) (domain.Trade, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 WHERE user_id = $1 AND token_address = $2 AND status = 'open'`,
		userID, tokenAddress)

	t, err := scanTradeRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trade{}, domain.ErrNotFound
		}
		return domain.Trade{}, fmt.Errorf("postgres: get open trade for token %s: %w", tokenAddress, err)
	}
	return t, nil
}

// GetAllOpen returns every open trade across all users, newest first.
func (s *TradeStore) GetAllOpen(ctx context.Context) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 WHERE status = 'open'
		 ORDER BY opened_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: get all open trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan all open trades: %w", err)
	}
	return trades, nil
}

// GetClosed returns the user's most recently closed trades.
func (s *TradeStore) GetClosed(ctx context.Context, userID string, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 WHERE user_id = $1 AND status = 'closed'
		 ORDER BY closed_at DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: get closed trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan closed trades: %w", err)
	}
	return trades, nil
}

// Close marks a trade as closed, recording exit price and realized PNL. The
// status guard in the WHERE clause makes the open -> closed transition happen
// at most once even when a manual sell and the monitor race; the loser sees
// domain.ErrAlreadyClosed.
func (s *TradeStore) Close(ctx context.Context, id string, exitPrice, pnlSol, pnlPercent float64) error {
	const query = `
		UPDATE trades SET
			status      = 'closed',
			exit_price  = $2,
			pnl_sol     = $3,
			pnl_percent = $4,
			closed_at   = NOW(),
			updated_at  = NOW()
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query, id, exitPrice, pnlSol, pnlPercent)
	if err != nil {
		return fmt.Errorf("postgres: close trade %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyClosed
	}
	return nil
}

// Reduce replaces the remaining size of an open trade after a partial sell.
func (s *TradeStore) Reduce(ctx context.Context, id string, tokenAmount, amountSol float64) error {
	const query = `
		UPDATE trades SET
			token_amount = $2,
			amount_sol   = $3,
			updated_at   = NOW()
		WHERE id = $1 AND status = 'open'`

	tag, err := s.pool.Exec(ctx, query, id, tokenAmount, amountSol)
	if err != nil {
		return fmt.Errorf("postgres: reduce trade %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrAlreadyClosed
	}
	return nil
}

// ListClosedBefore returns closed trades whose close time is before the cutoff.
func (s *TradeStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 WHERE status = 'closed' AND closed_at < $1
		 ORDER BY closed_at ASC`, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list closed trades: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan archivable trades: %w", err)
	}
	return trades, nil
}

// DeleteClosedBefore removes archived trades older than the cutoff.
func (s *TradeStore) DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM trades WHERE status = 'closed' AND closed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete closed trades: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
