package domain

import (
	"context"
	"time"
)

// TradeStore persists trades.
type TradeStore interface {
	Create(ctx context.Context, t Trade) error
	GetByID(ctx context.Context, id string) (Trade, error)

	// GetOpenByUser returns the user's open trades, most recent first.
	GetOpenByUser(ctx context.Context, userID string) ([]Trade, error)

	// GetOpenByToken returns the user's open trade for a token, or
	// ErrNotFound when there is none.
	GetOpenByToken(ctx context.Context, userID, tokenAddress string) (Trade, error)

	// GetAllOpen returns every open trade across all users.
	GetAllOpen(ctx context.Context) ([]Trade, error)

	// GetClosed returns the user's most recently closed trades.
	GetClosed(ctx context.Context, userID string, limit int) ([]Trade, error)

	// Close transitions a trade from open to closed, recording the exit
	// price and realized PNL. The update is conditional on the trade still
	// being open; if another writer closed it first, ErrAlreadyClosed is
	// returned and nothing is modified.
	Close(ctx context.Context, id string, exitPrice, pnlSol, pnlPercent float64) error

	// Reduce shrinks an open trade after a partial sell, replacing its
	// token amount and committed SOL. Conditional on status = open.
	Reduce(ctx context.Context, id string, tokenAmount, amountSol float64) error

	// ListClosedBefore returns closed trades whose close time is strictly
	// before the cutoff. Used by the archiver.
	ListClosedBefore(ctx context.Context, before time.Time) ([]Trade, error)

	// DeleteClosedBefore removes closed trades older than the cutoff and
	// returns the number of rows deleted.
	DeleteClosedBefore(ctx context.Context, before time.Time) (int64, error)
}

// UserStore persists users.
type UserStore interface {
	Create(ctx context.Context, u User) error
	GetByID(ctx context.Context, id string) (User, error)
	GetByTelegramID(ctx context.Context, telegramID int64) (User, error)
	UpdateSettings(ctx context.Context, id string, patch UserPatch) error
	Count(ctx context.Context) (int, error)
}

// WalletStore persists custodied wallets.
type WalletStore interface {
	Create(ctx context.Context, w Wallet) error
	GetByID(ctx context.Context, id string) (Wallet, error)
	GetByAddress(ctx context.Context, publicKey string) (Wallet, error)

	// GetActive returns the user's active wallet, or ErrNotFound.
	GetActive(ctx context.Context, userID string) (Wallet, error)
	ListByUser(ctx context.Context, userID string) ([]Wallet, error)
	CountByUser(ctx context.Context, userID string) (int, error)

	// SetActive marks one wallet active and deactivates the user's others.
	SetActive(ctx context.Context, userID, walletID string) error
	Delete(ctx context.Context, userID, walletID string) error
}
