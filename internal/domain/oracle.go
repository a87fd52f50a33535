package domain

import "context"

// PriceOracle provides market data for SPL tokens.
type PriceOracle interface {
	// TokenData returns a market snapshot for a single token.
	TokenData(ctx context.Context, address string) (TokenData, error)

	// TokenDataBatch fetches snapshots for many tokens at once. Tokens the
	// oracle cannot price are omitted from the result rather than failing
	// the whole batch.
	TokenDataBatch(ctx context.Context, addresses []string) (map[string]TokenData, error)
}

// UserNotifier delivers a message to a user's chat. Implementations must be
// safe to call from background goroutines.
type UserNotifier interface {
	Notify(ctx context.Context, userID string, text string) error
}
