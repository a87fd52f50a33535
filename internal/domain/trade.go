package domain

import "time"

// TradeStatus tracks whether a trade is open or closed.
type TradeStatus string

const (
	TradeStatusOpen   TradeStatus = "open"
	TradeStatusClosed TradeStatus = "closed"
)

// WrappedSolMint is the mint address of wrapped SOL, used as the quote side
// of every swap and price lookup.
const WrappedSolMint = "So11111111111111111111111111111111111111112"

// Trade represents a token position bought with SOL. A trade is opened by a
// buy swap and closed either by a full manual sell or by the TP/SL monitor.
type Trade struct {
	ID            string
	UserID        string
	WalletAddress string
	TokenAddress  string
	EntryPrice    float64 // SOL per token at open
	AmountSol     float64 // SOL committed to the position
	TokenAmount   float64 // tokens received, in raw token units
	Status        TradeStatus
	OpenedAt      time.Time
	ClosedAt      *time.Time
	ExitPrice     *float64
	PnlSol        *float64
	PnlPercent    *float64
}

// Open reports whether the trade is still open.
func (t Trade) Open() bool {
	return t.Status == TradeStatusOpen
}
