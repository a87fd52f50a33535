package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/xtrenches/trenchbot/internal/domain"
	"github.com/xtrenches/trenchbot/internal/wallet"
)

// tradeLockTTL bounds how long a sell path can hold a per-trade lock. It
// comfortably covers one swap submission plus confirmation.
const tradeLockTTL = 90 * time.Second

// Quoter provides swap quotes and pre-built swap transactions.
type Quoter interface {
	Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (Quote, error)
	SwapTransaction(ctx context.Context, q Quote, userPublicKey string) (string, error)
}

// Chain is the minimal chain access the executor needs.
type Chain interface {
	SolBalance(ctx context.Context, address string) (float64, error)
	TokenBalance(ctx context.Context, owner, mint string) (float64, uint64, error)
	SignAndSend(ctx context.Context, txBase64 string, signer solana.PrivateKey) (string, error)
}

// KeyOpener decrypts stored private keys for signing.
type KeyOpener interface {
	Open(encrypted string) (solana.PrivateKey, error)
}

// EntryPricer resolves a token's current price in SOL.
type EntryPricer interface {
	PriceInSol(ctx context.Context, mint string) (float64, error)
}

// Ledger is the trade bookkeeping the executor drives.
type Ledger interface {
	Open(ctx context.Context, t domain.Trade) (domain.Trade, error)
	GetOpenByToken(ctx context.Context, userID, tokenAddress string) (domain.Trade, error)
	Close(ctx context.Context, id string, exitPrice, pnlSol, pnlPercent float64) error
	Reduce(ctx context.Context, id string, tokenAmount, amountSol float64) error
}

// WalletSource resolves the wallet a swap should be signed with.
type WalletSource interface {
	GetActive(ctx context.Context, userID string) (domain.Wallet, error)
	GetByAddress(ctx context.Context, publicKey string) (domain.Wallet, error)
}

// ExecutorConfig holds trading limits and the retry policy for transaction
// submission.
type ExecutorConfig struct {
	MinBuySol          float64
	FeeReserveSol      float64
	DefaultSlippagePct float64
	MaxSlippagePct     float64

	// MaxRetries is the number of extra sign/submit/confirm attempts after
	// the first. Quote and transaction-build failures are never retried.
	MaxRetries int
	RetryDelay time.Duration
}

// BuyResult reports the outcome of a buy. The executor never returns an
// error; failures are carried in Err so callers always get a structured
// result to render.
type BuyResult struct {
	Success   bool
	Signature string
	Trade     domain.Trade
	Err       string
}

// SellResult reports the outcome of a sell. Busy means another path holds
// the per-trade lock and the sell was not attempted.
type SellResult struct {
	Success     bool
	Signature   string
	SolReceived float64
	PnlSol      float64
	PnlPercent  float64
	Closed      bool
	Busy        bool
	Err         string
}

// Executor performs buy and sell swaps through the Jupiter aggregator and
// keeps the trade ledger in sync with what actually executed on chain.
type Executor struct {
	chain   Chain
	quoter  Quoter
	keys    KeyOpener
	prices  EntryPricer
	ledger  Ledger
	wallets WalletSource
	locks   domain.LockManager
	cfg     ExecutorConfig
	logger  *slog.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(
	chain Chain,
	quoter Quoter,
	keys KeyOpener,
	prices EntryPricer,
	ledger Ledger,
	wallets WalletSource,
	locks domain.LockManager,
	cfg ExecutorConfig,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		chain:   chain,
		quoter:  quoter,
		keys:    keys,
		prices:  prices,
		ledger:  ledger,
		wallets: wallets,
		locks:   locks,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "executor")),
	}
}

func (e *Executor) slippageBps(slippagePct float64) (int, error) {
	if slippagePct <= 0 {
		slippagePct = e.cfg.DefaultSlippagePct
	}
	if slippagePct > e.cfg.MaxSlippagePct {
		return 0, fmt.Errorf("max slippage is %.0f%%", e.cfg.MaxSlippagePct)
	}
	return int(slippagePct * 100), nil
}

// Buy swaps SOL into a token from the user's active wallet and records the
// resulting open trade.
func (e *Executor) Buy(ctx context.Context, userID, tokenAddress string, amountSol, slippagePct float64) BuyResult {
	if amountSol < e.cfg.MinBuySol {
		return BuyResult{Err: fmt.Sprintf("minimum buy is %g SOL", e.cfg.MinBuySol)}
	}
	bps, err := e.slippageBps(slippagePct)
	if err != nil {
		return BuyResult{Err: err.Error()}
	}

	w, err := e.wallets.GetActive(ctx, userID)
	if err != nil {
		return BuyResult{Err: "no active wallet"}
	}

	balance, err := e.chain.SolBalance(ctx, w.PublicKey)
	if err != nil {
		return BuyResult{Err: fmt.Sprintf("balance check failed: %v", err)}
	}
	if balance < amountSol+e.cfg.FeeReserveSol {
		return BuyResult{Err: fmt.Sprintf("insufficient balance: have %.4f SOL, need %.4f", balance, amountSol+e.cfg.FeeReserveSol)}
	}

	lamports := uint64(amountSol * wallet.LamportsPerSol)
	quote, err := e.quoter.Quote(ctx, domain.WrappedSolMint, tokenAddress, lamports, bps)
	if err != nil {
		e.logger.WarnContext(ctx, "buy quote failed",
			slog.String("token", tokenAddress),
			slog.String("error", err.Error()),
		)
		return BuyResult{Err: "failed to get swap quote"}
	}

	txBase64, err := e.quoter.SwapTransaction(ctx, quote, w.PublicKey)
	if err != nil {
		e.logger.WarnContext(ctx, "buy swap build failed",
			slog.String("token", tokenAddress),
			slog.String("error", err.Error()),
		)
		return BuyResult{Err: "failed to build swap transaction"}
	}

	key, err := e.keys.Open(w.EncryptedPrivateKey)
	if err != nil {
		return BuyResult{Err: "failed to unlock wallet"}
	}

	sig, err := e.submitWithRetry(ctx, txBase64, key)
	if err != nil {
		return BuyResult{Err: fmt.Sprintf("buy failed: %v", err)}
	}

	// Record the trade. Entry price comes from the price API; if it is
	// unavailable the trade opens with entry 0 and the monitor will skip it
	// until a manual close.
	entryPrice, err := e.prices.PriceInSol(ctx, tokenAddress)
	if err != nil {
		e.logger.WarnContext(ctx, "entry price unavailable",
			slog.String("token", tokenAddress),
			slog.String("error", err.Error()),
		)
		entryPrice = 0
	}

	trade, err := e.ledger.Open(ctx, domain.Trade{
		UserID:        userID,
		WalletAddress: w.PublicKey,
		TokenAddress:  tokenAddress,
		EntryPrice:    entryPrice,
		AmountSol:     amountSol,
		TokenAmount:   float64(quote.OutAmount),
	})
	if err != nil {
		// The swap already landed; surface the bookkeeping failure but keep
		// the signature so the user can verify on chain.
		e.logger.ErrorContext(ctx, "trade record failed after swap",
			slog.String("token", tokenAddress),
			slog.String("signature", sig),
			slog.String("error", err.Error()),
		)
		return BuyResult{Signature: sig, Err: "swap executed but trade could not be recorded"}
	}

	e.logger.InfoContext(ctx, "buy executed",
		slog.String("token", tokenAddress),
		slog.String("trade_id", trade.ID),
		slog.String("signature", sig),
		slog.Float64("amount_sol", amountSol),
	)
	return BuyResult{Success: true, Signature: sig, Trade: trade}
}

// Sell swaps a percentage of the user's token position back into SOL. A
// 100% sell closes the trade; a partial sell shrinks it proportionally.
func (e *Executor) Sell(ctx context.Context, userID, tokenAddress string, percent, slippagePct float64) SellResult {
	if percent <= 0 || percent > 100 {
		return SellResult{Err: "sell percentage must be between 1 and 100"}
	}
	bps, err := e.slippageBps(slippagePct)
	if err != nil {
		return SellResult{Err: err.Error()}
	}

	w, err := e.wallets.GetActive(ctx, userID)
	if err != nil {
		return SellResult{Err: "no active wallet"}
	}

	trade, err := e.ledger.GetOpenByToken(ctx, userID, tokenAddress)
	if err != nil {
		return SellResult{Err: "no open trade found for this token"}
	}

	return e.sell(ctx, trade, w, percent, bps)
}

// SellTrade sells 100% of a specific trade. It is the monitor's entry point
// for TP/SL auto-closes.
func (e *Executor) SellTrade(ctx context.Context, trade domain.Trade) SellResult {
	bps, err := e.slippageBps(0)
	if err != nil {
		return SellResult{Err: err.Error()}
	}
	w, err := e.wallets.GetByAddress(ctx, trade.WalletAddress)
	if err != nil {
		return SellResult{Err: "trade wallet not found"}
	}
	return e.sell(ctx, trade, w, 100, bps)
}

func (e *Executor) sell(ctx context.Context, trade domain.Trade, w domain.Wallet, percent float64, bps int) SellResult {
	// Serialize against the monitor (and other sells) on the same trade.
	unlock, err := e.locks.Acquire(ctx, "trade:"+trade.ID, tradeLockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrLockHeld) {
			return SellResult{Busy: true, Err: "position is busy, try again shortly"}
		}
		return SellResult{Err: fmt.Sprintf("lock failed: %v", err)}
	}
	defer unlock()

	_, rawBalance, err := e.chain.TokenBalance(ctx, w.PublicKey, trade.TokenAddress)
	if err != nil {
		return SellResult{Err: fmt.Sprintf("token balance check failed: %v", err)}
	}
	if rawBalance == 0 {
		return SellResult{Err: "no tokens to sell"}
	}

	sellAmount := uint64(float64(rawBalance) * percent / 100)
	if sellAmount == 0 {
		return SellResult{Err: "sell amount too small"}
	}

	quote, err := e.quoter.Quote(ctx, trade.TokenAddress, domain.WrappedSolMint, sellAmount, bps)
	if err != nil {
		e.logger.WarnContext(ctx, "sell quote failed",
			slog.String("token", trade.TokenAddress),
			slog.String("error", err.Error()),
		)
		return SellResult{Err: "failed to get sell quote"}
	}

	txBase64, err := e.quoter.SwapTransaction(ctx, quote, w.PublicKey)
	if err != nil {
		e.logger.WarnContext(ctx, "sell swap build failed",
			slog.String("token", trade.TokenAddress),
			slog.String("error", err.Error()),
		)
		return SellResult{Err: "failed to build sell transaction"}
	}

	key, err := e.keys.Open(w.EncryptedPrivateKey)
	if err != nil {
		return SellResult{Err: "failed to unlock wallet"}
	}

	sig, err := e.submitWithRetry(ctx, txBase64, key)
	if err != nil {
		return SellResult{Err: fmt.Sprintf("sell failed: %v", err)}
	}

	solReceived := float64(quote.OutAmount) / wallet.LamportsPerSol
	soldValue := trade.AmountSol * percent / 100
	pnlSol := solReceived - soldValue
	var pnlPercent float64
	if soldValue > 0 {
		pnlPercent = pnlSol / soldValue * 100
	}

	result := SellResult{
		Success:     true,
		Signature:   sig,
		SolReceived: solReceived,
		PnlSol:      pnlSol,
		PnlPercent:  pnlPercent,
	}

	if percent == 100 {
		exitPrice, err := e.prices.PriceInSol(ctx, trade.TokenAddress)
		if err != nil {
			exitPrice = 0
		}
		if err := e.ledger.Close(ctx, trade.ID, exitPrice, pnlSol, pnlPercent); err != nil {
			if errors.Is(err, domain.ErrAlreadyClosed) {
				e.logger.InfoContext(ctx, "trade closed by another path",
					slog.String("trade_id", trade.ID),
				)
			} else {
				e.logger.ErrorContext(ctx, "trade close failed after swap",
					slog.String("trade_id", trade.ID),
					slog.String("signature", sig),
					slog.String("error", err.Error()),
				)
			}
		} else {
			result.Closed = true
		}
	} else {
		remaining := 1 - percent/100
		err := e.ledger.Reduce(ctx, trade.ID,
			trade.TokenAmount*remaining,
			trade.AmountSol*remaining,
		)
		if err != nil {
			e.logger.ErrorContext(ctx, "trade reduce failed after swap",
				slog.String("trade_id", trade.ID),
				slog.String("signature", sig),
				slog.String("error", err.Error()),
			)
		}
	}

	e.logger.InfoContext(ctx, "sell executed",
		slog.String("token", trade.TokenAddress),
		slog.String("trade_id", trade.ID),
		slog.String("signature", sig),
		slog.Float64("percent", percent),
		slog.Float64("pnl_sol", pnlSol),
	)
	return result
}

// submitWithRetry signs and submits the transaction, retrying transient
// failures up to MaxRetries extra attempts with a fixed delay.
func (e *Executor) submitWithRetry(ctx context.Context, txBase64 string, key solana.PrivateKey) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.MaxRetries; attempt++ {
		sig, err := e.chain.SignAndSend(ctx, txBase64, key)
		if err == nil {
			return sig, nil
		}
		lastErr = err

		if attempt < e.cfg.MaxRetries {
			e.logger.WarnContext(ctx, "transaction attempt failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			timer := time.NewTimer(e.cfg.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return "", ctx.Err()
			case <-timer.C:
			}
		}
	}
	return "", lastErr
}
