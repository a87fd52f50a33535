package trading

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xtrenches/trenchbot/internal/domain"
)

// MonitorLedger is the trade access the monitor needs.
type MonitorLedger interface {
	AllOpen(ctx context.Context) ([]domain.Trade, error)
	Close(ctx context.Context, id string, exitPrice, pnlSol, pnlPercent float64) error
}

// PositionSeller market-sells an entire trade. Implemented by Executor.
type PositionSeller interface {
	SellTrade(ctx context.Context, trade domain.Trade) SellResult
}

// UserFlags resolves per-user auto-close settings.
type UserFlags interface {
	GetByID(ctx context.Context, id string) (domain.User, error)
}

// MonitorConfig holds the TP/SL thresholds and polling cadence.
type MonitorConfig struct {
	Interval      time.Duration
	TakeProfitPct float64 // close when pnl% >= this (e.g. 80)
	StopLossPct   float64 // close when pnl% <= this (e.g. -25)
}

// Monitor polls open trades at a fixed interval and auto-closes positions
// whose unrealized PNL crosses the take-profit or stop-loss threshold.
// Both thresholds are inclusive.
type Monitor struct {
	cfg      MonitorConfig
	ledger   MonitorLedger
	oracle   domain.PriceOracle
	seller   PositionSeller
	users    UserFlags
	notifier domain.UserNotifier
	cache    domain.PriceCache
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	inTick  bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewMonitor creates a Monitor. The price cache is optional; when set, the
// prices fetched each tick are published for other components to reuse.
func NewMonitor(
	cfg MonitorConfig,
	ledger MonitorLedger,
	oracle domain.PriceOracle,
	seller PositionSeller,
	users UserFlags,
	notifier domain.UserNotifier,
	cache domain.PriceCache,
	logger *slog.Logger,
) *Monitor {
	return &Monitor{
		cfg:      cfg,
		ledger:   ledger,
		oracle:   oracle,
		seller:   seller,
		users:    users,
		notifier: notifier,
		cache:    cache,
		logger:   logger.With(slog.String("component", "monitor")),
	}
}

// Start launches the polling loop. Calling Start on a running monitor is a
// no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Info("monitor already running")
		return
	}
	m.running = true
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()

		m.logger.Info("monitor started",
			slog.Duration("interval", m.cfg.Interval),
			slog.Float64("take_profit_pct", m.cfg.TakeProfitPct),
			slog.Float64("stop_loss_pct", m.cfg.StopLossPct),
		)

		for {
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.tryTick(ctx)
			}
		}
	}()
}

// Stop halts the polling loop and waits for any in-flight tick to finish.
// It never interrupts a swap that has already been submitted. Calling Stop
// on a stopped monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("monitor stopped")
}

// Running reports whether the monitor loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// tryTick runs one check pass unless the previous one is still in flight,
// in which case the tick is skipped. Returns whether the pass ran.
func (m *Monitor) tryTick(ctx context.Context) bool {
	m.mu.Lock()
	if m.inTick {
		m.mu.Unlock()
		m.logger.Warn("previous check still running, skipping tick")
		return false
	}
	m.inTick = true
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inTick = false
		m.mu.Unlock()
	}()

	if err := m.checkOpenTrades(ctx); err != nil {
		m.logger.ErrorContext(ctx, "check pass failed", slog.String("error", err.Error()))
	}
	return true
}

// checkOpenTrades is one monitor pass: load every open trade, fetch prices
// for the distinct token set in one batch, and evaluate each trade. A
// failure on one trade never aborts the pass.
func (m *Monitor) checkOpenTrades(ctx context.Context) error {
	trades, err := m.ledger.AllOpen(ctx)
	if err != nil {
		return fmt.Errorf("monitor: load open trades: %w", err)
	}
	if len(trades) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(trades))
	tokens := make([]string, 0, len(trades))
	for _, t := range trades {
		if !seen[t.TokenAddress] {
			seen[t.TokenAddress] = true
			tokens = append(tokens, t.TokenAddress)
		}
	}

	prices, err := m.oracle.TokenDataBatch(ctx, tokens)
	if err != nil {
		return fmt.Errorf("monitor: fetch prices: %w", err)
	}

	if m.cache != nil {
		now := time.Now()
		for addr, td := range prices {
			if err := m.cache.SetPrice(ctx, addr, td.PriceSol, now); err != nil {
				m.logger.WarnContext(ctx, "price cache update failed",
					slog.String("token", addr),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	flags := make(map[string]domain.User, len(trades))

	for _, trade := range trades {
		td, ok := prices[trade.TokenAddress]
		if !ok {
			continue
		}
		if trade.EntryPrice <= 0 {
			continue
		}

		pnlPercent := (td.PriceSol - trade.EntryPrice) / trade.EntryPrice * 100

		user, cached := flags[trade.UserID]
		if !cached {
			u, err := m.users.GetByID(ctx, trade.UserID)
			if err != nil {
				// Settings unavailable: default to auto-close enabled.
				u = domain.User{ID: trade.UserID, AutoTakeProfit: true, AutoStopLoss: true}
			}
			flags[trade.UserID] = u
			user = u
		}

		switch {
		case pnlPercent >= m.cfg.TakeProfitPct && user.AutoTakeProfit:
			m.autoClose(ctx, trade, td.PriceSol, pnlPercent, true)
		case pnlPercent <= m.cfg.StopLossPct && user.AutoStopLoss:
			m.autoClose(ctx, trade, td.PriceSol, pnlPercent, false)
		}
	}

	return nil
}

// autoClose liquidates a triggered trade. The swap path closes the ledger
// row itself under the per-trade lock; if the swap cannot execute the
// ledger is still closed at the observed price so the position does not
// trigger again every tick. The user is notified only after the close has
// been committed, and notification failures are logged, never propagated.
func (m *Monitor) autoClose(ctx context.Context, trade domain.Trade, currentPrice, pnlPercent float64, takeProfit bool) {
	kind := "SL"
	if takeProfit {
		kind = "TP"
	}

	pnlSol := trade.AmountSol * pnlPercent / 100
	closed := false

	res := m.seller.SellTrade(ctx, trade)
	switch {
	case res.Busy:
		// A manual sell is mid-flight; leave the trade for the next tick.
		m.logger.InfoContext(ctx, "trade busy, deferring auto close",
			slog.String("trade_id", trade.ID),
		)
		return
	case res.Success && res.Closed:
		pnlSol = res.PnlSol
		pnlPercent = res.PnlPercent
		closed = true
	case res.Success && !res.Closed:
		// Swap landed but another path won the close; nothing to report.
		return
	default:
		m.logger.WarnContext(ctx, "auto-close swap failed, closing ledger at market price",
			slog.String("trade_id", trade.ID),
			slog.String("error", res.Err),
		)
		err := m.ledger.Close(ctx, trade.ID, currentPrice, pnlSol, pnlPercent)
		if errors.Is(err, domain.ErrAlreadyClosed) {
			m.logger.DebugContext(ctx, "trade already closed",
				slog.String("trade_id", trade.ID),
			)
			return
		}
		if err != nil {
			m.logger.ErrorContext(ctx, "ledger close failed",
				slog.String("trade_id", trade.ID),
				slog.String("error", err.Error()),
			)
			return
		}
		closed = true
	}

	if !closed {
		return
	}

	m.logger.InfoContext(ctx, "position auto-closed",
		slog.String("trade_id", trade.ID),
		slog.String("kind", kind),
		slog.Float64("pnl_percent", pnlPercent),
		slog.Float64("pnl_sol", pnlSol),
	)

	text := formatAutoCloseMessage(trade, kind, pnlSol, pnlPercent)
	if err := m.notifier.Notify(ctx, trade.UserID, text); err != nil {
		m.logger.WarnContext(ctx, "auto-close notification failed",
			slog.String("trade_id", trade.ID),
			slog.String("error", err.Error()),
		)
	}
}

func formatAutoCloseMessage(trade domain.Trade, kind string, pnlSol, pnlPercent float64) string {
	if kind == "TP" {
		return fmt.Sprintf(
			"🎯 TP HIT\n\nToken: %s\nPNL: %+.2f%% (%+.4f SOL)\n\nYou took profit. Good.",
			trade.TokenAddress, pnlPercent, pnlSol,
		)
	}
	return fmt.Sprintf(
		"🛑 SL HIT\n\nToken: %s\nPNL: %+.2f%% (%+.4f SOL)\n\nCut the loss. Move on.",
		trade.TokenAddress, pnlPercent, pnlSol,
	)
}
