// Package service implements the business rules on top of the domain stores:
// trade ledger invariants, user registration, and wallet custody policies.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/xtrenches/trenchbot/internal/domain"
)

// PositionView is an open trade decorated with its live price and
// unrealized PNL. Priced is false when no current price was available.
type PositionView struct {
	Trade        domain.Trade
	CurrentPrice float64
	PnlSol       float64
	PnlPercent   float64
	Priced       bool
}

// TradeService owns the trade ledger rules: one open trade per user and
// token, and the single open -> closed transition.
type TradeService struct {
	store  domain.TradeStore
	oracle domain.PriceOracle
	cache  domain.PriceCache
	logger *slog.Logger
}

// NewTradeService creates a TradeService. The cache is consulted before the
// oracle when decorating positions with live prices; its entries are only as
// current as the monitor's last tick. It may be nil.
func NewTradeService(store domain.TradeStore, oracle domain.PriceOracle, cache domain.PriceCache, logger *slog.Logger) *TradeService {
	return &TradeService{
		store:  store,
		oracle: oracle,
		cache:  cache,
		logger: logger.With(slog.String("component", "trade_service")),
	}
}

// Open records a new trade. It refuses to open a second trade for a token
// the user already holds a position in.
func (s *TradeService) Open(ctx context.Context, t domain.Trade) (domain.Trade, error) {
	if _, err := s.store.GetOpenByToken(ctx, t.UserID, t.TokenAddress); err == nil {
		return domain.Trade{}, domain.ErrPositionOpen
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Trade{}, fmt.Errorf("service: check open trade: %w", err)
	}

	t.ID = uuid.New().String()
	t.Status = domain.TradeStatusOpen
	t.OpenedAt = time.Now()

	if err := s.store.Create(ctx, t); err != nil {
		return domain.Trade{}, fmt.Errorf("service: open trade: %w", err)
	}

	s.logger.InfoContext(ctx, "trade opened",
		slog.String("trade_id", t.ID),
		slog.String("token", t.TokenAddress),
		slog.Float64("amount_sol", t.AmountSol),
	)
	return t, nil
}

// GetOpenByToken returns the user's open trade for a token.
func (s *TradeService) GetOpenByToken(ctx context.Context, userID, tokenAddress string) (domain.Trade, error) {
	return s.store.GetOpenByToken(ctx, userID, tokenAddress)
}

// Close finalizes a trade. The store's conditional update guarantees the
// transition happens at most once.
func (s *TradeService) Close(ctx context.Context, id string, exitPrice, pnlSol, pnlPercent float64) error {
	if err := s.store.Close(ctx, id, exitPrice, pnlSol, pnlPercent); err != nil {
		if errors.Is(err, domain.ErrAlreadyClosed) {
			return err
		}
		return fmt.Errorf("service: close trade: %w", err)
	}

	s.logger.InfoContext(ctx, "trade closed",
		slog.String("trade_id", id),
		slog.Float64("pnl_sol", pnlSol),
		slog.Float64("pnl_percent", pnlPercent),
	)
	return nil
}

// Reduce shrinks an open trade after a partial sell.
func (s *TradeService) Reduce(ctx context.Context, id string, tokenAmount, amountSol float64) error {
	if err := s.store.Reduce(ctx, id, tokenAmount, amountSol); err != nil {
		if errors.Is(err, domain.ErrAlreadyClosed) {
			return err
		}
		return fmt.Errorf("service: reduce trade: %w", err)
	}
	return nil
}

// AllOpen returns every open trade across all users.
func (s *TradeService) AllOpen(ctx context.Context) ([]domain.Trade, error) {
	return s.store.GetAllOpen(ctx)
}

// History returns the user's recently closed trades.
func (s *TradeService) History(ctx context.Context, userID string, limit int) ([]domain.Trade, error) {
	return s.store.GetClosed(ctx, userID, limit)
}

// OpenPositions returns the user's open trades decorated with live prices.
// Cached prices are used as found, with one oracle batch covering the
// tokens the cache misses.
func (s *TradeService) OpenPositions(ctx context.Context, userID string) ([]PositionView, error) {
	trades, err := s.store.GetOpenByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service: open positions: %w", err)
	}
	if len(trades) == 0 {
		return nil, nil
	}

	tokens := make([]string, 0, len(trades))
	seen := make(map[string]bool, len(trades))
	for _, t := range trades {
		if !seen[t.TokenAddress] {
			seen[t.TokenAddress] = true
			tokens = append(tokens, t.TokenAddress)
		}
	}

	prices := map[string]float64{}
	if s.cache != nil {
		if cached, err := s.cache.GetPrices(ctx, tokens); err == nil {
			prices = cached
		}
	}

	var missing []string
	for _, tok := range tokens {
		if _, ok := prices[tok]; !ok {
			missing = append(missing, tok)
		}
	}
	if len(missing) > 0 {
		fresh, err := s.oracle.TokenDataBatch(ctx, missing)
		if err != nil {
			s.logger.WarnContext(ctx, "price lookup failed for positions",
				slog.String("error", err.Error()),
			)
		}
		for addr, td := range fresh {
			prices[addr] = td.PriceSol
		}
	}

	views := make([]PositionView, 0, len(trades))
	for _, t := range trades {
		v := PositionView{Trade: t}
		if price, ok := prices[t.TokenAddress]; ok && t.EntryPrice > 0 {
			v.CurrentPrice = price
			v.PnlPercent = (price - t.EntryPrice) / t.EntryPrice * 100
			v.PnlSol = t.AmountSol * v.PnlPercent / 100
			v.Priced = true
		}
		views = append(views, v)
	}
	return views, nil
}
