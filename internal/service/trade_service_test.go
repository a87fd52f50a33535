package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrenches/trenchbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTradeStore struct {
	domain.TradeStore

	byToken  map[string]domain.Trade // keyed by userID+"/"+token
	open     []domain.Trade
	created  []domain.Trade
	closeErr error
}

func newFakeTradeStore() *fakeTradeStore {
	return &fakeTradeStore{byToken: map[string]domain.Trade{}}
}

func (f *fakeTradeStore) Create(ctx context.Context, t domain.Trade) error {
	f.created = append(f.created, t)
	return nil
}

func (f *fakeTradeStore) GetOpenByToken(ctx context.Context, userID, tokenAddress string) (domain.Trade, error) {
	if t, ok := f.byToken[userID+"/"+tokenAddress]; ok {
		return t, nil
	}
	return domain.Trade{}, domain.ErrNotFound
}

func (f *fakeTradeStore) GetOpenByUser(ctx context.Context, userID string) ([]domain.Trade, error) {
	return f.open, nil
}

func (f *fakeTradeStore) Close(ctx context.Context, id string, exitPrice, pnlSol, pnlPercent float64) error {
	return f.closeErr
}

type fakePriceSource struct {
	prices map[string]float64
	calls  int
}

func (f *fakePriceSource) TokenData(ctx context.Context, address string) (domain.TokenData, error) {
	return domain.TokenData{}, domain.ErrNotFound
}

func (f *fakePriceSource) TokenDataBatch(ctx context.Context, addresses []string) (map[string]domain.TokenData, error) {
	f.calls++
	out := make(map[string]domain.TokenData)
	for _, a := range addresses {
		if p, ok := f.prices[a]; ok {
			out[a] = domain.TokenData{Address: a, PriceSol: p}
		}
	}
	return out, nil
}

type fakePriceCache struct {
	prices map[string]float64
}

func (f *fakePriceCache) SetPrice(ctx context.Context, tokenAddress string, price float64, ts time.Time) error {
	return nil
}

func (f *fakePriceCache) GetPrice(ctx context.Context, tokenAddress string) (float64, time.Time, error) {
	return 0, time.Time{}, domain.ErrNotFound
}

func (f *fakePriceCache) GetPrices(ctx context.Context, tokenAddresses []string) (map[string]float64, error) {
	out := make(map[string]float64)
	for _, a := range tokenAddresses {
		if p, ok := f.prices[a]; ok {
			out[a] = p
		}
	}
	return out, nil
}

func TestOpenRejectsDuplicatePosition(t *testing.T) {
	store := newFakeTradeStore()
	store.byToken["u1/mintA"] = domain.Trade{ID: "existing", Status: domain.TradeStatusOpen}
	svc := NewTradeService(store, &fakePriceSource{}, nil, testLogger())

	_, err := svc.Open(context.Background(), domain.Trade{
		UserID:       "u1",
		TokenAddress: "mintA",
		AmountSol:    0.5,
	})

	assert.ErrorIs(t, err, domain.ErrPositionOpen)
	assert.Empty(t, store.created)
}

func TestOpenAssignsIdentityAndStatus(t *testing.T) {
	store := newFakeTradeStore()
	svc := NewTradeService(store, &fakePriceSource{}, nil, testLogger())

	trade, err := svc.Open(context.Background(), domain.Trade{
		UserID:       "u1",
		TokenAddress: "mintA",
		AmountSol:    0.5,
	})

	require.NoError(t, err)
	assert.NotEmpty(t, trade.ID)
	assert.Equal(t, domain.TradeStatusOpen, trade.Status)
	assert.False(t, trade.OpenedAt.IsZero())
	require.Len(t, store.created, 1)
}

func TestClosePassesAlreadyClosedThrough(t *testing.T) {
	store := newFakeTradeStore()
	store.closeErr = domain.ErrAlreadyClosed
	svc := NewTradeService(store, &fakePriceSource{}, nil, testLogger())

	err := svc.Close(context.Background(), "t1", 1.0, 0.5, 50)
	assert.ErrorIs(t, err, domain.ErrAlreadyClosed)
}

func TestOpenPositionsPrefersCachedPrices(t *testing.T) {
	store := newFakeTradeStore()
	store.open = []domain.Trade{
		{ID: "t1", TokenAddress: "mintA", EntryPrice: 1.0, AmountSol: 1.0},
		{ID: "t2", TokenAddress: "mintB", EntryPrice: 2.0, AmountSol: 1.0},
	}
	cache := &fakePriceCache{prices: map[string]float64{"mintA": 1.5}}
	oracle := &fakePriceSource{prices: map[string]float64{"mintB": 3.0}}
	svc := NewTradeService(store, oracle, cache, testLogger())

	views, err := svc.OpenPositions(context.Background(), "u1")

	require.NoError(t, err)
	require.Len(t, views, 2)

	// mintA came from the cache, mintB from one oracle batch.
	assert.Equal(t, 1, oracle.calls)
	assert.True(t, views[0].Priced)
	assert.InDelta(t, 50, views[0].PnlPercent, 1e-9)
	assert.True(t, views[1].Priced)
	assert.InDelta(t, 50, views[1].PnlPercent, 1e-9)
	assert.InDelta(t, 0.5, views[1].PnlSol, 1e-9)
}

func TestOpenPositionsUnpricedWhenNoData(t *testing.T) {
	store := newFakeTradeStore()
	store.open = []domain.Trade{
		{ID: "t1", TokenAddress: "mintA", EntryPrice: 1.0, AmountSol: 1.0},
	}
	svc := NewTradeService(store, &fakePriceSource{}, nil, testLogger())

	views, err := svc.OpenPositions(context.Background(), "u1")

	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.False(t, views[0].Priced)
}

func TestOpenPositionsSkipsPnlForZeroEntry(t *testing.T) {
	store := newFakeTradeStore()
	store.open = []domain.Trade{
		{ID: "t1", TokenAddress: "mintA", EntryPrice: 0, AmountSol: 1.0},
	}
	oracle := &fakePriceSource{prices: map[string]float64{"mintA": 5.0}}
	svc := NewTradeService(store, oracle, nil, testLogger())

	views, err := svc.OpenPositions(context.Background(), "u1")

	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.False(t, views[0].Priced)
}
