package trading

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xtrenches/trenchbot/internal/domain"
	"github.com/xtrenches/trenchbot/internal/wallet"
)

type fakeChain struct {
	mu         sync.Mutex
	solBalance float64
	rawBalance uint64
	sendErrs   []error
	sends      int
	sig        string
}

func (f *fakeChain) SolBalance(ctx context.Context, address string) (float64, error) {
	return f.solBalance, nil
}

func (f *fakeChain) TokenBalance(ctx context.Context, owner, mint string) (float64, uint64, error) {
	return float64(f.rawBalance), f.rawBalance, nil
}

func (f *fakeChain) SignAndSend(ctx context.Context, txBase64 string, signer solana.PrivateKey) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.sends
	f.sends++
	if idx < len(f.sendErrs) && f.sendErrs[idx] != nil {
		return "", f.sendErrs[idx]
	}
	return f.sig, nil
}

type fakeQuoter struct {
	quote      Quote
	quoteErr   error
	quoteCalls int
	swapErr    error
}

func (f *fakeQuoter) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (Quote, error) {
	f.quoteCalls++
	if f.quoteErr != nil {
		return Quote{}, f.quoteErr
	}
	return f.quote, nil
}

func (f *fakeQuoter) SwapTransaction(ctx context.Context, q Quote, userPublicKey string) (string, error) {
	if f.swapErr != nil {
		return "", f.swapErr
	}
	return "dGVzdA==", nil
}

type fakeKeys struct{}

func (fakeKeys) Open(encrypted string) (solana.PrivateKey, error) {
	return solana.PrivateKey{}, nil
}

type fakePricer struct {
	price float64
	err   error
}

func (f *fakePricer) PriceInSol(ctx context.Context, mint string) (float64, error) {
	return f.price, f.err
}

type reduceCall struct {
	tokenAmount float64
	amountSol   float64
}

type fakeExecLedger struct {
	openTrade   domain.Trade
	openErr     error
	byTokenErr  error
	closeErr    error
	closeCalls  int
	reduceCalls []reduceCall
}

func (f *fakeExecLedger) Open(ctx context.Context, t domain.Trade) (domain.Trade, error) {
	if f.openErr != nil {
		return domain.Trade{}, f.openErr
	}
	t.ID = "trade-1"
	return t, nil
}

func (f *fakeExecLedger) GetOpenByToken(ctx context.Context, userID, tokenAddress string) (domain.Trade, error) {
	if f.byTokenErr != nil {
		return domain.Trade{}, f.byTokenErr
	}
	return f.openTrade, nil
}

func (f *fakeExecLedger) Close(ctx context.Context, id string, exitPrice, pnlSol, pnlPercent float64) error {
	f.closeCalls++
	return f.closeErr
}

func (f *fakeExecLedger) Reduce(ctx context.Context, id string, tokenAmount, amountSol float64) error {
	f.reduceCalls = append(f.reduceCalls, reduceCall{tokenAmount, amountSol})
	return nil
}

type fakeWallets struct {
	wallet      domain.Wallet
	activeCalls int
	err         error
}

func (f *fakeWallets) GetActive(ctx context.Context, userID string) (domain.Wallet, error) {
	f.activeCalls++
	return f.wallet, f.err
}

func (f *fakeWallets) GetByAddress(ctx context.Context, publicKey string) (domain.Wallet, error) {
	return f.wallet, f.err
}

type fakeLocks struct {
	held     bool
	acquires int
}

func (f *fakeLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	f.acquires++
	if f.held {
		return nil, domain.ErrLockHeld
	}
	return func() {}, nil
}

type executorFixture struct {
	chain   *fakeChain
	quoter  *fakeQuoter
	pricer  *fakePricer
	ledger  *fakeExecLedger
	wallets *fakeWallets
	locks   *fakeLocks
	exec    *Executor
}

func newExecutorFixture() *executorFixture {
	f := &executorFixture{
		chain: &fakeChain{
			solBalance: 5.0,
			rawBalance: 1_000_000,
			sig:        "5ig",
		},
		quoter:  &fakeQuoter{quote: Quote{OutAmount: 500_000}},
		pricer:  &fakePricer{price: 0.001},
		ledger:  &fakeExecLedger{},
		wallets: &fakeWallets{wallet: domain.Wallet{PublicKey: "pub", EncryptedPrivateKey: "enc"}},
		locks:   &fakeLocks{},
	}
	f.exec = NewExecutor(
		f.chain, f.quoter, fakeKeys{}, f.pricer, f.ledger, f.wallets, f.locks,
		ExecutorConfig{
			MinBuySol:          0.05,
			FeeReserveSol:      0.01,
			DefaultSlippagePct: 20,
			MaxSlippagePct:     50,
			MaxRetries:         2,
			RetryDelay:         time.Millisecond,
		},
		testLogger(),
	)
	return f
}

func TestBuyRejectsBeforeAnyIO(t *testing.T) {
	tests := []struct {
		name      string
		amountSol float64
		slippage  float64
		wantErr   string
	}{
		{"below minimum buy", 0.01, 0, "minimum buy is 0.05 SOL"},
		{"slippage above maximum", 1.0, 75, "max slippage is 50%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newExecutorFixture()
			res := f.exec.Buy(context.Background(), "u1", "mintA", tt.amountSol, tt.slippage)

			assert.False(t, res.Success)
			assert.Equal(t, tt.wantErr, res.Err)
			assert.Zero(t, f.wallets.activeCalls)
			assert.Zero(t, f.quoter.quoteCalls)
		})
	}
}

func TestBuyRejectsInsufficientBalance(t *testing.T) {
	f := newExecutorFixture()
	f.chain.solBalance = 1.0

	res := f.exec.Buy(context.Background(), "u1", "mintA", 0.995, 0)

	assert.False(t, res.Success)
	assert.Contains(t, res.Err, "insufficient balance")
	assert.Zero(t, f.quoter.quoteCalls)
}

func TestBuyRetriesTransientSubmitFailures(t *testing.T) {
	f := newExecutorFixture()
	f.chain.sendErrs = []error{errors.New("blockhash expired"), errors.New("node behind"), nil}

	res := f.exec.Buy(context.Background(), "u1", "mintA", 0.5, 0)

	require.True(t, res.Success, res.Err)
	assert.Equal(t, "5ig", res.Signature)
	assert.Equal(t, 3, f.chain.sends)
	assert.Equal(t, "trade-1", res.Trade.ID)
}

func TestBuyFailsAfterRetriesExhausted(t *testing.T) {
	f := newExecutorFixture()
	f.chain.sendErrs = []error{errors.New("down"), errors.New("down"), errors.New("down")}

	res := f.exec.Buy(context.Background(), "u1", "mintA", 0.5, 0)

	assert.False(t, res.Success)
	assert.Contains(t, res.Err, "buy failed")
	assert.Equal(t, 3, f.chain.sends)
}

func TestBuyQuoteFailureIsNotRetried(t *testing.T) {
	f := newExecutorFixture()
	f.quoter.quoteErr = errors.New("no route")

	res := f.exec.Buy(context.Background(), "u1", "mintA", 0.5, 0)

	assert.False(t, res.Success)
	assert.Equal(t, "failed to get swap quote", res.Err)
	assert.Equal(t, 1, f.quoter.quoteCalls)
	assert.Zero(t, f.chain.sends)
}

func TestBuyKeepsSignatureWhenRecordFails(t *testing.T) {
	f := newExecutorFixture()
	f.ledger.openErr = errors.New("db down")

	res := f.exec.Buy(context.Background(), "u1", "mintA", 0.5, 0)

	assert.False(t, res.Success)
	assert.Equal(t, "5ig", res.Signature)
	assert.Equal(t, "swap executed but trade could not be recorded", res.Err)
}

func TestSellRejectsInvalidPercent(t *testing.T) {
	for _, pct := range []float64{0, -5, 101} {
		f := newExecutorFixture()
		res := f.exec.Sell(context.Background(), "u1", "mintA", pct, 0)

		assert.False(t, res.Success)
		assert.Equal(t, "sell percentage must be between 1 and 100", res.Err)
		assert.Zero(t, f.wallets.activeCalls)
	}
}

func TestSellFullPositionClosesTrade(t *testing.T) {
	f := newExecutorFixture()
	f.ledger.openTrade = domain.Trade{
		ID:           "trade-1",
		UserID:       "u1",
		TokenAddress: "mintA",
		AmountSol:    1.0,
		TokenAmount:  1_000_000,
	}
	// Quote returns 1.5 SOL worth of lamports for the whole position.
	f.quoter.quote = Quote{OutAmount: uint64(1.5 * wallet.LamportsPerSol)}

	res := f.exec.Sell(context.Background(), "u1", "mintA", 100, 0)

	require.True(t, res.Success, res.Err)
	assert.True(t, res.Closed)
	assert.InDelta(t, 1.5, res.SolReceived, 1e-9)
	assert.InDelta(t, 0.5, res.PnlSol, 1e-9)
	assert.InDelta(t, 50, res.PnlPercent, 1e-9)
	assert.Equal(t, 1, f.ledger.closeCalls)
	assert.Empty(t, f.ledger.reduceCalls)
}

func TestSellPartialReducesTrade(t *testing.T) {
	f := newExecutorFixture()
	f.ledger.openTrade = domain.Trade{
		ID:           "trade-1",
		UserID:       "u1",
		TokenAddress: "mintA",
		AmountSol:    1.0,
		TokenAmount:  1_000_000,
	}
	f.quoter.quote = Quote{OutAmount: uint64(0.6 * wallet.LamportsPerSol)}

	res := f.exec.Sell(context.Background(), "u1", "mintA", 50, 0)

	require.True(t, res.Success, res.Err)
	assert.False(t, res.Closed)
	assert.Zero(t, f.ledger.closeCalls)
	require.Len(t, f.ledger.reduceCalls, 1)
	assert.InDelta(t, 500_000, f.ledger.reduceCalls[0].tokenAmount, 1e-6)
	assert.InDelta(t, 0.5, f.ledger.reduceCalls[0].amountSol, 1e-9)
}

func TestSellHeldLockReportsBusy(t *testing.T) {
	f := newExecutorFixture()
	f.ledger.openTrade = domain.Trade{ID: "trade-1", TokenAddress: "mintA", AmountSol: 1.0}
	f.locks.held = true

	res := f.exec.Sell(context.Background(), "u1", "mintA", 100, 0)

	assert.True(t, res.Busy)
	assert.False(t, res.Success)
	assert.Zero(t, f.chain.sends)
}

func TestSellAlreadyClosedLeavesClosedUnset(t *testing.T) {
	f := newExecutorFixture()
	f.ledger.openTrade = domain.Trade{ID: "trade-1", TokenAddress: "mintA", AmountSol: 1.0}
	f.ledger.closeErr = domain.ErrAlreadyClosed
	f.quoter.quote = Quote{OutAmount: uint64(1.2 * wallet.LamportsPerSol)}

	res := f.exec.Sell(context.Background(), "u1", "mintA", 100, 0)

	require.True(t, res.Success, res.Err)
	assert.False(t, res.Closed)
}

func TestSellTradeUsesTradeWallet(t *testing.T) {
	f := newExecutorFixture()
	trade := domain.Trade{
		ID:            "trade-1",
		WalletAddress: "pub",
		TokenAddress:  "mintA",
		AmountSol:     1.0,
	}
	f.quoter.quote = Quote{OutAmount: uint64(2.0 * wallet.LamportsPerSol)}

	res := f.exec.SellTrade(context.Background(), trade)

	require.True(t, res.Success, res.Err)
	assert.True(t, res.Closed)
	assert.Equal(t, 1, f.locks.acquires)
}

func TestSellNoTokensToSell(t *testing.T) {
	f := newExecutorFixture()
	f.ledger.openTrade = domain.Trade{ID: "trade-1", TokenAddress: "mintA", AmountSol: 1.0}
	f.chain.rawBalance = 0

	res := f.exec.Sell(context.Background(), "u1", "mintA", 100, 0)

	assert.False(t, res.Success)
	assert.Equal(t, "no tokens to sell", res.Err)
	assert.Zero(t, f.quoter.quoteCalls)
}

func TestSubmitRespectsContextCancellation(t *testing.T) {
	f := newExecutorFixture()
	f.chain.sendErrs = []error{errors.New("down"), errors.New("down"), errors.New("down")}
	f.exec.cfg.RetryDelay = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.exec.submitWithRetry(ctx, "dGVzdA==", solana.PrivateKey{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, f.chain.sends)
}
