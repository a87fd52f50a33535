// Package oracle provides market data for SPL tokens from external price
// APIs. The Dexscreener client is the primary source; the Jupiter price
// client serves as a single-token fallback for swap entry prices.
package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xtrenches/trenchbot/internal/domain"
)

// dexscreenerBatchSize is the maximum number of token addresses the
// Dexscreener tokens endpoint accepts in one request.
const dexscreenerBatchSize = 30

// Dexscreener fetches token market data from the Dexscreener API and keeps
// the most liquid Solana pair per token.
type Dexscreener struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewDexscreener creates a Dexscreener oracle. baseURL is typically
// "https://api.dexscreener.com".
func NewDexscreener(baseURL string, logger *slog.Logger) *Dexscreener {
	return &Dexscreener{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With(slog.String("component", "dexscreener")),
	}
}

type dexPair struct {
	ChainID   string `json:"chainId"`
	BaseToken struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceNative string `json:"priceNative"`
	PriceUsd    string `json:"priceUsd"`
	Liquidity   struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H1 float64 `json:"h1"`
	} `json:"priceChange"`
	Txns struct {
		H1 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h1"`
		H24 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`
	MarketCap     float64 `json:"marketCap"`
	Fdv           float64 `json:"fdv"`
	PairCreatedAt int64   `json:"pairCreatedAt"` // unix milliseconds
}

type dexTokensResponse struct {
	Pairs []dexPair `json:"pairs"`
}

// TokenData returns a market snapshot for a single token.
func (d *Dexscreener) TokenData(ctx context.Context, address string) (domain.TokenData, error) {
	batch, err := d.TokenDataBatch(ctx, []string{address})
	if err != nil {
		return domain.TokenData{}, err
	}
	td, ok := batch[address]
	if !ok {
		return domain.TokenData{}, domain.ErrNotFound
	}
	return td, nil
}

// TokenDataBatch fetches snapshots for many tokens, chunking requests to the
// API's address limit. A failed chunk is logged and skipped so one bad
// request cannot take down the whole batch; callers get partial results.
func (d *Dexscreener) TokenDataBatch(ctx context.Context, addresses []string) (map[string]domain.TokenData, error) {
	result := make(map[string]domain.TokenData, len(addresses))
	if len(addresses) == 0 {
		return result, nil
	}

	for start := 0; start < len(addresses); start += dexscreenerBatchSize {
		end := start + dexscreenerBatchSize
		if end > len(addresses) {
			end = len(addresses)
		}
		chunk := addresses[start:end]

		pairs, err := d.fetchPairs(ctx, chunk)
		if err != nil {
			d.logger.WarnContext(ctx, "token data chunk failed",
				slog.Int("chunk_size", len(chunk)),
				slog.String("error", err.Error()),
			)
			continue
		}

		mergeBestPairs(result, pairs)
	}

	return result, nil
}

func (d *Dexscreener) fetchPairs(ctx context.Context, addresses []string) ([]dexPair, error) {
	url := d.baseURL + "/latest/dex/tokens/" + strings.Join(addresses, ",")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dexscreener: create request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dexscreener: fetch tokens: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("dexscreener: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var parsed dexTokensResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("dexscreener: decode response: %w", err)
	}
	return parsed.Pairs, nil
}

// mergeBestPairs folds pairs into the result map, keeping the highest
// liquidity Solana pair per base token.
func mergeBestPairs(result map[string]domain.TokenData, pairs []dexPair) {
	best := make(map[string]dexPair)
	for _, p := range pairs {
		if p.ChainID != "solana" {
			continue
		}
		addr := p.BaseToken.Address
		if cur, ok := best[addr]; !ok || p.Liquidity.Usd > cur.Liquidity.Usd {
			best[addr] = p
		}
	}

	for addr, p := range best {
		priceSol, err := strconv.ParseFloat(p.PriceNative, 64)
		if err != nil {
			continue
		}
		priceUsd, _ := strconv.ParseFloat(p.PriceUsd, 64)

		marketCap := p.MarketCap
		if marketCap == 0 {
			marketCap = p.Fdv
		}

		result[addr] = domain.TokenData{
			Address:       addr,
			Symbol:        p.BaseToken.Symbol,
			Name:          p.BaseToken.Name,
			PriceSol:      priceSol,
			PriceUsd:      priceUsd,
			LiquidityUsd:  p.Liquidity.Usd,
			Volume24hUsd:  p.Volume.H24,
			MarketCapUsd:  marketCap,
			PriceChange1h: p.PriceChange.H1,
			Buys1h:        p.Txns.H1.Buys,
			Sells1h:       p.Txns.H1.Sells,
			Buys24h:       p.Txns.H24.Buys,
			Sells24h:      p.Txns.H24.Sells,
			PairCreatedAt: time.UnixMilli(p.PairCreatedAt),
		}
	}
}

// Compile-time interface check.
var _ domain.PriceOracle = (*Dexscreener)(nil)
