package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xtrenches/trenchbot/internal/domain"
)

// JupiterPrice fetches token prices in SOL from the Jupiter price API. It is
// used by the swap executor to record entry and exit prices when a swap has
// just moved the market and the Dexscreener snapshot may lag.
type JupiterPrice struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewJupiterPrice creates a price client. baseURL is typically
// "https://lite-api.jup.ag".
func NewJupiterPrice(baseURL string, logger *slog.Logger) *JupiterPrice {
	return &JupiterPrice{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With(slog.String("component", "jupiter_price")),
	}
}

type jupiterPriceResponse struct {
	Data map[string]struct {
		ID    string `json:"id"`
		Price string `json:"price"`
	} `json:"data"`
}

// PriceInSol returns the token's price denominated in SOL.
func (j *JupiterPrice) PriceInSol(ctx context.Context, mint string) (float64, error) {
	params := url.Values{}
	params.Set("ids", mint)
	params.Set("vsToken", domain.WrappedSolMint)

	reqURL := j.baseURL + "/price/v2?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("jupiter: create price request: %w", err)
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("jupiter: fetch price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("jupiter: price status %d: %s", resp.StatusCode, string(body))
	}

	var parsed jupiterPriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("jupiter: decode price response: %w", err)
	}

	entry, ok := parsed.Data[mint]
	if !ok || entry.Price == "" {
		return 0, domain.ErrNotFound
	}
	price, err := strconv.ParseFloat(entry.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("jupiter: parse price %q: %w", entry.Price, err)
	}
	return price, nil
}
