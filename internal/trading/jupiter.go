// Package trading contains the swap executor and the TP/SL position monitor,
// plus the Jupiter aggregator client they are built on.
package trading

import (
	"bytes"
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
)

// Quote is a Jupiter swap quote. The raw response is retained so it can be
// passed back verbatim when requesting the swap transaction.
type Quote struct {
	InputMint      string
	OutputMint     string
	InAmount       uint64
	OutAmount      uint64
	PriceImpactPct float64

	raw json.RawMessage
}

// JupiterClient talks to the Jupiter swap API (quote + swap endpoints).
type JupiterClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewJupiterClient creates a swap client. baseURL is typically
// "https://lite-api.jup.ag".
func NewJupiterClient(baseURL string, logger *slog.Logger) *JupiterClient {
	return &JupiterClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  logger.With(slog.String("component", "jupiter")),
	}
}

type jupiterQuoteResponse struct {
	InputMint      string `json:"inputMint"`
	InAmount       string `json:"inAmount"`
	OutputMint     string `json:"outputMint"`
	OutAmount      string `json:"outAmount"`
	PriceImpactPct string `json:"priceImpactPct"`
}

// Quote requests a swap quote for the given amount (in raw input units).
func (c *JupiterClient) Quote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps int) (Quote, error) {
	params := url.Values{}
	params.Set("inputMint", inputMint)
	params.Set("outputMint", outputMint)
	params.Set("amount", strconv.FormatUint(amount, 10))
	params.Set("slippageBps", strconv.Itoa(slippageBps))

	reqURL := c.baseURL + "/swap/v1/quote?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("jupiter: create quote request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("jupiter: fetch quote: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Quote{}, fmt.Errorf("jupiter: read quote response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("jupiter: quote status %d: %s", resp.StatusCode, truncate(body, 512))
	}

	var parsed jupiterQuoteResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Quote{}, fmt.Errorf("jupiter: decode quote: %w", err)
	}

	inAmount, err := strconv.ParseUint(parsed.InAmount, 10, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("jupiter: parse inAmount %q: %w", parsed.InAmount, err)
	}
	outAmount, err := strconv.ParseUint(parsed.OutAmount, 10, 64)
	if err != nil {
		return Quote{}, fmt.Errorf("jupiter: parse outAmount %q: %w", parsed.OutAmount, err)
	}
	impact, _ := strconv.ParseFloat(parsed.PriceImpactPct, 64)

	return Quote{
		InputMint:      parsed.InputMint,
		OutputMint:     parsed.OutputMint,
		InAmount:       inAmount,
		OutAmount:      outAmount,
		PriceImpactPct: impact,
		raw:            json.RawMessage(body),
	}, nil
}

type jupiterSwapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	DynamicComputeUnitLimit   bool            `json:"dynamicComputeUnitLimit"`
	PrioritizationFeeLamports string          `json:"prioritizationFeeLamports"`
}

type jupiterSwapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
}

// SwapTransaction asks Jupiter to build the swap transaction for a quote and
// returns it as base64.
func (c *JupiterClient) SwapTransaction(ctx context.Context, q Quote, userPublicKey string) (string, error) {
	if len(q.raw) == 0 {
		return "", fmt.Errorf("jupiter: quote has no raw response")
	}

	payload := jupiterSwapRequest{
		QuoteResponse:             q.raw,
		UserPublicKey:             userPublicKey,
		WrapAndUnwrapSol:          true,
		DynamicComputeUnitLimit:   true,
		PrioritizationFeeLamports: "auto",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("jupiter: marshal swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap/v1/swap", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("jupiter: create swap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("jupiter: fetch swap transaction: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("jupiter: swap status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed jupiterSwapResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("jupiter: decode swap response: %w", err)
	}
	if parsed.SwapTransaction == "" {
		return "", fmt.Errorf("jupiter: swap response missing transaction")
	}
	return parsed.SwapTransaction, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
