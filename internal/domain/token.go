package domain

import "time"

// TokenData is a market snapshot for an SPL token, taken from the most
// liquid Solana pair the oracle can find.
type TokenData struct {
	Address       string
	Symbol        string
	Name          string
	PriceSol      float64 // price in SOL (native quote)
	PriceUsd      float64
	LiquidityUsd  float64
	Volume24hUsd  float64
	MarketCapUsd  float64
	PriceChange1h float64 // percent
	Buys1h        int
	Sells1h       int
	Buys24h       int
	Sells24h      int
	PairCreatedAt time.Time
}

// TokenHolder is one of a mint's largest token accounts with its share of
// the combined balance those accounts hold, in percent.
type TokenHolder struct {
	Address    string
	Percentage float64
}
