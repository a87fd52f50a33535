package scoring

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/xtrenches/trenchbot/internal/domain"
)

func TestEntryScoreRules(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		td         domain.TokenData
		wantScore  int
		wantGamble bool
	}{
		{
			name:      "no data scores zero",
			td:        domain.TokenData{},
			wantScore: 0,
		},
		{
			name: "low market cap",
			td: domain.TokenData{
				MarketCapUsd: 100_000,
			},
			wantScore: 15,
		},
		{
			name: "high volume to market cap",
			td: domain.TokenData{
				MarketCapUsd: 200_000,
				Volume24hUsd: 150_000,
			},
			wantScore: 20,
		},
		{
			name: "one hour pump",
			td: domain.TokenData{
				PriceChange1h: 25,
			},
			wantScore: 10,
		},
		{
			name: "bullish transaction flow",
			td: domain.TokenData{
				Buys1h:  130,
				Sells1h: 100,
			},
			wantScore: 10,
		},
		{
			name: "balanced flow scores nothing",
			td: domain.TokenData{
				Buys1h:  100,
				Sells1h: 100,
			},
			wantScore: 0,
		},
		{
			name: "deep liquidity pool",
			td: domain.TokenData{
				MarketCapUsd: 100_000,
				LiquidityUsd: 20_000,
			},
			wantScore: 30, // low MC + strong LP
		},
		{
			name: "fresh token age window",
			td: domain.TokenData{
				PairCreatedAt: now.Add(-30 * time.Minute),
			},
			wantScore: 10,
		},
		{
			name: "old token gets no age bonus",
			td: domain.TokenData{
				PairCreatedAt: now.Add(-3 * time.Hour),
			},
			wantScore: 0,
		},
		{
			name: "young thin pool is a gamble",
			td: domain.TokenData{
				PairCreatedAt: now.Add(-5 * time.Minute),
				LiquidityUsd:  1_000,
			},
			wantScore:  0,
			wantGamble: true,
		},
		{
			name: "young but deep pool is not a gamble",
			td: domain.TokenData{
				PairCreatedAt: now.Add(-5 * time.Minute),
				LiquidityUsd:  50_000,
			},
			wantScore: 0,
		},
		{
			name: "everything firing",
			td: domain.TokenData{
				MarketCapUsd:  100_000,
				Volume24hUsd:  80_000,
				LiquidityUsd:  20_000,
				PriceChange1h: 15,
				Buys1h:        200,
				Sells1h:       100,
				PairCreatedAt: now.Add(-45 * time.Minute),
			},
			wantScore: 80,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := EntryScore(tt.td, nil, now)
			assert.Equal(t, tt.wantScore, s.Value)
			assert.Equal(t, tt.wantGamble, s.HighGamble)
		})
	}
}

func TestEntryScoreHolderRules(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	holders := func(pcts ...float64) []domain.TokenHolder {
		out := make([]domain.TokenHolder, len(pcts))
		for i, p := range pcts {
			out[i] = domain.TokenHolder{Address: fmt.Sprintf("h%d", i), Percentage: p}
		}
		return out
	}

	t.Run("distributed supply with small dev bag", func(t *testing.T) {
		s := EntryScore(domain.TokenData{}, holders(4, 4, 3, 3, 3, 3, 3, 3, 3, 3), now)
		assert.Equal(t, 20, s.Value)
		assert.Contains(t, s.Signals, "Distributed (Top10: 32.0%): +10")
		assert.Contains(t, s.Signals, "Low dev bag (4.0%): +10")
	})

	t.Run("concentrated supply warns without scoring", func(t *testing.T) {
		s := EntryScore(domain.TokenData{}, holders(40, 15, 10), now)
		assert.Equal(t, 0, s.Value)
		assert.Contains(t, s.Warnings, "Concentrated supply: Top10 hold 65.0%")
		assert.Contains(t, s.Warnings, "Heavy dev bag: 40.0%")
	})

	t.Run("middling distribution is neutral", func(t *testing.T) {
		s := EntryScore(domain.TokenData{}, holders(10, 10, 10, 10, 10), now)
		assert.Equal(t, 0, s.Value)
		assert.Empty(t, s.Signals)
		assert.Empty(t, s.Warnings)
	})

	t.Run("missing holder data skips both rules", func(t *testing.T) {
		s := EntryScore(domain.TokenData{}, nil, now)
		assert.Equal(t, 0, s.Value)
		assert.Empty(t, s.Signals)
		assert.Empty(t, s.Warnings)
	})
}

func TestVerdictBoundaries(t *testing.T) {
	assert.Equal(t, "Strong setup.", Score{Value: 70}.Verdict())
	assert.Equal(t, "Decent setup.", Score{Value: 50}.Verdict())
	assert.Equal(t, "Decent setup.", Score{Value: 69}.Verdict())
	assert.Equal(t, "Weak setup. Proceed with caution.", Score{Value: 49}.Verdict())
	assert.Contains(t, Score{Value: 90, HighGamble: true}.Verdict(), "HIGH GAMBLE")
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "1.50M", FormatAmount(1_500_000))
	assert.Equal(t, "42.00K", FormatAmount(42_000))
	assert.Equal(t, "999.00", FormatAmount(999))
}

func TestFormatReportIncludesSignalsAndVerdict(t *testing.T) {
	td := domain.TokenData{
		Symbol:       "TRENCH",
		Name:         "Trench Coin",
		MarketCapUsd: 100_000,
		LiquidityUsd: 20_000,
		Volume24hUsd: 80_000,
		PriceUsd:     0.0001,
	}
	s := EntryScore(td, nil, time.Now())
	report := FormatReport(td, s)

	assert.Contains(t, report, "SCAN: TRENCH")
	assert.Contains(t, report, "ENTRY SCORE: 50/100")
	assert.Contains(t, report, "Signals:")
	assert.Contains(t, report, "Decent setup.")
}
