// Package scoring rates token entry setups from oracle market data.
package scoring

import (
	"fmt"
	"time"

	"github.com/xtrenches/trenchbot/internal/domain"
)

// Score is a 0-100 entry rating with the signals that contributed to it and
// the warnings that argue against taking the trade.
type Score struct {
	Value      int
	Signals    []string
	Warnings   []string
	HighGamble bool
}

// Verdict summarizes the score in one line.
func (s Score) Verdict() string {
	switch {
	case s.HighGamble:
		return "HIGH GAMBLE\nSize accordingly or sit out."
	case s.Value >= 70:
		return "Strong setup."
	case s.Value >= 50:
		return "Decent setup."
	default:
		return "Weak setup. Proceed with caution."
	}
}

// EntryScore rates a token as an entry candidate. Higher is better. The
// rules reward small caps with real volume, bullish short-term flow, a deep
// liquidity pool relative to market cap, and a distributed holder base; very
// young pools with thin liquidity are flagged as gambles regardless of
// score. When the holder lookup failed upstream, holders is empty and the
// holder rules sit out.
func EntryScore(td domain.TokenData, holders []domain.TokenHolder, now time.Time) Score {
	var s Score

	ageMinutes := now.Sub(td.PairCreatedAt).Minutes()
	if td.PairCreatedAt.IsZero() {
		ageMinutes = -1 // unknown age, treat as old
	}

	if ageMinutes >= 0 && ageMinutes < 10 && td.LiquidityUsd < 3000 {
		s.HighGamble = true
		s.Warnings = append(s.Warnings, "HIGH GAMBLE: Age < 10min + Liq < $3k")
	}

	if td.MarketCapUsd > 0 && td.MarketCapUsd < 150_000 {
		s.Value += 15
		s.Signals = append(s.Signals, "Low MC (<$150k): +15")
	}

	if td.MarketCapUsd > 0 {
		volMcRatio := td.Volume24hUsd / td.MarketCapUsd
		if volMcRatio > 0.6 {
			s.Value += 20
			s.Signals = append(s.Signals, fmt.Sprintf("High Vol/MC (%.0f%%): +20", volMcRatio*100))
		}
	}

	if td.PriceChange1h > 10 {
		s.Value += 10
		s.Signals = append(s.Signals, fmt.Sprintf("1h pump (+%.1f%%): +10", td.PriceChange1h))
	}

	if td.Sells1h > 0 {
		ratio := float64(td.Buys1h) / float64(td.Sells1h)
		if ratio > 1.2 {
			s.Value += 10
			s.Signals = append(s.Signals, fmt.Sprintf("Bullish flow (%.2fx): +10", ratio))
		}
	}

	if td.MarketCapUsd > 0 {
		lpMcRatio := td.LiquidityUsd / td.MarketCapUsd * 100
		if lpMcRatio > 15 {
			s.Value += 15
			s.Signals = append(s.Signals, fmt.Sprintf("Strong LP (%.1f%%): +15", lpMcRatio))
		}
	}

	if len(holders) > 0 {
		var top10 float64
		for i, h := range holders {
			if i == 10 {
				break
			}
			top10 += h.Percentage
		}
		if top10 < 35 {
			s.Value += 10
			s.Signals = append(s.Signals, fmt.Sprintf("Distributed (Top10: %.1f%%): +10", top10))
		} else if top10 > 60 {
			s.Warnings = append(s.Warnings, fmt.Sprintf("Concentrated supply: Top10 hold %.1f%%", top10))
		}

		devPct := holders[0].Percentage
		if devPct < 5 {
			s.Value += 10
			s.Signals = append(s.Signals, fmt.Sprintf("Low dev bag (%.1f%%): +10", devPct))
		} else if devPct > 20 {
			s.Warnings = append(s.Warnings, fmt.Sprintf("Heavy dev bag: %.1f%%", devPct))
		}
	}

	if ageMinutes > 10 && ageMinutes < 120 {
		s.Value += 10
		s.Signals = append(s.Signals, fmt.Sprintf("Fresh token (%dmin): +10", int(ageMinutes)))
	}

	return s
}

// FormatReport renders the score as a chat message.
func FormatReport(td domain.TokenData, s Score) string {
	msg := fmt.Sprintf("SCAN: %s\n%s\n\n", td.Symbol, td.Name)
	msg += fmt.Sprintf("MC: $%s\n", FormatAmount(td.MarketCapUsd))
	msg += fmt.Sprintf("Liq: $%s\n", FormatAmount(td.LiquidityUsd))
	msg += fmt.Sprintf("Vol 24h: $%s\n", FormatAmount(td.Volume24hUsd))
	msg += fmt.Sprintf("Price: $%g\n\n", td.PriceUsd)

	msg += fmt.Sprintf("ENTRY SCORE: %d/100\n\n", s.Value)

	if len(s.Signals) > 0 {
		msg += "Signals:\n"
		for _, sig := range s.Signals {
			msg += "  " + sig + "\n"
		}
		msg += "\n"
	}
	if len(s.Warnings) > 0 {
		msg += "Warnings:\n"
		for _, w := range s.Warnings {
			msg += "  " + w + "\n"
		}
		msg += "\n"
	}

	return msg + s.Verdict()
}

// FormatAmount renders a dollar amount with K/M suffixes.
func FormatAmount(n float64) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.2fM", n/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.2fK", n/1_000)
	default:
		return fmt.Sprintf("%.2f", n)
	}
}
