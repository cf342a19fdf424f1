// Package notify delivers best-effort human-readable alerts for
// graduation records. Delivery failures never roll back the record or
// block the pipeline.
package notify

import (
	"context"
	"fmt"
	"log"
	"math"
	"strings"

	"pump-graduates/internal/domain"
)

// Notifier accepts a structured graduation record and best-effort
// delivers an alert for it.
type Notifier interface {
	Notify(ctx context.Context, g *domain.Graduate) error
}

// LogNotifier writes alerts to the process log. Used when no chat
// delivery is configured.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a log-only notifier.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{logger: logger}
}

// Compile-time interface check.
var _ Notifier = (*LogNotifier)(nil)

// Notify logs the formatted alert.
func (n *LogNotifier) Notify(_ context.Context, g *domain.Graduate) error {
	n.logger.Printf("Graduation alert:\n%s", FormatMessage(g))
	return nil
}

// FormatMessage renders the human-readable alert body for a record.
// Fields missing from the record (enrichment incomplete or failed) are
// simply omitted.
func FormatMessage(g *domain.Graduate) string {
	var b strings.Builder

	title := g.Mint
	if g.Symbol != nil && *g.Symbol != "" {
		title = *g.Symbol
		if g.Name != nil && *g.Name != "" && *g.Name != *g.Symbol {
			title = fmt.Sprintf("%s (%s)", *g.Symbol, *g.Name)
		}
	}

	fmt.Fprintf(&b, "🎓 %s graduated to %s\n", title, g.Dex)
	fmt.Fprintf(&b, "Mint: %s\n", g.Mint)

	if g.PriceUsd != nil {
		fmt.Fprintf(&b, "Price: $%s\n", formatPrice(*g.PriceUsd))
	}
	if g.MarketCap != nil {
		fmt.Fprintf(&b, "Market cap: %s\n", FormatUSD(*g.MarketCap))
	}
	if g.LiquidityUsd != nil {
		fmt.Fprintf(&b, "Liquidity: %s\n", FormatUSD(*g.LiquidityUsd))
	}
	if g.Stats != nil && g.Stats.VolumeH24 != nil {
		fmt.Fprintf(&b, "24h volume: %s\n", FormatUSD(*g.Stats.VolumeH24))
	}
	if g.URL != nil && *g.URL != "" {
		fmt.Fprintf(&b, "%s\n", *g.URL)
	}

	return strings.TrimRight(b.String(), "\n")
}

// FormatUSD renders a dollar amount with thousands separators and no
// cents, e.g. 50000 -> "$50,000".
func FormatUSD(v float64) string {
	neg := v < 0
	whole := int64(math.Round(math.Abs(v)))

	digits := fmt.Sprintf("%d", whole)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}

	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}

// formatPrice renders token prices, keeping precision for sub-cent
// meme-token values.
func formatPrice(v float64) string {
	if v >= 1 {
		return fmt.Sprintf("%.4f", v)
	}
	return fmt.Sprintf("%.8f", v)
}
