package domain

// FallbackDex is the venue recorded when the feed omits the pool field.
const FallbackDex = "pumpswap"

// PumpFunDex is the pre-graduation venue identifier used by the
// market-data source. Pair selection prefers anything else.
const PumpFunDex = "pumpfun"

// TradingStats holds the rolling trading metrics copied from the
// market-data source. Every field is independently nullable until the
// first successful enrichment pass.
type TradingStats struct {
	VolumeH1       *float64 `json:"volumeH1,omitempty"`
	VolumeH24      *float64 `json:"volumeH24,omitempty"`
	TxnsH1         *int64   `json:"txnsH1,omitempty"`
	TxnsH24        *int64   `json:"txnsH24,omitempty"`
	PriceChangeH1  *float64 `json:"priceChangeH1,omitempty"`
	PriceChangeH24 *float64 `json:"priceChangeH24,omitempty"`
}

// Graduate represents one pump.fun token graduation record.
// The mint address is the identity key; a mint appears at most once in
// the store. Enrichment mutates fields in place without changing the
// record's position in the newest-first ordering.
type Graduate struct {
	Mint         string        `json:"mint"`
	Name         *string       `json:"name,omitempty"`
	Symbol       *string       `json:"symbol,omitempty"`
	GraduatedAt  int64         `json:"graduatedAt"` // Unix timestamp in milliseconds
	LiquidityUsd *float64      `json:"liquidityUsd,omitempty"`
	PriceUsd     *float64      `json:"priceUsd,omitempty"`
	MarketCap    *float64      `json:"marketCap,omitempty"`
	FDV          *float64      `json:"fdv,omitempty"`
	Dex          string        `json:"dex"`
	PairAddress  *string       `json:"pairAddress,omitempty"`
	URL          *string       `json:"url,omitempty"`
	Stats        *TradingStats `json:"tradingStats,omitempty"`
	Signature    string        `json:"signature,omitempty"`
}

// Enriched reports whether the record has been upgraded with market
// data. Price and market cap together mark a completed enrichment.
func (g *Graduate) Enriched() bool {
	return g.PriceUsd != nil && g.MarketCap != nil
}

// Clone returns a deep copy so callers cannot mutate stored records.
func (g *Graduate) Clone() *Graduate {
	if g == nil {
		return nil
	}
	out := *g
	out.Name = clonePtr(g.Name)
	out.Symbol = clonePtr(g.Symbol)
	out.LiquidityUsd = clonePtr(g.LiquidityUsd)
	out.PriceUsd = clonePtr(g.PriceUsd)
	out.MarketCap = clonePtr(g.MarketCap)
	out.FDV = clonePtr(g.FDV)
	out.PairAddress = clonePtr(g.PairAddress)
	out.URL = clonePtr(g.URL)
	if g.Stats != nil {
		stats := TradingStats{
			VolumeH1:       clonePtr(g.Stats.VolumeH1),
			VolumeH24:      clonePtr(g.Stats.VolumeH24),
			TxnsH1:         clonePtr(g.Stats.TxnsH1),
			TxnsH24:        clonePtr(g.Stats.TxnsH24),
			PriceChangeH1:  clonePtr(g.Stats.PriceChangeH1),
			PriceChangeH24: clonePtr(g.Stats.PriceChangeH24),
		}
		out.Stats = &stats
	}
	return &out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
