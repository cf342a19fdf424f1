package market

// TokenInfo identifies one side of a trading pair.
type TokenInfo struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

// TxnCounts holds buy/sell transaction counts for one window.
type TxnCounts struct {
	Buys  int64 `json:"buys"`
	Sells int64 `json:"sells"`
}

// Pair is one tradable market listing returned by the token lookup.
// Numeric fields the source omits stay nil.
type Pair struct {
	ChainID     string    `json:"chainId"`
	DexID       string    `json:"dexId"`
	URL         string    `json:"url"`
	PairAddress string    `json:"pairAddress"`
	BaseToken   TokenInfo `json:"baseToken"`
	PriceUsd    string    `json:"priceUsd"`
	Txns        struct {
		H1  *TxnCounts `json:"h1"`
		H24 *TxnCounts `json:"h24"`
	} `json:"txns"`
	Volume struct {
		H1  *float64 `json:"h1"`
		H24 *float64 `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H1  *float64 `json:"h1"`
		H24 *float64 `json:"h24"`
	} `json:"priceChange"`
	Liquidity *struct {
		USD *float64 `json:"usd"`
	} `json:"liquidity"`
	FDV       *float64 `json:"fdv"`
	MarketCap *float64 `json:"marketCap"`
}

// SelectPair applies the pair-selection heuristic: prefer a pair whose
// venue differs from the pre-graduation venue, meaning a genuinely
// graduated DEX pair; otherwise fall back to the first pair. Returns
// nil when no pairs exist.
func SelectPair(pairs []Pair, preGraduationDex string) *Pair {
	if len(pairs) == 0 {
		return nil
	}
	for i := range pairs {
		if pairs[i].DexID != preGraduationDex {
			return &pairs[i]
		}
	}
	return &pairs[0]
}
