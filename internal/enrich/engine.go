// Package enrich upgrades draft graduation records with market data
// via delayed, retried lookups against the external data source.
package enrich

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"pump-graduates/internal/domain"
	"pump-graduates/internal/market"
	"pump-graduates/internal/notify"
	"pump-graduates/internal/observability"
	"pump-graduates/internal/store"
)

// PairSource looks up trading pairs for a mint.
type PairSource interface {
	TokenPairs(ctx context.Context, mint string) ([]market.Pair, error)
}

// Broadcaster pushes an upserted record to live subscribers.
type Broadcaster interface {
	BroadcastGraduate(g *domain.Graduate)
}

// StatsRecorder appends a trading-stats snapshot for offline analytics.
// Recording is best effort.
type StatsRecorder interface {
	Record(ctx context.Context, g *domain.Graduate, at time.Time) error
}

// Config holds the enrichment timing knobs.
type Config struct {
	// InitialDelay gives the market-data source time to index a newly
	// created pair before the first lookup.
	InitialDelay time.Duration
	// PartialRetryDelay is the single retry delay when pairs exist but
	// price and market cap are still missing.
	PartialRetryDelay time.Duration
	// FullMissAttempts bounds the retry loop when the initial lookup
	// returns zero pairs.
	FullMissAttempts int
	// FullMissDelay spaces the full-miss retries.
	FullMissDelay time.Duration
	// PreGraduationDex is the venue pair selection steers away from.
	PreGraduationDex string
	// SweepInterval is the periodic refresh sweep period.
	SweepInterval time.Duration
	// SweepWindow bounds which records the sweep refreshes, by age.
	SweepWindow time.Duration
	// SweepPacing spaces lookups within one sweep to avoid burst
	// rate-limiting.
	SweepPacing time.Duration
}

// DefaultConfig returns the production timing configuration.
func DefaultConfig() Config {
	return Config{
		InitialDelay:      8 * time.Second,
		PartialRetryDelay: 10 * time.Second,
		FullMissAttempts:  3,
		FullMissDelay:     15 * time.Second,
		PreGraduationDex:  domain.PumpFunDex,
		SweepInterval:     10 * time.Minute,
		SweepWindow:       24 * time.Hour,
		SweepPacing:       250 * time.Millisecond,
	}
}

// Engine runs enrichment for accepted graduation events. Enrichment
// for different records proceeds independently; a record is only ever
// enriched from the single ingestion path or the sweep, so per-record
// work is naturally serialized. In-flight retries run to completion or
// exhaustion; there is no cancellation.
type Engine struct {
	source   PairSource
	store    *store.GraduateStore
	hub      Broadcaster
	notifier notify.Notifier
	recorder StatsRecorder
	clock    clock.Clock
	config   Config
	logger   *log.Logger

	mu       sync.Mutex
	notified map[string]struct{}
	wg       sync.WaitGroup
}

// Options configures an Engine.
type Options struct {
	Source   PairSource
	Store    *store.GraduateStore
	Hub      Broadcaster
	Notifier notify.Notifier
	Recorder StatsRecorder
	Clock    clock.Clock
	Config   *Config
	Logger   *log.Logger
}

// New creates an enrichment engine.
func New(opts Options) *Engine {
	cfg := DefaultConfig()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return &Engine{
		source:   opts.Source,
		store:    opts.Store,
		hub:      opts.Hub,
		notifier: notifier,
		recorder: opts.Recorder,
		clock:    clk,
		config:   cfg,
		logger:   logger,
		notified: make(map[string]struct{}),
	}
}

// Enrich starts asynchronous enrichment for a freshly accepted record.
// Returns immediately; the work never blocks ingestion.
func (e *Engine) Enrich(mint string) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(mint)
	}()
}

// Wait blocks until all in-flight enrichment tasks finish.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// run executes the full enrichment sequence for one record and ends
// with exactly one notification, regardless of how much data it found.
func (e *Engine) run(mint string) {
	ctx := context.Background()

	e.clock.Sleep(e.config.InitialDelay)

	pairs := e.lookup(ctx, mint)

	// Full miss: the source has not indexed the token yet. Bounded
	// retry loop, then give up silently and notify with baseline data.
	if len(pairs) == 0 {
		for attempt := 0; attempt < e.config.FullMissAttempts; attempt++ {
			e.clock.Sleep(e.config.FullMissDelay)
			pairs = e.lookup(ctx, mint)
			if len(pairs) > 0 {
				break
			}
		}
	}

	if len(pairs) > 0 {
		enriched := e.apply(ctx, mint, pairs, false)

		// Partial miss: pairs exist but price/market cap are absent.
		// Exactly one retry, then notify with whatever is available.
		if !enriched {
			e.clock.Sleep(e.config.PartialRetryDelay)
			if retry := e.lookup(ctx, mint); len(retry) > 0 {
				e.apply(ctx, mint, retry, false)
			}
		}
	}

	e.notifyOnce(ctx, mint)
}

// lookup queries the market-data source. Every failure is logged and
// treated as "no data this attempt".
func (e *Engine) lookup(ctx context.Context, mint string) []market.Pair {
	start := e.clock.Now()
	pairs, err := e.source.TokenPairs(ctx, mint)
	elapsed := e.clock.Since(start).Seconds()

	if err != nil {
		e.logger.Printf("Market lookup failed for %s: %v", mint, err)
		observability.RecordEnrichmentAttempt("error", elapsed)
		return nil
	}
	if len(pairs) == 0 {
		observability.RecordEnrichmentAttempt("miss", elapsed)
		return nil
	}
	observability.RecordEnrichmentAttempt("hit", elapsed)
	return pairs
}

// apply selects a pair and copies its data into the stored record,
// re-persisting and re-broadcasting. statsOnly restricts the copy to
// the trading-stats bundle (refresh sweep mode). Reports whether the
// record is enriched afterwards.
func (e *Engine) apply(ctx context.Context, mint string, pairs []market.Pair, statsOnly bool) bool {
	pair := market.SelectPair(pairs, e.config.PreGraduationDex)
	if pair == nil {
		return false
	}

	updated, err := e.store.Update(ctx, mint, func(g *domain.Graduate) {
		applyStats(g, pair)
		if statsOnly {
			return
		}

		if g.Name == nil && pair.BaseToken.Name != "" {
			name := pair.BaseToken.Name
			g.Name = &name
		}
		if g.Symbol == nil && pair.BaseToken.Symbol != "" {
			symbol := pair.BaseToken.Symbol
			g.Symbol = &symbol
		}
		if price := parsePrice(pair.PriceUsd); price != nil {
			g.PriceUsd = price
		}
		if pair.MarketCap != nil {
			v := *pair.MarketCap
			g.MarketCap = &v
		}
		if pair.FDV != nil {
			v := *pair.FDV
			g.FDV = &v
		}
		if pair.Liquidity != nil && pair.Liquidity.USD != nil {
			v := *pair.Liquidity.USD
			g.LiquidityUsd = &v
		}
		if pair.DexID != "" {
			g.Dex = pair.DexID
		}
		if pair.PairAddress != "" {
			addr := pair.PairAddress
			g.PairAddress = &addr
		}
		if pair.URL != "" {
			url := pair.URL
			g.URL = &url
		}
	})
	if err != nil {
		// Record evicted or cleared while enrichment was in flight.
		e.logger.Printf("Enrichment update skipped for %s: %v", mint, err)
		return false
	}

	if e.hub != nil {
		e.hub.BroadcastGraduate(updated)
	}
	return updated.Enriched()
}

// applyStats copies the six-field trading-stats bundle, overwriting
// only with values the source actually returned.
func applyStats(g *domain.Graduate, pair *market.Pair) {
	if g.Stats == nil {
		g.Stats = &domain.TradingStats{}
	}
	if pair.Volume.H1 != nil {
		v := *pair.Volume.H1
		g.Stats.VolumeH1 = &v
	}
	if pair.Volume.H24 != nil {
		v := *pair.Volume.H24
		g.Stats.VolumeH24 = &v
	}
	if pair.Txns.H1 != nil {
		n := pair.Txns.H1.Buys + pair.Txns.H1.Sells
		g.Stats.TxnsH1 = &n
	}
	if pair.Txns.H24 != nil {
		n := pair.Txns.H24.Buys + pair.Txns.H24.Sells
		g.Stats.TxnsH24 = &n
	}
	if pair.PriceChange.H1 != nil {
		v := *pair.PriceChange.H1
		g.Stats.PriceChangeH1 = &v
	}
	if pair.PriceChange.H24 != nil {
		v := *pair.PriceChange.H24
		g.Stats.PriceChangeH24 = &v
	}
}

// notifyOnce sends the graduation alert at most once per mint.
// Delivery failures are logged and swallowed.
func (e *Engine) notifyOnce(ctx context.Context, mint string) {
	e.mu.Lock()
	if _, done := e.notified[mint]; done {
		e.mu.Unlock()
		return
	}
	e.notified[mint] = struct{}{}
	e.mu.Unlock()

	g, err := e.store.Get(ctx, mint)
	if err != nil {
		e.logger.Printf("Notification skipped for %s: %v", mint, err)
		return
	}

	err = e.notifier.Notify(ctx, g)
	observability.RecordNotification(err)
	if err != nil {
		e.logger.Printf("Notification failed for %s: %v", mint, err)
	}
}

// parsePrice converts the source's decimal price string, returning nil
// for absent or malformed values.
func parsePrice(s string) *float64 {
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
