package enrich

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pump-graduates/internal/domain"
	"pump-graduates/internal/market"
	"pump-graduates/internal/store"
)

// fakeSource returns scripted responses, one per lookup call.
type fakeSource struct {
	mu        sync.Mutex
	responses [][]market.Pair
	errs      []error
	calls     int
}

func (f *fakeSource) TokenPairs(_ context.Context, _ string) ([]market.Pair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	i := f.calls
	f.calls++
	var pairs []market.Pair
	var err error
	if i < len(f.responses) {
		pairs = f.responses[i]
	} else if len(f.responses) > 0 {
		pairs = f.responses[len(f.responses)-1]
	}
	if i < len(f.errs) {
		err = f.errs[i]
	}
	return pairs, err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// captureNotifier records every delivered graduate.
type captureNotifier struct {
	mu   sync.Mutex
	sent []*domain.Graduate
	fail bool
}

func (n *captureNotifier) Notify(_ context.Context, g *domain.Graduate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("delivery refused")
	}
	n.sent = append(n.sent, g)
	return nil
}

func (n *captureNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// captureHub counts broadcasts.
type captureHub struct {
	mu   sync.Mutex
	sent []*domain.Graduate
}

func (h *captureHub) BroadcastGraduate(g *domain.Graduate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sent = append(h.sent, g)
}

func (h *captureHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sent)
}

// fastConfig keeps the retry schedule but squeezes it into milliseconds.
func fastConfig() *Config {
	return &Config{
		InitialDelay:      time.Millisecond,
		PartialRetryDelay: time.Millisecond,
		FullMissAttempts:  3,
		FullMissDelay:     time.Millisecond,
		PreGraduationDex:  domain.PumpFunDex,
		SweepInterval:     time.Hour,
		SweepWindow:       24 * time.Hour,
		SweepPacing:       time.Millisecond,
	}
}

func fullPair() market.Pair {
	marketCap := 50000.0
	fdv := 60000.0
	liquidity := 25000.0
	p := market.Pair{
		ChainID:     "solana",
		DexID:       "raydium",
		URL:         "https://dexscreener.com/solana/pair1",
		PairAddress: "pair1",
		BaseToken:   market.TokenInfo{Name: "Foo Token", Symbol: "FOO"},
		PriceUsd:    "0.01",
		FDV:         &fdv,
		MarketCap:   &marketCap,
	}
	p.Liquidity = &struct {
		USD *float64 `json:"usd"`
	}{USD: &liquidity}
	return p
}

func seedStore(t *testing.T) *store.GraduateStore {
	t.Helper()
	s := store.NewGraduateStore(store.Options{})
	err := s.Insert(context.Background(), &domain.Graduate{
		Mint:        "ABC123",
		GraduatedAt: time.Now().UnixMilli(),
		Dex:         domain.FallbackDex,
	})
	if err != nil {
		t.Fatalf("seed insert: %v", err)
	}
	return s
}

func TestEngine_FullMissThenSuccess(t *testing.T) {
	s := seedStore(t)
	source := &fakeSource{responses: [][]market.Pair{
		nil, // initial lookup: not indexed yet
		{fullPair()},
	}}
	notifier := &captureNotifier{}
	hub := &captureHub{}

	engine := New(Options{
		Source:   source,
		Store:    s,
		Hub:      hub,
		Notifier: notifier,
		Config:   fastConfig(),
	})

	engine.Enrich("ABC123")
	engine.Wait()

	g, err := s.Get(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if g.PriceUsd == nil || *g.PriceUsd != 0.01 {
		t.Errorf("price = %v, want 0.01", g.PriceUsd)
	}
	if g.MarketCap == nil || *g.MarketCap != 50000 {
		t.Errorf("marketCap = %v, want 50000", g.MarketCap)
	}
	if !g.Enriched() {
		t.Error("record should be enriched")
	}
	if g.Dex != "raydium" {
		t.Errorf("dex = %q, want raydium", g.Dex)
	}
	if g.Name == nil || *g.Name != "Foo Token" {
		t.Errorf("name = %v", g.Name)
	}

	if notifier.count() != 1 {
		t.Errorf("notifications = %d, want exactly 1", notifier.count())
	}
	if hub.count() == 0 {
		t.Error("expected at least one broadcast")
	}
}

func TestEngine_PartialThenRetry(t *testing.T) {
	s := seedStore(t)

	partial := fullPair()
	partial.PriceUsd = ""
	partial.MarketCap = nil

	source := &fakeSource{responses: [][]market.Pair{
		{partial},    // pairs exist, price and market cap missing
		{fullPair()}, // single partial retry fills them in
	}}
	notifier := &captureNotifier{}

	engine := New(Options{
		Source:   source,
		Store:    s,
		Notifier: notifier,
		Config:   fastConfig(),
	})

	engine.Enrich("ABC123")
	engine.Wait()

	g, _ := s.Get(context.Background(), "ABC123")
	if !g.Enriched() {
		t.Errorf("record should be enriched after partial retry: %+v", g)
	}
	if source.callCount() != 2 {
		t.Errorf("lookups = %d, want 2", source.callCount())
	}
	if notifier.count() != 1 {
		t.Errorf("notifications = %d, want exactly 1", notifier.count())
	}
}

func TestEngine_TotalMissNotifiesBaseline(t *testing.T) {
	s := seedStore(t)
	source := &fakeSource{} // every lookup returns zero pairs
	notifier := &captureNotifier{}

	engine := New(Options{
		Source:   source,
		Store:    s,
		Notifier: notifier,
		Config:   fastConfig(),
	})

	engine.Enrich("ABC123")
	engine.Wait()

	// Initial lookup plus the bounded full-miss retries.
	if source.callCount() != 4 {
		t.Errorf("lookups = %d, want 4", source.callCount())
	}

	g, _ := s.Get(context.Background(), "ABC123")
	if g.Enriched() {
		t.Error("record should stay unenriched")
	}
	if g.Dex != domain.FallbackDex {
		t.Errorf("dex = %q, want fallback venue", g.Dex)
	}
	if notifier.count() != 1 {
		t.Errorf("notifications = %d, want exactly 1 baseline alert", notifier.count())
	}
}

func TestEngine_NotificationFailureSwallowed(t *testing.T) {
	s := seedStore(t)
	source := &fakeSource{responses: [][]market.Pair{{fullPair()}}}
	notifier := &captureNotifier{fail: true}

	engine := New(Options{
		Source:   source,
		Store:    s,
		Notifier: notifier,
		Config:   fastConfig(),
	})

	engine.Enrich("ABC123")
	engine.Wait()

	// Delivery failed, but the record keeps its enrichment.
	g, _ := s.Get(context.Background(), "ABC123")
	if !g.Enriched() {
		t.Error("enrichment must survive a failed notification")
	}
}

func TestEngine_SweepRefreshesStatsOnly(t *testing.T) {
	s := seedStore(t)

	// Enrich once so the record carries market data.
	first := fullPair()
	source := &fakeSource{responses: [][]market.Pair{{first}}}
	notifier := &captureNotifier{}
	engine := New(Options{
		Source:   source,
		Store:    s,
		Notifier: notifier,
		Config:   fastConfig(),
	})
	engine.Enrich("ABC123")
	engine.Wait()

	// Sweep response: new stats, different name. Stats must refresh,
	// identity fields must not.
	volume := 123456.0
	refreshed := fullPair()
	refreshed.BaseToken.Name = "Renamed"
	refreshed.Volume.H24 = &volume

	source.mu.Lock()
	source.responses = [][]market.Pair{{refreshed}}
	source.calls = 0
	source.mu.Unlock()

	engine.sweep(context.Background())

	g, _ := s.Get(context.Background(), "ABC123")
	if g.Stats == nil || g.Stats.VolumeH24 == nil || *g.Stats.VolumeH24 != 123456 {
		t.Errorf("stats not refreshed: %+v", g.Stats)
	}
	if g.Name == nil || *g.Name != "Foo Token" {
		t.Errorf("sweep must not touch identity fields, name = %v", g.Name)
	}
	if notifier.count() != 1 {
		t.Errorf("sweep must not re-notify, notifications = %d", notifier.count())
	}
}
