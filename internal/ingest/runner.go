// Package ingest runs the graduation-event pipeline: feed messages are
// classified, deduplicated, stored as draft records, broadcast, and
// handed to the enrichment engine.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/benbjohnson/clock"

	"pump-graduates/internal/domain"
	"pump-graduates/internal/feed"
	"pump-graduates/internal/observability"
	"pump-graduates/internal/store"
)

// MessageSource supplies raw feed messages in arrival order.
type MessageSource interface {
	Messages() <-chan json.RawMessage
}

// Broadcaster pushes an upserted record to live subscribers.
type Broadcaster interface {
	BroadcastGraduate(g *domain.Graduate)
}

// Enricher starts asynchronous enrichment for an accepted record.
type Enricher interface {
	Enrich(mint string)
}

// Runner consumes the feed on a single goroutine, which keeps the
// dedup check-then-mark race-free and event handling in arrival order.
type Runner struct {
	source   MessageSource
	dedup    *feed.DedupGate
	store    *store.GraduateStore
	hub      Broadcaster
	enricher Enricher
	clock    clock.Clock
	logger   *log.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Source   MessageSource
	Store    *store.GraduateStore
	Hub      Broadcaster
	Enricher Enricher
	Clock    clock.Clock
	Logger   *log.Logger
}

// NewRunner creates an ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		source:   opts.Source,
		dedup:    feed.NewDedupGate(),
		store:    opts.Store,
		hub:      opts.Hub,
		enricher: opts.Enricher,
		clock:    clk,
		logger:   logger,
	}
}

// Run processes feed messages until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Println("Ingestion runner started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Println("Ingestion runner stopping...")
			return ctx.Err()

		case msg, ok := <-r.source.Messages():
			if !ok {
				return errors.New("feed message channel closed")
			}
			r.handleMessage(ctx, msg)
		}
	}
}

// handleMessage classifies one raw feed message and processes accepted
// graduation events. Decode errors and classification misses are
// dropped, but counted separately for diagnostics.
func (r *Runner) handleMessage(ctx context.Context, raw json.RawMessage) {
	observability.RecordFeedMessage()

	c := feed.Classify(raw)
	observability.RecordClassification(c.Outcome.String())

	switch c.Outcome {
	case feed.OutcomeParseError:
		r.logger.Printf("Dropping malformed feed message (%d bytes)", len(raw))
	case feed.OutcomeIgnoredVenue:
		r.logger.Printf("Ignoring migration on venue %q (mint=%s)", c.Event.Pool, c.Event.Mint)
	case feed.OutcomeNotGraduation:
		// Valid message, not a graduation. Dropped silently.
	case feed.OutcomeAccepted:
		r.processGraduation(ctx, c.Event)
	}
}

// processGraduation deduplicates the event, inserts a draft record,
// broadcasts it, and starts enrichment.
func (r *Runner) processGraduation(ctx context.Context, event *feed.GraduationEvent) {
	if !feed.PlausibleMint(event.Mint) {
		r.logger.Printf("Mint %q does not look like a Solana address", event.Mint)
	}

	key := feed.DedupKey(event.Mint, event.Timestamp)
	if r.dedup.CheckAndMark(key) {
		observability.RecordDuplicateDropped()
		return
	}

	draft := draftRecord(event, r.clock.Now().UnixMilli())

	if err := r.store.Insert(ctx, draft); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			// Same mint re-announced with a different timestamp.
			observability.RecordDuplicateDropped()
			return
		}
		r.logger.Printf("Error storing graduation %s: %v", event.Mint, err)
		return
	}

	r.logger.Printf("Graduation accepted: mint=%s dex=%s", draft.Mint, draft.Dex)
	observability.UpdateGraduateCount(r.store.Count())

	if r.hub != nil {
		r.hub.BroadcastGraduate(draft)
	}
	if r.enricher != nil {
		r.enricher.Enrich(draft.Mint)
	}
}

// draftRecord builds the minimal record for an accepted event. Missing
// timestamps fall back to ingestion time; a missing venue falls back to
// the canonical post-graduation AMM.
func draftRecord(event *feed.GraduationEvent, nowMs int64) *domain.Graduate {
	g := &domain.Graduate{
		Mint:        event.Mint,
		GraduatedAt: event.Timestamp,
		Dex:         event.Dex,
		Signature:   event.Signature,
	}

	if g.GraduatedAt == 0 {
		g.GraduatedAt = nowMs
	}
	if g.Dex == "" {
		g.Dex = domain.FallbackDex
	}
	if event.Name != "" {
		name := event.Name
		g.Name = &name
	}
	if event.Symbol != "" {
		symbol := event.Symbol
		g.Symbol = &symbol
	}
	if event.LiquidityUsd != nil {
		v := *event.LiquidityUsd
		g.LiquidityUsd = &v
	} else if event.InitialBuy != nil {
		v := *event.InitialBuy
		g.LiquidityUsd = &v
	}
	if event.PriceUsd != nil {
		v := *event.PriceUsd
		g.PriceUsd = &v
	}
	if event.PairAddress != "" {
		addr := event.PairAddress
		g.PairAddress = &addr
	}
	return g
}
