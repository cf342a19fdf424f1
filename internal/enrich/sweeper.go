package enrich

import (
	"context"

	"pump-graduates/internal/observability"
)

// RunSweeper periodically refreshes trading stats for every record
// graduated within the sweep window. It blocks until the context is
// cancelled. The sweep never retriggers notifications and paces its
// lookups to stay under the source's burst limits.
func (e *Engine) RunSweeper(ctx context.Context) error {
	ticker := e.clock.Ticker(e.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			e.sweep(ctx)
		}
	}
}

// sweep re-runs a stats-only lookup for each recent record.
func (e *Engine) sweep(ctx context.Context) {
	cutoff := e.clock.Now().UnixMilli() - e.config.SweepWindow.Milliseconds()

	refreshed := 0
	for _, g := range e.store.List(ctx, 0) {
		if g.GraduatedAt < cutoff {
			continue
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		if pairs := e.lookup(ctx, g.Mint); len(pairs) > 0 {
			e.apply(ctx, g.Mint, pairs, true)
			refreshed++
			e.recordStats(ctx, g.Mint)
		}
		e.clock.Sleep(e.config.SweepPacing)
	}

	if refreshed > 0 {
		e.logger.Printf("Refresh sweep updated %d record(s)", refreshed)
		observability.RecordRefreshSweep(refreshed)
	}
}

// recordStats appends the refreshed record to the stats-history
// recorder when one is configured.
func (e *Engine) recordStats(ctx context.Context, mint string) {
	if e.recorder == nil {
		return
	}
	g, err := e.store.Get(ctx, mint)
	if err != nil {
		return
	}
	if err := e.recorder.Record(ctx, g, e.clock.Now()); err != nil {
		e.logger.Printf("Stats history record failed for %s: %v", mint, err)
	}
}
