package store

import (
	"context"
	"log"
	"sync"

	"pump-graduates/internal/domain"
	"pump-graduates/internal/observability"
)

// GraduateStore is the ordered, mutable collection of graduation
// records. Records are keyed by mint and ordered newest first by
// insertion; enrichment updates mutate in place without changing
// position. Every mutation triggers a best-effort snapshot save.
type GraduateStore struct {
	mu     sync.RWMutex
	byMint map[string]*domain.Graduate
	order  []string // mints, newest first

	maxRecords int // 0 = unbounded
	snap       Snapshotter
	logger     *log.Logger
}

// Options configures a GraduateStore.
type Options struct {
	// MaxRecords bounds retention to the most recent N records.
	// Zero keeps everything.
	MaxRecords int

	// Snapshotter persists the collection after each mutation.
	// Nil disables persistence.
	Snapshotter Snapshotter

	Logger *log.Logger
}

// NewGraduateStore creates an empty store.
func NewGraduateStore(opts Options) *GraduateStore {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &GraduateStore{
		byMint:     make(map[string]*domain.Graduate),
		maxRecords: opts.MaxRecords,
		snap:       opts.Snapshotter,
		logger:     logger,
	}
}

// Load hydrates the store from the snapshotter. Called once at startup,
// before ingestion starts. A load failure leaves the store empty.
func (s *GraduateStore) Load(ctx context.Context) error {
	if s.snap == nil {
		return nil
	}

	graduates, err := s.snap.Load(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.byMint = make(map[string]*domain.Graduate, len(graduates))
	s.order = s.order[:0]
	for _, g := range graduates {
		if g == nil || g.Mint == "" {
			continue
		}
		if _, exists := s.byMint[g.Mint]; exists {
			continue
		}
		s.byMint[g.Mint] = g.Clone()
		s.order = append(s.order, g.Mint)
	}
	s.enforceCapLocked()
	return nil
}

// Insert prepends a new record. Returns ErrDuplicateKey if a record for
// the mint already exists.
func (s *GraduateStore) Insert(ctx context.Context, g *domain.Graduate) error {
	if g == nil || g.Mint == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	if _, exists := s.byMint[g.Mint]; exists {
		s.mu.Unlock()
		return ErrDuplicateKey
	}
	s.byMint[g.Mint] = g.Clone()
	s.order = append([]string{g.Mint}, s.order...)
	s.enforceCapLocked()
	s.mu.Unlock()

	s.persist(ctx)
	return nil
}

// Update mutates the record for mint in place via fn and re-persists.
// Returns the updated record, or ErrNotFound if the mint is unknown.
func (s *GraduateStore) Update(ctx context.Context, mint string, fn func(*domain.Graduate)) (*domain.Graduate, error) {
	s.mu.Lock()
	g, exists := s.byMint[mint]
	if !exists {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	fn(g)
	updated := g.Clone()
	s.mu.Unlock()

	s.persist(ctx)
	return updated, nil
}

// Get retrieves a record by mint. Returns ErrNotFound if not present.
func (s *GraduateStore) Get(_ context.Context, mint string) (*domain.Graduate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, exists := s.byMint[mint]
	if !exists {
		return nil, ErrNotFound
	}
	return g.Clone(), nil
}

// List returns records newest first. A limit <= 0 returns everything.
func (s *GraduateStore) List(_ context.Context, limit int) []*domain.Graduate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.order)
	if limit > 0 && limit < n {
		n = limit
	}

	result := make([]*domain.Graduate, 0, n)
	for _, mint := range s.order[:n] {
		result = append(result, s.byMint[mint].Clone())
	}
	return result
}

// Replace swaps the whole collection for the given records (assumed
// newest first) and persists.
func (s *GraduateStore) Replace(ctx context.Context, graduates []*domain.Graduate) {
	s.mu.Lock()
	s.byMint = make(map[string]*domain.Graduate, len(graduates))
	s.order = s.order[:0]
	for _, g := range graduates {
		if g == nil || g.Mint == "" {
			continue
		}
		if _, exists := s.byMint[g.Mint]; exists {
			continue
		}
		s.byMint[g.Mint] = g.Clone()
		s.order = append(s.order, g.Mint)
	}
	s.enforceCapLocked()
	s.mu.Unlock()

	s.persist(ctx)
}

// Clear empties the collection and invalidates persisted state.
func (s *GraduateStore) Clear(ctx context.Context) {
	s.mu.Lock()
	s.byMint = make(map[string]*domain.Graduate)
	s.order = s.order[:0]
	s.mu.Unlock()

	s.persist(ctx)
}

// Count returns the number of live records.
func (s *GraduateStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// enforceCapLocked drops oldest records beyond the retention cap.
// Caller must hold s.mu.
func (s *GraduateStore) enforceCapLocked() {
	if s.maxRecords <= 0 {
		return
	}
	for len(s.order) > s.maxRecords {
		oldest := s.order[len(s.order)-1]
		s.order = s.order[:len(s.order)-1]
		delete(s.byMint, oldest)
	}
}

// persist saves the full collection. Failures are logged and swallowed:
// memory stays authoritative for the running process.
func (s *GraduateStore) persist(ctx context.Context) {
	if s.snap == nil {
		return
	}
	if err := s.snap.Save(ctx, s.List(ctx, 0)); err != nil {
		s.logger.Printf("Error persisting graduates snapshot: %v", err)
		observability.RecordPersistenceError()
	}
}
