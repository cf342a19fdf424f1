package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pump-graduates/internal/domain"
	"pump-graduates/internal/store"
)

// Snapshotter stores the full collection as a single jsonb row. The
// table holds exactly one row, replaced on every save.
type Snapshotter struct {
	pool *Pool
}

// NewSnapshotter creates a Postgres-backed snapshotter.
func NewSnapshotter(pool *Pool) *Snapshotter {
	return &Snapshotter{pool: pool}
}

// Compile-time interface check.
var _ store.Snapshotter = (*Snapshotter)(nil)

// EnsureSchema creates the snapshot table if it does not exist.
func (s *Snapshotter) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS graduates_snapshot (
			id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			data JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create snapshot table: %w", err)
	}
	return nil
}

// Save upserts the singleton row with the full collection.
func (s *Snapshotter) Save(ctx context.Context, graduates []*domain.Graduate) error {
	data, err := json.Marshal(graduates)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO graduates_snapshot (id, data, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()
	`
	if _, err := s.pool.Exec(ctx, query, data); err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// Load reads the singleton row. An empty table returns an empty
// collection.
func (s *Snapshotter) Load(ctx context.Context) ([]*domain.Graduate, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM graduates_snapshot WHERE id = 1`).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select snapshot: %w", err)
	}

	var graduates []*domain.Graduate
	if err := json.Unmarshal(data, &graduates); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return graduates, nil
}
