package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vendora/vendora/internal/port/eventstore"
)

// CheckpointStore implements eventstore.CheckpointStore on the
// replay_checkpoints table.
type CheckpointStore struct {
	pool *pgxpool.Pool
}

// NewCheckpointStore creates a CheckpointStore backed by the given pool.
func NewCheckpointStore(pool *pgxpool.Pool) *CheckpointStore {
	return &CheckpointStore{pool: pool}
}

// LoadCheckpoint returns the saved checkpoint for name, or a zero
// checkpoint when none exists yet.
func (s *CheckpointStore) LoadCheckpoint(ctx context.Context, name string) (eventstore.Checkpoint, error) {
	var cp eventstore.Checkpoint
	err := s.pool.QueryRow(ctx,
		`SELECT occurred_at, global_seq FROM replay_checkpoints WHERE name = $1`, name,
	).Scan(&cp.OccurredAt, &cp.GlobalSeq)
	if errors.Is(err, pgx.ErrNoRows) {
		return eventstore.Checkpoint{}, nil
	}
	if err != nil {
		return eventstore.Checkpoint{}, fmt.Errorf("load checkpoint %s: %w", name, err)
	}
	return cp, nil
}

// SaveCheckpoint upserts the checkpoint for name.
func (s *CheckpointStore) SaveCheckpoint(ctx context.Context, name string, cp eventstore.Checkpoint) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO replay_checkpoints (name, occurred_at, global_seq)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET
		   occurred_at = EXCLUDED.occurred_at,
		   global_seq = EXCLUDED.global_seq,
		   updated_at = now()`,
		name, cp.OccurredAt, cp.GlobalSeq)
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", name, err)
	}
	return nil
}
