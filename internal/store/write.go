package store

import (
	"context"
	"fmt"
	"time"
)

// CreateRun inserts a run record.
// Uses ON CONFLICT(id) DO NOTHING for idempotency.
func (s *Store) CreateRun(ctx context.Context, runID, rootTask string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, root_task, started_at)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, runID, rootTask, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// WriteEffect appends one emitted effect to a run's trace.
// Duplicate effect ids within a run are silently ignored, so retried
// writes stay idempotent. The payload must be canonical JSON.
//
// Note: the run referenced by runID must exist (foreign key constraint).
func (s *Store) WriteEffect(ctx context.Context, runID string, seq int64, effectID, category string, payload []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO effects (run_id, seq, effect_id, category, payload)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(run_id, effect_id) DO NOTHING
	`, runID, seq, effectID, category, string(payload))
	if err != nil {
		return fmt.Errorf("write effect: %w", err)
	}
	return nil
}

// MarkOutcome records how an effect settled: "resolved" or "failed".
// Marking an unknown effect is a silent no-op; outcome reports can
// arrive for effects whose write was itself refused.
func (s *Store) MarkOutcome(ctx context.Context, runID, effectID, outcome string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE effects SET outcome = ?
		WHERE run_id = ? AND effect_id = ?
	`, outcome, runID, effectID)
	if err != nil {
		return fmt.Errorf("mark outcome: %w", err)
	}
	return nil
}
