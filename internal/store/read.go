package store

import (
	"context"
	"fmt"
)

// RunRecord is one row of the runs table.
type RunRecord struct {
	ID        string
	RootTask  string
	StartedAt string
}

// EffectRecord is one row of a run's effect trace.
type EffectRecord struct {
	Seq      int64
	EffectID string
	Category string
	Payload  string
	Outcome  string
}

// ReadEffects returns a run's full trace in emission order.
// Ordering: ORDER BY seq ASC, effect_id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the run recorded nothing.
func (s *Store) ReadEffects(ctx context.Context, runID string) ([]EffectRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, effect_id, category, payload, outcome
		FROM effects
		WHERE run_id = ?
		ORDER BY seq ASC, effect_id COLLATE BINARY ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query effects: %w", err)
	}
	defer rows.Close()

	var effects []EffectRecord
	for rows.Next() {
		var e EffectRecord
		if err := rows.Scan(&e.Seq, &e.EffectID, &e.Category, &e.Payload, &e.Outcome); err != nil {
			return nil, fmt.Errorf("scan effect: %w", err)
		}
		effects = append(effects, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate effects: %w", err)
	}

	if effects == nil {
		effects = []EffectRecord{}
	}
	return effects, nil
}

// GetRun returns one run record, or an error if the run is unknown.
func (s *Store) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	var r RunRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, root_task, started_at FROM runs WHERE id = ?
	`, runID).Scan(&r.ID, &r.RootTask, &r.StartedAt)
	if err != nil {
		return RunRecord{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	return r, nil
}

// ListRuns returns all recorded runs.
// Ordering: ORDER BY started_at ASC, id ASC COLLATE BINARY.
func (s *Store) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, root_task, started_at
		FROM runs
		ORDER BY started_at ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		if err := rows.Scan(&r.ID, &r.RootTask, &r.StartedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}

	if runs == nil {
		runs = []RunRecord{}
	}
	return runs, nil
}
