package store

import "context"

// TraceRecorder adapts a Store to the harness's recorder contract.
// Recorder calls arrive from run goroutines without a caller context, so
// writes use the background context; the busy timeout pragma bounds how
// long a contended write can stall.
type TraceRecorder struct {
	s *Store
}

// NewTraceRecorder wraps a store for use as a harness recorder.
func NewTraceRecorder(s *Store) *TraceRecorder {
	return &TraceRecorder{s: s}
}

func (r *TraceRecorder) BeginRun(runID, rootTask string) error {
	return r.s.CreateRun(context.Background(), runID, rootTask)
}

func (r *TraceRecorder) RecordEffect(runID string, seq int64, effectID, category string, payload []byte) error {
	return r.s.WriteEffect(context.Background(), runID, seq, effectID, category, payload)
}

func (r *TraceRecorder) RecordOutcome(runID, effectID, outcome string) error {
	return r.s.MarkOutcome(context.Background(), runID, effectID, outcome)
}
