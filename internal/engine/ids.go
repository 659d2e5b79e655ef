package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator produces unique effect and task identifiers. Implemented
// by UUIDv7Generator (production) and SeqGenerator (deterministic tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 identifiers. The
// embedded timestamp makes recorded traces sortable by emission time.
//
// Thread-safety: stateless, safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// SeqGenerator returns "<prefix>-1", "<prefix>-2", ... for deterministic
// traces and golden files.
//
// Thread-safety: safe for concurrent use via internal mutex.
type SeqGenerator struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSeqGenerator creates a sequential generator with the given prefix.
// An empty prefix defaults to "eff".
func NewSeqGenerator(prefix string) *SeqGenerator {
	if prefix == "" {
		prefix = "eff"
	}
	return &SeqGenerator{prefix: prefix}
}

// Generate returns the next sequential identifier.
func (g *SeqGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
