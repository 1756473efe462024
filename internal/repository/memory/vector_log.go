package memory

import (
	"context"
	"sync"

	"budgetPilot/business/patterns"
	"budgetPilot/domain"
)

// VectorLog keeps pattern entries for the life of the process.
type VectorLog struct {
	mu      sync.Mutex
	entries []domain.PatternEntry
}

var _ patterns.VectorLog = (*VectorLog)(nil)

func NewVectorLog() *VectorLog {
	return &VectorLog{}
}

func (l *VectorLog) Append(ctx context.Context, entries []domain.PatternEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entries...)
	return nil
}

func (l *VectorLog) ReadAll(ctx context.Context) ([]domain.PatternEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]domain.PatternEntry(nil), l.entries...), nil
}
