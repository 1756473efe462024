// Package patterns keeps an append-only index of past variant feature vectors
// and answers cosine top-k queries against it.
package patterns

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"budgetPilot/domain"
	"budgetPilot/pkg/logger"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

var (
	ErrEmptyVector       = errors.New("pattern vector is empty")
	ErrInvalidVector     = errors.New("pattern vector contains NaN or Inf")
	ErrDimensionMismatch = errors.New("pattern vector dimension mismatch")
)

// VectorLog is the durable, append-only home of index entries.
type VectorLog interface {
	Append(ctx context.Context, entries []domain.PatternEntry) error
	ReadAll(ctx context.Context) ([]domain.PatternEntry, error)
}

const defaultCacheSize = 1024

type Index struct {
	mu        sync.RWMutex
	entries   []domain.PatternEntry
	dim       int
	persisted int

	log   VectorLog
	cache *lru.Cache[string, []domain.PatternMatch]
	now   func() time.Time
}

// NewIndex returns an empty index. log may be nil for a purely in-memory index.
func NewIndex(log VectorLog, cacheSize int) (*Index, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, []domain.PatternMatch](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create similarity cache: %w", err)
	}
	return &Index{log: log, cache: cache, now: time.Now}, nil
}

func validate(vector []float64) error {
	if len(vector) == 0 {
		return ErrEmptyVector
	}
	for _, x := range vector {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return ErrInvalidVector
		}
	}
	return nil
}

// Add appends an entry. The first entry fixes the dimension of the index.
func (ix *Index) Add(ctx context.Context, vector []float64, label string, metadata map[string]any) (domain.PatternEntry, error) {
	if err := ctx.Err(); err != nil {
		return domain.PatternEntry{}, fmt.Errorf("context error: %w", err)
	}
	if err := validate(vector); err != nil {
		return domain.PatternEntry{}, err
	}

	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}
	vec := make([]float64, len(vector))
	copy(vec, vector)

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.dim != 0 && len(vec) != ix.dim {
		return domain.PatternEntry{}, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(vec), ix.dim)
	}

	entry := domain.PatternEntry{
		ID:           uuid.NewString(),
		Vector:       vec,
		OutcomeLabel: label,
		Metadata:     meta,
		CreatedAt:    ix.now().UTC(),
	}
	ix.entries = append(ix.entries, entry)
	ix.dim = len(vec)
	ix.cache.Purge()

	PatternEntriesTotal.Inc()
	logger.Debug("pattern_added",
		"pattern_id", entry.ID,
		"label", label,
		"account_id", entry.AccountID(),
	)
	return cloneEntry(entry), nil
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}

// FindSimilar returns the k entries most similar to query across all accounts.
func (ix *Index) FindSimilar(query []float64, k int) ([]domain.PatternMatch, error) {
	return ix.find("", query, k)
}

// FindSimilarInAccount restricts FindSimilar to entries of one account.
func (ix *Index) FindSimilarInAccount(accountID string, query []float64, k int) ([]domain.PatternMatch, error) {
	return ix.find(accountID, query, k)
}

func (ix *Index) find(accountID string, query []float64, k int) ([]domain.PatternMatch, error) {
	if err := validate(query); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []domain.PatternMatch{}, nil
	}

	// cache reads and fills happen under the read lock so Add's purge is never interleaved
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	key := cacheKey(accountID, query, k)
	if hit, ok := ix.cache.Get(key); ok {
		PatternQueriesTotal.WithLabelValues("hit").Inc()
		return cloneMatches(hit), nil
	}
	PatternQueriesTotal.WithLabelValues("miss").Inc()

	if ix.dim != 0 && len(query) != ix.dim {
		return nil, fmt.Errorf("%w: got %d, index has %d", ErrDimensionMismatch, len(query), ix.dim)
	}
	matches := make([]domain.PatternMatch, 0, len(ix.entries))
	for _, e := range ix.entries {
		if accountID != "" && e.AccountID() != accountID {
			continue
		}
		matches = append(matches, domain.PatternMatch{Entry: e, Similarity: Cosine(query, e.Vector)})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if len(matches) > k {
		matches = matches[:k]
	}

	ix.cache.Add(key, matches)
	return cloneMatches(matches), nil
}

// cloneEntry detaches an entry from the index so callers cannot edit it in place.
func cloneEntry(e domain.PatternEntry) domain.PatternEntry {
	vec := make([]float64, len(e.Vector))
	copy(vec, e.Vector)
	e.Vector = vec
	if e.Metadata != nil {
		meta := make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			meta[k] = v
		}
		e.Metadata = meta
	}
	return e
}

func cloneMatches(ms []domain.PatternMatch) []domain.PatternMatch {
	out := make([]domain.PatternMatch, len(ms))
	for i, m := range ms {
		out[i] = domain.PatternMatch{Entry: cloneEntry(m.Entry), Similarity: m.Similarity}
	}
	return out
}

// Persist appends entries added since the last Persist or Load to the log.
func (ix *Index) Persist(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if ix.log == nil {
		return nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	pending := ix.entries[ix.persisted:]
	if len(pending) == 0 {
		return nil
	}
	if err := ix.log.Append(ctx, pending); err != nil {
		return fmt.Errorf("persist %d patterns: %w", len(pending), err)
	}
	ix.persisted = len(ix.entries)

	logger.Info("patterns_persisted", "count", len(pending), "total", ix.persisted)
	return nil
}

// Load replaces the in-memory entries with the content of the log.
func (ix *Index) Load(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}
	if ix.log == nil {
		return nil
	}

	entries, err := ix.log.ReadAll(ctx)
	if err != nil {
		return fmt.Errorf("load patterns: %w", err)
	}

	dim := 0
	kept := make([]domain.PatternEntry, 0, len(entries))
	for _, e := range entries {
		if validate(e.Vector) != nil || (dim != 0 && len(e.Vector) != dim) {
			logger.Warn("pattern_skipped_on_load", "pattern_id", e.ID, "dim", len(e.Vector))
			continue
		}
		dim = len(e.Vector)
		kept = append(kept, e)
	}

	ix.mu.Lock()
	ix.entries = kept
	ix.dim = dim
	ix.persisted = len(kept)
	ix.cache.Purge()
	ix.mu.Unlock()

	logger.Info("patterns_loaded", "count", len(kept))
	return nil
}

// Cosine is the cosine similarity of a and b; zero-norm or mismatched vectors score 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func cacheKey(accountID string, query []float64, k int) string {
	var b strings.Builder
	b.WriteString(accountID)
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(k))
	for _, x := range query {
		b.WriteByte('|')
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	}
	return b.String()
}
