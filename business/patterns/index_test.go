//go:build !integration

package patterns

import (
	"context"
	"errors"
	"sync"
	"testing"

	"budgetPilot/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memLog struct {
	mu      sync.Mutex
	entries []domain.PatternEntry
	fail    bool
}

func (m *memLog) Append(ctx context.Context, entries []domain.PatternEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *memLog) ReadAll(ctx context.Context) ([]domain.PatternEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.PatternEntry, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

func newIndex(t *testing.T, log VectorLog) *Index {
	t.Helper()
	ix, err := NewIndex(log, 16)
	require.NoError(t, err)
	return ix
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float64{1, 2}, []float64{2, 4}), 1e-12)
	assert.InDelta(t, 0.0, Cosine([]float64{1, 0}, []float64{0, 1}), 1e-12)
	assert.InDelta(t, -1.0, Cosine([]float64{1, 0}, []float64{-1, 0}), 1e-12)
	assert.Equal(t, 0.0, Cosine([]float64{0, 0}, []float64{1, 1}))
	assert.Equal(t, 0.0, Cosine([]float64{1}, []float64{1, 1}))
}

func TestAdd_ValidatesVectors(t *testing.T) {
	ix := newIndex(t, nil)
	ctx := context.Background()

	_, err := ix.Add(ctx, nil, "winner", nil)
	assert.ErrorIs(t, err, ErrEmptyVector)

	_, err = ix.Add(ctx, []float64{1, 2, 3}, "winner", nil)
	require.NoError(t, err)

	_, err = ix.Add(ctx, []float64{1, 2}, "winner", nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 1, ix.Len())
}

func TestFindSimilar_TopKOrdered(t *testing.T) {
	ix := newIndex(t, nil)
	ctx := context.Background()

	_, err := ix.Add(ctx, []float64{1, 0}, "winner", map[string]any{"account_id": "a"})
	require.NoError(t, err)
	_, err = ix.Add(ctx, []float64{0, 1}, "loser", map[string]any{"account_id": "a"})
	require.NoError(t, err)
	_, err = ix.Add(ctx, []float64{1, 1}, "winner", map[string]any{"account_id": "b"})
	require.NoError(t, err)

	got, err := ix.FindSimilar([]float64{1, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "winner", got[0].Entry.OutcomeLabel)
	assert.Equal(t, []float64{1, 0}, got[0].Entry.Vector)
	assert.GreaterOrEqual(t, got[0].Similarity, got[1].Similarity)

	inA, err := ix.FindSimilarInAccount("a", []float64{1, 1}, 10)
	require.NoError(t, err)
	assert.Len(t, inA, 2)
	for _, m := range inA {
		assert.Equal(t, "a", m.Entry.AccountID())
	}

	none, err := ix.FindSimilar([]float64{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestFindSimilar_CachePurgedOnAdd(t *testing.T) {
	ix := newIndex(t, nil)
	ctx := context.Background()

	_, err := ix.Add(ctx, []float64{0, 1}, "winner", nil)
	require.NoError(t, err)

	first, err := ix.FindSimilar([]float64{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 0.0, first[0].Similarity)

	_, err = ix.Add(ctx, []float64{1, 0}, "winner", nil)
	require.NoError(t, err)

	second, err := ix.FindSimilar([]float64{1, 0}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, second[0].Similarity, 1e-12)
}

func TestFindSimilar_ResultsAreDetached(t *testing.T) {
	ix := newIndex(t, nil)
	ctx := context.Background()

	added, err := ix.Add(ctx, []float64{1, 0}, "winner", map[string]any{"account_id": "a"})
	require.NoError(t, err)
	added.Vector[0] = 42
	added.Metadata["account_id"] = "x"

	first, err := ix.FindSimilar([]float64{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, []float64{1, 0}, first[0].Entry.Vector)
	assert.Equal(t, "a", first[0].Entry.AccountID())

	first[0].Similarity = -1
	first[0].Entry.Vector[0] = 99
	first[0].Entry.Metadata["account_id"] = "y"
	first[0] = domain.PatternMatch{}

	// served from cache this time
	second, err := ix.FindSimilar([]float64{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.InDelta(t, 1.0, second[0].Similarity, 1e-12)
	assert.Equal(t, []float64{1, 0}, second[0].Entry.Vector)
	assert.Equal(t, "a", second[0].Entry.AccountID())

	inA, err := ix.FindSimilarInAccount("a", []float64{1, 0}, 1)
	require.NoError(t, err)
	assert.Len(t, inA, 1, "the stored entry still belongs to account a")
}

func TestFindSimilar_DimensionMismatch(t *testing.T) {
	ix := newIndex(t, nil)
	_, err := ix.Add(context.Background(), []float64{1, 0}, "winner", nil)
	require.NoError(t, err)

	_, err = ix.FindSimilar([]float64{1, 0, 0}, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestPersistAndLoad(t *testing.T) {
	log := &memLog{}
	ctx := context.Background()

	ix := newIndex(t, log)
	e1, err := ix.Add(ctx, []float64{1, 2}, "winner", map[string]any{"account_id": "a"})
	require.NoError(t, err)
	require.NoError(t, ix.Persist(ctx))
	_, err = ix.Add(ctx, []float64{3, 4}, "winner", nil)
	require.NoError(t, err)
	require.NoError(t, ix.Persist(ctx))
	require.NoError(t, ix.Persist(ctx))
	assert.Len(t, log.entries, 2, "persist only appends new entries")

	restored := newIndex(t, log)
	require.NoError(t, restored.Load(ctx))
	assert.Equal(t, 2, restored.Len())

	got, err := restored.FindSimilar([]float64{1, 2}, 1)
	require.NoError(t, err)
	assert.Equal(t, e1.ID, got[0].Entry.ID)

	_, err = restored.Add(ctx, []float64{1}, "winner", nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestPersist_FailureKeepsEntriesPending(t *testing.T) {
	log := &memLog{fail: true}
	ctx := context.Background()
	ix := newIndex(t, log)

	_, err := ix.Add(ctx, []float64{1, 2}, "winner", nil)
	require.NoError(t, err)
	require.Error(t, ix.Persist(ctx))

	log.fail = false
	require.NoError(t, ix.Persist(ctx))
	assert.Len(t, log.entries, 1)
}
