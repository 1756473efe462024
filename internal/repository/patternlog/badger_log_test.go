//go:build !integration

package patternlog

import (
	"context"
	"testing"
	"time"

	"budgetPilot/business/patterns"
	"budgetPilot/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMem(t *testing.T) *BadgerLog {
	t.Helper()
	l, err := Open(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestBadgerLog_AppendKeepsOrder(t *testing.T) {
	l := openMem(t)
	ctx := context.Background()

	first := []domain.PatternEntry{
		{ID: "p1", Vector: []float64{1, 0}, OutcomeLabel: domain.PatternLabelWinner, Metadata: map[string]any{"account_id": "acc-1"}, CreatedAt: time.Unix(100, 0).UTC()},
		{ID: "p2", Vector: []float64{0, 1}, OutcomeLabel: domain.PatternLabelWinner},
	}
	require.NoError(t, l.Append(ctx, first))
	require.NoError(t, l.Append(ctx, []domain.PatternEntry{{ID: "p3", Vector: []float64{1, 1}}}))

	got, err := l.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "p1", got[0].ID)
	assert.Equal(t, "p2", got[1].ID)
	assert.Equal(t, "p3", got[2].ID)
	assert.Equal(t, "acc-1", got[0].AccountID())
	assert.Equal(t, []float64{1, 0}, got[0].Vector)
}

func TestBadgerLog_BacksIndexRoundTrip(t *testing.T) {
	l := openMem(t)
	ctx := context.Background()

	ix, err := patterns.NewIndex(l, 16)
	require.NoError(t, err)
	_, err = ix.Add(ctx, []float64{0.9, 0.1}, domain.PatternLabelWinner, map[string]any{"account_id": "acc-1"})
	require.NoError(t, err)
	require.NoError(t, ix.Persist(ctx))
	require.NoError(t, ix.Persist(ctx), "nothing new to persist")

	reloaded, err := patterns.NewIndex(l, 16)
	require.NoError(t, err)
	require.NoError(t, reloaded.Load(ctx))
	assert.Equal(t, 1, reloaded.Len())

	matches, err := reloaded.FindSimilarInAccount("acc-1", []float64{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Greater(t, matches[0].Similarity, 0.9)
}
