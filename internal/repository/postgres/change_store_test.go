//go:build integration

package postgres_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"budgetPilot/business/changequeue"
	"budgetPilot/domain"
	"budgetPilot/internal/repository/postgres"
	"budgetPilot/pkg/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// openTestDB connects to a disposable database; the change table is wiped.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := gorm.Open(pgdriver.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	require.NoError(t, db.Exec("DELETE FROM pending_ad_changes").Error)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func newChange(entity string, due time.Time) domain.PendingChange {
	return domain.PendingChange{
		ID:                uuid.NewString(),
		EntityID:          entity,
		EntityType:        domain.EntityAd,
		ChangeKind:        domain.ChangeKindBudget,
		CurrentValue:      "100.00",
		RequestedValue:    "120.00",
		Reason:            "integration",
		EarliestExecuteAt: due,
		Status:            domain.ChangePending,
		MaxAttempts:       3,
	}
}

func TestChangeStore_DuplicateInFlightInsert(t *testing.T) {
	db := openTestDB(t)
	store := postgres.NewChangeStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.InsertIfIdle(ctx, newChange("ad-dup", now)))

	err := store.InsertIfIdle(ctx, newChange("ad-dup", now))
	assert.ErrorIs(t, err, changequeue.ErrEntityBusy)

	// a writer that skips the advisory lock still hits the partial unique index
	raw := newChange("ad-dup", now)
	err = db.WithContext(ctx).Create(&raw).Error
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	// concurrent inserts for one idle entity: exactly one lands
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		ok   int
		busy int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.InsertIfIdle(ctx, newChange("ad-race", now))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, changequeue.ErrEntityBusy):
				busy++
			default:
				t.Errorf("unexpected insert error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, busy)
}

func TestChangeStore_ConcurrentClaimersGetDistinctRows(t *testing.T) {
	db := openTestDB(t)
	store := postgres.NewChangeStore(db)
	ctx := context.Background()
	now := time.Now().UTC()

	const rows = 20
	for i := 0; i < rows; i++ {
		require.NoError(t, store.InsertIfIdle(ctx, newChange(fmt.Sprintf("ad-%02d", i), now.Add(-time.Minute))))
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		owners = map[string]string{}
		dups   int
	)
	for w := 0; w < 6; w++ {
		workerID := fmt.Sprintf("w%d", w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				c, err := store.Claim(ctx, workerID, now, time.Minute)
				if !assert.NoError(t, err) || c == nil {
					return
				}
				mu.Lock()
				if _, seen := owners[c.ID]; seen {
					dups++
				}
				owners[c.ID] = workerID
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, dups, "a row was handed to two workers")
	assert.Len(t, owners, rows)

	counts, err := store.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(rows), counts[domain.ChangeClaimed])
}

func TestChangeStore_ReclaimAfterLeaseExpiry(t *testing.T) {
	db := openTestDB(t)
	store := postgres.NewChangeStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	c := newChange("ad-lease", now.Add(-time.Second))
	require.NoError(t, store.InsertIfIdle(ctx, c))

	first, err := store.Claim(ctx, "w1", now, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, c.ID, first.ID)

	none, err := store.Claim(ctx, "w2", now.Add(30*time.Second), time.Minute)
	require.NoError(t, err)
	assert.Nil(t, none, "lease still valid")

	later := now.Add(2 * time.Minute)
	second, err := store.Claim(ctx, "w2", later, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, c.ID, second.ID)
	assert.Equal(t, "w2", second.ClaimedBy)
	assert.Equal(t, 1, second.AttemptCount)

	err = store.MarkExecuting(ctx, c.ID, "w1", later, time.Minute)
	assert.ErrorIs(t, err, changequeue.ErrLeaseLost)

	require.NoError(t, store.MarkExecuting(ctx, c.ID, "w2", later, time.Minute))
	err = store.Complete(ctx, c.ID, "w1", map[string]any{"ok": true}, later)
	assert.ErrorIs(t, err, changequeue.ErrLeaseLost)
	require.NoError(t, store.Complete(ctx, c.ID, "w2", map[string]any{"ok": true}, later))

	got, err := store.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ChangeCompleted, got.Status)
	assert.Nil(t, got.LeaseExpiresAt)

	// the entity is idle again
	require.NoError(t, store.InsertIfIdle(ctx, newChange("ad-lease", later)))
}

func TestChangeStore_MarkExecutingNeedsLiveLease(t *testing.T) {
	db := openTestDB(t)
	store := postgres.NewChangeStore(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	c := newChange("ad-stale", now.Add(-time.Second))
	require.NoError(t, store.InsertIfIdle(ctx, c))
	_, err := store.Claim(ctx, "w1", now, time.Minute)
	require.NoError(t, err)

	err = store.MarkExecuting(ctx, c.ID, "w1", now.Add(90*time.Second), time.Minute)
	assert.ErrorIs(t, err, changequeue.ErrLeaseLost)

	exec := now.Add(30 * time.Second)
	require.NoError(t, store.MarkExecuting(ctx, c.ID, "w1", exec, time.Minute))
	got, err := store.Get(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LeaseExpiresAt)
	assert.WithinDuration(t, exec.Add(time.Minute), *got.LeaseExpiresAt, time.Millisecond)
}
