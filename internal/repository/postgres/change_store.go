package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetPilot/business/changequeue"
	"budgetPilot/domain"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// maxAbandonedPerClaim bounds how many exhausted abandoned rows one Claim
// call retires before giving up.
const maxAbandonedPerClaim = 16

type ChangeStore struct {
	DB *gorm.DB
}

var _ changequeue.Store = (*ChangeStore)(nil)

func NewChangeStore(db *gorm.DB) *ChangeStore {
	return &ChangeStore{DB: db}
}

func inFlight() []domain.ChangeStatus {
	return domain.NonTerminalChangeStatuses
}

// lockEntity serialises writers of one entity inside tx.
func lockEntity(tx *gorm.DB, entityID string) error {
	return tx.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", entityID).Error
}

func entityBusy(tx *gorm.DB, entityID, exceptID string) (bool, error) {
	var n int64
	q := tx.Model(&domain.PendingChange{}).
		Where("entity_id = ? AND status IN ?", entityID, inFlight())
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	if err := q.Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *ChangeStore) InsertIfIdle(ctx context.Context, c domain.PendingChange) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockEntity(tx, c.EntityID); err != nil {
			return fmt.Errorf("failed to lock entity: %w", err)
		}
		busy, err := entityBusy(tx, c.EntityID, "")
		if err != nil {
			return fmt.Errorf("failed to check entity: %w", err)
		}
		if busy {
			return changequeue.ErrEntityBusy
		}
		return tx.Create(&c).Error
	})
	// the partial unique index backs the advisory lock up
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return changequeue.ErrEntityBusy
	}
	return err
}

func (s *ChangeStore) Claim(ctx context.Context, workerID string, now time.Time, lease time.Duration) (*domain.PendingChange, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var claimed *domain.PendingChange
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := 0; i < maxAbandonedPerClaim; i++ {
			var rows []domain.PendingChange
			err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
				Where("(status = ? AND earliest_execute_at <= ?) OR (status IN ? AND lease_expires_at < ?)",
					domain.ChangePending, now,
					[]domain.ChangeStatus{domain.ChangeClaimed, domain.ChangeExecuting}, now,
				).
				Order("earliest_execute_at, created_at").
				Limit(1).
				Find(&rows).Error
			if err != nil {
				return fmt.Errorf("failed to select claimable change: %w", err)
			}
			if len(rows) == 0 {
				return nil
			}
			c := rows[0]

			if c.Status != domain.ChangePending {
				c.AttemptCount++
				c.LastError = "lease expired"
				if c.AttemptCount >= c.MaxAttempts {
					if err := tx.Model(&domain.PendingChange{}).Where("id = ?", c.ID).Updates(map[string]any{
						"status":           domain.ChangeFailed,
						"attempt_count":    c.AttemptCount,
						"last_error":       c.LastError,
						"completed_at":     now,
						"lease_expires_at": nil,
						"updated_at":       now,
					}).Error; err != nil {
						return fmt.Errorf("failed to retire abandoned change: %w", err)
					}
					continue
				}
			}

			exp := now.Add(lease)
			if err := tx.Model(&domain.PendingChange{}).Where("id = ?", c.ID).Updates(map[string]any{
				"status":           domain.ChangeClaimed,
				"claimed_by":       workerID,
				"claimed_at":       now,
				"lease_expires_at": exp,
				"attempt_count":    c.AttemptCount,
				"last_error":       c.LastError,
				"updated_at":       now,
			}).Error; err != nil {
				return fmt.Errorf("failed to claim change: %w", err)
			}

			c.Status = domain.ChangeClaimed
			c.ClaimedBy = workerID
			c.ClaimedAt = &now
			c.LeaseExpiresAt = &exp
			c.UpdatedAt = now
			claimed = &c
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// guarded applies updates only while workerID holds the row in one of the
// given statuses, and explains a refusal.
func (s *ChangeStore) guarded(
	ctx context.Context,
	id, workerID string,
	statuses []domain.ChangeStatus,
	updates map[string]any,
) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	res := s.DB.WithContext(ctx).Model(&domain.PendingChange{}).
		Where("id = ? AND claimed_by = ? AND status IN ?", id, workerID, statuses).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("failed to update change %s: %w", id, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}
	return s.refusal(ctx, id, workerID)
}

func (s *ChangeStore) refusal(ctx context.Context, id, workerID string) error {
	cur, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if cur.ClaimedBy != workerID {
		return fmt.Errorf("%w: %s held by %q", changequeue.ErrLeaseLost, id, cur.ClaimedBy)
	}
	return fmt.Errorf("%w: %s is %s", changequeue.ErrInvalidTransition, id, cur.Status)
}

func (s *ChangeStore) MarkExecuting(ctx context.Context, id, workerID string, now time.Time, lease time.Duration) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	res := s.DB.WithContext(ctx).Model(&domain.PendingChange{}).
		Where("id = ? AND claimed_by = ? AND status = ? AND lease_expires_at > ?", id, workerID, domain.ChangeClaimed, now).
		Updates(map[string]any{
			"status":           domain.ChangeExecuting,
			"lease_expires_at": now.Add(lease),
			"updated_at":       now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update change %s: %w", id, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	cur, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if cur.ClaimedBy == workerID && cur.Status == domain.ChangeClaimed {
		return fmt.Errorf("%w: %s lease expired", changequeue.ErrLeaseLost, id)
	}
	return s.refusal(ctx, id, workerID)
}

func (s *ChangeStore) Complete(ctx context.Context, id, workerID string, response map[string]any, now time.Time) error {
	return s.guarded(ctx, id, workerID,
		[]domain.ChangeStatus{domain.ChangeExecuting},
		map[string]any{
			"status":            domain.ChangeCompleted,
			"platform_response": datatypes.JSONMap(response),
			"last_error":        "",
			"completed_at":      now,
			"lease_expires_at":  nil,
			"updated_at":        now,
		},
	)
}

func (s *ChangeStore) Reschedule(ctx context.Context, id, workerID string, next time.Time, lastErr string, now time.Time) error {
	return s.guarded(ctx, id, workerID,
		[]domain.ChangeStatus{domain.ChangeClaimed, domain.ChangeExecuting},
		map[string]any{
			"status":              domain.ChangePending,
			"attempt_count":       gorm.Expr("attempt_count + 1"),
			"earliest_execute_at": next,
			"last_error":          lastErr,
			"claimed_by":          "",
			"claimed_at":          nil,
			"lease_expires_at":    nil,
			"updated_at":          now,
		},
	)
}

func (s *ChangeStore) MarkFailed(ctx context.Context, id, workerID string, lastErr string, now time.Time) error {
	return s.guarded(ctx, id, workerID,
		[]domain.ChangeStatus{domain.ChangeClaimed, domain.ChangeExecuting},
		map[string]any{
			"status":           domain.ChangeFailed,
			"attempt_count":    gorm.Expr("attempt_count + 1"),
			"last_error":       lastErr,
			"completed_at":     now,
			"lease_expires_at": nil,
			"updated_at":       now,
		},
	)
}

func (s *ChangeStore) Cancel(ctx context.Context, id string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	res := s.DB.WithContext(ctx).Model(&domain.PendingChange{}).
		Where("id = ? AND status = ?", id, domain.ChangePending).
		Updates(map[string]any{
			"status":       domain.ChangeCancelled,
			"completed_at": now,
			"updated_at":   now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to cancel change %s: %w", id, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	cur, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s is %s", changequeue.ErrNotCancellable, id, cur.Status)
}

func (s *ChangeStore) Requeue(ctx context.Context, id string, next time.Time, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c domain.PendingChange
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&c, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", changequeue.ErrNotFound, id)
		}
		if err != nil {
			return fmt.Errorf("failed to load change %s: %w", id, err)
		}
		if c.Status != domain.ChangeFailed {
			return fmt.Errorf("%w: %s is %s", changequeue.ErrInvalidTransition, id, c.Status)
		}

		if err := lockEntity(tx, c.EntityID); err != nil {
			return fmt.Errorf("failed to lock entity: %w", err)
		}
		busy, err := entityBusy(tx, c.EntityID, c.ID)
		if err != nil {
			return fmt.Errorf("failed to check entity: %w", err)
		}
		if busy {
			return changequeue.ErrEntityBusy
		}

		return tx.Model(&domain.PendingChange{}).Where("id = ?", id).Updates(map[string]any{
			"status":              domain.ChangePending,
			"attempt_count":       0,
			"earliest_execute_at": next,
			"claimed_by":          "",
			"claimed_at":          nil,
			"lease_expires_at":    nil,
			"completed_at":        nil,
			"updated_at":          now,
		}).Error
	})
}

func (s *ChangeStore) Get(ctx context.Context, id string) (*domain.PendingChange, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var c domain.PendingChange
	err := s.DB.WithContext(ctx).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", changequeue.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get change %s: %w", id, err)
	}
	return &c, nil
}

func (s *ChangeStore) List(ctx context.Context, f changequeue.ListFilter) ([]domain.PendingChange, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	q := s.DB.WithContext(ctx).Order("created_at DESC")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.EntityID != "" {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}

	var out []domain.PendingChange
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list changes: %w", err)
	}
	return out, nil
}

func (s *ChangeStore) CountByStatus(ctx context.Context) (map[domain.ChangeStatus]int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	var rows []struct {
		Status domain.ChangeStatus
		N      int64
	}
	if err := s.DB.WithContext(ctx).Model(&domain.PendingChange{}).
		Select("status, COUNT(*) AS n").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count changes: %w", err)
	}

	out := make(map[domain.ChangeStatus]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
