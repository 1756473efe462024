// Package memory holds in-process implementations of the repositories, used
// by tests and by the server when STORAGE_DRIVER=memory.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"budgetPilot/business/changequeue"
	"budgetPilot/domain"
)

type ChangeStore struct {
	mu   sync.Mutex
	rows map[string]*domain.PendingChange
}

var _ changequeue.Store = (*ChangeStore)(nil)

func NewChangeStore() *ChangeStore {
	return &ChangeStore{rows: map[string]*domain.PendingChange{}}
}

func clone(c *domain.PendingChange) *domain.PendingChange {
	cp := *c
	if c.PlatformResponse != nil {
		cp.PlatformResponse = make(map[string]any, len(c.PlatformResponse))
		for k, v := range c.PlatformResponse {
			cp.PlatformResponse[k] = v
		}
	}
	return &cp
}

func (s *ChangeStore) busy(entityID, exceptID string) bool {
	for _, c := range s.rows {
		if c.EntityID == entityID && c.ID != exceptID && !c.Status.IsTerminal() {
			return true
		}
	}
	return false
}

func (s *ChangeStore) InsertIfIdle(ctx context.Context, c domain.PendingChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.busy(c.EntityID, "") {
		return changequeue.ErrEntityBusy
	}
	if _, ok := s.rows[c.ID]; ok {
		return fmt.Errorf("duplicate change id %s", c.ID)
	}
	s.rows[c.ID] = clone(&c)
	return nil
}

func (s *ChangeStore) Claim(ctx context.Context, workerID string, now time.Time, lease time.Duration) (*domain.PendingChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cands := make([]*domain.PendingChange, 0)
	for _, c := range s.rows {
		switch c.Status {
		case domain.ChangePending:
			if !c.EarliestExecuteAt.After(now) {
				cands = append(cands, c)
			}
		case domain.ChangeClaimed, domain.ChangeExecuting:
			if c.LeaseExpiresAt != nil && c.LeaseExpiresAt.Before(now) {
				cands = append(cands, c)
			}
		}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].EarliestExecuteAt.Equal(cands[j].EarliestExecuteAt) {
			return cands[i].CreatedAt.Before(cands[j].CreatedAt)
		}
		return cands[i].EarliestExecuteAt.Before(cands[j].EarliestExecuteAt)
	})

	for _, c := range cands {
		if c.Status != domain.ChangePending {
			c.AttemptCount++
			c.LastError = "lease expired"
			if c.AttemptCount >= c.MaxAttempts {
				c.Status = domain.ChangeFailed
				c.CompletedAt = &now
				c.LeaseExpiresAt = nil
				c.UpdatedAt = now
				continue
			}
		}

		exp := now.Add(lease)
		c.Status = domain.ChangeClaimed
		c.ClaimedBy = workerID
		c.ClaimedAt = &now
		c.LeaseExpiresAt = &exp
		c.UpdatedAt = now
		return clone(c), nil
	}
	return nil, nil
}

// owned returns the row if workerID still holds it in one of the given statuses.
func (s *ChangeStore) owned(id, workerID string, statuses ...domain.ChangeStatus) (*domain.PendingChange, error) {
	c, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", changequeue.ErrNotFound, id)
	}
	if c.ClaimedBy != workerID {
		return nil, fmt.Errorf("%w: %s held by %q", changequeue.ErrLeaseLost, id, c.ClaimedBy)
	}
	for _, st := range statuses {
		if c.Status == st {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %s is %s", changequeue.ErrInvalidTransition, id, c.Status)
}

func (s *ChangeStore) MarkExecuting(ctx context.Context, id, workerID string, now time.Time, lease time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.owned(id, workerID, domain.ChangeClaimed)
	if err != nil {
		return err
	}
	if c.LeaseExpiresAt == nil || !c.LeaseExpiresAt.After(now) {
		return fmt.Errorf("%w: %s lease expired", changequeue.ErrLeaseLost, id)
	}
	exp := now.Add(lease)
	c.Status = domain.ChangeExecuting
	c.LeaseExpiresAt = &exp
	c.UpdatedAt = now
	return nil
}

func (s *ChangeStore) Complete(ctx context.Context, id, workerID string, response map[string]any, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.owned(id, workerID, domain.ChangeExecuting)
	if err != nil {
		return err
	}
	c.Status = domain.ChangeCompleted
	c.PlatformResponse = response
	c.LastError = ""
	c.CompletedAt = &now
	c.LeaseExpiresAt = nil
	c.UpdatedAt = now
	return nil
}

func (s *ChangeStore) Reschedule(ctx context.Context, id, workerID string, next time.Time, lastErr string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.owned(id, workerID, domain.ChangeClaimed, domain.ChangeExecuting)
	if err != nil {
		return err
	}
	c.Status = domain.ChangePending
	c.AttemptCount++
	c.EarliestExecuteAt = next
	c.LastError = lastErr
	c.ClaimedBy = ""
	c.ClaimedAt = nil
	c.LeaseExpiresAt = nil
	c.UpdatedAt = now
	return nil
}

func (s *ChangeStore) MarkFailed(ctx context.Context, id, workerID string, lastErr string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.owned(id, workerID, domain.ChangeClaimed, domain.ChangeExecuting)
	if err != nil {
		return err
	}
	c.Status = domain.ChangeFailed
	c.AttemptCount++
	c.LastError = lastErr
	c.CompletedAt = &now
	c.LeaseExpiresAt = nil
	c.UpdatedAt = now
	return nil
}

func (s *ChangeStore) Cancel(ctx context.Context, id string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("%w: %s", changequeue.ErrNotFound, id)
	}
	if c.Status != domain.ChangePending {
		return fmt.Errorf("%w: %s is %s", changequeue.ErrNotCancellable, id, c.Status)
	}
	c.Status = domain.ChangeCancelled
	c.CompletedAt = &now
	c.UpdatedAt = now
	return nil
}

func (s *ChangeStore) Requeue(ctx context.Context, id string, next time.Time, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("%w: %s", changequeue.ErrNotFound, id)
	}
	if c.Status != domain.ChangeFailed {
		return fmt.Errorf("%w: %s is %s", changequeue.ErrInvalidTransition, id, c.Status)
	}
	if s.busy(c.EntityID, c.ID) {
		return changequeue.ErrEntityBusy
	}
	c.Status = domain.ChangePending
	c.AttemptCount = 0
	c.EarliestExecuteAt = next
	c.ClaimedBy = ""
	c.ClaimedAt = nil
	c.LeaseExpiresAt = nil
	c.CompletedAt = nil
	c.UpdatedAt = now
	return nil
}

func (s *ChangeStore) Get(ctx context.Context, id string) (*domain.PendingChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", changequeue.ErrNotFound, id)
	}
	return clone(c), nil
}

func (s *ChangeStore) List(ctx context.Context, f changequeue.ListFilter) ([]domain.PendingChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.PendingChange, 0)
	for _, c := range s.rows {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.EntityID != "" && c.EntityID != f.EntityID {
			continue
		}
		out = append(out, *clone(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *ChangeStore) CountByStatus(ctx context.Context) (map[domain.ChangeStatus]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := map[domain.ChangeStatus]int64{}
	for _, c := range s.rows {
		out[c.Status]++
	}
	return out, nil
}
