package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"guardline/internal/domain/notification"
)

var _ notification.Store = (*MemoryStore)(nil)

// MemoryStore is an in-memory notification.Store. It backs tests and
// queue-less development runs where no Supabase project is configured.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*notification.Record
	order   []string
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*notification.Record),
	}
}

// Create inserts a new notification record.
func (s *MemoryStore) Create(ctx context.Context, rec *notification.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.records[rec.ID] = &cp
	s.order = append(s.order, rec.ID)
	return nil
}

// GetByID retrieves a notification record by its ID.
func (s *MemoryStore) GetByID(ctx context.Context, id string) (*notification.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

// GetByProviderMessageID retrieves a record by the provider's message ID.
func (s *MemoryStore) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*notification.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.records {
		if rec.Provider != nil && rec.Provider.MessageID == providerMessageID {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, nil
}

// Update persists the current state of a record.
func (s *MemoryStore) Update(ctx context.Context, rec *notification.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	s.records[rec.ID] = &cp
	return nil
}

// List retrieves records with pagination and filtering, newest first.
func (s *MemoryStore) List(ctx context.Context, filter notification.ListFilter) ([]*notification.Record, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	matched := make([]*notification.Record, 0, len(s.records))
	for _, id := range s.order {
		rec := s.records[id]
		if filter.SubjectID != "" && rec.Recipient.SubjectID != filter.SubjectID {
			continue
		}
		if filter.Status != "" && string(rec.Status) != filter.Status {
			continue
		}
		if filter.Channel != "" && string(rec.Channel) != filter.Channel {
			continue
		}
		if filter.Category != "" && string(rec.Category) != filter.Category {
			continue
		}
		cp := *rec
		matched = append(matched, &cp)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := (filter.Page - 1) * filter.PageSize
	if start >= total {
		return []*notification.Record{}, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// ListRetryDue retrieves failed records whose next retry time has passed.
func (s *MemoryStore) ListRetryDue(ctx context.Context, now time.Time, limit int) ([]*notification.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	due := make([]*notification.Record, 0)
	for _, id := range s.order {
		rec := s.records[id]
		if rec.Status != notification.StatusFailed {
			continue
		}
		if rec.Delivery.NextRetryAt == nil || rec.Delivery.NextRetryAt.After(now) {
			continue
		}
		if rec.Delivery.Attempts >= rec.Delivery.MaxAttempts {
			continue
		}
		cp := *rec
		due = append(due, &cp)
	}

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].Delivery.NextRetryAt.Before(*due[j].Delivery.NextRetryAt)
	})

	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Stats returns aggregate counts by status and category for a subject.
func (s *MemoryStore) Stats(ctx context.Context, subjectID string) (*notification.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &notification.Stats{
		ByStatus:   make(map[string]int),
		ByCategory: make(map[string]int),
	}
	for _, rec := range s.records {
		if rec.Recipient.SubjectID != subjectID {
			continue
		}
		stats.Total++
		stats.ByStatus[string(rec.Status)]++
		stats.ByCategory[string(rec.Category)]++
	}
	return stats, nil
}
