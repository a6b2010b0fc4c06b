package storage

import (
	"context"
	"sync"
	"time"

	"github.com/leeaandrob/volwatch/internal/models"
)

// MemoryStore keeps a bounded notification history in process. It backs the
// service when MONGO_URI is empty.
type MemoryStore struct {
	mu        sync.RWMutex
	limit     int
	records   []models.NotificationRecord
	snapshots int64
	latest    *models.CalendarSnapshot
}

// NewMemoryStore creates a store that keeps at most limit records.
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = 500
	}
	return &MemoryStore{limit: limit}
}

// SaveNotification appends a record, evicting the oldest beyond the limit.
func (m *MemoryStore) SaveNotification(_ context.Context, rec *models.NotificationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *rec)
	if over := len(m.records) - m.limit; over > 0 {
		m.records = append([]models.NotificationRecord(nil), m.records[over:]...)
	}
	return nil
}

// GetRecentNotifications returns the newest records first.
func (m *MemoryStore) GetRecentNotifications(_ context.Context, limit int) ([]models.NotificationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.NotificationRecord{}
	for i := len(m.records) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

// SaveCalendarSnapshot keeps only the latest snapshot.
func (m *MemoryStore) SaveCalendarSnapshot(_ context.Context, snap *models.CalendarSnapshot) error {
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *snap
	m.latest = &cp
	m.snapshots++
	return nil
}

// GetLatestCalendarSnapshot returns the last saved snapshot.
func (m *MemoryStore) GetLatestCalendarSnapshot(_ context.Context) (*models.CalendarSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.latest == nil {
		return nil, ErrNotFound
	}
	cp := *m.latest
	return &cp, nil
}

// GetStats mirrors Store.GetStats over the in-memory history.
func (m *MemoryStore) GetStats(_ context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{CalendarSnapshots: m.snapshots}
	today := time.Now().Truncate(24 * time.Hour)
	for _, r := range m.records {
		stats.TotalNotifications++
		if !r.Delivered {
			stats.Undelivered++
		}
		if r.Repaired {
			stats.Repaired++
		}
		if !r.CreatedAt.Before(today) {
			stats.TodayNotifications++
		}
	}
	return stats, nil
}
