package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/leeaandrob/volwatch/internal/models"
)

// CachedSource keeps the last successful fetch for a TTL and serves it when the upstream fails.
type CachedSource struct {
	src Source
	ttl time.Duration
	now func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	events    []models.RawEvent
	fetchedAt time.Time
}

// NewCachedSource wraps src. A zero ttl refetches on every call.
func NewCachedSource(src Source, ttl time.Duration) *CachedSource {
	return &CachedSource{src: src, ttl: ttl, now: time.Now}
}

// FetchEvents returns fresh cached events, or refetches. On upstream failure it serves the
// last good copy; it only errors when nothing was ever fetched.
func (c *CachedSource) FetchEvents(ctx context.Context) ([]models.RawEvent, error) {
	c.mu.RLock()
	events, fetchedAt := c.events, c.fetchedAt
	c.mu.RUnlock()

	if !fetchedAt.IsZero() && c.ttl > 0 && c.now().Sub(fetchedAt) < c.ttl {
		return events, nil
	}

	fresh, err := c.Refresh(ctx)
	if err == nil {
		return fresh, nil
	}
	if !fetchedAt.IsZero() {
		log.Warn().
			Err(err).
			Time("fetched_at", fetchedAt).
			Int("events", len(events)).
			Msg("Calendar fetch failed, serving cached events")
		return events, nil
	}
	return nil, err
}

// Refresh fetches from upstream regardless of TTL. Concurrent callers share one request.
func (c *CachedSource) Refresh(ctx context.Context) ([]models.RawEvent, error) {
	v, err, shared := c.group.Do("events", func() (interface{}, error) {
		events, err := c.src.FetchEvents(ctx)
		if err != nil {
			return nil, fmt.Errorf("calendar refresh failed: %w", err)
		}

		c.mu.Lock()
		c.events = events
		c.fetchedAt = c.now()
		c.mu.Unlock()

		log.Info().Int("events", len(events)).Msg("Calendar refreshed")
		return events, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		log.Debug().Msg("Calendar refresh shared with concurrent caller")
	}
	return v.([]models.RawEvent), nil
}

// Name describes the wrapped source.
func (c *CachedSource) Name() string {
	if n, ok := c.src.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "calendar"
}

// LastFetched returns the time of the last successful fetch.
func (c *CachedSource) LastFetched() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fetchedAt
}

// Cached returns the last successful fetch without touching upstream.
func (c *CachedSource) Cached() []models.RawEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.events
}
