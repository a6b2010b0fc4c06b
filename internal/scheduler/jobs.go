package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/leeaandrob/volwatch/internal/calendar"
	"github.com/leeaandrob/volwatch/internal/models"
	"github.com/leeaandrob/volwatch/internal/pipeline"
)

// Job names.
const (
	JobVolatilityTick  = "volatility-tick"
	JobCalendarRefresh = "calendar-refresh"
	JobSnapshotCleanup = "snapshot-cleanup"
)

// SnapshotStore persists calendar snapshots.
type SnapshotStore interface {
	SaveCalendarSnapshot(ctx context.Context, snap *models.CalendarSnapshot) error
}

// SnapshotCleaner removes old calendar snapshots.
type SnapshotCleaner interface {
	CleanOldSnapshots(ctx context.Context, olderThan time.Duration) (int64, error)
}

// RegisterDefaultJobs sets up the volatility tick and the calendar refresh.
// store and cache may be nil.
func (s *Scheduler) RegisterDefaultJobs(runner *pipeline.Runner, cache *calendar.CachedSource, store SnapshotStore, tickInterval, refreshInterval time.Duration) {
	s.AddJob(&Job{
		Name:            JobVolatilityTick,
		Schedule:        Schedule{Type: ScheduleInterval, Interval: tickInterval},
		ActiveHoursOnly: true,
		Handler: func(ctx context.Context) error {
			_, err := runner.Tick(ctx)
			return err
		},
	})

	if cache != nil {
		s.AddJob(&Job{
			Name:     JobCalendarRefresh,
			Schedule: Schedule{Type: ScheduleInterval, Interval: refreshInterval},
			Handler: func(ctx context.Context) error {
				return refreshCalendar(ctx, cache, store)
			},
		})
	}

	if cleaner, ok := store.(SnapshotCleaner); ok {
		s.AddJob(&Job{
			Name:     JobSnapshotCleanup,
			Schedule: Schedule{Type: ScheduleDaily, Hour: 3, Minute: 0},
			Handler: func(ctx context.Context) error {
				n, err := cleaner.CleanOldSnapshots(ctx, 7*24*time.Hour)
				if err != nil {
					return err
				}
				log.Info().Int64("deleted", n).Msg("Old calendar snapshots removed")
				return nil
			},
		})
	}
}

func refreshCalendar(ctx context.Context, cache *calendar.CachedSource, store SnapshotStore) error {
	events, err := cache.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refresh calendar: %w", err)
	}
	if store == nil {
		return nil
	}
	snap := &models.CalendarSnapshot{
		Source:    cache.Name(),
		Events:    events,
		FetchedAt: time.Now().UTC(),
	}
	if err := store.SaveCalendarSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("save calendar snapshot: %w", err)
	}
	return nil
}
