package volatility

import (
	"fmt"
	"time"

	"github.com/leeaandrob/volwatch/internal/models"
)

// Windows holds the phase window lengths and the cluster merge gap.
type Windows struct {
	Pre      time.Duration
	During   time.Duration
	Post     time.Duration
	MergeGap time.Duration
}

// DefaultWindows returns the canonical 15/5/15 minute windows with a 5 minute merge gap.
func DefaultWindows() Windows {
	return Windows{
		Pre:      15 * time.Minute,
		During:   5 * time.Minute,
		Post:     15 * time.Minute,
		MergeGap: 5 * time.Minute,
	}
}

// Validate checks that the windows describe a usable timeline.
func (w Windows) Validate() error {
	if w.Pre <= 0 || w.During <= 0 || w.Post <= 0 {
		return fmt.Errorf("windows must be positive: pre=%s during=%s post=%s", w.Pre, w.During, w.Post)
	}
	if w.MergeGap < 0 {
		return fmt.Errorf("merge gap must not be negative: %s", w.MergeGap)
	}
	if w.Post < w.During {
		return fmt.Errorf("post window %s must not be shorter than during window %s", w.Post, w.During)
	}
	return nil
}

// ResolvePhase places now relative to a cluster spanning [start, end].
// Every window is half-open.
func (w Windows) ResolvePhase(start, end, now time.Time) models.Phase {
	switch {
	case !now.Before(start.Add(-w.Pre)) && now.Before(start):
		return models.PhasePre
	case !now.Before(start) && now.Before(end.Add(w.During)):
		return models.PhaseDuring
	case !now.Before(end.Add(w.During)) && now.Before(end.Add(w.Post)):
		return models.PhasePost
	default:
		return models.PhaseNone
	}
}
