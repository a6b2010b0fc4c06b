// Package volatility turns calendar events into a GREEN/RED volatility state.
package volatility

import (
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/leeaandrob/volwatch/internal/anchors"
	"github.com/leeaandrob/volwatch/internal/models"
)

// Config holds engine settings.
type Config struct {
	Windows Windows

	// StrictImpact keeps only events whose impact is exactly "High".
	// When false the label is compared after trimming and lowercasing.
	StrictImpact bool
}

// DefaultConfig returns canonical windows with strict impact matching.
func DefaultConfig() Config {
	return Config{Windows: DefaultWindows(), StrictImpact: true}
}

// Engine computes volatility states. It holds no mutable state and is safe for concurrent use.
type Engine struct {
	table *anchors.Table
	cfg   Config
}

// ActiveCluster is a cluster whose phase at evaluation time is not none.
type ActiveCluster struct {
	Cluster  models.EventCluster `json:"cluster"`
	Phase    models.Phase        `json:"phase"`
	Distance time.Duration       `json:"distance"`
}

// Evaluation exposes the intermediate results of one computation.
type Evaluation struct {
	Now      time.Time                `json:"now"`
	State    models.VolatilityState   `json:"state"`
	Events   []models.ClassifiedEvent `json:"events"`
	Clusters []models.EventCluster    `json:"clusters"`
	Active   []ActiveCluster          `json:"active"`
}

// NewEngine creates an engine. A nil table recognizes no anchors.
func NewEngine(table *anchors.Table, cfg Config) *Engine {
	return &Engine{table: table, cfg: cfg}
}

// Windows returns the configured windows.
func (e *Engine) Windows() Windows {
	return e.cfg.Windows
}

// ComputeState returns the volatility state at now. It never fails; bad input degrades to GREEN.
func (e *Engine) ComputeState(now time.Time, events []models.RawEvent) models.VolatilityState {
	return e.Evaluate(now, events).State
}

// Evaluate runs the full computation and keeps the intermediate steps.
func (e *Engine) Evaluate(now time.Time, events []models.RawEvent) Evaluation {
	ev := Evaluation{Now: now, State: models.GreenState()}

	ev.Events = e.Classify(events)
	if len(ev.Events) == 0 {
		return ev
	}

	ev.Clusters = BuildClusters(ev.Events, e.cfg.Windows.MergeGap)

	for _, c := range ev.Clusters {
		phase := e.cfg.Windows.ResolvePhase(c.Start, c.End, now)
		if phase == models.PhaseNone {
			continue
		}
		ev.Active = append(ev.Active, ActiveCluster{
			Cluster:  c,
			Phase:    phase,
			Distance: nearestDistance(c, now),
		})
	}
	if len(ev.Active) == 0 {
		return ev
	}

	sort.SliceStable(ev.Active, func(i, j int) bool {
		a, b := ev.Active[i], ev.Active[j]
		if a.Distance != b.Distance {
			return a.Distance < b.Distance
		}
		return a.Cluster.Start.Before(b.Cluster.Start)
	})

	primary := ev.Active[0]
	ev.State = buildState(primary, now)
	return ev
}

// Classify filters raw events down to dated high-impact events and classifies them.
// The result is sorted by time; malformed items are dropped.
func (e *Engine) Classify(events []models.RawEvent) []models.ClassifiedEvent {
	out := make([]models.ClassifiedEvent, 0, len(events))
	for _, raw := range events {
		if !e.matchesImpact(raw.Impact) {
			continue
		}
		if strings.TrimSpace(raw.Title) == "" {
			log.Debug().Str("date", raw.Date).Msg("Dropping event without title")
			continue
		}
		at, ok := ParseEventTime(raw.Date)
		if !ok {
			log.Debug().Str("title", raw.Title).Str("date", raw.Date).Msg("Dropping event with unparseable date")
			continue
		}
		c := e.table.Classify(raw.Title, raw.Impact)
		out = append(out, models.ClassifiedEvent{
			RawEvent:    raw,
			At:          at,
			IsAnchor:    c.IsAnchor(),
			AnchorLabel: c.AnchorLabel,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].At.Before(out[j].At)
	})
	return out
}

func (e *Engine) matchesImpact(impact string) bool {
	if e.cfg.StrictImpact {
		return impact == models.ImpactHigh
	}
	return strings.EqualFold(strings.TrimSpace(impact), models.ImpactHigh)
}

// BuildClusters groups chronologically sorted events into maximal chains whose
// consecutive gaps never exceed gap.
func BuildClusters(sorted []models.ClassifiedEvent, gap time.Duration) []models.EventCluster {
	var clusters []models.EventCluster
	for i, ev := range sorted {
		if i == 0 || ev.At.Sub(sorted[i-1].At) > gap {
			clusters = append(clusters, models.EventCluster{})
		}
		clusters[len(clusters)-1].Append(ev)
	}
	return clusters
}

func nearestDistance(c models.EventCluster, now time.Time) time.Duration {
	best := time.Duration(-1)
	for _, ev := range c.Events {
		d := absDuration(ev.At.Sub(now))
		if best < 0 || d < best {
			best = d
		}
	}
	return best
}

func nearestEvent(c models.EventCluster, now time.Time) models.ClassifiedEvent {
	best := c.Events[0]
	bestDist := absDuration(best.At.Sub(now))
	for _, ev := range c.Events[1:] {
		d := absDuration(ev.At.Sub(now))
		if d < bestDist || (d == bestDist && ev.At.Before(best.At)) {
			best, bestDist = ev, d
		}
	}
	return best
}

func buildState(active ActiveCluster, now time.Time) models.VolatilityState {
	primary := nearestEvent(active.Cluster, now)

	s := models.VolatilityState{
		State: models.StateRed,
		Phase: active.Phase,
		PrimaryEvent: &models.PrimaryEvent{
			Name: primary.Title,
			Time: primary.At.UTC(),
		},
		ImpactType:         models.ImpactTypeHigh,
		Currency:           primary.CurrencyCode(),
		ClusterAnchorNames: []string{},
		ClusterSize:        len(active.Cluster.Events),
		ClusterEvents:      make([]models.ClusterEvent, 0, len(active.Cluster.Events)),
	}

	if primary.IsAnchor {
		s.ImpactType = models.ImpactTypeAnchorHigh
		s.AnchorLabel = primary.AnchorLabel
	} else {
		s.ClusterAnchorNames = anchors.ClusterAnchorNames(active.Cluster.Events)
		s.ClusterHasAnchor = len(s.ClusterAnchorNames) > 0
	}

	for _, ev := range active.Cluster.Events {
		s.ClusterEvents = append(s.ClusterEvents, models.ClusterEvent{
			Name:     ev.Title,
			Time:     ev.At.UTC(),
			Impact:   ev.Impact,
			Currency: ev.CurrencyCode(),
		})
	}
	return s
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// ParseEventTime parses an ISO-8601 calendar date. Zone-less forms are read as UTC.
func ParseEventTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
