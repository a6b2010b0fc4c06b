package volatility

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeaandrob/volwatch/internal/anchors"
	"github.com/leeaandrob/volwatch/internal/models"
)

var base = time.Date(2025, 3, 7, 13, 30, 0, 0, time.UTC)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	table, err := anchors.LoadFile(filepath.Join("..", "..", "data", "anchor_events.json"))
	require.NoError(t, err)
	return NewEngine(table, DefaultConfig())
}

func ev(title string, at time.Time) models.RawEvent {
	return models.RawEvent{Title: title, Date: at.Format(time.RFC3339), Impact: "High", Country: "usd"}
}

func TestComputeState_NoEventsIsGreen(t *testing.T) {
	e := testEngine(t)

	for _, events := range [][]models.RawEvent{nil, {}} {
		s := e.ComputeState(base, events)
		assert.Equal(t, models.StateGreen, s.State)
		assert.Equal(t, models.PhaseNone, s.Phase)
		assert.Nil(t, s.PrimaryEvent)
		assert.Empty(t, s.ClusterEvents)
		assert.Empty(t, s.ClusterAnchorNames)
	}
}

func TestComputeState_Boundaries(t *testing.T) {
	e := testEngine(t)
	w := DefaultWindows()
	events := []models.RawEvent{ev("Retail Sales m/m", base)}

	tests := []struct {
		name  string
		now   time.Time
		state models.State
		phase models.Phase
	}{
		{"before pre window", base.Add(-w.Pre - time.Second), models.StateGreen, models.PhaseNone},
		{"pre window opens", base.Add(-w.Pre), models.StateRed, models.PhasePre},
		{"just before event", base.Add(-time.Second), models.StateRed, models.PhasePre},
		{"event at now", base, models.StateRed, models.PhaseDuring},
		{"end of during", base.Add(w.During - time.Second), models.StateRed, models.PhaseDuring},
		{"event at now minus during", base.Add(w.During), models.StateRed, models.PhasePost},
		{"end of post", base.Add(w.Post - time.Second), models.StateRed, models.PhasePost},
		{"event at now minus post", base.Add(w.Post), models.StateGreen, models.PhaseNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := e.ComputeState(tt.now, events)
			assert.Equal(t, tt.state, s.State)
			assert.Equal(t, tt.phase, s.Phase)
			if s.State == models.StateGreen {
				assert.Nil(t, s.PrimaryEvent)
			} else {
				require.NotNil(t, s.PrimaryEvent)
				assert.Equal(t, "Retail Sales m/m", s.PrimaryEvent.Name)
			}
		})
	}
}

func TestComputeState_Idempotent(t *testing.T) {
	e := testEngine(t)
	events := []models.RawEvent{
		ev("Non-Farm Payrolls", base),
		ev("Unemployment Rate", base.Add(2*time.Minute)),
	}

	first := e.ComputeState(base.Add(-3*time.Minute), events)
	second := e.ComputeState(base.Add(-3*time.Minute), events)
	assert.Equal(t, first, second)
}

func TestBuildClusters(t *testing.T) {
	e := testEngine(t)

	t.Run("three minutes apart form one cluster", func(t *testing.T) {
		got := e.Evaluate(base, []models.RawEvent{
			ev("Retail Sales m/m", base),
			ev("Empire State Manufacturing Index", base.Add(3*time.Minute)),
		})
		require.Len(t, got.Clusters, 1)
		assert.Equal(t, 2, got.State.ClusterSize)
	})

	t.Run("ten minutes apart form two clusters", func(t *testing.T) {
		got := e.Evaluate(base, []models.RawEvent{
			ev("Retail Sales m/m", base),
			ev("Empire State Manufacturing Index", base.Add(10*time.Minute)),
		})
		require.Len(t, got.Clusters, 2)
		assert.Equal(t, 1, got.State.ClusterSize)
	})

	t.Run("gap is pairwise", func(t *testing.T) {
		got := e.Evaluate(base, []models.RawEvent{
			ev("A", base),
			ev("B", base.Add(5*time.Minute)),
			ev("C", base.Add(10*time.Minute)),
			ev("D", base.Add(14*time.Minute)),
		})
		require.Len(t, got.Clusters, 1)
		assert.Equal(t, base, got.Clusters[0].Start)
		assert.Equal(t, base.Add(14*time.Minute), got.Clusters[0].End)
	})

	t.Run("input order does not matter", func(t *testing.T) {
		got := e.Evaluate(base, []models.RawEvent{
			ev("Late", base.Add(20*time.Minute)),
			ev("Early", base),
		})
		require.Len(t, got.Clusters, 2)
		assert.Equal(t, "Early", got.Clusters[0].Events[0].Title)
	})
}

func TestComputeState_DropsMalformedInput(t *testing.T) {
	e := testEngine(t)
	events := []models.RawEvent{
		{Title: "", Date: base.Format(time.RFC3339), Impact: "High"},
		{Title: "No Date", Date: "", Impact: "High"},
		{Title: "Bad Date", Date: "tomorrow 8:30", Impact: "High"},
		{Title: "Medium", Date: base.Format(time.RFC3339), Impact: "Medium"},
		{Title: "Lowercase", Date: base.Format(time.RFC3339), Impact: "high"},
		{Title: "Uppercase", Date: base.Format(time.RFC3339), Impact: "HIGH"},
	}

	got := e.Evaluate(base, events)
	assert.Empty(t, got.Events)
	assert.Equal(t, models.StateGreen, got.State.State)
}

func TestComputeState_LenientImpact(t *testing.T) {
	table, err := anchors.LoadFile(filepath.Join("..", "..", "data", "anchor_events.json"))
	require.NoError(t, err)
	e := NewEngine(table, Config{Windows: DefaultWindows(), StrictImpact: false})

	s := e.ComputeState(base, []models.RawEvent{
		{Title: "CPI m/m", Date: base.Format(time.RFC3339), Impact: " high "},
	})
	assert.Equal(t, models.StateRed, s.State)
	assert.Equal(t, models.ImpactTypeAnchorHigh, s.ImpactType)
}

func TestComputeState_AnchorPrimary(t *testing.T) {
	e := testEngine(t)
	events := []models.RawEvent{
		ev("Non-Farm Payrolls", base),
		ev("Unemployment Rate", base.Add(2*time.Minute)),
	}

	s := e.ComputeState(base.Add(-10*time.Minute), events)

	assert.Equal(t, models.StateRed, s.State)
	assert.Equal(t, models.PhasePre, s.Phase)
	assert.Equal(t, models.ImpactTypeAnchorHigh, s.ImpactType)
	assert.Equal(t, "NFP", s.AnchorLabel)
	assert.Equal(t, "USD", s.Currency)
	assert.False(t, s.ClusterHasAnchor)
	assert.Empty(t, s.ClusterAnchorNames)
	assert.Equal(t, 2, s.ClusterSize)
	require.Len(t, s.ClusterEvents, 2)
	assert.Equal(t, "Unemployment Rate", s.ClusterEvents[1].Name)
}

func TestComputeState_ContextualAnchor(t *testing.T) {
	e := testEngine(t)
	events := []models.RawEvent{
		ev("Unemployment Rate", base),
		ev("Non-Farm Payrolls", base.Add(3*time.Minute)),
	}

	s := e.ComputeState(base.Add(-10*time.Minute), events)

	require.NotNil(t, s.PrimaryEvent)
	assert.Equal(t, "Unemployment Rate", s.PrimaryEvent.Name)
	assert.Equal(t, models.ImpactTypeHigh, s.ImpactType)
	assert.Empty(t, s.AnchorLabel)
	assert.True(t, s.ClusterHasAnchor)
	assert.Equal(t, []string{"Non-Farm Payrolls"}, s.ClusterAnchorNames)
}

func TestComputeState_PrimaryClusterTieBreak(t *testing.T) {
	e := testEngine(t)
	// now sits 5 minutes after the first cluster and 5 minutes before the second.
	events := []models.RawEvent{
		ev("First", base),
		ev("Second", base.Add(10*time.Minute)),
	}

	got := e.Evaluate(base.Add(5*time.Minute), events)

	require.Len(t, got.Active, 2)
	require.NotNil(t, got.State.PrimaryEvent)
	assert.Equal(t, "First", got.State.PrimaryEvent.Name)
	assert.Equal(t, models.PhasePost, got.State.Phase)
}

func TestComputeState_PrimaryEventTieBreak(t *testing.T) {
	e := testEngine(t)
	events := []models.RawEvent{
		ev("Later", base.Add(4*time.Minute)),
		ev("Earlier", base),
	}

	s := e.ComputeState(base.Add(2*time.Minute), events)

	require.NotNil(t, s.PrimaryEvent)
	assert.Equal(t, "Earlier", s.PrimaryEvent.Name)
	assert.Equal(t, models.PhaseDuring, s.Phase)
}

func TestComputeState_RedIffActiveCluster(t *testing.T) {
	e := testEngine(t)
	events := []models.RawEvent{
		ev("A", base),
		ev("B", base.Add(40*time.Minute)),
	}

	for offset := -30 * time.Minute; offset <= 80*time.Minute; offset += time.Minute {
		got := e.Evaluate(base.Add(offset), events)
		if len(got.Active) > 0 {
			assert.Equal(t, models.StateRed, got.State.State, "offset %s", offset)
			assert.NotEqual(t, models.PhaseNone, got.State.Phase, "offset %s", offset)
		} else {
			assert.Equal(t, models.StateGreen, got.State.State, "offset %s", offset)
			assert.Equal(t, models.PhaseNone, got.State.Phase, "offset %s", offset)
			assert.Nil(t, got.State.PrimaryEvent, "offset %s", offset)
		}
	}
}

func TestParseEventTime(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2025-03-07T13:30:00Z", base, true},
		{"2025-03-07T08:30:00-05:00", base, true},
		{"2025-03-07T13:30:00.000Z", base, true},
		{"2025-03-07T13:30:00", base, true},
		{"2025-03-07 13:30", base, true},
		{"07/03/2025", time.Time{}, false},
		{"", time.Time{}, false},
	}

	for _, tt := range tests {
		got, ok := ParseEventTime(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		if tt.ok {
			assert.True(t, tt.want.Equal(got), tt.in)
		}
	}
}

func TestWindowsValidate(t *testing.T) {
	assert.NoError(t, DefaultWindows().Validate())
	assert.Error(t, Windows{Pre: 0, During: time.Minute, Post: time.Minute}.Validate())
	assert.Error(t, Windows{Pre: time.Minute, During: 10 * time.Minute, Post: 5 * time.Minute}.Validate())
}
