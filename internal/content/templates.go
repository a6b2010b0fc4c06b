// Package content produces notification text for volatility transitions.
package content

import (
	"fmt"
	"strings"

	"github.com/leeaandrob/volwatch/internal/models"
)

const (
	greenSingle = "🟢 Volatility window closed.\nNo high-impact events are active right now."
	greenSeries = "🟢 The series of releases is over and the volatility window is closed.\nNo high-impact events are active right now."

	highDuringFirst  = "Economic data released."
	highDuringSecond = "The market is starting to react."
	anchorDuringNext = "The market is reacting calmly, with no clear momentum so far."

	fallbackEventName = "the key event"
)

// RenderTemplate returns the deterministic message for a payload. It always returns non-empty text.
func RenderTemplate(p models.VolatilityPayload) string {
	if p.State != models.StateRed {
		if p.PreviousClusterSize > 1 {
			return greenSeries
		}
		return greenSingle
	}
	if p.ImpactType == models.ImpactTypeAnchorHigh {
		return renderAnchorHigh(p)
	}
	return renderHigh(p)
}

// DuringFirstLine is the fixed opener of every during-event message.
func DuringFirstLine(p models.VolatilityPayload) string {
	if p.ImpactType == models.ImpactTypeAnchorHigh {
		return fmt.Sprintf("Data released: %s.", eventName(p))
	}
	return highDuringFirst
}

func renderAnchorHigh(p models.VolatilityPayload) string {
	name := eventName(p)
	switch p.Phase {
	case models.PhasePre:
		if p.ClusterSize > 1 {
			return fmt.Sprintf("🔴 In %s a series of important releases is due, including %s.", minutes(p), name)
		}
		return fmt.Sprintf("🔴 In %s a single release is due: %s.", minutes(p), name)
	case models.PhaseDuring:
		return DuringFirstLine(p) + "\n" + anchorDuringNext
	case models.PhasePost:
		return fmt.Sprintf("🔴 %s has already been released. The market is digesting the data.", name)
	default:
		return fmt.Sprintf("🔴 Volatility window active: %s.", name)
	}
}

func renderHigh(p models.VolatilityPayload) string {
	switch p.Phase {
	case models.PhasePre:
		series := p.ClusterSize > 1
		if anchor := firstAnchorName(p); series && p.ClusterHasAnchor && anchor != "" {
			return fmt.Sprintf("⚡ In %s a series of releases is due, including %s.", minutes(p), anchor)
		}
		if series {
			return fmt.Sprintf("⏳ In %s several releases are due at once.", minutes(p))
		}
		return fmt.Sprintf("⏳ In %s important economic data is due.", minutes(p))
	case models.PhaseDuring:
		return DuringFirstLine(p) + "\n" + highDuringSecond
	case models.PhasePost:
		if anchor := firstAnchorName(p); p.ClusterHasAnchor && anchor != "" {
			return fmt.Sprintf("Data is out, including %s. The market is digesting the release.", anchor)
		}
		return "Data is out. The market is digesting the release."
	default:
		return "The market is in an active volatility window."
	}
}

func eventName(p models.VolatilityPayload) string {
	if name := strings.TrimSpace(p.EventName); name != "" {
		return name
	}
	return fallbackEventName
}

func firstAnchorName(p models.VolatilityPayload) string {
	for _, name := range p.ClusterAnchorNames {
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}
	return ""
}

func minutes(p models.VolatilityPayload) string {
	m := p.MinutesToEvent
	if m < 0 {
		m = 0
	}
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}
