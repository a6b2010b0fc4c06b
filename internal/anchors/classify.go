package anchors

import (
	"strings"

	"github.com/leeaandrob/volwatch/internal/models"
)

// Classification is the result of classifying one event.
type Classification struct {
	ImpactType  models.ImpactType
	AnchorLabel string
}

// IsAnchor reports whether the event is an anchor release.
func (c Classification) IsAnchor() bool {
	return c.ImpactType == models.ImpactTypeAnchorHigh
}

// Classify maps a title and impact label to an impact type.
// Impact is compared case-insensitively; the first alias match in table order wins.
func (t *Table) Classify(title, impact string) Classification {
	if normalize(impact) != "high" {
		return Classification{}
	}
	if label, ok := t.match(title); ok {
		return Classification{ImpactType: models.ImpactTypeAnchorHigh, AnchorLabel: label}
	}
	return Classification{ImpactType: models.ImpactTypeHigh}
}

// MatchTitle returns the anchor label for a title regardless of impact.
func (t *Table) MatchTitle(title string) (string, bool) {
	return t.match(title)
}

func (t *Table) match(title string) (string, bool) {
	if t == nil {
		return "", false
	}
	normalized := normalize(title)
	if normalized == "" {
		return "", false
	}
	for _, e := range t.entries {
		for _, a := range e.aliases {
			if a.matches(normalized) {
				return e.label, true
			}
		}
	}
	return "", false
}

// ClusterAnchorNames returns distinct trimmed titles of anchor events in first-seen order.
func ClusterAnchorNames(events []models.ClassifiedEvent) []string {
	names := []string{}
	seen := make(map[string]struct{})
	for _, e := range events {
		if !e.IsAnchor {
			continue
		}
		title := strings.TrimSpace(e.Title)
		if title == "" {
			continue
		}
		if _, ok := seen[title]; ok {
			continue
		}
		seen[title] = struct{}{}
		names = append(names, title)
	}
	return names
}
