// Package anchors classifies calendar events by impact and recognizes anchor releases.
package anchors

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// Definition is one anchor entry of the alias table.
type Definition struct {
	Key     string   `json:"key"`
	Label   string   `json:"anchor_label"`
	Aliases []string `json:"aliases"`
}

type document struct {
	Events []Definition `json:"anchor_high_events"`
}

type alias struct {
	text string
	re   *regexp.Regexp // nil for multi-word aliases
}

type entry struct {
	label   string
	aliases []alias
}

// Table is an immutable, ordered alias table. The zero value recognizes no anchors.
type Table struct {
	entries []entry
}

// NewTable normalizes definitions and precompiles single-token matchers.
// Definitions without a usable alias are dropped; order is preserved.
func NewTable(defs []Definition) *Table {
	t := &Table{}
	for _, d := range defs {
		e := entry{label: strings.TrimSpace(d.Label)}
		if e.label == "" {
			e.label = strings.TrimSpace(d.Key)
		}
		for _, a := range d.Aliases {
			text := normalize(a)
			if text == "" {
				continue
			}
			al := alias{text: text}
			if !strings.Contains(text, " ") {
				al.re = regexp.MustCompile(`(^|[^a-z0-9])` + regexp.QuoteMeta(text) + `([^a-z0-9]|$)`)
			}
			e.aliases = append(e.aliases, al)
		}
		if len(e.aliases) == 0 {
			continue
		}
		t.entries = append(t.entries, e)
	}
	return t
}

// Parse decodes a JSON alias document.
func Parse(data []byte) (*Table, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse anchor table: %w", err)
	}
	return NewTable(doc.Events), nil
}

// LoadFile reads and parses an alias document from disk.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read anchor table: %w", err)
	}
	return Parse(data)
}

// Load is LoadFile that never fails: any error yields an empty table.
func Load(path string) *Table {
	t, err := LoadFile(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Anchor table unavailable, no anchors will be recognized")
		return &Table{}
	}
	log.Info().Str("path", path).Int("anchors", t.Len()).Msg("Anchor table loaded")
	return t
}

// Len returns the number of usable anchor entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// Labels returns the anchor labels in table order.
func (t *Table) Labels() []string {
	if t == nil {
		return nil
	}
	labels := make([]string, 0, len(t.entries))
	for _, e := range t.entries {
		labels = append(labels, e.label)
	}
	return labels
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (a alias) matches(title string) bool {
	if a.re == nil {
		return strings.Contains(title, a.text)
	}
	return a.re.MatchString(title)
}
