package models

import (
	"strings"
	"time"
)

// ImpactHigh is the only impact label the calendar filter lets through.
const ImpactHigh = "High"

// RawEvent is a calendar entry as supplied by the feed.
type RawEvent struct {
	Title    string `bson:"title" json:"title"`
	Date     string `bson:"date" json:"date"`
	Impact   string `bson:"impact" json:"impact"`
	Currency string `bson:"currency,omitempty" json:"currency,omitempty"`

	// ForexFactory-style feeds put the currency code in "country".
	Country string `bson:"country,omitempty" json:"country,omitempty"`
}

// CurrencyCode returns the normalized upper-case currency of the event, or "".
func (e RawEvent) CurrencyCode() string {
	code := strings.TrimSpace(e.Currency)
	if code == "" {
		code = strings.TrimSpace(e.Country)
	}
	return strings.ToUpper(code)
}

// ClassifiedEvent is a high-impact event with a parsed time and anchor flags.
type ClassifiedEvent struct {
	RawEvent

	At          time.Time `json:"at"`
	IsAnchor    bool      `json:"is_anchor"`
	AnchorLabel string    `json:"anchor_label,omitempty"`
}

// EventCluster is a chronological run of events whose consecutive gaps stay within the merge gap.
type EventCluster struct {
	Events []ClassifiedEvent `json:"events"`
	Start  time.Time         `json:"start"`
	End    time.Time         `json:"end"`
}

// Append extends the cluster with the chronologically next event.
func (c *EventCluster) Append(e ClassifiedEvent) {
	if len(c.Events) == 0 {
		c.Start = e.At
	}
	c.Events = append(c.Events, e)
	c.End = e.At
}
