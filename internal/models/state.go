// Package models defines the domain types shared across volwatch packages.
package models

import (
	"math"
	"time"
)

// State is the coarse market state.
type State string

const (
	StateGreen State = "GREEN"
	StateRed   State = "RED"
)

// Phase is the temporal bucket relative to a cluster.
type Phase string

const (
	PhaseNone   Phase = "none"
	PhasePre    Phase = "pre_event"
	PhaseDuring Phase = "during_event"
	PhasePost   Phase = "post_event"
)

// ImpactType classifies a high-impact event. The zero value means not high impact.
type ImpactType string

const (
	ImpactTypeNone       ImpactType = ""
	ImpactTypeHigh       ImpactType = "high"
	ImpactTypeAnchorHigh ImpactType = "anchor_high"
)

// PrimaryEvent identifies the event a notification is about.
type PrimaryEvent struct {
	Name string    `bson:"name" json:"name"`
	Time time.Time `bson:"time" json:"time"`
}

// ClusterEvent is the public projection of a cluster member.
type ClusterEvent struct {
	Name     string    `bson:"name" json:"name"`
	Time     time.Time `bson:"time" json:"time"`
	Impact   string    `bson:"impact" json:"impact"`
	Currency string    `bson:"currency,omitempty" json:"currency,omitempty"`
}

// VolatilityState is the output of one evaluation. It is computed fresh each time.
type VolatilityState struct {
	State        State         `bson:"state" json:"state"`
	Phase        Phase         `bson:"phase" json:"phase"`
	PrimaryEvent *PrimaryEvent `bson:"primary_event,omitempty" json:"primary_event"`
	ImpactType   ImpactType    `bson:"impact_type,omitempty" json:"impact_type,omitempty"`
	AnchorLabel  string        `bson:"anchor_label,omitempty" json:"anchor_label,omitempty"`
	Currency     string        `bson:"currency,omitempty" json:"currency,omitempty"`

	ClusterHasAnchor   bool           `bson:"cluster_has_anchor" json:"cluster_has_anchor"`
	ClusterAnchorNames []string       `bson:"cluster_anchor_names" json:"cluster_anchor_names"`
	ClusterSize        int            `bson:"cluster_size" json:"cluster_size"`
	ClusterEvents      []ClusterEvent `bson:"cluster_events" json:"cluster_events"`
}

// GreenState returns the calm state with every optional field empty.
func GreenState() VolatilityState {
	return VolatilityState{
		State:              StateGreen,
		Phase:              PhaseNone,
		ClusterAnchorNames: []string{},
		ClusterEvents:      []ClusterEvent{},
	}
}

// VolatilityPayload is what the message synthesizer reads: the state plus delivery context.
type VolatilityPayload struct {
	State          State      `json:"state"`
	Phase          Phase      `json:"phase"`
	ImpactType     ImpactType `json:"impact_type,omitempty"`
	EventName      string     `json:"event_name,omitempty"`
	EventTime      *time.Time `json:"event_time,omitempty"`
	MinutesToEvent int        `json:"minutes_to_event"`
	AnchorLabel    string     `json:"anchor_label,omitempty"`
	Currency       string     `json:"currency,omitempty"`

	ClusterHasAnchor   bool           `json:"cluster_has_anchor"`
	ClusterAnchorNames []string       `json:"cluster_anchor_names"`
	ClusterSize        int            `json:"cluster_size"`
	ClusterEvents      []ClusterEvent `json:"cluster_events"`

	// Size of the RED cluster that preceded a GREEN transition.
	PreviousClusterSize int `json:"previous_cluster_size,omitempty"`
}

// NewPayload projects a state into the synthesizer payload as seen at now.
func NewPayload(s VolatilityState, now time.Time) VolatilityPayload {
	p := VolatilityPayload{
		State:              s.State,
		Phase:              s.Phase,
		ImpactType:         s.ImpactType,
		AnchorLabel:        s.AnchorLabel,
		Currency:           s.Currency,
		ClusterHasAnchor:   s.ClusterHasAnchor,
		ClusterAnchorNames: s.ClusterAnchorNames,
		ClusterSize:        s.ClusterSize,
		ClusterEvents:      s.ClusterEvents,
	}
	if s.PrimaryEvent != nil {
		t := s.PrimaryEvent.Time
		p.EventName = s.PrimaryEvent.Name
		p.EventTime = &t
		p.MinutesToEvent = MinutesUntil(t, now)
	}
	return p
}

// MinutesUntil returns whole minutes (rounded up) until t, or 0 once t has passed.
func MinutesUntil(t, now time.Time) int {
	if !t.After(now) {
		return 0
	}
	return int(math.Ceil(t.Sub(now).Minutes()))
}

// GenerationResult describes one message synthesis call.
type GenerationResult struct {
	Text          string `json:"text"`
	Success       bool   `json:"success"`
	Attempts      int    `json:"attempts"`
	Repaired      bool   `json:"repaired"`
	FailureReason string `json:"failure_reason,omitempty"`
}
