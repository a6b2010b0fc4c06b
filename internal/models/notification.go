package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TransitionType describes why the gate fired.
type TransitionType string

const (
	TransitionBootstrap   TransitionType = "bootstrap"
	TransitionStateChange TransitionType = "state_change"
	TransitionPhaseChange TransitionType = "phase_change"
	TransitionNone        TransitionType = "none"
)

// NotificationRecord is the audit entry written for every fired notification.
type NotificationRecord struct {
	ID primitive.ObjectID `bson:"_id,omitempty" json:"-"`

	// Stable identifier shared with the log line
	NotificationID string `bson:"notification_id" json:"notification_id"`

	// Transition
	PreviousState  State          `bson:"previous_state,omitempty" json:"previous_state,omitempty"`
	PreviousPhase  Phase          `bson:"previous_phase,omitempty" json:"previous_phase,omitempty"`
	CurrentState   State          `bson:"current_state" json:"current_state"`
	CurrentPhase   Phase          `bson:"current_phase" json:"current_phase"`
	TransitionType TransitionType `bson:"transition_type" json:"transition_type"`
	PrimaryEvent   *PrimaryEvent  `bson:"primary_event,omitempty" json:"primary_event,omitempty"`

	// Synthesis
	Text             string `bson:"text" json:"text"`
	LLMAttempts      int    `bson:"llm_attempts" json:"llm_attempts"`
	Repaired         bool   `bson:"repaired" json:"repaired"`
	ValidationResult string `bson:"validation_result" json:"validation_result"`

	// Delivery
	Delivered     bool   `bson:"delivered" json:"delivered"`
	DeliveryError string `bson:"delivery_error,omitempty" json:"delivery_error,omitempty"`

	// Timing
	EvaluatedAt time.Time `bson:"evaluated_at" json:"evaluated_at"`
	CreatedAt   time.Time `bson:"created_at" json:"created_at"`
}

// CalendarSnapshot stores the last calendar payload used for evaluation.
type CalendarSnapshot struct {
	ID primitive.ObjectID `bson:"_id,omitempty" json:"-"`

	Source    string     `bson:"source" json:"source"`
	Events    []RawEvent `bson:"events" json:"events"`
	FetchedAt time.Time  `bson:"fetched_at" json:"fetched_at"`
}
