// Package pipeline runs one evaluation cycle: fetch, compute, gate, synthesize, deliver, record.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/leeaandrob/volwatch/internal/calendar"
	"github.com/leeaandrob/volwatch/internal/content"
	"github.com/leeaandrob/volwatch/internal/gate"
	"github.com/leeaandrob/volwatch/internal/models"
	"github.com/leeaandrob/volwatch/internal/volatility"
)

// ValidationOK is recorded when the generated text passed validation.
const ValidationOK = "ok"

// Deliverer hands the final text to the chat transport.
type Deliverer interface {
	Send(ctx context.Context, text string) error
}

// Recorder persists notification records.
type Recorder interface {
	SaveNotification(ctx context.Context, rec *models.NotificationRecord) error
}

// LogDeliverer only logs the text. Used when no chat transport is configured.
type LogDeliverer struct{}

// Send logs the message.
func (LogDeliverer) Send(_ context.Context, text string) error {
	log.Info().Str("text", text).Msg("Notification (log only)")
	return nil
}

// Outcome is the result of one tick.
type Outcome struct {
	TickID      string                     `json:"tick_id"`
	EvaluatedAt time.Time                  `json:"evaluated_at"`
	EventCount  int                        `json:"event_count"`
	State       models.VolatilityState     `json:"state"`
	Decision    gate.Decision              `json:"decision"`
	Record      *models.NotificationRecord `json:"record,omitempty"`
}

// Runner wires the core components. Ticks are serialized.
type Runner struct {
	source    calendar.Source
	engine    *volatility.Engine
	gate      *gate.Gate
	generator *content.Generator
	deliverer Deliverer
	recorder  Recorder
	clock     Clock

	tickMu sync.Mutex

	mu          sync.RWMutex
	current     *Outcome
	lastRedSize int
}

// Config collects the runner dependencies. Deliverer, Recorder and Clock are optional.
type Config struct {
	Source    calendar.Source
	Engine    *volatility.Engine
	Gate      *gate.Gate
	Generator *content.Generator
	Deliverer Deliverer
	Recorder  Recorder
	Clock     Clock
}

// NewRunner creates a runner.
func NewRunner(cfg Config) *Runner {
	if cfg.Gate == nil {
		cfg.Gate = gate.New()
	}
	if cfg.Deliverer == nil {
		cfg.Deliverer = LogDeliverer{}
	}
	if cfg.Clock == nil {
		cfg.Clock = WallClock{}
	}
	if cfg.Generator == nil {
		cfg.Generator = content.NewGenerator(nil, content.DefaultPolicy(), 0)
	}
	return &Runner{
		source:    cfg.Source,
		engine:    cfg.Engine,
		gate:      cfg.Gate,
		generator: cfg.Generator,
		deliverer: cfg.Deliverer,
		recorder:  cfg.Recorder,
		clock:     cfg.Clock,
	}
}

// Tick runs one full cycle. Only a delivery failure is returned as an error;
// the gate has already latched the new state by then.
func (r *Runner) Tick(ctx context.Context) (*Outcome, error) {
	r.tickMu.Lock()
	defer r.tickMu.Unlock()

	now := r.clock.Now()
	out := &Outcome{TickID: uuid.NewString(), EvaluatedAt: now}

	events := r.fetchEvents(ctx)
	out.EventCount = len(events)

	out.State = r.engine.ComputeState(now, events)
	out.Decision = r.gate.ShouldNotify(out.State)

	prevRedSize := r.trackClusterSize(out.State)

	if !out.Decision.Fire {
		log.Debug().
			Str("tick_id", out.TickID).
			Str("state", string(out.State.State)).
			Str("phase", string(out.State.Phase)).
			Str("reason", out.Decision.Reason).
			Msg("No transition")
		r.setCurrent(out)
		return out, nil
	}

	payload := models.NewPayload(out.State, now)
	if out.State.State == models.StateGreen {
		payload.PreviousClusterSize = prevRedSize
	}

	result := r.generator.Generate(ctx, payload)
	rec := newRecord(out, result)

	var deliveryErr error
	if err := r.deliverer.Send(ctx, result.Text); err != nil {
		deliveryErr = fmt.Errorf("delivery failed: %w", err)
		rec.DeliveryError = err.Error()
	} else {
		rec.Delivered = true
	}
	out.Record = rec

	logRecord(out.TickID, rec)

	if r.recorder != nil {
		if err := r.recorder.SaveNotification(ctx, rec); err != nil {
			log.Error().Err(err).Str("notification_id", rec.NotificationID).Msg("Failed to save notification")
		}
	}

	r.setCurrent(out)
	return out, deliveryErr
}

// Current returns the last tick outcome, or nil before the first tick.
func (r *Runner) Current() *Outcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Gate returns the gate the runner writes to.
func (r *Runner) Gate() *gate.Gate {
	return r.gate
}

// Evaluate computes the state at the runner clock without touching the gate.
func (r *Runner) Evaluate(ctx context.Context) volatility.Evaluation {
	return r.engine.Evaluate(r.clock.Now(), r.fetchEvents(ctx))
}

// Generator returns the message synthesizer.
func (r *Runner) Generator() *content.Generator {
	return r.generator
}

// Now returns the runner clock reading.
func (r *Runner) Now() time.Time {
	return r.clock.Now()
}

func (r *Runner) fetchEvents(ctx context.Context) []models.RawEvent {
	if r.source == nil {
		return nil
	}
	events, err := r.source.FetchEvents(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Calendar unavailable, evaluating without events")
		return nil
	}
	return events
}

// trackClusterSize remembers the size of the current RED cluster and returns the previous one.
func (r *Runner) trackClusterSize(s models.VolatilityState) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.lastRedSize
	if s.State == models.StateRed {
		r.lastRedSize = s.ClusterSize
	}
	return prev
}

func (r *Runner) setCurrent(out *Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = out
}

func newRecord(out *Outcome, result models.GenerationResult) *models.NotificationRecord {
	validation := ValidationOK
	if !result.Success {
		validation = result.FailureReason
	}
	return &models.NotificationRecord{
		NotificationID:   uuid.NewString(),
		PreviousState:    out.Decision.Previous.State,
		PreviousPhase:    out.Decision.Previous.Phase,
		CurrentState:     out.State.State,
		CurrentPhase:     out.State.Phase,
		TransitionType:   out.Decision.Transition,
		PrimaryEvent:     out.State.PrimaryEvent,
		Text:             result.Text,
		LLMAttempts:      result.Attempts,
		Repaired:         result.Repaired,
		ValidationResult: validation,
		EvaluatedAt:      out.EvaluatedAt,
		CreatedAt:        time.Now(),
	}
}

func logRecord(tickID string, rec *models.NotificationRecord) {
	evt := log.Info()
	if !rec.Delivered {
		evt = log.Error().Str("delivery_error", rec.DeliveryError)
	}
	evt.
		Str("tick_id", tickID).
		Str("notification_id", rec.NotificationID).
		Str("previous_state", string(rec.PreviousState)).
		Str("previous_phase", string(rec.PreviousPhase)).
		Str("current_state", string(rec.CurrentState)).
		Str("current_phase", string(rec.CurrentPhase)).
		Str("transition_type", string(rec.TransitionType)).
		Int("llm_attempts", rec.LLMAttempts).
		Bool("repaired", rec.Repaired).
		Str("validation_result", rec.ValidationResult).
		Bool("delivered", rec.Delivered).
		Msg("Volatility notification")
}
