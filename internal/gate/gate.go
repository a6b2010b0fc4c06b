// Package gate decides whether a computed volatility state warrants a notification.
package gate

import (
	"sync"

	"github.com/leeaandrob/volwatch/internal/models"
)

// ReasonDuplicate is reported when the (state, phase) pair did not change.
const ReasonDuplicate = "duplicate_state_phase"

// Latch is the last (state, phase) pair a notification fired for.
type Latch struct {
	State models.State `json:"state,omitempty"`
	Phase models.Phase `json:"phase,omitempty"`
	Set   bool         `json:"set"`
}

// Decision is the outcome of one ShouldNotify call.
type Decision struct {
	Fire       bool                  `json:"fire"`
	Reason     string                `json:"reason,omitempty"`
	Transition models.TransitionType `json:"transition"`
	Previous   Latch                 `json:"previous"`
}

// Gate owns the process-wide latch. Compare and update happen under one lock,
// so concurrent callers cannot both fire for the same transition.
type Gate struct {
	mu    sync.Mutex
	latch Latch
}

// New creates a gate with an unset latch.
func New() *Gate {
	return &Gate{}
}

// ShouldNotify compares s against the latch and, when it changed, stores it before returning.
// The update is optimistic: a later delivery failure does not roll it back.
func (g *Gate) ShouldNotify(s models.VolatilityState) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	prev := g.latch
	d := Decision{Previous: prev}

	switch {
	case !prev.Set:
		d.Transition = models.TransitionBootstrap
	case prev.State != s.State:
		d.Transition = models.TransitionStateChange
	case prev.Phase != s.Phase:
		d.Transition = models.TransitionPhaseChange
	default:
		d.Transition = models.TransitionNone
		d.Reason = ReasonDuplicate
		return d
	}

	d.Fire = true
	g.latch = Latch{State: s.State, Phase: s.Phase, Set: true}
	return d
}

// Snapshot returns the current latch.
func (g *Gate) Snapshot() Latch {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.latch
}

// Reset clears the latch so the next evaluation bootstraps again.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.latch = Latch{}
}
