package pipeline

import (
	"time"
)

// Clock supplies the evaluation instant.
type Clock interface {
	Now() time.Time
}

// WallClock reads the system clock.
type WallClock struct{}

// Now returns the current UTC time.
func (WallClock) Now() time.Time {
	return time.Now().UTC()
}

// SimulationClock starts at a fixed instant and advances with wall time.
type SimulationClock struct {
	start  time.Time
	origin time.Time
	wall   func() time.Time
}

// NewSimulationClock returns a clock that reads start at construction time.
func NewSimulationClock(start time.Time) *SimulationClock {
	return newSimulationClock(start, time.Now)
}

func newSimulationClock(start time.Time, wall func() time.Time) *SimulationClock {
	return &SimulationClock{start: start.UTC(), origin: wall(), wall: wall}
}

// Now returns start plus the wall time elapsed since construction.
func (c *SimulationClock) Now() time.Time {
	return c.start.Add(c.wall().Sub(c.origin))
}

// FixedClock always returns the same instant.
type FixedClock time.Time

// Now returns the fixed instant.
func (c FixedClock) Now() time.Time {
	return time.Time(c)
}
