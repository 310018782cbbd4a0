// Package engine drives the city simulation: it owns every subsystem, runs
// them in a fixed order each tick and paces ticks against the wall clock.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Stepper advances a simulation by one tick of dt time units.
type Stepper interface {
	Step(dt float64) Snapshot
}

// Engine drives a simulation forward in real time.
type Engine struct {
	sim      Stepper
	dt       float64
	interval time.Duration // Base tick interval at speed 1

	mu    sync.Mutex
	speed float64 // 1.0 = real-time, 0 = paused
	tick  uint64

	// Callbacks, populated during setup. OnDay fires after a step that ran
	// the daily updates.
	OnTick func(snap Snapshot)
	OnDay  func(snap Snapshot)
}

// NewEngine creates an engine stepping sim by dt every interval.
func NewEngine(sim Stepper, dt float64, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = time.Second
	}
	return &Engine{sim: sim, dt: dt, interval: interval, speed: 1}
}

// SetSpeed changes the speed multiplier. Zero pauses.
func (e *Engine) SetSpeed(speed float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.speed = math.Max(0, speed)
}

// Speed returns the speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// Tick returns the number of ticks run.
func (e *Engine) Tick() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tick
}

// Run steps the simulation until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	slog.Info("simulation engine started", "tick", e.Tick(), "speed", e.Speed())
	defer func() { slog.Info("simulation engine stopped", "tick", e.Tick()) }()

	for {
		speed := e.Speed()
		if speed <= 0 {
			// Paused: sleep briefly and check again.
			if !sleep(ctx, 100*time.Millisecond) {
				return
			}
			continue
		}

		start := time.Now()
		e.Step()

		elapsed := time.Since(start)
		target := time.Duration(float64(e.interval) / speed)
		if elapsed < target && !sleep(ctx, target-elapsed) {
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Step advances the simulation by one tick and fires the callbacks.
func (e *Engine) Step() Snapshot {
	snap := e.sim.Step(e.dt)

	e.mu.Lock()
	e.tick++
	e.mu.Unlock()

	if e.OnTick != nil {
		e.OnTick(snap)
	}
	if snap.DayEnded && e.OnDay != nil {
		e.OnDay(snap)
	}
	return snap
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// SimTime returns a human-readable game time from minutes since start.
func SimTime(minutes float64) string {
	total := int64(minutes)
	if total < 0 {
		total = 0
	}
	m := total % 60
	h := (total / 60) % 24
	day := total/1440 + 1
	return fmt.Sprintf("Day %d, %d:%02d", day, h, m)
}
