package clock

import (
	"sync/atomic"
	"time"
)

// Source supplies the current tick (block height or epoch counter). Engines
// read it once at the start of every operation and never consult the wall
// clock directly.
type Source interface {
	Now() uint64
}

// Wall derives ticks from wall-clock time: one tick per Interval since Genesis.
type Wall struct {
	Genesis  time.Time
	Interval time.Duration
	now      func() time.Time
}

// NewWall builds a wall-clock tick source.
func NewWall(genesis time.Time, interval time.Duration) *Wall {
	return &Wall{Genesis: genesis, Interval: interval, now: time.Now}
}

// Now returns the number of whole intervals elapsed since Genesis. Times
// before Genesis map to tick 0.
func (w *Wall) Now() uint64 {
	if w.Interval <= 0 {
		return 0
	}
	elapsed := w.now().Sub(w.Genesis)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / w.Interval)
}

// Manual is a tick source advanced explicitly. Safe for concurrent use.
type Manual struct {
	tick atomic.Uint64
}

// NewManual returns a manual source starting at tick.
func NewManual(tick uint64) *Manual {
	m := &Manual{}
	m.tick.Store(tick)
	return m
}

func (m *Manual) Now() uint64 { return m.tick.Load() }

// Set moves the source to tick.
func (m *Manual) Set(tick uint64) { m.tick.Store(tick) }

// Advance moves the source forward by n ticks and returns the new tick.
func (m *Manual) Advance(n uint64) uint64 { return m.tick.Add(n) }
