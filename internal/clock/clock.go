// Package clock supplies the logical tick every ledger operation is stamped
// with. Rate limiting and budget rollover count in ticks, not wall time.
package clock

import (
	"sync"
	"time"
)

// DefaultTickSeconds is the wall-time length of one logical tick.
const DefaultTickSeconds = 10

// Clock yields the current logical tick. Implementations must be monotone:
// successive calls never go backwards.
type Clock interface {
	Now() uint64
}

// System derives the tick from unix time divided by a fixed interval, so
// heights stay monotone across process restarts without persisting a counter.
type System struct {
	interval uint64
}

// NewSystem creates a system clock with the given tick length in seconds.
// Non-positive values fall back to DefaultTickSeconds.
func NewSystem(tickSeconds int) *System {
	if tickSeconds <= 0 {
		tickSeconds = DefaultTickSeconds
	}
	return &System{interval: uint64(tickSeconds)}
}

// Now returns the current tick.
func (c *System) Now() uint64 {
	return uint64(time.Now().Unix()) / c.interval
}

// Manual is a hand-advanced clock for tests.
type Manual struct {
	mu     sync.Mutex
	height uint64
}

// NewManual creates a manual clock starting at the given tick.
func NewManual(start uint64) *Manual {
	return &Manual{height: start}
}

// Now returns the current tick.
func (c *Manual) Now() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height
}

// Set moves the clock to the given tick.
func (c *Manual) Set(height uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height = height
}

// Advance moves the clock forward by delta ticks.
func (c *Manual) Advance(delta uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height += delta
}
