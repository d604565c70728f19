// Package swtimer provides a software stand-in for the free-running
// 16-bit counter and output-compare channels a real timer peripheral
// exposes, for HAL drivers built on hardware that has no such
// peripheral (a generic GPIO chardev, or an in-process simulation).
//
// It derives "ticks" from elapsed wall-clock time rather than running a
// background goroutine that advances a counter, the same way reading a
// hardware counter register just returns whatever value the silicon
// currently holds.
package swtimer

import (
	"sync"
	"time"
)

// Clock is a virtual free-running counter. The zero value is not usable;
// construct one with New.
type Clock struct {
	start        time.Time
	tickDuration time.Duration
}

// New creates a Clock where one tick equals tickDuration of wall-clock
// time, starting now.
func New(tickDuration time.Duration) *Clock {
	return &Clock{start: time.Now(), tickDuration: tickDuration}
}

// Now returns the current tick count, truncated to 16 bits the same way
// a real hardware counter wraps.
func (c *Clock) Now() uint16 {
	return uint16(time.Since(c.start) / c.tickDuration)
}

// DelayUntil returns how long to wait, from now, until the counter would
// read target, treating target as "ahead of now" under signed 16-bit
// wraparound — the same convention the receive bit-walk uses to decide
// whether a deadline has passed.
func (c *Clock) DelayUntil(target uint16) time.Duration {
	delta := int16(target - c.Now())
	if delta < 0 {
		delta = 0
	}
	return time.Duration(delta) * c.tickDuration
}

// Deadline is a single cancelable, reschedulable compare-match timer: the
// software equivalent of one output-compare channel's "next match" state.
type Deadline struct {
	mu    sync.Mutex
	timer *time.Timer
}

// Schedule arms the deadline to call fire once the clock would reach
// target, canceling whatever match was previously pending on this
// channel. fire runs on its own goroutine, same as a real ISR would run
// on the interrupt controller's stack.
func (d *Deadline) Schedule(clock *Clock, target uint16, fire func()) {
	delay := clock.DelayUntil(target)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(delay, fire)
}

// Cancel disarms the deadline; a previously scheduled fire that already
// fired is unaffected.
func (d *Deadline) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
}
