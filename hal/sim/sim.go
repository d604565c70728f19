// Package sim provides a software TimerDriver that never touches real
// hardware: a virtual free-running counter plus a scheduler for the two
// output-compare channels, with an optional loopback Wire coupling the
// compare-A pin straight back into the capture path.
//
// It plays the same role in this module's test suite that OpenPTY plays
// in the teacher's goserial package (pty_linux.go): a same-process
// stand-in for two physically wired ports, here reduced to a single
// timer peripheral whose transmit pin is wired to its own receive pin.
package sim

import (
	"sync"
	"time"

	"github.com/daedaluz/softuart"
	"github.com/daedaluz/softuart/internal/swtimer"
)

// TickDuration is how much wall-clock time one virtual timer tick takes.
// It is a package variable (not a per-Driver option) so tests can dial
// it down globally when they need the whole suite to run faster.
var TickDuration = time.Microsecond

// Driver is a softuart.TimerDriver backed by a virtual counter derived
// from wall-clock time, with scheduled compare matches delivered through
// swtimer. Capture edges are produced by a Wire, not by Driver itself —
// build a self-loopback with NewLoopback.
type Driver struct {
	mu sync.Mutex

	clock    *swtimer.Clock
	prescale softuart.Prescale

	captureEnabled bool
	captureEdge    softuart.Edge

	compareAEnabled bool
	matchAEffect    softuart.MatchEffect
	compareADL      swtimer.Deadline

	compareBEnabled bool
	compareBDL      swtimer.Deadline

	pin bool // current compare-A pin level; true = HIGH

	wire   *Wire
	events chan softuart.Event
}

// New creates a driver with no loopback wiring; Events() will only ever
// report EventCompareA/EventCompareB unless a Wire is attached with
// Attach.
func New() *Driver {
	return &Driver{
		clock:  swtimer.New(TickDuration),
		pin:    true, // idle HIGH
		events: make(chan softuart.Event, 256),
	}
}

// NewLoopback creates a driver whose compare-A pin is wired directly to
// its own capture input — the single-instance self-test bench the
// scenarios in spec §8 describe.
func NewLoopback() *Driver {
	d := New()
	w := NewWire()
	w.Attach(d)
	d.wire = w
	return d
}

// Events implements softuart.TimerDriver.
func (d *Driver) Events() <-chan softuart.Event { return d.events }

func (d *Driver) ConfigureTimer(p softuart.Prescale) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.prescale = p
	return nil
}

func (d *Driver) EnableCapture(enable bool) {
	d.mu.Lock()
	d.captureEnabled = enable
	d.mu.Unlock()
}

func (d *Driver) EnableCompareA(enable bool) {
	d.mu.Lock()
	d.compareAEnabled = enable
	d.mu.Unlock()
	if !enable {
		d.compareADL.Cancel()
	}
}

func (d *Driver) EnableCompareB(enable bool) {
	d.mu.Lock()
	d.compareBEnabled = enable
	d.mu.Unlock()
	if !enable {
		d.compareBDL.Cancel()
	}
}

func (d *Driver) ConfigureCaptureEdge(e softuart.Edge) {
	d.mu.Lock()
	d.captureEdge = e
	d.mu.Unlock()
}

func (d *Driver) ConfigureMatchA(effect softuart.MatchEffect) {
	d.mu.Lock()
	d.matchAEffect = effect
	d.mu.Unlock()
}

// ReadCounter returns the current virtual tick count, derived from
// elapsed wall-clock time — there is no background goroutine advancing
// it, matching a real free-running hardware counter that just *is*
// whatever value you read at the moment you read it.
func (d *Driver) ReadCounter() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clock.Now()
}

func (d *Driver) SetCompareA(tick uint16) {
	d.mu.Lock()
	clock := d.clock
	effect := d.matchAEffect
	d.mu.Unlock()
	d.compareADL.Schedule(clock, tick, func() { d.fireCompareA(effect, tick) })
}

func (d *Driver) SetCompareB(tick uint16) {
	d.mu.Lock()
	clock := d.clock
	d.mu.Unlock()
	d.compareBDL.Schedule(clock, tick, func() { d.fireCompareB(tick) })
}

func (d *Driver) fireCompareA(effect softuart.MatchEffect, tick uint16) {
	d.mu.Lock()
	if !d.compareAEnabled {
		d.mu.Unlock()
		return
	}
	prevPin := d.pin
	switch effect {
	case softuart.MatchSet:
		d.pin = true
	case softuart.MatchClear:
		d.pin = false
	}
	newPin := d.pin
	wire := d.wire
	d.mu.Unlock()

	d.events <- softuart.Event{Source: softuart.EventCompareA, Tick: tick}
	if wire != nil && newPin != prevPin {
		wire.transition(tick, newPin)
	}
}

func (d *Driver) fireCompareB(tick uint16) {
	d.mu.Lock()
	enabled := d.compareBEnabled
	d.mu.Unlock()
	if !enabled {
		return
	}
	d.events <- softuart.Event{Source: softuart.EventCompareB, Tick: tick}
}

// deliverCapture is called by a Wire when the pin it watches makes the
// transition this driver's ConfigureCaptureEdge currently selects, and
// reports it as a capture if capture is armed. Transitions in the other
// direction are dropped by the Wire, as real capture hardware ignores
// the edge it is not configured for.
func (d *Driver) deliverCapture(tick uint16) {
	d.mu.Lock()
	enabled := d.captureEnabled
	d.mu.Unlock()
	if !enabled {
		return
	}
	d.events <- softuart.Event{Source: softuart.EventCapture, Tick: tick}
}

// PinLevel reports the current electrical level of the compare-A output
// pin — used by tests to assert the idle-HIGH invariant (spec §8
// property 5) without a real scope.
func (d *Driver) PinLevel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pin
}
