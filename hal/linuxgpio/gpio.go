// Package linuxgpio implements softuart.TimerDriver on top of a Linux
// GPIO character device via go-gpiocdev. Generic GPIO lines have no
// input-capture or output-compare silicon, so this driver reconstructs
// both out of edge-triggered line-event callbacks and the swtimer
// software scheduler: the real hardware-abstraction tradeoff that makes
// timer-driven software UART worth having in the first place — trading
// one real peripheral's worth of precision for the ability to run on
// any two GPIO pins.
package linuxgpio

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/daedaluz/softuart"
	"github.com/daedaluz/softuart/internal/swtimer"
)

// Driver drives one RX and one TX line on a single GPIO chip. Its
// configuration fields are touched both by the foreground goroutine
// (through the TimerDriver methods) and by go-gpiocdev's own callback
// goroutine (handleLineEvent), so they sit behind mu.
type Driver struct {
	chip *gpiocdev.Chip
	rx   *gpiocdev.Line
	tx   *gpiocdev.Line

	clock *swtimer.Clock

	mu              sync.Mutex
	captureEnabled  bool
	captureEdge     softuart.Edge
	compareAEnabled bool
	matchAEffect    softuart.MatchEffect
	compareBEnabled bool

	compareADL swtimer.Deadline
	compareBDL swtimer.Deadline

	events chan softuart.Event
}

// Open requests rxOffset as a pulled-up, both-edges input and txOffset
// as an output held HIGH (the core's required idle level), and returns a
// Driver ready to be handed to Device.Begin.
//
// tickDuration fixes how much wall-clock time Device.Begin's bitCycles
// argument counts in; there is no hardware prescaler to program, so
// unlike a real timer peripheral this has to be decided up front rather
// than derived from Begin's arguments.
func Open(chipName string, rxOffset, txOffset int, tickDuration time.Duration) (*Driver, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open chip %s: %w", chipName, err)
	}

	d := &Driver{
		chip:   chip,
		clock:  swtimer.New(tickDuration),
		events: make(chan softuart.Event, 256),
	}

	rx, err := chip.RequestLine(rxOffset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(d.handleLineEvent))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request rx line %d: %w", rxOffset, err)
	}

	tx, err := chip.RequestLine(txOffset, gpiocdev.AsOutput(1))
	if err != nil {
		rx.Close()
		chip.Close()
		return nil, fmt.Errorf("request tx line %d: %w", txOffset, err)
	}

	d.rx = rx
	d.tx = tx
	return d, nil
}

// Close releases both GPIO lines and the chip handle.
func (d *Driver) Close() error {
	d.compareADL.Cancel()
	d.compareBDL.Cancel()
	rxErr := d.rx.Close()
	txErr := d.tx.Close()
	chipErr := d.chip.Close()
	if rxErr != nil {
		return rxErr
	}
	if txErr != nil {
		return txErr
	}
	return chipErr
}

func (d *Driver) Events() <-chan softuart.Event { return d.events }

// ConfigureTimer has no register to program on a GPIO chardev: the
// virtual tick rate is fixed at Open time instead, since there is no
// hardware prescaler behind it to reprogram.
func (d *Driver) ConfigureTimer(p softuart.Prescale) error {
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

func (d *Driver) ReadCounter() uint16 { return d.clock.Now() }

func (d *Driver) SetCompareA(tick uint16) {
	d.mu.Lock()
	effect := d.matchAEffect
	d.mu.Unlock()
	d.compareADL.Schedule(d.clock, tick, func() { d.fireCompareA(effect, tick) })
}

func (d *Driver) SetCompareB(tick uint16) {
	d.compareBDL.Schedule(d.clock, tick, func() { d.fireCompareB(tick) })
}

func (d *Driver) fireCompareA(effect softuart.MatchEffect, tick uint16) {
	d.mu.Lock()
	enabled := d.compareAEnabled
	d.mu.Unlock()
	if !enabled {
		return
	}
	switch effect {
	case softuart.MatchSet:
		_ = d.tx.SetValue(1)
	case softuart.MatchClear:
		_ = d.tx.SetValue(0)
	}
	d.events <- softuart.Event{Source: softuart.EventCompareA, Tick: tick}
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

// handleLineEvent is go-gpiocdev's callback for every edge on the RX
// line. It runs on its own goroutine per the library's contract.
func (d *Driver) handleLineEvent(evt gpiocdev.LineEvent) {
	d.mu.Lock()
	enabled, edge := d.captureEnabled, d.captureEdge
	d.mu.Unlock()
	if !enabled {
		return
	}
	rising := evt.Type == gpiocdev.LineEventRisingEdge
	if edge == softuart.EdgeRising && !rising {
		return
	}
	if edge == softuart.EdgeFalling && rising {
		return
	}
	d.events <- softuart.Event{Source: softuart.EventCapture, Tick: d.clock.Now()}
}
