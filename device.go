// Package softuart implements a timer-driven software UART: a pair of
// interrupt-style state machines (transmit and receive) that bookkeep
// framing between events from a free-running timer's input-capture and
// output-compare units, instead of a dedicated hardware UART.
//
// The core in this file and in timing.go, format.go, ring.go, tx.go,
// and rx.go is hardware-independent; it talks to the timer only through
// the TimerDriver interface in hal.go. Concrete drivers — simulated or
// real — live in the hal/ subpackages.
package softuart

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
)

// spinHint is the sleep used by the busy-wait loops in WriteByte and
// FlushOutput. Spec §5 allows a hosted target to "insert a
// platform-specific hint (e.g. a short sleep) inside the spin" as long
// as it doesn't relinquish ownership of the instance; this keeps a
// blocked goroutine from pegging a core while leaving the caller's
// observable behavior — block until space/idle, nothing else — intact.
var spinHint = func() { time.Sleep(50 * time.Microsecond) }

// Device is one software UART instance: the shared state from spec §3,
// owned by exactly one TimerDriver between Begin and End (spec §9's
// single-instance constraint).
type Device struct {
	mu sync.Mutex

	driver  TimerDriver
	logger  *log.Logger
	running bool

	format         Format
	ticksPerBit    uint16
	rxStopTicksVal uint16

	rxState  uint8
	rxByte   uint8
	rxBit    uint8
	rxTarget uint16
	rxRing   *ringBuffer

	txState  uint8
	txByte   uint8
	txBit    uint8
	txParity uint8
	txRing   *ringBuffer

	timingError atomic.Bool

	stopCh chan struct{}
	doneCh chan struct{}
}

const (
	rxBufferSize = 80
	txBufferSize = 68
)

// Option configures a Device at construction time.
type Option func(*Device)

// WithLogger attaches a structured logger for the debug-level events
// the core emits off the hot path: RX overflow, RX parity drop, and
// Begin/End transitions. A nil logger (the default) disables logging.
func WithLogger(l *log.Logger) Option {
	return func(d *Device) { d.logger = l }
}

// New creates an unconfigured Device. Call Begin before using it.
func New(opts ...Option) *Device {
	d := &Device{
		rxRing: newRingBuffer(rxBufferSize),
		txRing: newRingBuffer(txBufferSize),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

func (d *Device) requireRunning() error {
	d.mu.Lock()
	running := d.running
	d.mu.Unlock()
	if !running {
		return ErrNotConfigured
	}
	return nil
}

// Begin configures the device for the given bit period (in timer input
// clocks) and frame format, and starts servicing driver events. It must
// not be called concurrently with any other Device method (spec §5).
func (d *Device) Begin(driver TimerDriver, bitCycles uint32, format Format) error {
	ticksPerBit, prescale, err := configureTiming(bitCycles)
	if err != nil {
		return wrapErr("begin", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		d.stopDispatcherLocked()
	}

	if err := driver.ConfigureTimer(prescale); err != nil {
		return wrapErr("configure timer", err)
	}

	d.driver = driver
	d.format = format.resolve()
	d.ticksPerBit = ticksPerBit
	d.rxStopTicksVal = rxStopTicks(ticksPerBit)

	d.rxState, d.rxByte, d.rxBit, d.rxTarget = 0, 0, 0, 0
	d.rxRing = newRingBuffer(rxBufferSize)
	d.txState, d.txByte, d.txBit, d.txParity = 0, 0, 0, 0
	d.txRing = newRingBuffer(txBufferSize)

	driver.ConfigureCaptureEdge(EdgeFalling)
	driver.ConfigureMatchA(MatchSet) // idle HIGH
	driver.EnableCompareA(false)
	driver.EnableCompareB(false)
	driver.EnableCapture(true)

	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})
	d.running = true
	go d.dispatch(driver, d.stopCh, d.doneCh)

	if d.logger != nil {
		d.logger.Debug("begin", "ticksPerBit", ticksPerBit, "format", d.format.String())
	}
	return nil
}

// dispatch is the single goroutine that serializes capture/compare-A/
// compare-B events for this Device, standing in for "ISRs do not
// preempt one another" (spec §5 / SPEC_FULL.md §3).
func (d *Device) dispatch(driver TimerDriver, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	events := driver.Events()
	for {
		select {
		case <-stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d.mu.Lock()
			switch ev.Source {
			case EventCapture:
				d.onCapture(driver, ev.Tick)
			case EventCompareA:
				d.onCompareA(driver, ev.Tick)
			case EventCompareB:
				d.onCompareB(driver)
			}
			d.mu.Unlock()
		}
	}
}

// stopDispatcherLocked stops the dispatch goroutine. Caller holds d.mu;
// the dispatcher needs that mutex to finish its current event, so it is
// released for the wait and re-acquired here before returning, leaving
// the caller holding it again.
func (d *Device) stopDispatcherLocked() {
	close(d.stopCh)
	done := d.doneCh
	d.mu.Unlock()
	<-done
	d.mu.Lock()
}

// End disables the timer interrupts and drains the input ring. It must
// not be called concurrently with other Device methods (spec §5).
func (d *Device) End() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return ErrClosed
	}
	driver := d.driver
	d.stopDispatcherLocked()
	driver.EnableCompareB(false)
	driver.EnableCapture(false)
	d.rxRing.flush()
	driver.EnableCompareA(false)
	d.running = false
	d.mu.Unlock()

	if d.logger != nil {
		d.logger.Debug("end")
	}
	return nil
}

// Read dequeues the oldest received byte, or reports false if the RX
// ring is empty.
func (d *Device) Read() (byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rxRing.dequeue()
}

// Peek returns the byte in the RX ring's tail slot without dequeuing it,
// or reports false if the ring is empty. Because the ring writes at the
// new head and Read returns the slot after tail, that is the byte the last
// Read returned (zero before any Read), not the byte the next Read will
// return.
func (d *Device) Peek() (byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rxRing.peek()
}

// Available returns the number of bytes waiting in the RX ring.
func (d *Device) Available() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rxRing.available()
}

// FlushInput discards all buffered received bytes.
func (d *Device) FlushInput() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rxRing.flush()
}

// TimingError reports the reserved, monotonic timing-error flag (spec
// §3/§6/§9). No ISR in this implementation sets it yet; the hook is
// carried forward for a future timing-slip detector.
func (d *Device) TimingError() bool {
	return d.timingError.Load()
}
