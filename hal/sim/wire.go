package sim

import "github.com/daedaluz/softuart"

// Wire models the physical trace between a compare-A output pin and a
// capture input pin. A self-loopback bench (NewLoopback) attaches a
// Wire's single listener to the very Driver whose pin it watches, but
// the type stays separate from Driver so a future two-instance bench —
// one Driver's TX wired to a different Driver's RX — only needs a
// second Attach, not a different wiring mechanism.
type Wire struct {
	listener *Driver
}

// NewWire creates an unattached wire.
func NewWire() *Wire {
	return &Wire{}
}

// Attach connects d's capture input to this wire's driven pin.
func (w *Wire) Attach(d *Driver) {
	w.listener = d
}

// transition is called by whichever Driver drives this wire's pin, each
// time that pin's level changes. Both edge directions are reported; it
// is the listener's ConfigureCaptureEdge state, not this wire, that
// decides which ones end up mattering.
func (w *Wire) transition(tick uint16, level bool) {
	d := w.listener
	if d == nil {
		return
	}
	d.mu.Lock()
	armed := d.captureEdge
	d.mu.Unlock()
	if (armed == softuart.EdgeRising) != level {
		return
	}
	d.deliverCapture(tick)
}
