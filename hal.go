package softuart

// Edge selects which transition the capture unit latches the timer on.
type Edge uint8

const (
	EdgeFalling Edge = iota
	EdgeRising
)

// MatchEffect selects what the output-compare unit does to its pin when
// its comparand is hit.
type MatchEffect uint8

const (
	MatchNone MatchEffect = iota
	MatchSet
	MatchClear
)

// EventSource identifies which of the timer's three interrupt sources
// produced an Event.
type EventSource uint8

const (
	EventCapture EventSource = iota
	EventCompareA
	EventCompareB
)

// Event is one timer interrupt, as delivered by a TimerDriver to the
// Device's dispatcher goroutine. Tick is the counter value relevant to
// the source: the capture register for EventCapture, and the programmed
// compare value that just matched for EventCompareA/EventCompareB (not
// the counter as read when the event is handled). The transmit state
// machine chains its next edge from this value.
type Event struct {
	Source EventSource
	Tick   uint16
}

// TimerDriver is the hardware-abstraction contract the core consumes.
// Everything behind it — prescaler programming, pin muxing, the actual
// interrupt controller — is out of scope for this module (spec §1); it
// is implemented per target in the hal/ subpackages.
//
// Implementations must deliver events on the channel returned by Events
// in the order their underlying interrupts would fire, and must not
// deliver two events concurrently: the Device's dispatcher assumes the
// "ISRs do not preempt one another" property from spec §5 holds for
// whatever arrives on that channel.
type TimerDriver interface {
	// ConfigureTimer programs the free-running counter's prescaler.
	ConfigureTimer(p Prescale) error

	// EnableCapture/EnableCompareA/EnableCompareB arm or disarm the
	// corresponding interrupt source.
	EnableCapture(enable bool)
	EnableCompareA(enable bool)
	EnableCompareB(enable bool)

	// ConfigureCaptureEdge selects which transition the next capture
	// interrupt fires on.
	ConfigureCaptureEdge(e Edge)

	// ConfigureMatchA selects what compare-A does to its pin on its next
	// match: force it HIGH, force it LOW, or leave it alone.
	ConfigureMatchA(effect MatchEffect)

	// SetCompareA/SetCompareB program the tick at which the respective
	// compare unit next matches.
	SetCompareA(tick uint16)
	SetCompareB(tick uint16)

	// ReadCounter returns the current free-running counter value.
	ReadCounter() uint16

	// Events returns the channel on which capture/compare-A/compare-B
	// interrupts are delivered. Called once, during Begin.
	Events() <-chan Event
}
