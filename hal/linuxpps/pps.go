// Package linuxpps implements the capture half of softuart.TimerDriver
// against a Linux PPS (pulse-per-second) source, /dev/ppsN, using the
// same ioctl primitive the teacher package used for tty line discipline
// configuration — github.com/daedaluz/goioctl — plus its companion
// github.com/daedaluz/fdev/poll for the blocking wait.
//
// PPS hardware only ever reports edges on one fixed source line; there
// is no matching precision output to drive a TX pin from the same
// peripheral, so a linuxpps.Driver only ever answers the capture half of
// TimerDriver. Pair it with another driver's compare channels (for
// instance linuxgpio's) for a full-duplex instance; see DESIGN.md.
package linuxpps

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/daedaluz/fdev/poll"
	ioctl "github.com/daedaluz/goioctl"

	"github.com/daedaluz/softuart"
)

// ppsKTime mirrors struct pps_ktime from linux/pps.h.
type ppsKTime struct {
	Sec   int64
	NSec  int32
	Flags uint32
}

// ppsFData mirrors struct pps_fdata from linux/pps.h: the assert
// timestamp plus a fetch timeout, both in the above format.
type ppsFData struct {
	Info    ppsKTime
	Timeout ppsKTime
}

// ppsFetch is PPS_FETCH, _IOWR('p', 0xa4, struct pps_fdata). goioctl only
// exposes the read-only and write-only request-number builders (IOR,
// IOW; see the teacher's ioctl_linux.go), so the read-write variant is
// built the same way the kernel's _IOWR macro does: the read and write
// direction bits both set.
var ppsFetch = iocRW('p', 0xa4, unsafe.Sizeof(ppsFData{}))

func iocRW(typ byte, nr, size uintptr) uintptr {
	const iocRead = 2 << 30
	const iocWrite = 1 << 30
	return iocRead | iocWrite | (size << 16) | (uintptr(typ) << 8) | nr
}

// Driver is a capture-only TimerDriver backed by a PPS source device.
type Driver struct {
	f      *os.File
	events chan softuart.Event
	stop   chan struct{}

	captureEnabled bool
	captureEdge    softuart.Edge
	tickDuration   time.Duration
	start          time.Time
}

// Open opens devicePath (typically "/dev/pps0"), starts the fetch loop
// on its own goroutine, and starts the virtual tick count from this
// call. tickDuration must match whatever unit Device.Begin's bitCycles
// argument is expressed in.
func Open(devicePath string, tickDuration time.Duration) (*Driver, error) {
	f, err := os.OpenFile(devicePath, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", devicePath, err)
	}
	d := &Driver{
		f:            f,
		events:       make(chan softuart.Event, 64),
		stop:         make(chan struct{}),
		tickDuration: tickDuration,
		start:        time.Now(),
	}
	go d.fetchLoop()
	return d, nil
}

// Close stops the fetch loop and releases the device handle.
func (d *Driver) Close() error {
	close(d.stop)
	return d.f.Close()
}

func (d *Driver) Events() <-chan softuart.Event { return d.events }

func (d *Driver) tick() uint16 { return uint16(time.Since(d.start) / d.tickDuration) }

func (d *Driver) ConfigureTimer(p softuart.Prescale) error { return nil }

func (d *Driver) EnableCapture(enable bool) { d.captureEnabled = enable }

// EnableCompareA, EnableCompareB, ConfigureMatchA, SetCompareA, and
// SetCompareB are no-ops: this driver has no output-compare hardware to
// offer. A Device driven solely by linuxpps can receive but never
// transmit; see the package doc comment.
func (d *Driver) EnableCompareA(enable bool)                  {}
func (d *Driver) EnableCompareB(enable bool)                  {}
func (d *Driver) ConfigureMatchA(effect softuart.MatchEffect) {}
func (d *Driver) SetCompareA(tick uint16)                     {}
func (d *Driver) SetCompareB(tick uint16)                     {}
func (d *Driver) ConfigureCaptureEdge(e softuart.Edge)        { d.captureEdge = e }
func (d *Driver) ReadCounter() uint16                         { return d.tick() }

// fetchLoop waits for the PPS source to be readable (via fdev/poll, the
// same call the teacher's Port.readTimeout used, so Close can interrupt
// a blocked fetch within the poll timeout) and then issues PPS_FETCH,
// reporting every assert edge as a capture event. The PPS subsystem only
// reports one edge polarity per source; which polarity that is, is a
// property of the wiring, not something this driver decides, so every
// fetch that arrives while capture is armed is delivered regardless of
// captureEdge.
func (d *Driver) fetchLoop() {
	fd := uintptr(d.f.Fd())
	for {
		select {
		case <-d.stop:
			return
		default:
		}

		if err := poll.WaitInput(int(d.f.Fd()), 250*time.Millisecond); err != nil {
			continue
		}

		var data ppsFData
		if err := ioctl.Ioctl(fd, ppsFetch, uintptr(unsafe.Pointer(&data))); err != nil {
			continue
		}
		if !d.captureEnabled {
			continue
		}
		d.events <- softuart.Event{Source: softuart.EventCapture, Tick: d.tick()}
	}
}
