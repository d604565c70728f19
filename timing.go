package softuart

// Prescale selects the timer's input clock divider.
type Prescale uint8

const (
	Prescale1 Prescale = 1
	Prescale8 Prescale = 8
)

// timerWrapGuard is the 7085-tick bound from spec §4.1: one full 16-bit
// timer wrap minus guard room, chosen so a single bit period never spans
// more than one wrap and the signed 16-bit comparisons in the receive
// walk (rx.go) stay meaningful.
const timerWrapGuard = 7085

// configureTiming converts a requested bit period, expressed in timer
// input clocks, into a per-bit tick count and the prescale needed to
// represent it in 16 bits. It returns ErrBaudTooLow if no prescale
// setting can do so — see spec §4.1 and the Open Question resolution in
// SPEC_FULL.md §4.1.
func configureTiming(bitCycles uint32) (ticksPerBit uint16, prescale Prescale, err error) {
	if bitCycles < timerWrapGuard {
		return uint16(bitCycles), Prescale1, nil
	}
	divided := bitCycles / 8
	if divided < timerWrapGuard {
		return uint16(divided), Prescale8, nil
	}
	return 0, 0, ErrBaudTooLow
}

// rxStopTicks is the compare-B fallback deadline, measured from the start
// edge: 37/4 = 9¼ bit periods. For an 8-data-bit frame without parity
// that is ¾ bit past the last data bit's center and a quarter bit into
// the stop bit.
func rxStopTicks(ticksPerBit uint16) uint16 {
	return uint16(uint32(ticksPerBit) * 37 / 4)
}
