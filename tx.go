package softuart

// txParityBit returns the parity bit value (0 or 1) to transmit after the
// data bits of b, given the configured parity discipline. It mirrors the
// boolean the original ISR computes as
// `parity_even_bit(b) == (parity==2)` — "does the even-parity bit match
// what this format actually wants" — but expressed as a plain 0/1 value
// instead of a C boolean, which is what both the tx and rx sides need to
// compare against bit-shift-register levels.
func txParityBit(p Parity, b byte) byte {
	even := ParityEvenBit(b)
	if p == ParityEven {
		return even
	}
	return 1 - even
}

// startTxLocked begins transmitting b immediately: it is called either
// from WriteByte when the channel is idle, or from the compare-A ISR
// when it dequeues the next byte. Caller must hold d.mu.
func (d *Device) startTxLocked(driver TimerDriver, b byte, scheduleAt uint16) {
	d.txState = 1
	d.txByte = b
	d.txBit = 0
	if d.format.Parity != ParityNone {
		d.txParity = txParityBit(d.format.Parity, b)
	}
	driver.ConfigureMatchA(MatchClear) // falling edge: start bit
	driver.SetCompareA(scheduleAt)
}

// WriteByte transmits b, blocking until the TX ring has room if the
// channel is already busy. See spec §4.4/§4.6.
func (d *Device) WriteByte(b byte) error {
	if err := d.requireRunning(); err != nil {
		return err
	}
	for {
		d.mu.Lock()
		if !d.txRing.full() {
			break
		}
		d.mu.Unlock()
		spinHint()
	}
	defer d.mu.Unlock()

	if d.txState != 0 {
		d.txRing.enqueue(b)
		return nil
	}
	driver := d.driver
	driver.EnableCompareA(true)
	d.startTxLocked(driver, b, driver.ReadCounter()+txStartDelayTicks)
	return nil
}

// txStartDelayTicks is the fixed lead time (in timer ticks) before the
// first compare-A match after WriteByte kicks off an idle channel —
// matches the original ISR's `GET_TIMER_COUNT() + 16`.
const txStartDelayTicks = 16

// FlushOutput blocks until the transmitter returns to idle. That happens
// in the compare-A match that drives the line HIGH for the last queued
// byte's stop bit(s); FlushOutput does not wait for the stop-bit period
// itself to elapse.
func (d *Device) FlushOutput() error {
	if err := d.requireRunning(); err != nil {
		return err
	}
	for {
		d.mu.Lock()
		idle := d.txState == 0
		d.mu.Unlock()
		if idle {
			return nil
		}
		spinHint()
	}
}

// onCompareA handles a compare-A match. Caller (the dispatcher) holds d.mu.
func (d *Device) onCompareA(driver TimerDriver, matchedTick uint16) {
	state := d.txState
	b := d.txByte
	target := matchedTick // the tick that was just matched, not the live counter

	dataBits := d.format.DataBits
	for state < dataBits+1 {
		target += d.ticksPerBit
		bit := b & 1
		b >>= 1
		state++
		if bit != d.txBit {
			if bit != 0 {
				driver.ConfigureMatchA(MatchSet)
			} else {
				driver.ConfigureMatchA(MatchClear)
			}
			driver.SetCompareA(target)
			d.txBit = bit
			d.txByte = b
			d.txState = state
			return
		}
	}

	switch {
	case (d.format.Parity == ParityNone && state == dataBits+1) || state == dataBits+2:
		d.txState = dataBits + 3
		driver.ConfigureMatchA(MatchSet)
		driver.SetCompareA(target + uint16(d.format.StopBits)*d.ticksPerBit)
		return
	case state == dataBits+1:
		d.txState = dataBits + 2
		if d.txParity != d.txBit {
			if d.txParity != 0 {
				driver.ConfigureMatchA(MatchSet)
			} else {
				driver.ConfigureMatchA(MatchClear)
			}
			d.txBit = d.txParity
		}
		driver.SetCompareA(target + d.ticksPerBit)
		return
	}

	if d.txRing.empty() {
		d.txState = 0
		driver.ConfigureMatchA(MatchNone)
		driver.EnableCompareA(false)
		return
	}
	next, _ := d.txRing.dequeue()
	d.startTxLocked(driver, next, target+d.ticksPerBit)
}
