package softuart

// bitLevel returns 0x00 or 0x80 for level (false=LOW, true=HIGH); this is
// the shift-register convention spec §3 requires for rx_bit: ORing it
// into a right-shifted byte plants the level in bit 7, building the
// received byte LSB-first one edge at a time.
func bitLevel(high bool) uint8 {
	if high {
		return 0x80
	}
	return 0
}

// onCapture handles an input-capture interrupt. Caller holds d.mu.
func (d *Device) onCapture(driver TimerDriver, capture uint16) {
	wasHigh := d.rxBit != 0
	// Flip the armed edge: we just saw the transition into the opposite
	// level of what ends now, so the level that now holds is the one
	// that was armed.
	if wasHigh {
		driver.ConfigureCaptureEdge(EdgeFalling)
		d.rxBit = 0
	} else {
		driver.ConfigureCaptureEdge(EdgeRising)
		d.rxBit = 0x80
	}

	state := d.rxState
	if state == 0 {
		if wasHigh {
			// A rising edge with no frame open isn't a start bit.
			return
		}
		driver.SetCompareB(capture + d.rxStopTicksVal)
		driver.EnableCompareB(true)
		d.rxTarget = capture + d.ticksPerBit + d.ticksPerBit/2
		d.rxState = 1
		return
	}

	target := d.rxTarget
	var rxParity uint8
	dataBits := d.format.DataBits
	almost := d.format.AlmostTotalBits
	total := d.format.TotalBits
	for {
		offset := int16(capture - target)
		if offset < 0 {
			break
		}
		if state >= 1 && state <= dataBits {
			d.rxByte = (d.rxByte >> 1) | d.rxBit
		}
		target += d.ticksPerBit
		state++
		if state >= total {
			driver.EnableCompareB(false)
			if d.format.Parity == ParityNone || d.parityMatches(rxParity) {
				if !d.rxRing.enqueue(d.rxByte>>(8-dataBits)) && d.logger != nil {
					d.logger.Debug("rx buffer full, dropping byte")
				}
			} else if d.logger != nil {
				d.logger.Debug("rx parity mismatch, dropping frame")
			}
			driver.ConfigureCaptureEdge(EdgeFalling)
			d.rxBit = 0
			d.rxState = 0
			return
		}
		if state < almost {
			continue
		}
		if d.format.Parity != ParityNone && state == almost {
			rxParity = d.rxBit
		}
	}
	d.rxTarget = target
	d.rxState = state
}

// parityMatches reports whether the captured parity-bit level (0x00 or
// 0x80, per the bitLevel convention) matches the parity bit the
// configured discipline expects for the byte assembled so far.
func (d *Device) parityMatches(rxParityLevel uint8) bool {
	want := txParityBit(d.format.Parity, d.rxByte)
	got := byte(0)
	if rxParityLevel != 0 {
		got = 1
	}
	return want == got
}

// onCompareB handles the stop-bit fallback: it fires rxStopTicks after a
// start edge unless a capture has completed the frame first (compare-B is
// only disabled on that completion, not by intermediate edges). It fills
// the data bits not yet assembled with the level held since the last
// captured edge. Caller holds d.mu. This path does not check parity.
func (d *Device) onCompareB(driver TimerDriver) {
	driver.EnableCompareB(false)
	driver.ConfigureCaptureEdge(EdgeFalling)

	if d.rxState == 0 {
		// The completing capture already closed this frame and disabled
		// compare-B, but this deadline had already fired before the
		// disable landed. Nothing to do.
		return
	}

	state := d.rxState
	bit := d.rxBit ^ 0x80
	dataBits := d.format.DataBits
	for state < dataBits+1 {
		d.rxByte = (d.rxByte >> 1) | bit
		state++
	}
	if !d.rxRing.enqueue(d.rxByte>>(8-dataBits)) && d.logger != nil {
		d.logger.Debug("rx buffer full, dropping byte (compare-B fallback)")
	}
	d.rxState = 0
	d.rxBit = 0
}
