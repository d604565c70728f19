package softuart

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// S3's fault-injection variant: a parity bit corrupted in transit must
// make parityMatches reject the frame, independent of the timer-capture
// plumbing that decides what level actually got sampled.
func TestParityMatchesRejectsCorruptedBit(t *testing.T) {
	d := &Device{format: MustParseFormat("8E1")}
	d.rxByte = 0x01 // one set bit: even-parity bit is 1

	assert.True(t, d.parityMatches(0x80), "correctly transmitted parity bit (HIGH) must match")
	assert.False(t, d.parityMatches(0x00), "a parity bit corrupted to LOW must be rejected")
}

func TestParityMatchesOddParity(t *testing.T) {
	d := &Device{format: MustParseFormat("7O2")}
	d.rxByte = 0x03 // two set bits: even-parity bit is 0, so odd-parity bit is 1

	assert.True(t, d.parityMatches(0x80))
	assert.False(t, d.parityMatches(0x00))
}
