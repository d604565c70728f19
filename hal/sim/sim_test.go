package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daedaluz/softuart"
)

func TestReadCounterAdvancesWithWallClock(t *testing.T) {
	old := TickDuration
	TickDuration = time.Millisecond
	defer func() { TickDuration = old }()

	d := New()
	first := d.ReadCounter()
	time.Sleep(5 * time.Millisecond)
	second := d.ReadCounter()
	assert.Greater(t, second, first)
}

func TestCompareAFiresMatchAndMovesPin(t *testing.T) {
	old := TickDuration
	TickDuration = 200 * time.Microsecond
	defer func() { TickDuration = old }()

	d := New()
	d.EnableCompareA(true)
	assert.True(t, d.PinLevel(), "idle level is HIGH")

	d.ConfigureMatchA(softuart.MatchClear)
	target := d.ReadCounter() + 5
	d.SetCompareA(target)

	select {
	case ev := <-d.Events():
		require.Equal(t, softuart.EventCompareA, ev.Source)
		assert.Equal(t, target, ev.Tick)
	case <-time.After(time.Second):
		t.Fatal("compare-A event never arrived")
	}
	assert.False(t, d.PinLevel())
}

func TestLoopbackDeliversCaptureOnTransition(t *testing.T) {
	old := TickDuration
	TickDuration = 200 * time.Microsecond
	defer func() { TickDuration = old }()

	d := NewLoopback()
	d.EnableCompareA(true)
	d.EnableCapture(true)

	d.ConfigureMatchA(softuart.MatchClear)
	target := d.ReadCounter() + 5
	d.SetCompareA(target)

	sawCompareA, sawCapture := false, false
	deadline := time.After(2 * time.Second)
	for !sawCompareA || !sawCapture {
		select {
		case ev := <-d.Events():
			switch ev.Source {
			case softuart.EventCompareA:
				sawCompareA = true
			case softuart.EventCapture:
				sawCapture = true
				assert.Equal(t, target, ev.Tick, "the captured tick must be the scheduled match tick, not the tick the dispatcher happened to observe it at")
			}
		case <-deadline:
			t.Fatalf("timed out, sawCompareA=%v sawCapture=%v", sawCompareA, sawCapture)
		}
	}
}
