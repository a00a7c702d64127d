package platform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	c "lautenbacher.net/gogate/config"
	"lautenbacher.net/gogate/gate"
)

func TestBlinker_BlinksWhileSearching(t *testing.T) {
	var levels []bool
	b := NewBlinker(c.BlinkConfig{Searching: 250 * time.Millisecond}, func(on bool) {
		levels = append(levels, on)
	})

	for now := 0; now < 1000; now += 10 {
		b.Show(ticksOf(now), gate.ModeSearching)
	}

	assert.Equal(t, []bool{true, false, true, false}, levels, "set is only called on a change")
	mode, on := b.State()
	assert.Equal(t, gate.ModeSearching, mode)
	assert.False(t, on)
}

func TestBlinker_ZeroPeriodIsSteady(t *testing.T) {
	calls := 0
	b := NewBlinker(c.BlinkConfig{Searching: 100 * time.Millisecond}, func(on bool) {
		calls++
		assert.True(t, on)
	})

	for now := 0; now < 1000; now += 20 {
		b.Show(ticksOf(now), gate.ModeConnected)
		b.Show(ticksOf(now), gate.ModeStandalone)
		b.Show(ticksOf(now), gate.ModeBusy)
	}
	assert.Equal(t, 1, calls)
}

func TestBlinker_PeriodPerMode(t *testing.T) {
	b := NewBlinker(c.BlinkConfig{
		Connected: time.Second,
		Searching: 200 * time.Millisecond,
		Busy:      50 * time.Millisecond,
	}, nil)

	assert.Equal(t, time.Second, b.period(gate.ModeConnected))
	assert.Equal(t, time.Second, b.period(gate.ModeStandalone))
	assert.Equal(t, 200*time.Millisecond, b.period(gate.ModeSearching))
	assert.Equal(t, 50*time.Millisecond, b.period(gate.ModeBusy))

	b.Show(ticksOf(60), gate.ModeBusy)
	_, on := b.State()
	assert.False(t, on, "nil set func still tracks the level")
}
