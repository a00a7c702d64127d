package platform

import (
	"testing"
	"time"

	"github.com/stianeikeland/go-rpio/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	c "lautenbacher.net/gogate/config"
	"lautenbacher.net/gogate/gate"
	"lautenbacher.net/gogate/lights"
)

func TestTriggerActive(t *testing.T) {
	assert.True(t, triggerActive(rpio.Low, true))
	assert.False(t, triggerActive(rpio.High, true))
	assert.True(t, triggerActive(rpio.High, false))
	assert.False(t, triggerActive(rpio.Low, false))
}

func TestRaspberryPiPlatform_TriggerReadsPin(t *testing.T) {
	s := NewRaspberryPiPlatform(c.Default())
	state := rpio.Low
	s.readPin = func() rpio.State { return state }

	trigger := s.Trigger(LocalGate)
	assert.False(t, trigger(), "pins are not read before Start")

	s.started.Store(true)
	assert.True(t, trigger(), "default trigger is active low")
	state = rpio.High
	assert.False(t, trigger())

	assert.False(t, s.Trigger(PeerGate)(), "there is no peer trigger on the hardware")
}

func TestRaspberryPiPlatform_WritesLocalGateToStrip(t *testing.T) {
	conf := c.Default()
	conf.Hardware.Channels = 2
	conf.Hardware.StripLeds = 3
	conf.Hardware.ChannelLeds = [][]int{{0, 2}, {1}}

	s := NewRaspberryPiPlatform(conf)
	s.ledDriver = newWs2801Driver(conf.Hardware)
	var frames [][]byte
	s.exchange = func(data []byte) { frames = append(frames, append([]byte(nil), data...)) }

	s.rpiDisplayFunc(PeerGate, []lights.Led{red, green})
	assert.Empty(t, frames, "the peer gate is not wired to the strip")

	s.rpiDisplayFunc(LocalGate, []lights.Led{red, green})
	assert.Equal(t, [][]byte{{255, 0, 0, 0, 255, 0, 255, 0, 0}}, frames)
}

func TestRaspberryPiPlatform_PeerIndicatorLeavesPinAlone(t *testing.T) {
	conf := c.Default()
	conf.Hardware.Indicator = c.BlinkConfig{Connected: 0, Searching: 100 * time.Millisecond, Busy: 50 * time.Millisecond}
	s := NewRaspberryPiPlatform(conf)
	local, peer := s.Indicator(LocalGate), s.Indicator(PeerGate)
	require.NotNil(t, local)
	require.NotNil(t, peer)
	assert.IsType(t, noIndicator{}, peer)

	// not started, Show must not touch the hardware
	local.Show(0, gate.ModeConnected)
	mode, on := s.blinker.State()
	assert.Equal(t, gate.ModeConnected, mode)
	assert.True(t, on)

	peer.Show(150, gate.ModeSearching)
	peer.Show(75, gate.ModeBusy)
	mode, on = s.blinker.State()
	assert.Equal(t, gate.ModeConnected, mode, "the peer gate must not steer the local indicator")
	assert.True(t, on)
}
