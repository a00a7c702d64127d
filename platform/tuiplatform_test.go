package platform

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	c "lautenbacher.net/gogate/config"
	"lautenbacher.net/gogate/gate"
	"lautenbacher.net/gogate/lights"
)

func TestNewTUIPlatform_PeerOnlyOnSimulatedAir(t *testing.T) {
	conf := c.Default()
	s := NewTUIPlatform(conf, make(chan os.Signal, 1))
	require.Len(t, s.gates, 1)
	assert.Nil(t, s.Indicator(PeerGate))

	conf.Link.SimPeer = true
	s = NewTUIPlatform(conf, make(chan os.Signal, 1))
	require.Len(t, s.gates, 2)
	assert.Equal(t, '2', s.gates[1].key)
	assert.NotNil(t, s.Indicator(PeerGate))

	conf.Link.Backend = c.BackendBLE
	assert.Len(t, NewTUIPlatform(conf, make(chan os.Signal, 1)).gates, 1)
}

func TestTUIPlatform_TriggerFollowsToggle(t *testing.T) {
	s := NewTUIPlatform(c.Default(), make(chan os.Signal, 1))
	trigger := s.Trigger(LocalGate)
	assert.False(t, trigger())

	s.gate(LocalGate).trigger.Store(true)
	assert.True(t, trigger())
	assert.False(t, s.Trigger("unknown")())
}

func TestTUIPlatform_DisplayLedsBeforeStart(t *testing.T) {
	s := NewTUIPlatform(c.Default(), make(chan os.Signal, 1))
	leds := []lights.Led{red}
	s.DisplayLeds(LocalGate, leds)
	s.DisplayLeds("unknown", leds)
	assert.Equal(t, leds, s.gate(LocalGate).leds)
}

func TestRenderRing(t *testing.T) {
	ring := renderRing([]lights.Led{{}, {Red: 255, Green: 80}, {Red: 25.5, Green: 8}})
	assert.Equal(t, "[#404040]·[-] [#ff5000]◆[-] [#1a0800]◆[-] ", ring)
}

func TestGateHeader(t *testing.T) {
	header := gateHeader(LocalGate, true, gate.ModeSearching, true)
	assert.Contains(t, header, "●")
	assert.Contains(t, header, "searching")
	assert.Contains(t, header, "closed")

	header = gateHeader(PeerGate, false, gate.ModeBusy, false)
	assert.Contains(t, header, "○")
	assert.Contains(t, header, "trigger: open")
}
