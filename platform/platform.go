package platform

import (
	"lautenbacher.net/gogate/gate"
	u "lautenbacher.net/gogate/util"
)

// Names under which the gate light buffers publish their values. The
// peer only exists with the simulated radio.
const (
	LocalGate = "gate"
	PeerGate  = "peer"
)

// Platform abstracts the real hardware away from the TUI simulation.
type Platform interface {
	// Start initializes the platform (opens GPIO/SPI, or starts the TUI).
	Start() error

	// Stop cleans up all platform resources.
	Stop()

	// Ready is closed once the platform can display and log.
	Ready() <-chan bool

	// Lights is the sink the light buffers of all gates publish to.
	Lights() *u.AtomicMapEvent[[]float64]

	// Trigger returns the "is active" reading of the named gate's
	// trigger input.
	Trigger(name string) func() bool

	// Indicator returns the idle indicator of the named gate.
	Indicator(name string) gate.Indicator
}
