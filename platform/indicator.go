package platform

import (
	"sync"
	"time"

	c "lautenbacher.net/gogate/config"
	"lautenbacher.net/gogate/gate"
	u "lautenbacher.net/gogate/util"
)

// Blinker drives an on/off indicator from the gate mode. Every mode has
// its own blink period; a zero period keeps the indicator on. Connected
// and standalone share a period.
type Blinker struct {
	cfg  c.BlinkConfig
	set  func(on bool)
	mu   sync.Mutex
	mode gate.Mode
	on   bool
	seen bool
}

// NewBlinker calls set whenever the indicator level changes. set may be nil.
func NewBlinker(cfg c.BlinkConfig, set func(on bool)) *Blinker {
	return &Blinker{cfg: cfg, set: set}
}

func (b *Blinker) Show(now u.Ticks, mode gate.Mode) {
	on := blinkLevel(now, b.period(mode))

	b.mu.Lock()
	changed := !b.seen || on != b.on
	b.seen = true
	b.on = on
	b.mode = mode
	b.mu.Unlock()

	if changed && b.set != nil {
		b.set(on)
	}
}

// State returns the last shown mode and level.
func (b *Blinker) State() (gate.Mode, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mode, b.on
}

func (b *Blinker) period(mode gate.Mode) time.Duration {
	switch mode {
	case gate.ModeSearching:
		return b.cfg.Searching
	case gate.ModeBusy:
		return b.cfg.Busy
	default:
		return b.cfg.Connected
	}
}

func blinkLevel(now u.Ticks, period time.Duration) bool {
	ms := uint32(period.Milliseconds())
	if ms == 0 {
		return true
	}
	return (uint32(now)/ms)%2 == 0
}

type noIndicator struct{}

func (noIndicator) Show(u.Ticks, gate.Mode) {}
