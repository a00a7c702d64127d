package platform

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/stianeikeland/go-rpio/v4"

	c "lautenbacher.net/gogate/config"
	"lautenbacher.net/gogate/gate"
	"lautenbacher.net/gogate/lights"
)

// RaspberryPiPlatform drives the chevron strip over SPI0, reads the
// trigger from a GPIO input and switches an optional indicator pin.
type RaspberryPiPlatform struct {
	*AbstractPlatform
	ledDriver    ledDriver
	spiMutex     sync.Mutex
	triggerPin   rpio.Pin
	indicatorPin rpio.Pin
	blinker      *Blinker
	started      atomic.Bool
	readPin      func() rpio.State
	exchange     func([]byte)
}

func NewRaspberryPiPlatform(conf *c.Config) *RaspberryPiPlatform {
	inst := &RaspberryPiPlatform{
		triggerPin:   rpio.Pin(conf.Hardware.Trigger.Pin),
		indicatorPin: rpio.Pin(max(conf.Hardware.IndicatorPin, 0)),
		exchange:     rpio.SpiExchange,
	}
	inst.readPin = inst.triggerPin.Read
	inst.AbstractPlatform = newAbstractPlatform(conf, inst.rpiDisplayFunc)
	inst.blinker = NewBlinker(conf.Hardware.Indicator, inst.setIndicator)
	return inst
}

func (s *RaspberryPiPlatform) Start() error {
	hw := s.config.Hardware

	switch strings.ToUpper(hw.LEDType) {
	case "APA102":
		s.ledDriver = newApa102Driver(hw)
	case "WS2801":
		s.ledDriver = newWs2801Driver(hw)
	default:
		return fmt.Errorf("unknown LED type: %s", hw.LEDType)
	}

	slog.Info("Initialise GPIO and Spi...")
	if err := rpio.Open(); err != nil {
		return fmt.Errorf("failed to open rpio: %w", err)
	}
	if err := rpio.SpiBegin(rpio.Spi0); err != nil {
		rpio.Close()
		return fmt.Errorf("failed to begin spi: %w", err)
	}
	rpio.SpiSpeed(hw.SPIFrequency)

	s.triggerPin.Input()
	switch strings.ToLower(hw.Trigger.Pull) {
	case "up":
		s.triggerPin.PullUp()
	case "down":
		s.triggerPin.PullDown()
	default:
		s.triggerPin.PullOff()
	}
	if hw.IndicatorPin >= 0 {
		s.indicatorPin.Output()
		s.indicatorPin.Low()
	}
	s.started.Store(true)

	s.startDisplay()
	close(s.readyChan) // For RPi, we are ready immediately.
	return nil
}

func (s *RaspberryPiPlatform) Stop() {
	s.stopDisplay()
	if !s.started.Swap(false) {
		return
	}

	// leave the ring dark
	s.writeStrip(make([]lights.Led, s.config.Hardware.Channels))
	if s.config.Hardware.IndicatorPin >= 0 {
		s.indicatorPin.Low()
	}

	rpio.SpiEnd(rpio.Spi0)
	if err := rpio.Close(); err != nil {
		slog.Error("Error closing rpio", "error", err)
	}
}

// Trigger only knows the local gate, there is one input pin.
func (s *RaspberryPiPlatform) Trigger(name string) func() bool {
	if name != LocalGate {
		return func() bool { return false }
	}
	activeLow := s.config.Hardware.Trigger.ActiveLow
	return func() bool {
		if !s.started.Load() {
			return false
		}
		return triggerActive(s.readPin(), activeLow)
	}
}

// Indicator drives the pin for the local gate only. The peer gate gets an
// indicator that shows nothing, otherwise both loops would fight over the pin.
func (s *RaspberryPiPlatform) Indicator(name string) gate.Indicator {
	if name != LocalGate {
		return noIndicator{}
	}
	return s.blinker
}

func (s *RaspberryPiPlatform) rpiDisplayFunc(name string, leds []lights.Led) {
	if name != LocalGate {
		return
	}
	s.writeStrip(leds)
}

func (s *RaspberryPiPlatform) writeStrip(channels []lights.Led) {
	if s.ledDriver == nil {
		return
	}
	hw := s.config.Hardware
	s.ledDriver.write(mapToStrip(channels, hw.ChannelLeds, hw.StripLeds), s.spiExchange)
}

func (s *RaspberryPiPlatform) spiExchange(data []byte) {
	s.spiMutex.Lock()
	defer s.spiMutex.Unlock()
	s.exchange(data)
}

func (s *RaspberryPiPlatform) setIndicator(on bool) {
	if s.config.Hardware.IndicatorPin < 0 || !s.started.Load() {
		return
	}
	if on {
		s.indicatorPin.High()
	} else {
		s.indicatorPin.Low()
	}
}

func triggerActive(state rpio.State, activeLow bool) bool {
	if activeLow {
		return state == rpio.Low
	}
	return state == rpio.High
}
