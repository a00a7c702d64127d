package platform

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	c "lautenbacher.net/gogate/config"
	"lautenbacher.net/gogate/lights"
	u "lautenbacher.net/gogate/util"
)

type AbstractPlatform struct {
	config          *c.Config
	lights          *u.AtomicMapEvent[[]float64]
	dimmer          *NightDimmer
	chevron         lights.Led
	displayFunc     func(name string, leds []lights.Led)
	displayWg       sync.WaitGroup
	displayStopChan chan bool
	readyChan       chan bool
	shutdownMutex   sync.RWMutex
	isShuttingDown  bool
	now             func() time.Time
}

func newAbstractPlatform(conf *c.Config, displayFunc func(string, []lights.Led)) *AbstractPlatform {
	return &AbstractPlatform{
		config:          conf,
		lights:          u.NewAtomicMapEvent[[]float64](),
		dimmer:          NewNightDimmer(conf.NightDim),
		chevron:         lights.NewLed(conf.Hardware.ChevronRGB),
		displayFunc:     displayFunc,
		displayStopChan: make(chan bool),
		readyChan:       make(chan bool),
		now:             time.Now,
	}
}

func (s *AbstractPlatform) Lights() *u.AtomicMapEvent[[]float64] {
	return s.lights
}

func (s *AbstractPlatform) Ready() <-chan bool {
	return s.readyChan
}

func (s *AbstractPlatform) setInShutdown() {
	s.shutdownMutex.Lock()
	s.isShuttingDown = true
	s.shutdownMutex.Unlock()
}

func (s *AbstractPlatform) startDisplay() {
	s.displayWg.Add(1)
	go s.displayDriver()
}

func (s *AbstractPlatform) stopDisplay() {
	s.setInShutdown()
	close(s.displayStopChan)
	s.displayWg.Wait()
}

// displayDriver renders the latest values of every gate whenever any of
// them changed. Intermediate values are dropped if the output is slower
// than the animation.
func (s *AbstractPlatform) displayDriver() {
	defer s.displayWg.Done()
	for {
		select {
		case <-s.displayStopChan:
			slog.Info("Ending DisplayDriver go-routine...")
			return
		case <-s.lights.Channel():
			values := s.lights.Value()
			s.shutdownMutex.RLock()
			if !s.isShuttingDown {
				for _, name := range slices.Sorted(maps.Keys(values)) {
					s.displayFunc(name, s.colorize(values[name]))
				}
			}
			s.shutdownMutex.RUnlock()
		}
	}
}

// colorize turns channel brightness into chevron colours, dimmed at night.
func (s *AbstractPlatform) colorize(values []float64) []lights.Led {
	factor := s.dimmer.Factor(s.now())
	leds := make([]lights.Led, len(values))
	for i, v := range values {
		leds[i] = s.chevron.Scale(v * factor)
	}
	return leds
}
