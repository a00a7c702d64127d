package platform

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	c "lautenbacher.net/gogate/config"
	"lautenbacher.net/gogate/gate"
	"lautenbacher.net/gogate/lights"
	"lautenbacher.net/gogate/logging"
)

type tuiGate struct {
	name    string
	key     rune
	trigger atomic.Bool
	blinker *Blinker
	leds    []lights.Led
}

// TUIPlatform simulates the prop in the terminal: one chevron ring per
// gate, keys toggling the triggers like a magnet on the reed switch, and
// the log below.
type TUIPlatform struct {
	*AbstractPlatform
	tviewapp     *tview.Application
	intro        *tview.TextView
	ringDisplay  *tview.TextView
	logView      *tview.TextView
	ossignalChan chan os.Signal
	gates        []*tuiGate
	ledsMutex    sync.Mutex
	logFlushOnce sync.Once
}

func NewTUIPlatform(conf *c.Config, ossignalchan chan os.Signal) *TUIPlatform {
	inst := &TUIPlatform{
		ossignalChan: ossignalchan,
	}
	inst.AbstractPlatform = newAbstractPlatform(conf, inst.DisplayLeds)

	names := []string{LocalGate}
	if hasSimPeer(conf) {
		names = append(names, PeerGate)
	}
	for i, name := range names {
		g := &tuiGate{
			name: name,
			key:  rune('1' + i),
			leds: make([]lights.Led, conf.Hardware.Channels),
		}
		g.blinker = NewBlinker(conf.Hardware.Indicator, func(bool) { inst.redraw() })
		inst.gates = append(inst.gates, g)
	}
	return inst
}

// hasSimPeer reports whether the configuration asks for a second gate
// on the simulated air.
func hasSimPeer(conf *c.Config) bool {
	return conf.Link.Backend == c.BackendSim && conf.Link.SimPeer && conf.Link.Role != c.RoleNone
}

func (s *TUIPlatform) Start() error {
	s.initSimulationTUI()
	s.startDisplay()
	return nil
}

func (s *TUIPlatform) Stop() {
	s.stopDisplay()
	if s.tviewapp != nil {
		s.tviewapp.Stop()
	}
}

func (s *TUIPlatform) Trigger(name string) func() bool {
	g := s.gate(name)
	if g == nil {
		return func() bool { return false }
	}
	return g.trigger.Load
}

func (s *TUIPlatform) Indicator(name string) gate.Indicator {
	g := s.gate(name)
	if g == nil {
		return nil
	}
	return g.blinker
}

func (s *TUIPlatform) DisplayLeds(name string, leds []lights.Led) {
	g := s.gate(name)
	if g == nil {
		return
	}
	s.ledsMutex.Lock()
	g.leds = leds
	s.ledsMutex.Unlock()
	s.redraw()
}

func (s *TUIPlatform) gate(name string) *tuiGate {
	for _, g := range s.gates {
		if g.name == name {
			return g
		}
	}
	return nil
}

func (s *TUIPlatform) redraw() {
	if s.tviewapp == nil {
		return
	}
	s.tviewapp.QueueUpdateDraw(s.simulateRings)
}

func (s *TUIPlatform) getIntroText() string {
	keys := make([]string, 0, len(s.gates))
	for _, g := range s.gates {
		keys = append(keys, fmt.Sprintf("[blue]%c[-] %s", g.key, g.name))
	}
	line1 := "Hit " + strings.Join(keys, ", ") + " to toggle the trigger"
	line2 := "Hit [#ff0000]q[-] to exit, [#ff0000]r[-] to reload, [#ff0000]Up/Down[-] to scroll logs"
	return fmt.Sprintf("%s\n%s", line1, line2)
}

func (s *TUIPlatform) initSimulationTUI() {
	s.tviewapp = tview.NewApplication()

	s.intro = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	s.intro.SetText(s.getIntroText())
	s.intro.SetBorder(true).SetTitle(" GOGATE Simulation ").SetTitleColor(tcell.ColorLightBlue)
	s.intro.SetBackgroundColor(tcell.NewRGBColor(20, 20, 20))

	s.ringDisplay = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	s.ringDisplay.SetBorder(true)
	s.ringDisplay.SetBackgroundColor(tcell.NewRGBColor(30, 30, 30))

	s.logView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetChangedFunc(func() {
			s.logView.ScrollToEnd()
			s.tviewapp.Draw()
		})
	s.logView.SetBorder(true).SetTitle(" Logs ").SetTitleColor(tcell.ColorLightBlue)
	s.logView.SetBackgroundColor(tcell.NewRGBColor(40, 40, 40))

	ringHeight := 2*len(s.gates) + 2 // 2 lines per gate, 2 for border

	layout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(s.intro, 4, 0, false).
		AddItem(s.ringDisplay, ringHeight, 0, false).
		AddItem(s.logView, 0, 1, true)

	s.tviewapp.SetAfterDrawFunc(func(screen tcell.Screen) {
		s.logFlushOnce.Do(func() {
			if err := logging.SetOutput(tview.ANSIWriter(s.logView)); err != nil {
				slog.Error("Failed to attach log pane", "error", err)
			}
			close(s.readyChan)
		})
	})

	s.tviewapp.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyCtrlC:
			s.ossignalChan <- os.Interrupt
			return nil
		case tcell.KeyRune:
			key := event.Rune()
			for _, g := range s.gates {
				if g.key == key {
					active := !g.trigger.Load()
					g.trigger.Store(active)
					slog.Debug("Trigger toggled", "gate", g.name, "active", active)
					s.redraw()
					return nil
				}
			}
			switch key {
			case 'q', 'Q':
				s.ossignalChan <- os.Interrupt
				return nil
			case 'r', 'R':
				s.ossignalChan <- syscall.SIGHUP
				return nil
			}
		case tcell.KeyUp:
			row, col := s.logView.GetScrollOffset()
			s.logView.ScrollTo(row-1, col)
			return nil
		case tcell.KeyDown:
			row, col := s.logView.GetScrollOffset()
			s.logView.ScrollTo(row+1, col)
			return nil
		}
		return event
	})

	go func() {
		if err := s.tviewapp.SetRoot(layout, true).Run(); err != nil {
			slog.Error("Error running TUI", "error", err)
			s.ossignalChan <- os.Interrupt
		}
	}()
}

// simulateRings redraws the ring pane. It must run on the TUI goroutine
// via QueueUpdateDraw.
func (s *TUIPlatform) simulateRings() {
	var buf strings.Builder
	s.ledsMutex.Lock()
	defer s.ledsMutex.Unlock()
	for _, g := range s.gates {
		mode, on := g.blinker.State()
		buf.WriteString(gateHeader(g.name, g.trigger.Load(), mode, on))
		buf.WriteString("\n ")
		buf.WriteString(renderRing(g.leds))
		buf.WriteString("\n")
	}
	s.ringDisplay.SetText(buf.String())
}

func gateHeader(name string, triggered bool, mode gate.Mode, on bool) string {
	lamp := "[#404040]○[-]"
	if on {
		lamp = "[#00ff00]●[-]"
	}
	trigger := "open"
	if triggered {
		trigger = "[#ffff00]closed[-]"
	}
	return fmt.Sprintf(" %s %-5s %-10s trigger: %s", lamp, name, mode, trigger)
}

// renderRing draws every chevron as a block in its current colour; dark
// chevrons are dots.
func renderRing(leds []lights.Led) string {
	var buf strings.Builder
	buf.Grow(len(leds) * len("[#000000]◆[-] "))
	for _, led := range leds {
		if led.IsEmpty() {
			buf.WriteString("[#404040]·[-] ")
			continue
		}
		r, g, b := led.Bytes(nil)
		fmt.Fprintf(&buf, "[#%02x%02x%02x]◆[-] ", r, g, b)
	}
	return buf.String()
}
