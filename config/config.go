package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"math"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const CONFILE = "config.yml"

// MaxDuration is the longest duration the wrapping millisecond ticks
// can compare.
const MaxDuration = time.Duration(math.MaxInt32-1) * time.Millisecond

const (
	RolePassive = "passive"
	RoleActive  = "active"
	RoleNone    = "none"

	BackendSim = "sim"
	BackendBLE = "ble"
)

type Config struct {
	RealHW     bool            `yaml:"-"`
	Configfile string          `yaml:"-"`
	Gate       GateConfig      `yaml:"Gate"`
	Animation  AnimationConfig `yaml:"Animation"`
	Session    SessionConfig   `yaml:"Session"`
	Link       LinkConfig      `yaml:"Link"`
	Hardware   HardwareConfig  `yaml:"Hardware"`
	NightDim   NightDimConfig  `yaml:"NightDim"`
	Sound      SoundConfig     `yaml:"Sound"`
	Web        WebConfig       `yaml:"Web"`
	Logging    LoggingConfig   `yaml:"Logging"`
}

// GateConfig describes the dial and how the control loop samples the
// trigger. The last entry of LockSequence is the master chevron.
type GateConfig struct {
	LockSequence []int         `yaml:"LockSequence" json:"LockSequence"`
	Debounce     time.Duration `yaml:"Debounce" json:"Debounce"`
	PollInterval time.Duration `yaml:"PollInterval" json:"PollInterval"`
}

type AnimationConfig struct {
	StartupBrightness float64       `yaml:"StartupBrightness" json:"StartupBrightness"`
	StartupStepUp     time.Duration `yaml:"StartupStepUp" json:"StartupStepUp"`
	StartupStepDown   time.Duration `yaml:"StartupStepDown" json:"StartupStepDown"`
	RotationMin       time.Duration `yaml:"RotationMin" json:"RotationMin"`
	RotationMax       time.Duration `yaml:"RotationMax" json:"RotationMax"`
	RotationStep      time.Duration `yaml:"RotationStep" json:"RotationStep"`
	ScanBrightness    float64       `yaml:"ScanBrightness" json:"ScanBrightness"`
	LockBrightness    float64       `yaml:"LockBrightness" json:"LockBrightness"`
	LockFlashes       int           `yaml:"LockFlashes" json:"LockFlashes"`
	LockFlashOn       time.Duration `yaml:"LockFlashOn" json:"LockFlashOn"`
	LockFlashOff      time.Duration `yaml:"LockFlashOff" json:"LockFlashOff"`
	FinalLockFlashes  int           `yaml:"FinalLockFlashes" json:"FinalLockFlashes"`
	FinalFlashOn      time.Duration `yaml:"FinalFlashOn" json:"FinalFlashOn"`
	FinalFlashOff     time.Duration `yaml:"FinalFlashOff" json:"FinalFlashOff"`
	KawooshDuration   time.Duration `yaml:"KawooshDuration" json:"KawooshDuration"`
	KawooshOn         time.Duration `yaml:"KawooshOn" json:"KawooshOn"`
	KawooshOff        time.Duration `yaml:"KawooshOff" json:"KawooshOff"`
	IncomingStep      time.Duration `yaml:"IncomingStep" json:"IncomingStep"`
	PulsePeriod       time.Duration `yaml:"PulsePeriod" json:"PulsePeriod"`
	PulseMin          float64       `yaml:"PulseMin" json:"PulseMin"`
	PulseMax          float64       `yaml:"PulseMax" json:"PulseMax"`
	CloseDuration     time.Duration `yaml:"CloseDuration" json:"CloseDuration"`
	CloseSteps        int           `yaml:"CloseSteps" json:"CloseSteps"`
	SessionTick       time.Duration `yaml:"SessionTick" json:"SessionTick"`
}

// SessionConfig bounds an open wormhole. MinOpen and CloseDelay only
// apply to locally dialled sessions, which have a keep-open trigger.
type SessionConfig struct {
	Timeout    time.Duration `yaml:"Timeout" json:"Timeout"`
	MinOpen    time.Duration `yaml:"MinOpen" json:"MinOpen"`
	CloseDelay time.Duration `yaml:"CloseDelay" json:"CloseDelay"`
}

type LinkConfig struct {
	Role              string        `yaml:"Role"`
	Backend           string        `yaml:"Backend"`
	Name              string        `yaml:"Name"`
	ScanTimeout       time.Duration `yaml:"ScanTimeout"`
	ReconnectInterval time.Duration `yaml:"ReconnectInterval"`
	DiscoveryTimeout  time.Duration `yaml:"DiscoveryTimeout"`
	SendSettle        time.Duration `yaml:"SendSettle"`
	AdvertiseInterval time.Duration `yaml:"AdvertiseInterval"`
	SimPeer           bool          `yaml:"SimPeer"`
}

type HardwareConfig struct {
	Channels         int         `yaml:"Channels"`
	LEDType          string      `yaml:"LEDType"`
	SPIFrequency     int         `yaml:"SPIFrequency"`
	APA102Brightness byte        `yaml:"APA102Brightness"`
	StripLeds        int         `yaml:"StripLeds"`
	ChannelLeds      [][]int     `yaml:"ChannelLeds"`
	ChevronRGB       []float64   `yaml:"ChevronRGB"`
	ColorCorrection  []float64   `yaml:"ColorCorrection"`
	Trigger          TriggerPin  `yaml:"Trigger"`
	IndicatorPin     int         `yaml:"IndicatorPin"`
	Indicator        BlinkConfig `yaml:"Indicator"`
}

type TriggerPin struct {
	Pin       int    `yaml:"Pin"`
	Pull      string `yaml:"Pull"`
	ActiveLow bool   `yaml:"ActiveLow"`
}

// BlinkConfig sets the idle indicator periods; a zero period keeps the
// indicator steadily on.
type BlinkConfig struct {
	Connected time.Duration `yaml:"Connected"`
	Searching time.Duration `yaml:"Searching"`
	Busy      time.Duration `yaml:"Busy"`
}

type NightDimConfig struct {
	Enabled   bool    `yaml:"Enabled" json:"Enabled"`
	Latitude  float64 `yaml:"Latitude" json:"Latitude"`
	Longitude float64 `yaml:"Longitude" json:"Longitude"`
	Factor    float64 `yaml:"Factor" json:"Factor"`
}

type SoundConfig struct {
	Enabled         bool    `yaml:"Enabled" json:"Enabled"`
	SampleRate      float64 `yaml:"SampleRate" json:"SampleRate"`
	FramesPerBuffer int     `yaml:"FramesPerBuffer" json:"FramesPerBuffer"`
	Volume          float64 `yaml:"Volume" json:"Volume"`
}

type WebConfig struct {
	Enabled bool   `yaml:"Enabled"`
	Listen  string `yaml:"Listen"`
}

type LogConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

type LoggingConfig struct {
	TUI LogConfig `yaml:"TUI"`
	HW  LogConfig `yaml:"HW"`
}

// Default returns the stock prop: eleven channels, seven of them used for
// a dial, wired as the passive gate.
func Default() *Config {
	return &Config{
		Gate: GateConfig{
			LockSequence: []int{3, 4, 5, 8, 9, 10, 0},
			Debounce:     50 * time.Millisecond,
			PollInterval: 10 * time.Millisecond,
		},
		Animation: AnimationConfig{
			StartupBrightness: 0.6,
			StartupStepUp:     60 * time.Millisecond,
			StartupStepDown:   40 * time.Millisecond,
			RotationMin:       800 * time.Millisecond,
			RotationMax:       2 * time.Second,
			RotationStep:      90 * time.Millisecond,
			ScanBrightness:    0.18,
			LockBrightness:    1.0,
			LockFlashes:       3,
			LockFlashOn:       80 * time.Millisecond,
			LockFlashOff:      55 * time.Millisecond,
			FinalLockFlashes:  5,
			FinalFlashOn:      100 * time.Millisecond,
			FinalFlashOff:     60 * time.Millisecond,
			KawooshDuration:   2800 * time.Millisecond,
			KawooshOn:         35 * time.Millisecond,
			KawooshOff:        25 * time.Millisecond,
			IncomingStep:      60 * time.Millisecond,
			PulsePeriod:       2200 * time.Millisecond,
			PulseMin:          0.35,
			PulseMax:          1.0,
			CloseDuration:     600 * time.Millisecond,
			CloseSteps:        30,
			SessionTick:       20 * time.Millisecond,
		},
		Session: SessionConfig{
			Timeout:    38 * time.Second,
			MinOpen:    10 * time.Second,
			CloseDelay: 4 * time.Second,
		},
		Link: LinkConfig{
			Role:              RolePassive,
			Backend:           BackendSim,
			Name:              "Stargate",
			ScanTimeout:       12 * time.Second,
			ReconnectInterval: 8 * time.Second,
			DiscoveryTimeout:  12 * time.Second,
			SendSettle:        100 * time.Millisecond,
			AdvertiseInterval: 100 * time.Millisecond,
		},
		Hardware: HardwareConfig{
			Channels:         11,
			LEDType:          "APA102",
			SPIFrequency:     1000000,
			APA102Brightness: 31,
			ChevronRGB:       []float64{255, 80, 0},
			ColorCorrection:  []float64{1, 1, 1},
			Trigger:          TriggerPin{Pin: 15, Pull: "up", ActiveLow: true},
			IndicatorPin:     -1,
			Indicator: BlinkConfig{
				Connected: 0,
				Searching: 250 * time.Millisecond,
				Busy:      0,
			},
		},
		NightDim: NightDimConfig{Factor: 0.3},
		Sound: SoundConfig{
			SampleRate:      44100,
			FramesPerBuffer: 512,
			Volume:          0.4,
		},
		Web: WebConfig{Listen: ":8080"},
		Logging: LoggingConfig{
			TUI: LogConfig{Level: "INFO", Format: "text"},
			HW:  LogConfig{Level: "INFO", Format: "json"},
		},
	}
}

// ReadConfig reads cfile on top of Default, applies the environment
// overrides and validates the result.
func ReadConfig(cfile string) (*Config, error) {
	conf, err := readFile(cfile)
	if err != nil {
		return nil, err
	}
	conf.applyEnv()

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// readFile decodes cfile as it is on disk, without overrides.
func readFile(cfile string) (*Config, error) {
	conf := Default()

	f, err := os.Open(cfile)
	if err != nil {
		return nil, fmt.Errorf("can't open config file %s: %w", cfile, err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(conf); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	conf.Configfile = cfile
	return conf, nil
}

// LoadEnv loads a dotenv file into the process environment. A missing
// file is not an error.
func LoadEnv(file string) error {
	if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("can't load env file %s: %w", file, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if role := os.Getenv("GOGATE_ROLE"); role != "" {
		c.Link.Role = strings.ToLower(role)
	}
	if backend := os.Getenv("GOGATE_BACKEND"); backend != "" {
		c.Link.Backend = strings.ToLower(backend)
	}
	if name := os.Getenv("GOGATE_NAME"); name != "" {
		c.Link.Name = name
	}
}

// Validate checks the configuration for values the gate can't run with.
func (c *Config) Validate() error {
	if err := c.Gate.validate(c.Hardware.Channels); err != nil {
		return err
	}
	if err := c.Animation.Validate(); err != nil {
		return err
	}
	if err := c.Session.Validate(); err != nil {
		return err
	}
	if err := c.Link.validate(); err != nil {
		return err
	}
	if err := c.Hardware.validate(); err != nil {
		return err
	}
	if c.NightDim.Factor < 0 || c.NightDim.Factor > 1 {
		return fmt.Errorf("NightDim.Factor must be between 0 and 1, got %v", c.NightDim.Factor)
	}
	if c.Sound.Volume < 0 || c.Sound.Volume > 1 {
		return fmt.Errorf("Sound.Volume must be between 0 and 1, got %v", c.Sound.Volume)
	}
	if c.Sound.Enabled && (c.Sound.SampleRate <= 0 || c.Sound.FramesPerBuffer <= 0) {
		return errors.New("Sound.SampleRate and Sound.FramesPerBuffer must be positive")
	}
	return nil
}

func (g GateConfig) validate(channels int) error {
	if len(g.LockSequence) == 0 {
		return errors.New("Gate.LockSequence must not be empty")
	}
	for i, ch := range g.LockSequence {
		if ch < 0 || ch >= channels {
			return fmt.Errorf("Gate.LockSequence[%d] must be between 0 and %d, got %d", i, channels-1, ch)
		}
	}
	if g.Debounce < 0 {
		return errors.New("Gate.Debounce must not be negative")
	}
	if g.PollInterval <= 0 {
		return errors.New("Gate.PollInterval must be positive")
	}
	return checkMax(map[string]time.Duration{
		"Gate.Debounce":     g.Debounce,
		"Gate.PollInterval": g.PollInterval,
	})
}

func (a AnimationConfig) Validate() error {
	for name, v := range map[string]float64{
		"StartupBrightness": a.StartupBrightness,
		"ScanBrightness":    a.ScanBrightness,
		"LockBrightness":    a.LockBrightness,
		"PulseMin":          a.PulseMin,
		"PulseMax":          a.PulseMax,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("Animation.%s must be between 0 and 1, got %v", name, v)
		}
	}
	for name, d := range map[string]time.Duration{
		"StartupStepUp":   a.StartupStepUp,
		"StartupStepDown": a.StartupStepDown,
		"RotationMin":     a.RotationMin,
		"RotationMax":     a.RotationMax,
		"RotationStep":    a.RotationStep,
		"LockFlashOn":     a.LockFlashOn,
		"LockFlashOff":    a.LockFlashOff,
		"FinalFlashOn":    a.FinalFlashOn,
		"FinalFlashOff":   a.FinalFlashOff,
		"KawooshDuration": a.KawooshDuration,
		"KawooshOn":       a.KawooshOn,
		"KawooshOff":      a.KawooshOff,
		"IncomingStep":    a.IncomingStep,
		"PulsePeriod":     a.PulsePeriod,
		"CloseDuration":   a.CloseDuration,
	} {
		if d < 0 {
			return fmt.Errorf("Animation.%s must not be negative, got %v", name, d)
		}
		if d > MaxDuration {
			return fmt.Errorf("Animation.%s must not exceed %v, got %v", name, MaxDuration, d)
		}
	}
	if a.RotationMin > a.RotationMax {
		return fmt.Errorf("Animation.RotationMin (%v) must not exceed RotationMax (%v)", a.RotationMin, a.RotationMax)
	}
	if a.PulseMin > a.PulseMax {
		return fmt.Errorf("Animation.PulseMin (%v) must not exceed PulseMax (%v)", a.PulseMin, a.PulseMax)
	}
	if a.LockFlashes < 0 || a.FinalLockFlashes < 0 || a.CloseSteps < 0 {
		return errors.New("Animation flash and step counts must not be negative")
	}
	if a.SessionTick <= 0 {
		return errors.New("Animation.SessionTick must be positive")
	}
	return checkMax(map[string]time.Duration{"Animation.SessionTick": a.SessionTick})
}

func (s SessionConfig) Validate() error {
	if s.Timeout < 0 || s.MinOpen < 0 || s.CloseDelay < 0 {
		return errors.New("Session durations must not be negative")
	}
	return checkMax(map[string]time.Duration{
		"Session.Timeout":    s.Timeout,
		"Session.MinOpen":    s.MinOpen,
		"Session.CloseDelay": s.CloseDelay,
	})
}

func (l LinkConfig) validate() error {
	if !slices.Contains([]string{RolePassive, RoleActive, RoleNone}, l.Role) {
		return fmt.Errorf("Link.Role must be one of passive, active, none, got %q", l.Role)
	}
	if !slices.Contains([]string{BackendSim, BackendBLE}, l.Backend) {
		return fmt.Errorf("Link.Backend must be one of sim, ble, got %q", l.Backend)
	}
	if l.Role != RoleNone && l.Name == "" {
		return errors.New("Link.Name must not be empty")
	}
	if l.ScanTimeout <= 0 || l.DiscoveryTimeout <= 0 || l.ReconnectInterval <= 0 {
		return errors.New("Link.ScanTimeout, DiscoveryTimeout and ReconnectInterval must be positive")
	}
	if l.SendSettle < 0 {
		return errors.New("Link.SendSettle must not be negative")
	}
	return checkMax(map[string]time.Duration{
		"Link.ScanTimeout":       l.ScanTimeout,
		"Link.DiscoveryTimeout":  l.DiscoveryTimeout,
		"Link.ReconnectInterval": l.ReconnectInterval,
		"Link.SendSettle":        l.SendSettle,
		"Link.AdvertiseInterval": l.AdvertiseInterval,
	})
}

func (h HardwareConfig) validate() error {
	if h.Channels <= 0 {
		return fmt.Errorf("Hardware.Channels must be positive, got %d", h.Channels)
	}
	if err := validateRGB("Hardware.ChevronRGB", h.ChevronRGB); err != nil {
		return err
	}
	if len(h.ColorCorrection) != 3 {
		return fmt.Errorf("Hardware.ColorCorrection must have 3 components, got %d", len(h.ColorCorrection))
	}
	if len(h.ChannelLeds) > 0 {
		if len(h.ChannelLeds) != h.Channels {
			return fmt.Errorf("Hardware.ChannelLeds must list %d channels, got %d", h.Channels, len(h.ChannelLeds))
		}
		for ch, leds := range h.ChannelLeds {
			for _, led := range leds {
				if led < 0 || led >= h.StripLeds {
					return fmt.Errorf("Hardware.ChannelLeds[%d] LED index must be between 0 and %d, got %d", ch, h.StripLeds-1, led)
				}
			}
		}
	}
	if p := strings.ToLower(h.Trigger.Pull); p != "up" && p != "down" && p != "off" {
		return fmt.Errorf("Hardware.Trigger.Pull must be one of up, down, off, got %q", h.Trigger.Pull)
	}
	if b := h.Indicator; b.Connected < 0 || b.Searching < 0 || b.Busy < 0 {
		return errors.New("Hardware.Indicator periods must not be negative")
	}
	return checkMax(map[string]time.Duration{
		"Hardware.Indicator.Connected": h.Indicator.Connected,
		"Hardware.Indicator.Searching": h.Indicator.Searching,
		"Hardware.Indicator.Busy":      h.Indicator.Busy,
	})
}

// checkMax reports the first duration, in name order, beyond MaxDuration.
func checkMax(durations map[string]time.Duration) error {
	for _, name := range slices.Sorted(maps.Keys(durations)) {
		if d := durations[name]; d > MaxDuration {
			return fmt.Errorf("%s must not exceed %v, got %v", name, MaxDuration, d)
		}
	}
	return nil
}

func validateRGB(name string, rgb []float64) error {
	if len(rgb) != 3 {
		return fmt.Errorf("%s must have 3 components, got %d", name, len(rgb))
	}
	for _, v := range rgb {
		if v < 0 || v > 255 {
			return fmt.Errorf("%s values must be between 0 and 255, got %v", name, v)
		}
	}
	return nil
}
