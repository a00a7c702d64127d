package config

// RuntimeConfig is the part of the configuration that may be changed
// through the web API while the gate is running. Hardware and link
// settings are excluded.
type RuntimeConfig struct {
	Gate      GateConfig      `yaml:"Gate" json:"Gate"`
	Animation AnimationConfig `yaml:"Animation" json:"Animation"`
	Session   SessionConfig   `yaml:"Session" json:"Session"`
	NightDim  NightDimConfig  `yaml:"NightDim" json:"NightDim"`
	Sound     SoundConfig     `yaml:"Sound" json:"Sound"`
}

func (c *Config) Runtime() RuntimeConfig {
	return RuntimeConfig{
		Gate:      c.Gate,
		Animation: c.Animation,
		Session:   c.Session,
		NightDim:  c.NightDim,
		Sound:     c.Sound,
	}
}

func (c *Config) applyRuntime(r RuntimeConfig) {
	c.Gate = r.Gate
	c.Animation = r.Animation
	c.Session = r.Session
	c.NightDim = r.NightDim
	c.Sound = r.Sound
}
