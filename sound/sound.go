package sound

import (
	"math"
	"math/rand/v2"
	"sync"
)

// Effect names a sound cue of the gate.
type Effect int

const (
	EffectLock Effect = iota
	EffectFinalLock
	EffectIncoming
	EffectKawoosh
	EffectClose
)

func (e Effect) String() string {
	switch e {
	case EffectLock:
		return "lock"
	case EffectFinalLock:
		return "final-lock"
	case EffectIncoming:
		return "incoming"
	case EffectKawoosh:
		return "kawoosh"
	case EffectClose:
		return "close"
	default:
		return "unknown"
	}
}

// Player starts effects without blocking the caller.
type Player interface {
	Play(e Effect)
	Close() error
}

// Silent is the Player used when sound is disabled.
type Silent struct{}

func (Silent) Play(Effect) {}

func (Silent) Close() error { return nil }

// Synthesize renders effect e as mono samples in [-1, 1].
func Synthesize(e Effect, sampleRate float64) []float32 {
	switch e {
	case EffectLock:
		return decayingTone(sampleRate, 120, 180, 0, 30)
	case EffectFinalLock:
		return decayingTone(sampleRate, 250, 140, 280, 14)
	case EffectIncoming:
		return decayingTone(sampleRate, 60, 600, 0, 60)
	case EffectKawoosh:
		return whoosh(sampleRate, 1200)
	case EffectClose:
		return sweep(sampleRate, 500, 400, 100)
	default:
		return nil
	}
}

func samples(rate float64, millis int) int {
	return int(rate * float64(millis) / 1000)
}

func decayingTone(rate float64, millis int, f1, f2, decay float64) []float32 {
	n := samples(rate, millis)
	out := make([]float32, n)
	for i := range out {
		t := float64(i) / rate
		v := math.Sin(2 * math.Pi * f1 * t)
		if f2 > 0 {
			v = 0.6*v + 0.4*math.Sin(2*math.Pi*f2*t)
		}
		out[i] = float32(v * math.Exp(-decay*t))
	}
	return out
}

// whoosh is filtered noise under a rise and fall envelope. The noise
// source is seeded so every kawoosh sounds the same.
func whoosh(rate float64, millis int) []float32 {
	n := samples(rate, millis)
	out := make([]float32, n)
	rng := rand.New(rand.NewPCG(0x6a74, 0x7374))
	var lp float64
	for i := range out {
		pos := float64(i) / float64(n)
		env := math.Sin(math.Pi * pos)
		lp += 0.08 * (rng.Float64()*2 - 1 - lp)
		out[i] = float32(clamp(4*lp*env, -1, 1))
	}
	return out
}

func sweep(rate float64, millis int, from, to float64) []float32 {
	n := samples(rate, millis)
	out := make([]float32, n)
	var phase float64
	for i := range out {
		pos := float64(i) / float64(n)
		f := from + (to-from)*pos
		phase += 2 * math.Pi * f / rate
		out[i] = float32(math.Sin(phase) * (1 - pos))
	}
	return out
}

type voice struct {
	samples []float32
	pos     int
}

// mixer sums the running effects into an output buffer. It is filled
// from the audio callback and fed from Play.
type mixer struct {
	mu         sync.Mutex
	sampleRate float64
	volume     float32
	voices     []*voice
	cache      map[Effect][]float32
}

func newMixer(sampleRate, volume float64) *mixer {
	return &mixer{
		sampleRate: sampleRate,
		volume:     float32(volume),
		cache:      make(map[Effect][]float32),
	}
}

func (m *mixer) add(e Effect) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pcm, ok := m.cache[e]
	if !ok {
		pcm = Synthesize(e, m.sampleRate)
		m.cache[e] = pcm
	}
	if len(pcm) > 0 {
		m.voices = append(m.voices, &voice{samples: pcm})
	}
}

func (m *mixer) fill(out []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range out {
		var sum float32
		for _, v := range m.voices {
			if v.pos < len(v.samples) {
				sum += v.samples[v.pos]
				v.pos++
			}
		}
		out[i] = float32(clamp(float64(sum*m.volume), -1, 1))
	}
	active := m.voices[:0]
	for _, v := range m.voices {
		if v.pos < len(v.samples) {
			active = append(active, v)
		}
	}
	m.voices = active
}

func (m *mixer) playing() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
