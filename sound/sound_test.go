package sound

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSynthesize_LengthsAndRange(t *testing.T) {
	const rate = 8000
	lengths := map[Effect]int{
		EffectLock:      960,
		EffectFinalLock: 2000,
		EffectIncoming:  480,
		EffectKawoosh:   9600,
		EffectClose:     4000,
	}
	for effect, want := range lengths {
		samples := Synthesize(effect, rate)
		assert.Len(t, samples, want, effect.String())
		for _, s := range samples {
			if s < -1 || s > 1 {
				t.Fatalf("%s: sample %v out of range", effect, s)
			}
		}
	}
	assert.Nil(t, Synthesize(Effect(99), rate))
}

func TestSynthesize_KawooshIsRepeatable(t *testing.T) {
	assert.Equal(t, Synthesize(EffectKawoosh, 4000), Synthesize(EffectKawoosh, 4000))
}

func TestMixer_PlaysVoicesToCompletion(t *testing.T) {
	m := newMixer(1000, 1)
	m.add(EffectIncoming)
	m.add(EffectIncoming)
	assert.Equal(t, 2, m.playing())

	single := Synthesize(EffectIncoming, 1000)
	out := make([]float32, 10)
	m.fill(out)
	for i := range out {
		want := 2 * single[i]
		if want > 1 {
			want = 1
		} else if want < -1 {
			want = -1
		}
		assert.InDelta(t, want, out[i], 1e-6)
	}

	rest := make([]float32, len(single))
	m.fill(rest)
	assert.Equal(t, 0, m.playing())

	m.fill(out)
	for _, s := range out {
		assert.Equal(t, float32(0), s)
	}
}

func TestSilent(t *testing.T) {
	var p Player = Silent{}
	p.Play(EffectKawoosh)
	assert.NoError(t, p.Close())
	assert.Equal(t, "unknown", Effect(42).String())
}
