package animation

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"sync/atomic"
	"time"

	c "lautenbacher.net/gogate/config"
	"lautenbacher.net/gogate/lights"
	"lautenbacher.net/gogate/sound"
	u "lautenbacher.net/gogate/util"
)

const (
	startupPause    = 300 * time.Millisecond
	startupHold     = 200 * time.Millisecond
	scanPoll        = 5 * time.Millisecond
	kawooshSettle   = 150 * time.Millisecond
	kawooshPhase2On = 10 * time.Millisecond
	// upper bound for a single sleep between two tick callbacks
	tickSlice = 20 * time.Millisecond
)

// Animator plays the gate sequences on a lights.Output. All sequences
// block the caller; the tick callback runs at least every tickSlice so
// the caller can keep polling while a sequence is running.
type Animator struct {
	out     lights.Output
	cfg     c.AnimationConfig
	session c.SessionConfig
	clock   u.Clock
	rng     *rand.Rand
	tick    func()
	sound   sound.Player
	cancel  atomic.Bool
	abort   atomic.Bool
}

func NewAnimator(out lights.Output, cfg c.AnimationConfig, session c.SessionConfig, clock u.Clock) *Animator {
	seed := uint64(clock.Now())
	return &Animator{
		out:     out,
		cfg:     cfg,
		session: session,
		clock:   clock,
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		tick:    func() {},
		sound:   sound.Silent{},
	}
}

// SetTick installs the per tick callback, nil restores the no-op.
func (a *Animator) SetTick(fn func()) {
	if fn == nil {
		fn = func() {}
	}
	a.tick = fn
}

func (a *Animator) SetSound(p sound.Player) {
	if p == nil {
		p = sound.Silent{}
	}
	a.sound = p
}

// Cancel asks a running StableSession to end on its next tick. It is
// safe to call from any goroutine and from the tick callback.
func (a *Animator) Cancel() {
	a.cancel.Store(true)
}

func (a *Animator) ResetCancel() {
	a.cancel.Store(false)
}

func (a *Animator) Cancelled() bool {
	return a.cancel.Load()
}

// Abort makes the running and all following sequences skip to their
// terminal light state without waiting. Used on shutdown.
func (a *Animator) Abort() {
	a.abort.Store(true)
	a.cancel.Store(true)
}

func (a *Animator) Aborted() bool {
	return a.abort.Load()
}

// Startup sweeps all channels up and down once.
func (a *Animator) Startup() {
	a.out.Off()
	a.wait(startupPause)
	for i := 0; i < a.out.Count(); i++ {
		a.out.Set(i, a.cfg.StartupBrightness)
		a.wait(a.cfg.StartupStepUp)
	}
	a.wait(startupHold)
	for i := a.out.Count() - 1; i >= 0; i-- {
		a.out.Set(i, 0)
		a.wait(a.cfg.StartupStepDown)
	}
	a.out.Off()
	a.wait(startupPause)
}

// DialOut locks the channels of seq in order and returns them. Every
// chevron but the last is preceded by a rotation of the ring; the last
// one gets the longer final lock. The transition effect is left to the
// caller.
func (a *Animator) DialOut(seq []int) []int {
	a.out.Off()
	locked := make([]int, 0, len(seq))
	direction := 1

	for step, ch := range seq {
		if a.Aborted() {
			a.out.SetSubset(seq, a.cfg.LockBrightness)
			return append(locked[:0], seq...)
		}
		if step == len(seq)-1 {
			a.sound.Play(sound.EffectFinalLock)
			a.lockChevron(ch, a.cfg.FinalLockFlashes, a.cfg.FinalFlashOn, a.cfg.FinalFlashOff)
		} else {
			a.rotate(locked, a.rotationDuration(), direction)
			direction = -direction
			a.sound.Play(sound.EffectLock)
			a.lockChevron(ch, a.cfg.LockFlashes, a.cfg.LockFlashOn, a.cfg.LockFlashOff)
		}
		locked = append(locked, ch)
		slog.Debug("Chevron locked", "channel", ch, "step", step+1, "of", len(seq))
	}
	return locked
}

// DialIn is the receiving side of a dial: one quick flash per chevron
// followed by the transition effect.
func (a *Animator) DialIn(seq []int) {
	a.out.Off()
	locked := make([]int, 0, len(seq))
	for _, ch := range seq {
		if a.Aborted() {
			a.out.SetSubset(seq, a.cfg.LockBrightness)
			return
		}
		a.sound.Play(sound.EffectIncoming)
		a.lockChevron(ch, 1, a.cfg.IncomingStep, a.cfg.IncomingStep/2)
		locked = append(locked, ch)
		a.wait(a.cfg.IncomingStep)
	}
	a.TransitionEffect(locked)
}

// TransitionEffect plays the kawoosh. Its phases are fractions of
// KawooshDuration: a bouncing marker until 43% of the time is left,
// then all channels flashing until 18% is left. Afterwards the locked
// channels are restored.
func (a *Animator) TransitionEffect(locked []int) {
	duration := a.cfg.KawooshDuration
	count := a.out.Count()
	if duration <= 0 || count == 0 {
		a.out.Off()
		a.out.SetSubset(locked, a.cfg.LockBrightness)
		return
	}
	a.sound.Play(sound.EffectKawoosh)

	end := a.clock.Now().Add(duration)
	phase2 := duration * 43 / 100
	phase3 := duration * 18 / 100
	direction := 1
	marker := 0

	for !a.Aborted() {
		before := a.clock.Now()
		remaining := time.Duration(end.Diff(before)) * time.Millisecond
		if remaining <= 0 {
			break
		}
		switch {
		case remaining > phase2:
			a.out.Set(marker, 1)
			a.wait(a.cfg.KawooshOn)
			a.out.Set(marker, 0)
			a.wait(a.cfg.KawooshOff)
			marker = mod(marker+direction, count)
			if marker == 0 || marker == count-1 {
				direction = -direction
			}
		case remaining > phase3:
			a.out.SetAll(1)
			a.wait(a.cfg.KawooshOn + kawooshPhase2On)
			a.out.SetAll(0)
			a.wait(a.cfg.KawooshOff + kawooshPhase2On)
		}
		a.tick()
		if remaining <= phase3 {
			break
		}
		a.ensureProgress(before)
	}

	a.out.Off()
	a.out.SetSubset(locked, a.cfg.LockBrightness)
	a.wait(kawooshSettle)
}

// StableSession lets the locked chevrons breathe until the first of:
// timeout elapsed, Cancel called, or keepOpen (if given) reporting
// false for CloseDelay once MinOpen has passed. A true reading after
// MinOpen discards a pending release.
func (a *Animator) StableSession(locked []int, timeout time.Duration, keepOpen func() bool) {
	start := a.clock.Now()
	end := start.Add(timeout)
	minOpenEnd := start.Add(a.session.MinOpen)
	released := false
	var releasedAt u.Ticks

	for {
		now := a.clock.Now()
		if a.cancel.Load() || a.Aborted() {
			slog.Info("Wormhole cancelled", "after", now.Since(start))
			return
		}
		if now.Reached(end) {
			slog.Info("Wormhole timed out", "after", now.Since(start))
			return
		}
		if keepOpen != nil && now.Reached(minOpenEnd) {
			if keepOpen() {
				released = false
			} else if !released {
				released = true
				releasedAt = now
			} else if now.Since(releasedAt) >= a.session.CloseDelay {
				slog.Info("Wormhole released", "after", now.Since(start))
				return
			}
		}

		a.out.SetSubset(locked, Breath(now, a.cfg.PulsePeriod, a.cfg.PulseMin, a.cfg.PulseMax))
		a.clock.Sleep(max(a.cfg.SessionTick, time.Millisecond))
		a.tick()
	}
}

// Close fades everything to dark and switches all channels off.
func (a *Animator) Close(locked []int) {
	a.sound.Play(sound.EffectClose)
	a.fadeAllTo(0, a.cfg.CloseDuration, a.cfg.CloseSteps)
	a.out.Off()
}

// Breath is the brightness of the breathing curve at now: a raised
// cosine over period between lo and hi. It depends only on now modulo
// period.
func Breath(now u.Ticks, period time.Duration, lo, hi float64) float64 {
	periodMs := uint32(period.Milliseconds())
	if periodMs == 0 {
		return hi
	}
	phase := float64(uint32(now)%periodMs) / float64(periodMs)
	s := 0.5 - 0.5*math.Cos(2*math.Pi*phase)
	return lo + s*(hi-lo)
}

func (a *Animator) rotationDuration() time.Duration {
	span := a.cfg.RotationMax - a.cfg.RotationMin
	if span <= 0 {
		return a.cfg.RotationMin
	}
	return a.cfg.RotationMin + time.Duration(a.rng.Int64N(int64(span)+1))
}

// rotate moves a dim scan marker over all unlocked channels for
// duration, starting at the first unlocked channel and walking in
// direction. Locked channels are never touched.
func (a *Animator) rotate(locked []int, duration time.Duration, direction int) {
	var unlocked []int
	for i := 0; i < a.out.Count(); i++ {
		if !slices.Contains(locked, i) {
			unlocked = append(unlocked, i)
		}
	}
	if len(unlocked) == 0 || duration <= 0 {
		a.wait(duration)
		return
	}

	end := a.clock.Now().Add(duration)
	last := a.clock.Now()
	prev := unlocked[0]
	pos := 0

	for !a.Aborted() && !a.clock.Now().Reached(end) {
		now := a.clock.Now()
		if now.Since(last) >= a.cfg.RotationStep {
			a.out.Set(prev, 0)
			cur := unlocked[mod(pos, len(unlocked))]
			a.out.Set(cur, a.cfg.ScanBrightness)
			prev = cur
			pos += direction
			last = now
		}
		a.clock.Sleep(scanPoll)
		a.tick()
	}

	a.out.SetSubset(unlocked, 0)
}

// lockChevron flashes ch and leaves it at lock brightness.
func (a *Animator) lockChevron(ch, flashes int, on, off time.Duration) {
	for i := 0; i < flashes && !a.Aborted(); i++ {
		a.out.Set(ch, a.cfg.LockBrightness)
		a.wait(on)
		a.out.Set(ch, 0)
		a.wait(off)
	}
	a.out.Set(ch, a.cfg.LockBrightness)
}

// fadeAllTo moves every channel linearly to target in steps. Degenerate
// durations or step counts set the target directly.
func (a *Animator) fadeAllTo(target float64, duration time.Duration, steps int) {
	count := a.out.Count()
	if steps < 1 || duration < time.Millisecond || a.Aborted() {
		a.out.SetAll(target)
		return
	}
	starts := make([]float64, count)
	for i := range starts {
		starts[i] = a.out.Get(i)
	}
	stepDelay := max(time.Millisecond, duration/time.Duration(steps))
	for s := 0; s <= steps; s++ {
		if a.Aborted() {
			break
		}
		f := float64(s) / float64(steps)
		for i, from := range starts {
			a.out.Set(i, from+(target-from)*f)
		}
		a.wait(stepDelay)
	}
	a.out.SetAll(target)
}

// wait sleeps d in slices of at most tickSlice, running the tick
// callback after each slice. It returns at once when aborted.
func (a *Animator) wait(d time.Duration) {
	for d > 0 && !a.Aborted() {
		slice := min(d, tickSlice)
		a.clock.Sleep(slice)
		d -= slice
		a.tick()
	}
}

// ensureProgress keeps time bound loops moving when all configured
// delays are zero.
func (a *Animator) ensureProgress(before u.Ticks) {
	if a.clock.Now() == before {
		a.clock.Sleep(time.Millisecond)
	}
}

func mod(a, n int) int {
	return ((a % n) + n) % n
}
