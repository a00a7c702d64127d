package util

import "time"

// holdOff is how far the debounce deadline is pushed after a recognised
// press, so a held trigger does not fire again.
const holdOff = 2000 * time.Second

// Trigger debounces a sampled boolean input. A press is recognised once
// the input has been active continuously for the debounce time; it then
// stays disarmed until the input goes inactive again.
type Trigger struct {
	debounce   time.Duration
	prevActive bool
	deadline   Ticks
}

func NewTrigger(debounce time.Duration) *Trigger {
	return &Trigger{debounce: debounce}
}

// Sample feeds one reading taken at now and reports whether it
// completes a press.
func (t *Trigger) Sample(active bool, now Ticks) bool {
	pressed := false
	if active && !t.prevActive {
		t.deadline = now.Add(t.debounce)
	} else if active && now.Reached(t.deadline) {
		pressed = true
		t.deadline = now.Add(holdOff)
	}
	t.prevActive = active
	return pressed
}

// Active returns the last sampled input level.
func (t *Trigger) Active() bool {
	return t.prevActive
}
