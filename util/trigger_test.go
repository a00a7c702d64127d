package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrigger_RecognisesPressAfterDebounce(t *testing.T) {
	tr := NewTrigger(50 * time.Millisecond)

	assert.False(t, tr.Sample(false, 0))
	assert.False(t, tr.Sample(true, 10), "the rising edge only arms the debounce")
	assert.False(t, tr.Sample(true, 40))
	assert.True(t, tr.Sample(true, 60))
	assert.True(t, tr.Active())
}

func TestTrigger_HeldInputFiresOnce(t *testing.T) {
	tr := NewTrigger(50 * time.Millisecond)
	tr.Sample(true, 0)
	assert.True(t, tr.Sample(true, 50))
	for now := Ticks(60); now < 10000; now += 10 {
		assert.False(t, tr.Sample(true, now))
	}
}

func TestTrigger_BounceIsIgnored(t *testing.T) {
	tr := NewTrigger(50 * time.Millisecond)
	tr.Sample(true, 0)
	tr.Sample(false, 20)
	assert.False(t, tr.Sample(true, 30))
	assert.False(t, tr.Sample(true, 60), "debounce restarts on every rising edge")
	assert.True(t, tr.Sample(true, 80))
}

func TestTrigger_ReleaseRearms(t *testing.T) {
	tr := NewTrigger(0)
	tr.Sample(true, 0)
	assert.True(t, tr.Sample(true, 10))
	tr.Sample(false, 20)
	tr.Sample(true, 30)
	assert.True(t, tr.Sample(true, 40))
	assert.True(t, tr.Active())
}

func TestTrigger_WorksAcrossWraparound(t *testing.T) {
	tr := NewTrigger(50 * time.Millisecond)
	start := Ticks(0xFFFFFFF0)
	tr.Sample(true, start)
	assert.False(t, tr.Sample(true, start.Add(30*time.Millisecond)))
	assert.True(t, tr.Sample(true, start.Add(60*time.Millisecond)))
}
