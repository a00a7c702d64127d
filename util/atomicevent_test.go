package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtomicEvent_KeepsLatestValue(t *testing.T) {
	ae := NewAtomicEvent[string]()
	ae.Send("idle")
	ae.Send("dialing")
	ae.Send("open")

	select {
	case <-ae.Channel():
	default:
		t.Fatal("should have received a notification")
	}
	select {
	case <-ae.Channel():
		t.Fatal("multiple sends must collapse into one notification")
	default:
	}
	assert.Equal(t, "open", ae.Value())
	assert.False(t, ae.HasPending())
}

func TestAtomicEvent_ConcurrentReaderNeverSeesStaleValue(t *testing.T) {
	ae := NewAtomicEvent[int]()
	done := make(chan struct{})

	go func() {
		for i := 0; i < 1000; i++ {
			ae.Send(i)
		}
		close(done)
	}()

	lastRead := -1
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ae.Channel():
				val := ae.Value()
				if val < lastRead {
					t.Errorf("read a stale value: got %d, last was %d", val, lastRead)
				}
				lastRead = val
			case <-done:
				return
			}
		}
	}()
	wg.Wait()
	assert.Equal(t, 999, ae.Value())
}

func TestAtomicMapEvent_ValuePerKey(t *testing.T) {
	ae := NewAtomicMapEvent[[]int]()
	ae.Send("local", []int{1, 2})
	ae.Send("peer", []int{3})
	ae.Send("local", []int{4})

	assert.True(t, ae.HasPending())
	<-ae.Channel()
	assert.False(t, ae.HasPending())

	values := ae.Value()
	assert.Equal(t, []int{4}, values["local"])
	assert.Equal(t, []int{3}, values["peer"])

	values["local"] = nil
	assert.Equal(t, []int{4}, ae.Value()["local"], "Value must return a copy of the map")
}

func TestLatch(t *testing.T) {
	var l Latch
	assert.False(t, l.IsSet())
	assert.False(t, l.Consume())

	l.Set()
	assert.True(t, l.IsSet())
	assert.True(t, l.IsSet(), "reading must not reset the latch")
	assert.True(t, l.Consume())
	assert.False(t, l.IsSet())

	l.Set()
	l.Clear()
	assert.False(t, l.Consume())
}

func TestLatch_ConcurrentSetConsumedOnce(t *testing.T) {
	var l Latch
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Set()
		}()
	}
	wg.Wait()
	assert.True(t, l.Consume())
	assert.False(t, l.Consume())
}
