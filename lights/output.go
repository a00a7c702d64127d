package lights

import (
	"sync"

	"golang.org/x/exp/constraints"

	u "lautenbacher.net/gogate/util"
)

// Output is a set of independently addressable brightness channels.
// Brightness values are clamped to [0, 1]; indices outside the range
// are ignored.
type Output interface {
	Count() int
	Set(index int, brightness float64)
	Get(index int) float64
	SetAll(brightness float64)
	SetSubset(indices []int, brightness float64)
	Off()
}

// Buffer is an in-memory Output. Every change publishes a snapshot of
// all channels under the buffer's name, the platform display driver
// picks it up from there.
type Buffer struct {
	mu     sync.Mutex
	name   string
	values []float64
	sink   *u.AtomicMapEvent[[]float64]
}

// NewBuffer creates a Buffer with count channels, all off. sink may be nil.
func NewBuffer(name string, count int, sink *u.AtomicMapEvent[[]float64]) *Buffer {
	return &Buffer{
		name:   name,
		values: make([]float64, max(count, 0)),
		sink:   sink,
	}
}

func (b *Buffer) Name() string {
	return b.name
}

func (b *Buffer) Count() int {
	return len(b.values)
}

func (b *Buffer) Set(index int, brightness float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index >= len(b.values) {
		return
	}
	b.values[index] = clamp(brightness, 0, 1)
	b.publish()
}

func (b *Buffer) Get(index int) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if index < 0 || index >= len(b.values) {
		return 0
	}
	return b.values[index]
}

func (b *Buffer) SetAll(brightness float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := clamp(brightness, 0, 1)
	for i := range b.values {
		b.values[i] = v
	}
	b.publish()
}

func (b *Buffer) SetSubset(indices []int, brightness float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := clamp(brightness, 0, 1)
	for _, i := range indices {
		if i >= 0 && i < len(b.values) {
			b.values[i] = v
		}
	}
	b.publish()
}

func (b *Buffer) Off() {
	b.SetAll(0)
}

// Snapshot returns a copy of all channel values.
func (b *Buffer) Snapshot() []float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	ret := make([]float64, len(b.values))
	copy(ret, b.values)
	return ret
}

// publish must be called with b.mu held.
func (b *Buffer) publish() {
	if b.sink == nil {
		return
	}
	snapshot := make([]float64, len(b.values))
	copy(snapshot, b.values)
	b.sink.Send(b.name, snapshot)
}

func clamp[T constraints.Float](v, lo, hi T) T {
	return min(max(v, lo), hi)
}
