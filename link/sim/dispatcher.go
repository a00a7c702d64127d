package sim

import (
	"sync"

	"github.com/gammazero/deque"

	"lautenbacher.net/gogate/link"
)

// dispatcher delivers the events of one radio in order on its own
// goroutine, the simulated interrupt context.
type dispatcher struct {
	mu      sync.Mutex
	queue   deque.Deque[link.Event]
	handler link.Handler
	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}
	once    sync.Once
}

func newDispatcher() *dispatcher {
	d := &dispatcher{
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) SetHandler(h link.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

func (d *dispatcher) post(ev link.Event) {
	d.mu.Lock()
	d.queue.PushBack(ev)
	d.mu.Unlock()
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case <-d.quit:
			return
		case <-d.wake:
		}
		for {
			d.mu.Lock()
			if d.queue.Len() == 0 {
				d.mu.Unlock()
				break
			}
			ev := d.queue.PopFront()
			h := d.handler
			d.mu.Unlock()
			if h != nil {
				h(ev)
			}
		}
	}
}

// stop ends the dispatcher goroutine. Pending events are dropped. It
// must not be called from the handler.
func (d *dispatcher) stop() {
	d.once.Do(func() {
		close(d.quit)
		<-d.done
	})
}
