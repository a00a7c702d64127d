package link

import (
	"fmt"
	"slices"
	"sync"
	"time"

	u "lautenbacher.net/gogate/util"
)

type written struct {
	conn   int
	handle uint16
	data   []byte
}

// fakeCentral records every request. With a clock and auto set it
// answers like a passive peer would, scheduling the events in virtual
// time.
type fakeCentral struct {
	mu      sync.Mutex
	handler Handler
	calls   []string
	writes  []written

	clock *u.ManualClock
	auto  bool
	// behaviour of the simulated peer
	noPeer      bool
	stallAt     string
	withoutCCCD bool
}

const (
	fakeConn   = 7
	fakeStart  = 10
	fakeValue  = 12
	fakeCCCD   = 13
	fakeEnd    = 14
	fakePeerID = "AA:BB:CC:DD:EE:FF"
)

func (f *fakeCentral) SetHandler(h Handler) {
	f.handler = h
}

func (f *fakeCentral) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeCentral) called(call string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Contains(f.calls, call)
}

func (f *fakeCentral) count(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeCentral) emit(ev Event) {
	f.handler(ev)
}

func (f *fakeCentral) later(step string, d time.Duration, events ...Event) {
	if !f.auto || f.stallAt == step {
		return
	}
	f.clock.After(d, func() {
		for _, ev := range events {
			f.emit(ev)
		}
	})
}

func (f *fakeCentral) Scan(timeout time.Duration) error {
	f.record("Scan")
	if f.noPeer {
		f.later("scan", timeout, Event{Kind: EventScanDone})
		return nil
	}
	f.later("scan", 300*time.Millisecond, Event{Kind: EventScanResult, Addr: fakePeerID, RSSI: -60, Data: AdvertisementPayload(ServiceUUID)})
	return nil
}

func (f *fakeCentral) StopScan() error {
	f.record("StopScan")
	return nil
}

func (f *fakeCentral) Connect(addr string) error {
	f.record("Connect %s", addr)
	f.later("connect", 40*time.Millisecond, Event{Kind: EventPeripheralConnect, Conn: fakeConn, Addr: addr})
	return nil
}

func (f *fakeCentral) Disconnect(conn int) error {
	f.record("Disconnect %d", conn)
	f.later("disconnect", 10*time.Millisecond, Event{Kind: EventPeripheralDisconnect, Conn: conn})
	return nil
}

func (f *fakeCentral) DiscoverServices(conn int) error {
	f.record("DiscoverServices %d", conn)
	f.later("services", 30*time.Millisecond,
		Event{Kind: EventServiceResult, Conn: conn, Start: 1, End: 5, UUID: CCCDUUID},
		Event{Kind: EventServiceResult, Conn: conn, Start: fakeStart, End: fakeEnd, UUID: ServiceUUID},
		Event{Kind: EventServiceDone, Conn: conn})
	return nil
}

func (f *fakeCentral) DiscoverCharacteristics(conn int, start, end uint16) error {
	f.record("DiscoverCharacteristics %d %d %d", conn, start, end)
	f.later("characteristics", 30*time.Millisecond,
		Event{Kind: EventCharacteristicResult, Conn: conn, Handle: fakeValue, UUID: CommandUUID},
		Event{Kind: EventCharacteristicDone, Conn: conn})
	return nil
}

func (f *fakeCentral) DiscoverDescriptors(conn int, start, end uint16) error {
	f.record("DiscoverDescriptors %d %d %d", conn, start, end)
	events := []Event{}
	if !f.withoutCCCD {
		events = append(events, Event{Kind: EventDescriptorResult, Conn: conn, Handle: fakeCCCD, UUID: CCCDUUID})
	}
	f.later("descriptors", 30*time.Millisecond, append(events, Event{Kind: EventDescriptorDone, Conn: conn})...)
	return nil
}

func (f *fakeCentral) Write(conn int, handle uint16, data []byte) error {
	f.mu.Lock()
	f.writes = append(f.writes, written{conn: conn, handle: handle, data: slices.Clone(data)})
	f.mu.Unlock()
	f.record("Write %d %d", conn, handle)
	return nil
}

func (f *fakeCentral) Close() error {
	f.record("Close")
	return nil
}

type fakePeripheral struct {
	handler     Handler
	calls       []string
	adv         []byte
	scanResp    []byte
	notified    []written
	dropped     []int
	registerErr error
}

func (f *fakePeripheral) SetHandler(h Handler) {
	f.handler = h
}

func (f *fakePeripheral) RegisterService(def ServiceDef) (uint16, error) {
	f.calls = append(f.calls, "RegisterService")
	if f.registerErr != nil {
		return 0, f.registerErr
	}
	return fakeValue, nil
}

func (f *fakePeripheral) Advertise(adv, scanResponse []byte, interval time.Duration) error {
	f.calls = append(f.calls, "Advertise")
	f.adv, f.scanResp = adv, scanResponse
	return nil
}

func (f *fakePeripheral) StopAdvertising() error {
	f.calls = append(f.calls, "StopAdvertising")
	return nil
}

func (f *fakePeripheral) Notify(conn int, handle uint16, data []byte) error {
	f.notified = append(f.notified, written{conn: conn, handle: handle, data: slices.Clone(data)})
	return nil
}

func (f *fakePeripheral) Disconnect(conn int) error {
	f.calls = append(f.calls, "Disconnect")
	f.dropped = append(f.dropped, conn)
	return nil
}

func (f *fakePeripheral) Close() error {
	f.calls = append(f.calls, "Close")
	return nil
}

func (f *fakePeripheral) count(call string) int {
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}
