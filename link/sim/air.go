// Package sim is an in-memory radio medium. Peripherals and centrals
// created on the same Air see each other's advertisements and exchange
// GATT traffic; all results are delivered asynchronously, as a real
// radio stack would.
package sim

import (
	"bytes"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"lautenbacher.net/gogate/link"
)

// Fixed attribute handles of the one service a simulated peripheral
// can hold.
const (
	serviceStart uint16 = 1
	valueHandle  uint16 = 3
	cccdHandle   uint16 = 4
	serviceEnd   uint16 = 4

	defaultRSSI = -48

	statusOK            = 0
	statusInvalidHandle = 1
)

type connection struct {
	central    *Central
	peripheral *Peripheral
	notify     bool
}

// Air connects simulated radios. All radio state is guarded by one
// mutex, events are posted to the radios' dispatchers outside of any
// handler.
type Air struct {
	mu          sync.Mutex
	peripherals map[string]*Peripheral
	centrals    map[string]*Central
	conns       map[int]*connection
	nextConn    int
}

func NewAir() *Air {
	return &Air{
		peripherals: make(map[string]*Peripheral),
		centrals:    make(map[string]*Central),
		conns:       make(map[int]*connection),
		nextConn:    1,
	}
}

// Peripheral is a simulated advertising radio.
type Peripheral struct {
	*dispatcher
	air          *Air
	addr         string
	service      *link.ServiceDef
	value        []byte
	advertising  bool
	adv          []byte
	noDescriptor bool
}

// Central is a simulated scanning radio.
type Central struct {
	*dispatcher
	air      *Air
	addr     string
	scanning bool
	scanGen  int
	timer    *time.Timer
}

func (a *Air) NewPeripheral(addr string) *Peripheral {
	p := &Peripheral{dispatcher: newDispatcher(), air: a, addr: addr}
	a.mu.Lock()
	a.peripherals[addr] = p
	a.mu.Unlock()
	return p
}

func (a *Air) NewCentral(addr string) *Central {
	c := &Central{dispatcher: newDispatcher(), air: a, addr: addr}
	a.mu.Lock()
	a.centrals[addr] = c
	a.mu.Unlock()
	return c
}

// Sever drops every connection of the radio with addr, as if it went
// out of range.
func (a *Air) Sever(addr string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, id := range slices.Sorted(maps.Keys(a.conns)) {
		conn := a.conns[id]
		if conn.central.addr == addr || conn.peripheral.addr == addr {
			a.dropLocked(id)
		}
	}
}

// dropLocked must be called with a.mu held.
func (a *Air) dropLocked(id int) {
	conn, ok := a.conns[id]
	if !ok {
		return
	}
	delete(a.conns, id)
	conn.central.post(link.Event{Kind: link.EventPeripheralDisconnect, Conn: id, Addr: conn.peripheral.addr})
	conn.peripheral.post(link.Event{Kind: link.EventCentralDisconnect, Conn: id, Addr: conn.central.addr})
}

// lookupLocked must be called with a.mu held.
func (a *Air) lookupLocked(id int) (*connection, error) {
	conn, ok := a.conns[id]
	if !ok {
		return nil, fmt.Errorf("connection %d: %w", id, link.ErrNotReady)
	}
	return conn, nil
}

// HideDescriptor makes the peripheral's characteristic lack a notify
// descriptor.
func (p *Peripheral) HideDescriptor() {
	p.air.mu.Lock()
	defer p.air.mu.Unlock()
	p.noDescriptor = true
}

func (p *Peripheral) RegisterService(def link.ServiceDef) (uint16, error) {
	p.air.mu.Lock()
	defer p.air.mu.Unlock()
	if p.service != nil {
		return 0, fmt.Errorf("peripheral %s: service already registered", p.addr)
	}
	p.service = &def
	p.value = bytes.Clone(def.Initial)
	return valueHandle, nil
}

func (p *Peripheral) Advertise(adv, scanResponse []byte, interval time.Duration) error {
	p.air.mu.Lock()
	defer p.air.mu.Unlock()
	p.advertising = true
	p.adv = bytes.Clone(adv)
	for _, c := range p.air.centrals {
		if c.scanning {
			c.post(p.scanResult())
		}
	}
	return nil
}

// scanResult must be called with air.mu held.
func (p *Peripheral) scanResult() link.Event {
	return link.Event{Kind: link.EventScanResult, Addr: p.addr, RSSI: defaultRSSI, Data: bytes.Clone(p.adv)}
}

func (p *Peripheral) StopAdvertising() error {
	p.air.mu.Lock()
	defer p.air.mu.Unlock()
	p.advertising = false
	return nil
}

func (p *Peripheral) Notify(id int, handle uint16, data []byte) error {
	p.air.mu.Lock()
	defer p.air.mu.Unlock()
	conn, err := p.air.lookupLocked(id)
	if err != nil {
		return err
	}
	if handle != valueHandle || p.service == nil {
		return fmt.Errorf("notify on unknown handle %d", handle)
	}
	p.value = bytes.Clone(data)
	if !conn.notify {
		slog.Debug("Notification dropped, not subscribed", "addr", p.addr, "conn", id)
		return nil
	}
	conn.central.post(link.Event{Kind: link.EventNotify, Conn: id, Handle: handle, Data: bytes.Clone(data)})
	return nil
}

func (p *Peripheral) Disconnect(id int) error {
	p.air.mu.Lock()
	defer p.air.mu.Unlock()
	conn, err := p.air.lookupLocked(id)
	if err != nil {
		return err
	}
	if conn.peripheral != p {
		return fmt.Errorf("connection %d belongs to another peripheral", id)
	}
	p.air.dropLocked(id)
	return nil
}

func (p *Peripheral) Close() error {
	p.air.mu.Lock()
	p.advertising = false
	for id, conn := range p.air.conns {
		if conn.peripheral == p {
			p.air.dropLocked(id)
		}
	}
	delete(p.air.peripherals, p.addr)
	p.air.mu.Unlock()
	p.stop()
	return nil
}

// Scan reports every advertising peripheral now and any that starts
// advertising until timeout or StopScan, followed by ScanDone.
func (c *Central) Scan(timeout time.Duration) error {
	c.air.mu.Lock()
	defer c.air.mu.Unlock()
	if c.scanning {
		return fmt.Errorf("central %s: scan already running", c.addr)
	}
	c.scanning = true
	c.scanGen++
	gen := c.scanGen
	for _, addr := range slices.Sorted(maps.Keys(c.air.peripherals)) {
		if p := c.air.peripherals[addr]; p.advertising {
			c.post(p.scanResult())
		}
	}
	c.timer = time.AfterFunc(timeout, func() {
		c.air.mu.Lock()
		defer c.air.mu.Unlock()
		if c.scanning && c.scanGen == gen {
			c.endScanLocked()
		}
	})
	return nil
}

// endScanLocked must be called with air.mu held.
func (c *Central) endScanLocked() {
	c.scanning = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.post(link.Event{Kind: link.EventScanDone})
}

func (c *Central) StopScan() error {
	c.air.mu.Lock()
	defer c.air.mu.Unlock()
	if c.scanning {
		c.endScanLocked()
	}
	return nil
}

func (c *Central) Connect(addr string) error {
	c.air.mu.Lock()
	defer c.air.mu.Unlock()
	p, ok := c.air.peripherals[addr]
	if !ok {
		return fmt.Errorf("no peripheral with address %s", addr)
	}
	id := c.air.nextConn
	c.air.nextConn++
	c.air.conns[id] = &connection{central: c, peripheral: p}
	c.post(link.Event{Kind: link.EventPeripheralConnect, Conn: id, Addr: addr})
	p.post(link.Event{Kind: link.EventCentralConnect, Conn: id, Addr: c.addr})
	return nil
}

func (c *Central) Disconnect(id int) error {
	c.air.mu.Lock()
	defer c.air.mu.Unlock()
	if _, err := c.air.lookupLocked(id); err != nil {
		return err
	}
	c.air.dropLocked(id)
	return nil
}

func (c *Central) DiscoverServices(id int) error {
	c.air.mu.Lock()
	defer c.air.mu.Unlock()
	conn, err := c.air.lookupLocked(id)
	if err != nil {
		return err
	}
	if svc := conn.peripheral.service; svc != nil {
		c.post(link.Event{Kind: link.EventServiceResult, Conn: id, Start: serviceStart, End: serviceEnd, UUID: svc.Service})
	}
	c.post(link.Event{Kind: link.EventServiceDone, Conn: id, Status: statusOK})
	return nil
}

func (c *Central) DiscoverCharacteristics(id int, start, end uint16) error {
	c.air.mu.Lock()
	defer c.air.mu.Unlock()
	conn, err := c.air.lookupLocked(id)
	if err != nil {
		return err
	}
	if svc := conn.peripheral.service; svc != nil && start <= valueHandle && valueHandle <= end {
		c.post(link.Event{Kind: link.EventCharacteristicResult, Conn: id, Handle: valueHandle, UUID: svc.Characteristic})
	}
	c.post(link.Event{Kind: link.EventCharacteristicDone, Conn: id, Status: statusOK})
	return nil
}

func (c *Central) DiscoverDescriptors(id int, start, end uint16) error {
	c.air.mu.Lock()
	defer c.air.mu.Unlock()
	conn, err := c.air.lookupLocked(id)
	if err != nil {
		return err
	}
	p := conn.peripheral
	if p.service != nil && !p.noDescriptor && start <= cccdHandle && cccdHandle <= end {
		c.post(link.Event{Kind: link.EventDescriptorResult, Conn: id, Handle: cccdHandle, UUID: link.CCCDUUID})
	}
	c.post(link.Event{Kind: link.EventDescriptorDone, Conn: id, Status: statusOK})
	return nil
}

func (c *Central) Write(id int, handle uint16, data []byte) error {
	c.air.mu.Lock()
	defer c.air.mu.Unlock()
	conn, err := c.air.lookupLocked(id)
	if err != nil {
		return err
	}
	p := conn.peripheral
	status := statusOK
	switch {
	case handle == valueHandle && p.service != nil:
		p.value = bytes.Clone(data)
		p.post(link.Event{Kind: link.EventWrite, Conn: id, Handle: handle, Data: bytes.Clone(data)})
	case handle == cccdHandle && p.service != nil && !p.noDescriptor:
		conn.notify = bytes.Equal(data, link.NotifyEnable)
	default:
		status = statusInvalidHandle
	}
	c.post(link.Event{Kind: link.EventWriteDone, Conn: id, Handle: handle, Status: status})
	return nil
}

func (c *Central) Close() error {
	c.air.mu.Lock()
	c.scanning = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	for id, conn := range c.air.conns {
		if conn.central == c {
			c.air.dropLocked(id)
		}
	}
	delete(c.air.centrals, c.addr)
	c.air.mu.Unlock()
	c.stop()
	return nil
}

var (
	_ link.Peripheral = (*Peripheral)(nil)
	_ link.Central    = (*Central)(nil)
)
