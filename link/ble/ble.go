//go:build linux && ble

// Package ble drives the gate link over BlueZ. The blocking calls of
// the bluetooth package run on their own goroutines and report back as
// link events; attribute handles are synthesized because BlueZ hides
// them.
package ble

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"lautenbacher.net/gogate/link"
)

const (
	serviceStart uint16 = 1
	valueHandle  uint16 = 3
	cccdHandle   uint16 = 4
	serviceEnd   uint16 = 4
)

type events struct {
	mu      sync.Mutex
	handler link.Handler
}

func (e *events) SetHandler(h link.Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

func (e *events) post(ev link.Event) {
	e.mu.Lock()
	h := e.handler
	e.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func enable() (*bluetooth.Adapter, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable bluetooth adapter: %w", err)
	}
	return adapter, nil
}

func toBluetooth(id fmt.Stringer) (bluetooth.UUID, error) {
	return bluetooth.ParseUUID(id.String())
}

// Peripheral serves the gate characteristic through BlueZ. Every
// connected central gets its own id; BlueZ does not say which central
// wrote, so writes are reported on the oldest live connection.
type Peripheral struct {
	events
	adapter *bluetooth.Adapter
	char    bluetooth.Characteristic
	adv     *bluetooth.Advertisement
	name    string
	mu      sync.Mutex
	devices map[int]bluetooth.Device
	nextID  int
}

func NewPeripheral(name string) (link.Peripheral, error) {
	adapter, err := enable()
	if err != nil {
		return nil, err
	}
	p := &Peripheral{
		adapter: adapter,
		adv:     adapter.DefaultAdvertisement(),
		name:    name,
		devices: make(map[int]bluetooth.Device),
		nextID:  1,
	}
	adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			p.mu.Lock()
			id := p.nextID
			p.nextID++
			p.devices[id] = device
			p.mu.Unlock()
			p.post(link.Event{Kind: link.EventCentralConnect, Conn: id, Addr: device.Address.String()})
			return
		}
		p.mu.Lock()
		var id int
		for i, d := range p.devices {
			if d.Address == device.Address {
				id = i
				delete(p.devices, i)
			}
		}
		p.mu.Unlock()
		if id != 0 {
			p.post(link.Event{Kind: link.EventCentralDisconnect, Conn: id, Addr: device.Address.String()})
		}
	})
	return p, nil
}

// writer returns the oldest live connection, 0 if there is none.
func (p *Peripheral) writer() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	oldest := 0
	for id := range p.devices {
		if oldest == 0 || id < oldest {
			oldest = id
		}
	}
	return oldest
}

func (p *Peripheral) RegisterService(def link.ServiceDef) (uint16, error) {
	svc, err := toBluetooth(def.Service)
	if err != nil {
		return 0, err
	}
	chr, err := toBluetooth(def.Characteristic)
	if err != nil {
		return 0, err
	}
	err = p.adapter.AddService(&bluetooth.Service{
		UUID: svc,
		Characteristics: []bluetooth.CharacteristicConfig{{
			Handle: &p.char,
			UUID:   chr,
			Value:  def.Initial,
			Flags: bluetooth.CharacteristicReadPermission | bluetooth.CharacteristicWritePermission |
				bluetooth.CharacteristicWriteWithoutResponsePermission | bluetooth.CharacteristicNotifyPermission,
			WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
				p.post(link.Event{Kind: link.EventWrite, Conn: p.writer(), Handle: valueHandle, Data: value})
			},
		}},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to add service: %w", err)
	}
	return valueHandle, nil
}

// Advertise lets BlueZ build the packets from the service list and
// name, which yields the same layout as the given payloads.
func (p *Peripheral) Advertise(adv, scanResponse []byte, interval time.Duration) error {
	svc, err := toBluetooth(link.ServiceUUID)
	if err != nil {
		return err
	}
	err = p.adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    p.name,
		ServiceUUIDs: []bluetooth.UUID{svc},
		Interval:     bluetooth.NewDuration(interval),
	})
	if err != nil {
		return fmt.Errorf("failed to configure advertisement: %w", err)
	}
	return p.adv.Start()
}

func (p *Peripheral) StopAdvertising() error {
	return p.adv.Stop()
}

func (p *Peripheral) Notify(conn int, handle uint16, data []byte) error {
	if handle != valueHandle {
		return fmt.Errorf("notify on unknown handle %d", handle)
	}
	_, err := p.char.Write(data)
	return err
}

func (p *Peripheral) Disconnect(conn int) error {
	p.mu.Lock()
	d, ok := p.devices[conn]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("connection %d: %w", conn, link.ErrNotReady)
	}
	return d.Disconnect()
}

func (p *Peripheral) Close() error {
	return p.adv.Stop()
}

// Central scans for and connects to a passive gate.
type Central struct {
	events
	adapter *bluetooth.Adapter
	mu      sync.Mutex
	found   map[string]bluetooth.Address
	devices map[int]bluetooth.Device
	chars   map[int]bluetooth.DeviceCharacteristic
	nextID  int
}

func NewCentral() (link.Central, error) {
	adapter, err := enable()
	if err != nil {
		return nil, err
	}
	c := &Central{
		adapter: adapter,
		found:   make(map[string]bluetooth.Address),
		devices: make(map[int]bluetooth.Device),
		chars:   make(map[int]bluetooth.DeviceCharacteristic),
		nextID:  1,
	}
	adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		c.mu.Lock()
		var id int
		for i, d := range c.devices {
			if d.Address == device.Address {
				id = i
				delete(c.devices, i)
				delete(c.chars, i)
			}
		}
		c.mu.Unlock()
		if id != 0 {
			c.post(link.Event{Kind: link.EventPeripheralDisconnect, Conn: id, Addr: device.Address.String()})
		}
	})
	return c, nil
}

func (c *Central) Scan(timeout time.Duration) error {
	svc, err := toBluetooth(link.ServiceUUID)
	if err != nil {
		return err
	}
	stop := time.AfterFunc(timeout, func() {
		if err := c.adapter.StopScan(); err != nil {
			slog.Debug("Stop scan", "error", err)
		}
	})
	go func() {
		err := c.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !result.AdvertisementPayload.HasServiceUUID(svc) {
				return
			}
			addr := result.Address.String()
			c.mu.Lock()
			c.found[addr] = result.Address
			c.mu.Unlock()
			c.post(link.Event{Kind: link.EventScanResult, Addr: addr, RSSI: int(result.RSSI),
				Data: link.AdvertisementPayload(link.ServiceUUID)})
		})
		stop.Stop()
		if err != nil {
			slog.Warn("Scan ended with error", "error", err)
		}
		c.post(link.Event{Kind: link.EventScanDone})
	}()
	return nil
}

func (c *Central) StopScan() error {
	return c.adapter.StopScan()
}

func (c *Central) Connect(addr string) error {
	c.mu.Lock()
	address, ok := c.found[addr]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown address %s", addr)
	}
	go func() {
		device, err := c.adapter.Connect(address, bluetooth.ConnectionParams{})
		if err != nil {
			slog.Warn("Connect failed", "addr", addr, "error", err)
			return
		}
		c.mu.Lock()
		id := c.nextID
		c.nextID++
		c.devices[id] = device
		c.mu.Unlock()
		c.post(link.Event{Kind: link.EventPeripheralConnect, Conn: id, Addr: addr})
	}()
	return nil
}

func (c *Central) device(conn int) (bluetooth.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.devices[conn]
	if !ok {
		return bluetooth.Device{}, fmt.Errorf("connection %d: %w", conn, link.ErrNotReady)
	}
	return d, nil
}

func (c *Central) Disconnect(conn int) error {
	d, err := c.device(conn)
	if err != nil {
		return err
	}
	return d.Disconnect()
}

func (c *Central) DiscoverServices(conn int) error {
	d, err := c.device(conn)
	if err != nil {
		return err
	}
	svc, err := toBluetooth(link.ServiceUUID)
	if err != nil {
		return err
	}
	go func() {
		services, err := d.DiscoverServices([]bluetooth.UUID{svc})
		if err != nil || len(services) == 0 {
			c.post(link.Event{Kind: link.EventServiceDone, Conn: conn, Status: 1})
			return
		}
		c.post(link.Event{Kind: link.EventServiceResult, Conn: conn, Start: serviceStart, End: serviceEnd, UUID: link.ServiceUUID})
		chr, err := toBluetooth(link.CommandUUID)
		if err == nil {
			var chars []bluetooth.DeviceCharacteristic
			chars, err = services[0].DiscoverCharacteristics([]bluetooth.UUID{chr})
			if err == nil && len(chars) > 0 {
				c.mu.Lock()
				c.chars[conn] = chars[0]
				c.mu.Unlock()
			}
		}
		c.post(link.Event{Kind: link.EventServiceDone, Conn: conn})
	}()
	return nil
}

// DiscoverCharacteristics reports the characteristic resolved together
// with the service.
func (c *Central) DiscoverCharacteristics(conn int, start, end uint16) error {
	c.mu.Lock()
	_, ok := c.chars[conn]
	c.mu.Unlock()
	go func() {
		if ok {
			c.post(link.Event{Kind: link.EventCharacteristicResult, Conn: conn, Handle: valueHandle, UUID: link.CommandUUID})
		}
		c.post(link.Event{Kind: link.EventCharacteristicDone, Conn: conn})
	}()
	return nil
}

// DiscoverDescriptors always reports the notify descriptor, BlueZ
// manages it on the characteristic.
func (c *Central) DiscoverDescriptors(conn int, start, end uint16) error {
	go func() {
		c.post(link.Event{Kind: link.EventDescriptorResult, Conn: conn, Handle: cccdHandle, UUID: link.CCCDUUID})
		c.post(link.Event{Kind: link.EventDescriptorDone, Conn: conn})
	}()
	return nil
}

func (c *Central) Write(conn int, handle uint16, data []byte) error {
	c.mu.Lock()
	chr, ok := c.chars[conn]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("connection %d: %w", conn, link.ErrNotReady)
	}
	go func() {
		status := 0
		switch handle {
		case cccdHandle:
			err := chr.EnableNotifications(func(buf []byte) {
				c.post(link.Event{Kind: link.EventNotify, Conn: conn, Handle: valueHandle, Data: append([]byte(nil), buf...)})
			})
			if err != nil {
				slog.Warn("Enable notifications failed", "error", err)
				status = 1
			}
		case valueHandle:
			if _, err := chr.WriteWithoutResponse(data); err != nil {
				slog.Warn("Write failed", "error", err)
				status = 1
			}
		default:
			status = 1
		}
		c.post(link.Event{Kind: link.EventWriteDone, Conn: conn, Handle: handle, Status: status})
	}()
	return nil
}

func (c *Central) Close() error {
	c.mu.Lock()
	devices := make([]bluetooth.Device, 0, len(c.devices))
	for _, d := range c.devices {
		devices = append(devices, d)
	}
	c.mu.Unlock()
	for _, d := range devices {
		if err := d.Disconnect(); err != nil {
			slog.Debug("Disconnect", "error", err)
		}
	}
	return nil
}
