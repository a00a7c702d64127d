package link

import (
	"log/slog"
	"sync/atomic"
	"time"

	c "lautenbacher.net/gogate/config"
	u "lautenbacher.net/gogate/util"
)

// State of the active role's discovery state machine.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateConnecting
	StateDiscoveringService
	StateDiscoveringCommand
	StateDiscoveringNotify
	StateReady
	StateFailed
)

var stateNames = [...]string{"Idle", "Scanning", "Connecting", "DiscoveringService",
	"DiscoveringCommand", "DiscoveringNotify", "Ready", "Failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "Unknown"
	}
	return stateNames[s]
}

const waitPoll = 50 * time.Millisecond

// ActiveRole scans for a passive peer, connects and discovers the
// command characteristic. All progress after Connect is driven by radio
// events; the fields written from the event handler are atomics.
type ActiveRole struct {
	abstractRole
	radio    Central
	cfg      c.LinkConfig
	clock    u.Clock
	state    atomic.Int32
	conn     atomic.Int32
	svcStart atomic.Uint32
	svcEnd   atomic.Uint32
	value    atomic.Uint32
	cccd     atomic.Uint32
	// end of the running connection attempt, in ticks
	deadline atomic.Uint32
}

func NewActiveRole(radio Central, cfg c.LinkConfig, clock u.Clock) *ActiveRole {
	r := &ActiveRole{
		abstractRole: abstractRole{role: c.RoleActive},
		radio:        radio,
		cfg:          cfg,
		clock:        clock,
	}
	r.conn.Store(noConn)
	radio.SetHandler(r.onEvent)
	return r
}

func (r *ActiveRole) State() State {
	return State(r.state.Load())
}

func (r *ActiveRole) setState(s State) {
	if old := State(r.state.Swap(int32(s))); old != s {
		slog.Debug("Link state", "role", r.role, "from", old, "to", s)
	}
}

func (r *ActiveRole) IsConnected() bool {
	return r.State() == StateReady
}

// IsBusy reports a connection attempt in progress that has not yet
// overrun its deadline.
func (r *ActiveRole) IsBusy() bool {
	switch r.State() {
	case StateScanning, StateConnecting, StateDiscoveringService, StateDiscoveringCommand, StateDiscoveringNotify:
		return !r.clock.Now().Reached(u.Ticks(r.deadline.Load()))
	}
	return false
}

// Connect starts scanning unless a link is ready or an attempt is still
// within its deadline. An overdue attempt is failed and replaced.
func (r *ActiveRole) Connect() {
	switch st := r.State(); st {
	case StateReady:
		return
	case StateIdle, StateFailed:
	default:
		if r.IsBusy() {
			return
		}
		slog.Warn("Connection attempt timed out", "role", r.role, "state", st)
		r.fail()
	}
	r.startScan(r.cfg.ScanTimeout)
}

// ConnectWait runs a connection attempt and blocks until the link is
// ready, the attempt failed or timeout (scan phase) plus the discovery
// timeout ran out. A zero timeout uses the configured scan timeout.
func (r *ActiveRole) ConnectWait(timeout time.Duration) bool {
	if r.IsConnected() {
		return true
	}
	if timeout <= 0 {
		timeout = r.cfg.ScanTimeout
	}
	if st := r.State(); st != StateIdle && st != StateFailed {
		r.fail()
	}
	if !r.startScan(timeout) {
		return false
	}

	deadline := r.clock.Now().Add(timeout)
	for r.State() == StateScanning {
		if r.clock.Now().Reached(deadline) {
			if err := r.radio.StopScan(); err != nil {
				slog.Debug("Stop scan", "error", err)
			}
			r.state.CompareAndSwap(int32(StateScanning), int32(StateIdle))
			slog.Info("Scan timeout, no peer found", "role", r.role)
			return false
		}
		r.clock.Sleep(waitPoll)
	}

	deadline = r.clock.Now().Add(r.cfg.DiscoveryTimeout)
	for {
		switch r.State() {
		case StateReady:
			return true
		case StateIdle, StateFailed:
			return false
		}
		if r.clock.Now().Reached(deadline) {
			slog.Warn("Discovery timeout", "role", r.role, "state", r.State())
			r.fail()
			return false
		}
		r.clock.Sleep(waitPoll)
	}
}

func (r *ActiveRole) startScan(timeout time.Duration) bool {
	r.resetDiscovery()
	r.deadline.Store(uint32(r.clock.Now().Add(timeout + r.cfg.DiscoveryTimeout)))
	r.setState(StateScanning)
	slog.Info("Scanning for peer", "role", r.role, "timeout", timeout)
	if err := r.radio.Scan(timeout); err != nil {
		slog.Error("Failed to start scan", "role", r.role, "error", err)
		r.setState(StateIdle)
		return false
	}
	return true
}

func (r *ActiveRole) resetDiscovery() {
	r.conn.Store(noConn)
	r.svcStart.Store(0)
	r.svcEnd.Store(0)
	r.value.Store(0)
	r.cccd.Store(0)
}

// fail marks the attempt failed and drops a half open connection.
func (r *ActiveRole) fail() {
	r.setState(StateFailed)
	if conn := r.conn.Load(); conn != noConn {
		if err := r.radio.Disconnect(int(conn)); err != nil {
			slog.Debug("Disconnect", "role", r.role, "error", err)
		}
	} else if err := r.radio.StopScan(); err != nil {
		slog.Debug("Stop scan", "error", err)
	}
}

func (r *ActiveRole) SignalOpen() bool {
	return r.send(CommandOpen)
}

func (r *ActiveRole) SignalClose() bool {
	return r.send(CommandClose)
}

func (r *ActiveRole) send(cmd Command) bool {
	handle := uint16(r.value.Load())
	if r.State() != StateReady || handle == 0 {
		slog.Debug("Not sending, link not ready", "role", r.role, "command", cmd)
		return false
	}
	if err := r.radio.Write(int(r.conn.Load()), handle, EncodeCommand(cmd)); err != nil {
		slog.Warn("Write failed", "role", r.role, "command", cmd, "error", err)
		return false
	}
	slog.Info("Sent command", "role", r.role, "command", cmd)
	// give the write acknowledgement a chance to arrive
	r.clock.Sleep(r.cfg.SendSettle)
	return true
}

func (r *ActiveRole) Close() error {
	if r.State() == StateScanning {
		if err := r.radio.StopScan(); err != nil {
			slog.Debug("Stop scan", "error", err)
		}
	}
	if conn := r.conn.Load(); conn != noConn {
		if err := r.radio.Disconnect(int(conn)); err != nil {
			slog.Debug("Disconnect", "error", err)
		}
	}
	r.setState(StateIdle)
	return r.radio.Close()
}

func (r *ActiveRole) onEvent(ev Event) {
	switch ev.Kind {
	case EventScanResult:
		if !ContainsService(ev.Data, ServiceUUID) {
			return
		}
		if !r.state.CompareAndSwap(int32(StateScanning), int32(StateConnecting)) {
			return
		}
		slog.Info("Found peer", "role", r.role, "addr", ev.Addr, "rssi", ev.RSSI)
		if err := r.radio.StopScan(); err != nil {
			slog.Debug("Stop scan", "error", err)
		}
		if err := r.radio.Connect(ev.Addr); err != nil {
			slog.Warn("Connect failed", "role", r.role, "addr", ev.Addr, "error", err)
			r.setState(StateFailed)
		}

	case EventScanDone:
		if r.state.CompareAndSwap(int32(StateScanning), int32(StateIdle)) {
			slog.Info("Scan finished, no peer found", "role", r.role)
		}

	case EventPeripheralConnect:
		if r.State() != StateConnecting {
			slog.Debug("Dropping unexpected connection", "role", r.role, "state", r.State())
			if err := r.radio.Disconnect(ev.Conn); err != nil {
				slog.Debug("Disconnect", "error", err)
			}
			return
		}
		r.conn.Store(int32(ev.Conn))
		r.setState(StateDiscoveringService)
		if err := r.radio.DiscoverServices(ev.Conn); err != nil {
			slog.Warn("Service discovery failed", "role", r.role, "error", err)
			r.fail()
		}

	case EventPeripheralDisconnect:
		if !r.conn.CompareAndSwap(int32(ev.Conn), noConn) {
			return
		}
		r.resetDiscovery()
		r.setState(StateIdle)
		slog.Info("Lost connection to peer", "role", r.role)

	case EventServiceResult:
		if ev.UUID == ServiceUUID {
			r.svcStart.Store(uint32(ev.Start))
			r.svcEnd.Store(uint32(ev.End))
		}

	case EventServiceDone:
		if r.State() != StateDiscoveringService {
			return
		}
		start, end := uint16(r.svcStart.Load()), uint16(r.svcEnd.Load())
		if ev.Status != 0 || start == 0 {
			slog.Warn("Gate service not found", "role", r.role, "status", ev.Status)
			r.fail()
			return
		}
		r.setState(StateDiscoveringCommand)
		if err := r.radio.DiscoverCharacteristics(ev.Conn, start, end); err != nil {
			slog.Warn("Characteristic discovery failed", "role", r.role, "error", err)
			r.fail()
		}

	case EventCharacteristicResult:
		if ev.UUID == CommandUUID {
			r.value.Store(uint32(ev.Handle))
		}

	case EventCharacteristicDone:
		if r.State() != StateDiscoveringCommand {
			return
		}
		value := uint16(r.value.Load())
		if ev.Status != 0 || value == 0 {
			slog.Warn("Command characteristic not found", "role", r.role, "status", ev.Status)
			r.fail()
			return
		}
		r.setState(StateDiscoveringNotify)
		// the descriptors follow the value handle up to the end of the service
		if err := r.radio.DiscoverDescriptors(ev.Conn, value+1, uint16(r.svcEnd.Load())); err != nil {
			slog.Warn("Descriptor discovery failed", "role", r.role, "error", err)
			r.fail()
		}

	case EventDescriptorResult:
		if ev.UUID == CCCDUUID {
			r.cccd.Store(uint32(ev.Handle))
		}

	case EventDescriptorDone:
		if r.State() != StateDiscoveringNotify {
			return
		}
		if cccd := uint16(r.cccd.Load()); cccd != 0 {
			if err := r.radio.Write(ev.Conn, cccd, NotifyEnable); err != nil {
				slog.Warn("Enabling notifications failed", "role", r.role, "error", err)
			} else {
				slog.Info("Notifications enabled", "role", r.role)
			}
		} else {
			slog.Warn("No notify descriptor, link is send only", "role", r.role)
		}
		r.setState(StateReady)
		slog.Info("Linked to peer", "role", r.role)

	case EventNotify:
		r.handleCommand(ev.Data)

	case EventWriteDone:
		if ev.Status != 0 {
			slog.Warn("Write not acknowledged", "role", r.role, "handle", ev.Handle, "status", ev.Status)
		}
	}
}
