package link

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	c "lautenbacher.net/gogate/config"
)

const noConn = -1

// PassiveRole advertises the gate service and waits for exactly one
// peer. Commands are pushed to the peer as notifications.
type PassiveRole struct {
	abstractRole
	radio       Peripheral
	cfg         c.LinkConfig
	valueHandle uint16
	conn        atomic.Int32
}

// NewPassiveRole registers the command characteristic on p and starts
// advertising.
func NewPassiveRole(p Peripheral, cfg c.LinkConfig) (*PassiveRole, error) {
	r := &PassiveRole{
		abstractRole: abstractRole{role: c.RolePassive},
		radio:        p,
		cfg:          cfg,
	}
	r.conn.Store(noConn)

	handle, err := p.RegisterService(ServiceDef{
		Service:        ServiceUUID,
		Characteristic: CommandUUID,
		Initial:        EncodeCommand(CommandClose),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to register gate service: %w", err)
	}
	// valueHandle is read by onEvent, it must be set before events flow
	r.valueHandle = handle
	p.SetHandler(r.onEvent)
	if err := r.advertise(); err != nil {
		return nil, err
	}
	slog.Info("Advertising", "role", r.role, "name", cfg.Name)
	return r, nil
}

func (r *PassiveRole) advertise() error {
	err := r.radio.Advertise(AdvertisementPayload(ServiceUUID), ScanResponsePayload(r.cfg.Name), r.cfg.AdvertiseInterval)
	if err != nil {
		return fmt.Errorf("failed to advertise: %w", err)
	}
	return nil
}

// Connect does nothing, the peer connects to us.
func (r *PassiveRole) Connect() {}

func (r *PassiveRole) IsConnected() bool {
	return r.conn.Load() != noConn
}

func (r *PassiveRole) IsBusy() bool {
	return false
}

func (r *PassiveRole) SignalOpen() bool {
	return r.send(CommandOpen)
}

func (r *PassiveRole) SignalClose() bool {
	return r.send(CommandClose)
}

func (r *PassiveRole) send(cmd Command) bool {
	conn := r.conn.Load()
	if conn == noConn {
		return false
	}
	if err := r.radio.Notify(int(conn), r.valueHandle, EncodeCommand(cmd)); err != nil {
		slog.Warn("Notify failed", "role", r.role, "command", cmd, "error", err)
		return false
	}
	slog.Info("Sent command", "role", r.role, "command", cmd)
	return true
}

func (r *PassiveRole) Close() error {
	if err := r.radio.StopAdvertising(); err != nil {
		slog.Debug("Stop advertising", "error", err)
	}
	return r.radio.Close()
}

func (r *PassiveRole) onEvent(ev Event) {
	switch ev.Kind {
	case EventCentralConnect:
		if !r.conn.CompareAndSwap(noConn, int32(ev.Conn)) {
			slog.Warn("Second peer rejected", "role", r.role, "addr", ev.Addr, "conn", ev.Conn)
			if err := r.radio.Disconnect(ev.Conn); err != nil {
				slog.Warn("Failed to disconnect rejected peer", "addr", ev.Addr, "error", err)
			}
			return
		}
		slog.Info("Peer connected", "role", r.role, "addr", ev.Addr)
		// one peer at a time
		if err := r.radio.StopAdvertising(); err != nil {
			slog.Warn("Failed to stop advertising", "error", err)
		}
	case EventCentralDisconnect:
		if !r.conn.CompareAndSwap(int32(ev.Conn), noConn) {
			return
		}
		slog.Info("Peer disconnected, advertising again", "role", r.role)
		if err := r.advertise(); err != nil {
			slog.Error("Re-advertising failed", "error", err)
		}
	case EventWrite:
		// only the accepted peer may command the gate
		if ev.Handle == r.valueHandle && int32(ev.Conn) == r.conn.Load() {
			r.handleCommand(ev.Data)
		}
	}
}
