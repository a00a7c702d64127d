package link

import (
	"errors"
	"log/slog"

	c "lautenbacher.net/gogate/config"
	u "lautenbacher.net/gogate/util"
)

// ErrNotReady is returned by radios when a request needs an
// established link.
var ErrNotReady = errors.New("link not ready")

// Channel is the control surface the gate orchestrator uses, the same
// for every role. PeerOpened and PeerClosed are latched by link events
// and must be cleared by whoever consumes them.
type Channel interface {
	Role() string
	// Connect starts a connection attempt if the role initiates
	// connections at all. It never blocks.
	Connect()
	IsConnected() bool
	IsBusy() bool
	// SignalOpen and SignalClose report whether the command was handed
	// to the radio.
	SignalOpen() bool
	SignalClose() bool
	PeerOpened() *u.Latch
	PeerClosed() *u.Latch
	Close() error
}

// abstractRole holds the latches and command handling shared by all
// roles.
type abstractRole struct {
	role   string
	opened u.Latch
	closed u.Latch
}

func (r *abstractRole) Role() string {
	return r.role
}

func (r *abstractRole) PeerOpened() *u.Latch {
	return &r.opened
}

func (r *abstractRole) PeerClosed() *u.Latch {
	return &r.closed
}

// handleCommand runs in the radio callback context.
func (r *abstractRole) handleCommand(data []byte) {
	cmd, ok := DecodeCommand(data)
	if !ok {
		slog.Debug("Ignoring unknown payload", "role", r.role, "data", data)
		return
	}
	slog.Info("Received command", "role", r.role, "command", cmd)
	switch cmd {
	case CommandOpen:
		r.closed.Clear()
		r.opened.Set()
	case CommandClose:
		r.closed.Set()
	}
}

// None is the channel of a standalone gate without any peer.
type None struct {
	abstractRole
}

func NewNone() *None {
	return &None{abstractRole{role: c.RoleNone}}
}

func (n *None) Connect()          {}
func (n *None) IsConnected() bool { return false }
func (n *None) IsBusy() bool      { return false }
func (n *None) SignalOpen() bool  { return false }
func (n *None) SignalClose() bool { return false }
func (n *None) Close() error      { return nil }
