// Package gate binds the trigger, the peer link and the animator
// together. One goroutine runs the loop and, inside it, the blocking
// light sequences.
package gate

import (
	"context"
	"log/slog"
	"time"

	"lautenbacher.net/gogate/animation"
	c "lautenbacher.net/gogate/config"
	"lautenbacher.net/gogate/link"
	"lautenbacher.net/gogate/metrics"
	u "lautenbacher.net/gogate/util"
)

type Phase string

const (
	PhaseStartup  Phase = "startup"
	PhaseIdle     Phase = "idle"
	PhaseDialing  Phase = "dialing"
	PhaseIncoming Phase = "incoming"
	PhaseKawoosh  Phase = "kawoosh"
	PhaseOpen     Phase = "open"
	PhaseClosing  Phase = "closing"
)

const (
	originLocal  = "local"
	originRemote = "remote"

	reasonTrigger    = "trigger"
	reasonPeer       = "peer"
	reasonDisconnect = "disconnect"
)

// Mode is what the idle indicator shows.
type Mode int

const (
	ModeStandalone Mode = iota
	ModeSearching
	ModeConnected
	ModeBusy
)

func (m Mode) String() string {
	switch m {
	case ModeSearching:
		return "searching"
	case ModeConnected:
		return "connected"
	case ModeBusy:
		return "busy"
	default:
		return "standalone"
	}
}

// Indicator is updated on every loop step and sequence tick.
type Indicator interface {
	Show(now u.Ticks, mode Mode)
}

type Status struct {
	Role      string `json:"role"`
	Connected bool   `json:"connected"`
	Busy      bool   `json:"busy"`
	Phase     Phase  `json:"phase"`
	Sessions  int    `json:"sessions"`
}

// Orchestrator runs at most one sequence at a time. All fields except
// status are owned by the loop goroutine.
type Orchestrator struct {
	anim      *animation.Animator
	ch        link.Channel
	trigger   func() bool
	indicator Indicator
	clock     u.Clock
	cfg       *c.Config
	metrics   *metrics.Gate

	debounce      *u.Trigger
	busy          bool
	remote        bool
	watchPeer     bool
	reason        string
	lastReconnect u.Ticks
	phase         Phase
	sessions      int
	status        *u.AtomicEvent[Status]
	// closed when Run's context ends, aborts running sequences
	done <-chan struct{}
}

// New wires an orchestrator. indicator and m may be nil.
func New(anim *animation.Animator, ch link.Channel, trigger func() bool, indicator Indicator,
	clock u.Clock, cfg *c.Config, m *metrics.Gate) *Orchestrator {
	o := &Orchestrator{
		anim:          anim,
		ch:            ch,
		trigger:       trigger,
		indicator:     indicator,
		clock:         clock,
		cfg:           cfg,
		metrics:       m,
		debounce:      u.NewTrigger(cfg.Gate.Debounce),
		lastReconnect: clock.Now(),
		phase:         PhaseIdle,
		status:        u.NewAtomicEvent[Status](),
	}
	anim.SetTick(o.onTick)
	o.publish()
	return o
}

// Run connects (active role only), plays the startup sweep and then
// polls until ctx is done. Cancelling ctx aborts a running sequence on
// its next tick.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.done = ctx.Done()
	o.setPhase(PhaseStartup)
	if waiter, ok := o.ch.(interface{ ConnectWait(time.Duration) bool }); ok && ctx.Err() == nil {
		waiter.ConnectWait(0)
	}
	o.anim.Startup()
	o.lastReconnect = o.clock.Now()
	o.setPhase(PhaseIdle)
	slog.Info("Gate ready", "role", o.ch.Role(), "sequence", o.cfg.Gate.LockSequence)

	for ctx.Err() == nil {
		o.Step()
		o.clock.Sleep(o.cfg.Gate.PollInterval)
	}
	slog.Info("Gate stopped", "role", o.ch.Role())
	return nil
}

// Step is one iteration of the control loop.
func (o *Orchestrator) Step() {
	now := o.clock.Now()
	o.indicate(now)
	o.maybeReconnect(now)

	if !o.busy && o.ch.PeerOpened().Consume() {
		o.runRemote()
		now = o.clock.Now()
	}

	if o.debounce.Sample(o.trigger(), now) {
		o.runLocal()
	}
	o.publish()
}

func (o *Orchestrator) Busy() bool {
	return o.status.Value().Busy
}

func (o *Orchestrator) Status() Status {
	return o.status.Value()
}

// StatusEvents wakes listeners whenever the status changes.
func (o *Orchestrator) StatusEvents() <-chan struct{} {
	return o.status.Channel()
}

func (o *Orchestrator) runLocal() {
	seq := o.cfg.Gate.LockSequence
	o.beginSession(originLocal)
	slog.Info("Dialing", "sequence", seq)

	o.setPhase(PhaseDialing)
	locked := o.anim.DialOut(seq)
	o.send(link.CommandOpen, o.ch.SignalOpen())
	// a CLOSE from before our OPEN belongs to nobody
	o.ch.PeerClosed().Clear()
	o.watchPeer = true

	o.setPhase(PhaseKawoosh)
	o.anim.TransitionEffect(locked)

	o.setPhase(PhaseOpen)
	start := o.clock.Now()
	o.anim.StableSession(locked, o.cfg.Session.Timeout, o.trigger)
	o.metrics.SessionEnded(originLocal, o.clock.Now().Since(start))

	if o.reason != reasonPeer {
		o.send(link.CommandClose, o.ch.SignalClose())
	}
	o.setPhase(PhaseClosing)
	o.anim.Close(locked)
	o.endSession()
}

func (o *Orchestrator) runRemote() {
	seq := o.cfg.Gate.LockSequence
	o.beginSession(originRemote)
	o.remote = true
	o.watchPeer = true
	slog.Info("Incoming wormhole")

	o.setPhase(PhaseIncoming)
	o.anim.DialIn(seq)

	o.setPhase(PhaseOpen)
	start := o.clock.Now()
	o.anim.StableSession(seq, o.cfg.Session.Timeout, nil)
	o.metrics.SessionEnded(originRemote, o.clock.Now().Since(start))

	// closing here on purpose closes the dialling gate as well
	if o.reason == reasonTrigger {
		o.send(link.CommandClose, o.ch.SignalClose())
	}
	o.setPhase(PhaseClosing)
	o.anim.Close(seq)
	o.endSession()
}

func (o *Orchestrator) beginSession(origin string) {
	o.busy = true
	o.remote = false
	o.watchPeer = false
	o.reason = ""
	o.sessions++
	o.anim.ResetCancel()
	o.metrics.SessionStarted(origin)
	o.metrics.SetBusy(true)
}

func (o *Orchestrator) endSession() {
	// anything the peer sent while we were busy is void
	o.ch.PeerOpened().Clear()
	o.ch.PeerClosed().Clear()
	o.busy = false
	o.remote = false
	o.watchPeer = false
	o.metrics.SetBusy(false)
	o.setPhase(PhaseIdle)
	slog.Info("Wormhole closed", "reason", o.reasonOr("timeout"))
}

func (o *Orchestrator) reasonOr(fallback string) string {
	if o.reason == "" {
		return fallback
	}
	return o.reason
}

// cancel force closes the running session. The first reason wins.
func (o *Orchestrator) cancel(reason string) {
	if o.reason != "" {
		return
	}
	o.reason = reason
	slog.Info("Force closing wormhole", "reason", reason)
	o.metrics.Cancelled(reason)
	o.anim.Cancel()
}

// onTick runs inside the animator sequences.
func (o *Orchestrator) onTick() {
	now := o.clock.Now()
	select {
	case <-o.done:
		o.anim.Abort()
	default:
	}
	o.indicate(now)
	// outside a session (startup sweep) presses are left to Step
	if o.busy && o.debounce.Sample(o.trigger(), now) {
		o.cancel(reasonTrigger)
	}
	if o.watchPeer && o.ch.PeerClosed().IsSet() {
		o.cancel(reasonPeer)
	}
	if o.remote && !o.ch.IsConnected() {
		o.cancel(reasonDisconnect)
	}
	o.publish()
}

func (o *Orchestrator) maybeReconnect(now u.Ticks) {
	if o.ch.Role() != c.RoleActive || o.busy || o.ch.IsConnected() || o.ch.IsBusy() {
		return
	}
	if now.Since(o.lastReconnect) < o.cfg.Link.ReconnectInterval {
		return
	}
	o.lastReconnect = now
	slog.Debug("Reconnecting", "role", o.ch.Role())
	o.metrics.ConnectAttempt()
	o.ch.Connect()
}

func (o *Orchestrator) send(cmd link.Command, ok bool) {
	o.metrics.Sent(cmd.String(), ok)
	if !ok && o.ch.Role() != c.RoleNone {
		slog.Info("Peer not reachable, continuing alone", "command", cmd)
	}
}

func (o *Orchestrator) indicate(now u.Ticks) {
	if o.indicator == nil {
		return
	}
	mode := ModeSearching
	switch {
	case o.busy:
		mode = ModeBusy
	case o.ch.Role() == c.RoleNone:
		mode = ModeStandalone
	case o.ch.IsConnected():
		mode = ModeConnected
	}
	o.indicator.Show(now, mode)
}

func (o *Orchestrator) setPhase(p Phase) {
	o.phase = p
	o.publish()
}

func (o *Orchestrator) publish() {
	s := Status{
		Role:      o.ch.Role(),
		Connected: o.ch.IsConnected(),
		Busy:      o.busy,
		Phase:     o.phase,
		Sessions:  o.sessions,
	}
	if s != o.status.Value() {
		o.status.Send(s)
		o.metrics.SetConnected(s.Connected)
	}
}
