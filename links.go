package main

import (
	"fmt"
	"log/slog"

	c "lautenbacher.net/gogate/config"
	"lautenbacher.net/gogate/link"
	"lautenbacher.net/gogate/link/ble"
	"lautenbacher.net/gogate/link/sim"
)

// Addresses of the two radios on the simulated air.
const (
	simLocalAddr = "5A:47:00:00:00:01"
	simPeerAddr  = "5A:47:00:00:00:02"
)

// newLinks builds the link of the local gate and, on the simulated air
// with SimPeer set, the link of a second gate with the opposite role.
// Every built link is kept for shutdown.
func (a *App) newLinks(conf *c.Config) (local, peer link.Channel, err error) {
	if conf.Link.Role == c.RoleNone {
		return link.NewNone(), nil, nil
	}

	switch conf.Link.Backend {
	case c.BackendBLE:
		local, err = a.newBLELink(conf.Link)
	default:
		air := sim.NewAir()
		local, err = a.newSimLink(air, simLocalAddr, conf.Link)
		if err == nil && conf.Link.SimPeer {
			peerConf := conf.Link
			peerConf.Role = opposite(conf.Link.Role)
			peerConf.Name = conf.Link.Name + " Peer"
			peer, err = a.newSimLink(air, simPeerAddr, peerConf)
		}
	}
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Link ready", "role", local.Role(), "backend", conf.Link.Backend, "simPeer", peer != nil)
	return local, peer, nil
}

func (a *App) newBLELink(cfg c.LinkConfig) (link.Channel, error) {
	if cfg.Role == c.RolePassive {
		radio, err := ble.NewPeripheral(cfg.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to open BLE peripheral: %w", err)
		}
		return a.passiveLink(radio, cfg)
	}
	radio, err := ble.NewCentral()
	if err != nil {
		return nil, fmt.Errorf("failed to open BLE central: %w", err)
	}
	return a.keep(link.NewActiveRole(radio, cfg, a.clock), nil)
}

func (a *App) newSimLink(air *sim.Air, addr string, cfg c.LinkConfig) (link.Channel, error) {
	if cfg.Role == c.RolePassive {
		return a.passiveLink(air.NewPeripheral(addr), cfg)
	}
	return a.keep(link.NewActiveRole(air.NewCentral(addr), cfg, a.clock), nil)
}

// passiveLink owns radio, it is closed when the role cannot be set up.
func (a *App) passiveLink(radio link.Peripheral, cfg c.LinkConfig) (link.Channel, error) {
	ch, err := link.NewPassiveRole(radio, cfg)
	if err != nil {
		if cerr := radio.Close(); cerr != nil {
			slog.Warn("Closing radio failed", "error", cerr)
		}
		return nil, err
	}
	return a.keep(ch, nil)
}

func (a *App) keep(ch link.Channel, err error) (link.Channel, error) {
	if err != nil {
		return nil, err
	}
	a.channels = append(a.channels, ch)
	return ch, nil
}

func opposite(role string) string {
	if role == c.RoleActive {
		return c.RolePassive
	}
	return c.RoleActive
}
