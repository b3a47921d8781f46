/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package service implements the detnetd daemon: the global reservation
// manager, the per-interface transaction logic, and the Unix datagram
// service front end that clients talk to.
package service

import (
	"sync"

	"github.com/google/uuid"

	"github.com/gravwell/detnetd/log"
	"github.com/gravwell/detnetd/schedule"
	"github.com/gravwell/detnetd/sysconf"
)

// Manager is the global entry point for reservations. A single mutex
// serializes every request; interface managers are created lazily on the
// first request referencing an interface and live until process end.
type Manager struct {
	mtx     sync.Mutex
	ifaces  map[string]*InterfaceManager
	conf    sysconf.SystemConfigurator
	sysinfo sysconf.SystemInformation
	lg      *log.Logger
}

func NewManager(conf sysconf.SystemConfigurator, sysinfo sysconf.SystemInformation, lg *log.Logger) *Manager {
	return &Manager{
		ifaces:  make(map[string]*InterfaceManager),
		conf:    conf,
		sysinfo: sysinfo,
		lg:      lg,
	}
}

func (m *Manager) AddTalker(cfg *schedule.Configuration) (*Reservation, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	im, err := m.interfaceManager(cfg.Interface)
	if err != nil {
		return nil, err
	}
	return im.AddTalker(cfg)
}

func (m *Manager) AddListener(cfg *schedule.ListenerConfiguration) (*Reservation, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	im, err := m.interfaceManager(cfg.Interface)
	if err != nil {
		return nil, err
	}
	return im.AddListener(cfg)
}

func (m *Manager) InitInterface(iface string, hints *schedule.Hints) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	im, err := m.interfaceManager(iface)
	if err != nil {
		return err
	}
	return im.InitInterface(hints)
}

// Remove releases an accepted stream on the given interface.
func (m *Manager) Remove(iface string, id uuid.UUID) error {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	im, ok := m.ifaces[iface]
	if !ok {
		return ErrUnknownStream
	}
	return im.Remove(id)
}

func (m *Manager) interfaceManager(name string) (*InterfaceManager, error) {
	if im, ok := m.ifaces[name]; ok {
		return im, nil
	}
	im, err := NewInterfaceManager(name, m.conf, m.sysinfo, m.lg)
	if err != nil {
		return nil, err
	}
	m.ifaces[name] = im
	return im, nil
}
