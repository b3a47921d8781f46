/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package sysconf

import (
	"errors"
	"fmt"

	"github.com/gravwell/detnetd/devices"
	"github.com/gravwell/detnetd/mapping"
	"github.com/gravwell/detnetd/schedule"
)

var (
	ErrConfigFailed = errors.New("system configuration failed")
	// ErrInconsistent means a revert of partially applied external effects
	// itself failed; the system no longer matches the daemon's state.
	ErrInconsistent = errors.New("system state is inconsistent after failed rollback")
	ErrInvalidArgs  = errors.New("invalid system configuration arguments")
)

// TalkerParams carries everything needed to configure one talker stream.
type TalkerParams struct {
	Interface  string
	Device     devices.Device
	Mapping    *mapping.Mapping
	Schedule   *schedule.Schedule
	Stream     *schedule.StreamConfiguration
	Hints      *schedule.Hints
	BaseTime   int64
	CreateVlan bool
}

// ListenerParams carries everything needed to configure one listener stream.
type ListenerParams struct {
	Interface  string
	Device     devices.Device
	Mapping    *mapping.Mapping
	Stream     *schedule.StreamConfiguration
	Hints      *schedule.Hints
	CreateVlan bool
}

// SystemConfigurator is the boundary the reservation core drives. Every call
// either applies all of its qdisc and VLAN effects or reverts the ones it
// already made; device settings (EEE, features, channels, rings) stay applied
// and are not reverted. ErrInconsistent is raised when a revert itself fails.
type SystemConfigurator interface {
	InitInterface(iface string, dev devices.Device, hints *schedule.Hints) error
	SetupTalker(p TalkerParams) error
	SetupListener(p ListenerParams) error
}

// Configurator is the production SystemConfigurator, gluing the qdisc, VLAN,
// device and sysctl configurators together with a fixed ordering:
// device, then qdisc, then vlan. The qdisc and vlan steps are reversed on
// failure; device settings are not.
type Configurator struct {
	qdisc  QdiscConfigurator
	vlan   VlanConfigurator
	device DeviceConfigurator
	sysctl SysctlConfigurator
}

func NewConfigurator() *Configurator {
	return &Configurator{}
}

// InitInterface performs pre-stream device preparation for an interface.
func (c *Configurator) InitInterface(iface string, dev devices.Device, hints *schedule.Hints) error {
	if !IsInterface(iface) {
		return fmt.Errorf("%w: no such interface %s", ErrInvalidArgs, iface)
	}
	if err := devices.CheckHints(dev, hints); err != nil {
		return err
	}
	if err := c.device.Setup(iface, dev); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigFailed, err)
	}
	if err := c.sysctl.DisableIPv6(iface, 0); err != nil {
		return fmt.Errorf("%w: %v", ErrConfigFailed, err)
	}
	return nil
}

// SetupTalker applies the egress configuration for a new talker stream.
func (c *Configurator) SetupTalker(p TalkerParams) error {
	if err := c.talkerArgsValid(p); err != nil {
		return err
	}

	offload := true
	if p.Hints != nil {
		offload = p.Hints.TxSelectionOffload
	}

	if err := c.device.Setup(p.Interface, p.Device); err != nil {
		return fmt.Errorf("%w: device: %v", ErrConfigFailed, err)
	}
	if err := c.qdisc.Setup(p.Interface, p.Mapping, p.Schedule, p.BaseTime, offload); err != nil {
		return fmt.Errorf("%w: qdisc: %v", ErrConfigFailed, err)
	}
	if p.CreateVlan {
		if err := c.vlan.Setup(p.Interface, p.Stream.VID, p.Mapping.SoprioToPCP()); err != nil {
			if rerr := c.qdisc.Unset(p.Interface); rerr != nil {
				return fmt.Errorf("%w: vlan failed (%v) and qdisc revert failed (%v)", ErrInconsistent, err, rerr)
			}
			return fmt.Errorf("%w: vlan: %v", ErrConfigFailed, err)
		}
		if err := c.sysctl.DisableIPv6(p.Interface, p.Stream.VID); err != nil {
			if rerr := c.vlan.Unset(p.Interface, p.Stream.VID); rerr != nil {
				return fmt.Errorf("%w: sysctl failed (%v) and vlan revert failed (%v)", ErrInconsistent, err, rerr)
			}
			if rerr := c.qdisc.Unset(p.Interface); rerr != nil {
				return fmt.Errorf("%w: sysctl failed (%v) and qdisc revert failed (%v)", ErrInconsistent, err, rerr)
			}
			return fmt.Errorf("%w: sysctl: %v", ErrConfigFailed, err)
		}
	}
	return nil
}

// SetupListener applies the ingress configuration for a listener stream.
// Listeners never touch the gate schedule.
func (c *Configurator) SetupListener(p ListenerParams) error {
	if !IsInterface(p.Interface) {
		return fmt.Errorf("%w: no such interface %s", ErrInvalidArgs, p.Interface)
	}
	if err := devices.CheckHints(p.Device, p.Hints); err != nil {
		return err
	}
	if err := c.device.SetupIngress(p.Interface, p.Device); err != nil {
		return fmt.Errorf("%w: device: %v", ErrConfigFailed, err)
	}
	if p.CreateVlan {
		if err := c.vlan.Setup(p.Interface, p.Stream.VID, p.Mapping.SoprioToPCP()); err != nil {
			return fmt.Errorf("%w: vlan: %v", ErrConfigFailed, err)
		}
		if err := c.sysctl.DisableIPv6(p.Interface, p.Stream.VID); err != nil {
			if rerr := c.vlan.Unset(p.Interface, p.Stream.VID); rerr != nil {
				return fmt.Errorf("%w: sysctl failed (%v) and vlan revert failed (%v)", ErrInconsistent, err, rerr)
			}
			return fmt.Errorf("%w: sysctl: %v", ErrConfigFailed, err)
		}
	}
	return nil
}

func (c *Configurator) talkerArgsValid(p TalkerParams) error {
	if !IsInterface(p.Interface) {
		return fmt.Errorf("%w: no such interface %s", ErrInvalidArgs, p.Interface)
	}
	if p.Device == nil || p.Mapping == nil || p.Schedule == nil || p.Stream == nil {
		return ErrInvalidArgs
	}
	if err := devices.CheckHints(p.Device, p.Hints); err != nil {
		return err
	}
	for _, tc := range p.Mapping.SoprioToTC() {
		if tc < 0 {
			return ErrInvalidArgs
		}
	}
	if !schedule.IsValidVlanID(p.Stream.VID) {
		return fmt.Errorf("%w: VLAN ID %d", ErrInvalidArgs, p.Stream.VID)
	}
	return nil
}

// NoopConfigurator satisfies SystemConfigurator without touching the system.
// It is swapped in when the service runs in test mode.
type NoopConfigurator struct{}

func (NoopConfigurator) InitInterface(string, devices.Device, *schedule.Hints) error { return nil }
func (NoopConfigurator) SetupTalker(TalkerParams) error                              { return nil }
func (NoopConfigurator) SetupListener(ListenerParams) error                          { return nil }

// StaticSysInfo is the SystemInformation double used in test mode: a fixed
// PCI ID and rate, link always up.
type StaticSysInfo struct {
	PCIID string
	Rate  int64
}

func (s StaticSysInfo) GetPCIID(string) (string, error) { return s.PCIID, nil }
func (s StaticSysInfo) GetRate(string) (int64, error)   { return s.Rate, nil }
func (s StaticSysInfo) HasLink(string) (bool, error)    { return true, nil }
