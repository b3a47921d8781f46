/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package sysconf

import (
	"fmt"

	"github.com/safchain/ethtool"

	"github.com/gravwell/detnetd/devices"
)

// ethtool exits 80 when the requested configuration is already in place;
// treat that the same as success.
const ethtoolUnchanged = 80

// DeviceConfigurator applies device level settings: interface features,
// channel layout, ring sizes and energy efficient ethernet.
type DeviceConfigurator struct{}

// Setup prepares an interface for deterministic traffic: EEE off so wake
// latency cannot eat into the schedule, the device's feature set, a channel
// per hardware queue, and the ring sizes the device wants.
func (d DeviceConfigurator) Setup(iface string, dev devices.Device) error {
	if err := d.setEee(iface, false); err != nil {
		return err
	}
	et, err := ethtool.NewEthtool()
	if err != nil {
		return err
	}
	defer et.Close()

	if features := dev.Features(); len(features) > 0 {
		if err := et.Change(iface, features); err != nil {
			return fmt.Errorf("setting features on %s: %w", iface, err)
		}
	}
	if err := d.setChannels(et, iface, dev); err != nil {
		return err
	}

	ring, err := et.GetRing(iface)
	if err != nil {
		return fmt.Errorf("querying rings on %s: %w", iface, err)
	}
	ring.TxPending = uint32(dev.NumTxRingEntries())
	ring.RxPending = uint32(dev.NumRxRingEntries())
	if _, err := et.SetRing(iface, ring); err != nil {
		return fmt.Errorf("setting rings on %s: %w", iface, err)
	}
	return nil
}

// SetupIngress applies the receive side subset for listeners: EEE off and
// the feature set; channel and ring layout is left to the talker path.
func (d DeviceConfigurator) SetupIngress(iface string, dev devices.Device) error {
	if err := d.setEee(iface, false); err != nil {
		return err
	}
	et, err := ethtool.NewEthtool()
	if err != nil {
		return err
	}
	defer et.Close()
	if features := dev.Features(); len(features) > 0 {
		if err := et.Change(iface, features); err != nil {
			return fmt.Errorf("setting features on %s: %w", iface, err)
		}
	}
	return nil
}

// InterfaceSupportsSplitChannels reports whether the device exposes separate
// rx/tx channel counts rather than combined channels.
func (d DeviceConfigurator) InterfaceSupportsSplitChannels(iface string) (bool, error) {
	et, err := ethtool.NewEthtool()
	if err != nil {
		return false, err
	}
	defer et.Close()
	channels, err := et.GetChannels(iface)
	if err != nil {
		return false, err
	}
	return channels.MaxRx > 0 && channels.MaxTx > 0, nil
}

func (d DeviceConfigurator) setChannels(et *ethtool.Ethtool, iface string, dev devices.Device) error {
	channels, err := et.GetChannels(iface)
	if err != nil {
		return fmt.Errorf("querying channels on %s: %w", iface, err)
	}
	if channels.MaxRx > 0 && channels.MaxTx > 0 {
		channels.TxCount = uint32(dev.NumTxQueues())
		channels.RxCount = uint32(dev.NumRxQueues())
	} else {
		channels.CombinedCount = uint32(dev.NumTxQueues())
	}
	if _, err := et.SetChannels(iface, channels); err != nil {
		return fmt.Errorf("setting channels on %s: %w", iface, err)
	}
	return nil
}

// setEee shells out; the ioctl library offers no EEE surface.
func (d DeviceConfigurator) setEee(iface string, on bool) error {
	state := `off`
	if on {
		state = `on`
	}
	return runCommand(fmt.Sprintf("ethtool --set-eee %s eee %s", iface, state), 0, ethtoolUnchanged)
}
