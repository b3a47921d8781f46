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
	"sort"
	"strings"

	"github.com/vishvananda/netlink"
)

var (
	ErrNotVlan      = errors.New("existing interface is not a 802.1Q VLAN interface")
	ErrVlanMismatch = errors.New("existing VLAN interface carries a different VLAN ID")
)

// VlanConfigurator creates and removes the VLAN sub-interfaces streams send
// through, carrying the egress socket priority to PCP mapping.
type VlanConfigurator struct{}

// VlanName returns the sub-interface name for a parent and VLAN ID.
func VlanName(iface string, vid int) string {
	return fmt.Sprintf("%s.%d", iface, vid)
}

// Setup creates the VLAN sub-interface if needed and brings it up. An
// existing interface with the right VID and protocol is reused; anything
// else under the same name is refused.
func (v VlanConfigurator) Setup(iface string, vid int, soprioToPCP map[int]int) error {
	name := VlanName(iface, vid)

	if link, err := netlink.LinkByName(name); err == nil {
		vlan, ok := link.(*netlink.Vlan)
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotVlan, name)
		}
		if vlan.VlanProtocol != netlink.VLAN_PROTOCOL_8021Q {
			return fmt.Errorf("%w: %s", ErrNotVlan, name)
		}
		if vlan.VlanId != vid {
			return fmt.Errorf("%w: %s has %d, want %d", ErrVlanMismatch, name, vlan.VlanId, vid)
		}
	} else {
		if err := runCommand(vlanAddCommand(iface, vid, soprioToPCP)); err != nil {
			return err
		}
	}

	link, err := netlink.LinkByName(name)
	if err != nil {
		return err
	}
	return netlink.LinkSetUp(link)
}

// Unset removes the VLAN sub-interface.
func (v VlanConfigurator) Unset(iface string, vid int) error {
	link, err := netlink.LinkByName(VlanName(iface, vid))
	if err != nil {
		var notFound netlink.LinkNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}
	return netlink.LinkDel(link)
}

// vlanAddCommand renders the ip invocation creating the tagged interface.
// The egress map runs in ascending socket priority order so the command is
// stable for tests.
func vlanAddCommand(iface string, vid int, soprioToPCP map[int]int) string {
	soprios := make([]int, 0, len(soprioToPCP))
	for soprio := range soprioToPCP {
		soprios = append(soprios, soprio)
	}
	sort.Ints(soprios)

	egress := make([]string, 0, len(soprios))
	for _, soprio := range soprios {
		egress = append(egress, fmt.Sprintf("%d:%d", soprio, soprioToPCP[soprio]))
	}

	return fmt.Sprintf("ip link add link %s name %s type vlan protocol 802.1Q id %d egress %s",
		iface, VlanName(iface, vid), vid, strings.Join(egress, " "))
}
