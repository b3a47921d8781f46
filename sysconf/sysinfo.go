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
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/safchain/ethtool"
	"github.com/vishvananda/netlink"
)

const (
	// Querying the link speed immediately after a device reconfiguration
	// can report unknown; wait this long before the single retry.
	rateRetryDelay = time.Second

	mbps int64 = 1000 * 1000
)

var (
	ErrLinkDown    = errors.New("link is down or its rate cannot be determined")
	ErrNoPCIDevice = errors.New("interface is not backed by a PCI device")
)

// SystemInformation answers read-only questions about an interface.
type SystemInformation interface {
	GetPCIID(iface string) (string, error)
	GetRate(iface string) (int64, error)
	HasLink(iface string) (bool, error)
}

// SysInfo is the production SystemInformation, backed by sysfs, ethtool and
// rtnetlink.
type SysInfo struct{}

// GetPCIID returns the PCI vendor:device string for the interface, in the
// VVVV:DDDD uppercase hex form device records are keyed on.
func (s SysInfo) GetPCIID(iface string) (string, error) {
	vendor, err := readSysfsHex(iface, `vendor`)
	if err != nil {
		return ``, err
	}
	device, err := readSysfsHex(iface, `device`)
	if err != nil {
		return ``, err
	}
	return fmt.Sprintf("%04X:%04X", vendor, device), nil
}

// GetRate returns the link rate in bits per second. An unknown speed is
// retried once after a short delay, then surfaced as ErrLinkDown.
func (s SysInfo) GetRate(iface string) (int64, error) {
	rate, err := querySpeed(iface)
	if err == nil {
		return rate, nil
	}
	time.Sleep(rateRetryDelay)
	return querySpeed(iface)
}

// HasLink reports whether the interface has an operational carrier.
func (s SysInfo) HasLink(iface string) (bool, error) {
	et, err := ethtool.NewEthtool()
	if err != nil {
		return false, err
	}
	defer et.Close()
	state, err := et.LinkState(iface)
	if err != nil {
		return false, err
	}
	return state != 0, nil
}

// IsInterfaceUp reports whether the kernel considers the link operationally up.
func (s SysInfo) IsInterfaceUp(iface string) bool {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return false
	}
	return link.Attrs().OperState == netlink.OperUp
}

func querySpeed(iface string) (int64, error) {
	ecmd := ethtool.EthtoolCmd{}
	speed, err := ecmd.CmdGet(iface)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrLinkDown, iface, err)
	}
	// 0, 16 bit -1 and 32 bit -1 are all "unknown" depending on driver age.
	if speed == 0 || speed == math.MaxUint16 || speed == math.MaxUint32 {
		return 0, fmt.Errorf("%w: %s reports unknown speed", ErrLinkDown, iface)
	}
	return int64(speed) * mbps, nil
}

func readSysfsHex(iface, attr string) (uint64, error) {
	p := fmt.Sprintf("/sys/class/net/%s/device/%s", iface, attr)
	b, err := os.ReadFile(p)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrNoPCIDevice, iface, err)
	}
	str := strings.TrimSpace(string(b))
	str = strings.TrimPrefix(str, `0x`)
	v, err := strconv.ParseUint(str, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: bad %s value %q", ErrNoPCIDevice, iface, attr, str)
	}
	return v, nil
}
