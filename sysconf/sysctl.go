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
	"os"
)

// SysctlConfigurator flips the per-interface kernel knobs detnetd cares
// about. Currently that is only disabling IPv6 on deterministic interfaces,
// so no autoconfiguration traffic lands in a scheduled window.
type SysctlConfigurator struct{}

// DisableIPv6 disables IPv6 on the interface, or on its VLAN sub-interface
// when vid is non-zero.
func (s SysctlConfigurator) DisableIPv6(iface string, vid int) error {
	name := iface
	if vid != 0 {
		// procfs names the directory after the interface itself, eth0.3.
		name = VlanName(iface, vid)
	}
	p := fmt.Sprintf("/proc/sys/net/ipv6/conf/%s/disable_ipv6", name)
	if err := os.WriteFile(p, []byte("1\n"), 0644); err != nil {
		if os.IsNotExist(err) {
			// IPv6 is compiled out or already absent on the interface.
			return nil
		}
		return err
	}
	return nil
}
