/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package sysconf applies reservation state to the system: the taprio qdisc,
// VLAN sub-interfaces with egress priority mapping, device level features and
// the sysctl knobs around them. It also answers questions about the system
// (PCI IDs, link rate, link state) and validates anything that crosses into
// an external command.
package sysconf

import (
	"os"
	"path/filepath"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// IsInterface reports whether name resolves to a kernel network interface.
func IsInterface(name string) bool {
	if name == `` {
		return false
	}
	_, err := netlink.LinkByName(name)
	return err == nil
}

// IsValidPath reports whether the path is absolute.
func IsValidPath(path string) bool {
	return path != `` && filepath.IsAbs(path)
}

// IsValidFile rejects symlinks, hardlinked files, and anything that is not a
// regular file. Used on the lock file before unlinking it.
func IsValidFile(path string) bool {
	if !IsValidPath(path) {
		return false
	}
	fi, err := os.Lstat(path)
	if err != nil {
		return false
	}
	if fi.Mode()&os.ModeSymlink != 0 {
		return false
	}
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false
	}
	// More than one reference means someone hardlinked it.
	if st.Nlink > 1 {
		return false
	}
	return fi.Mode().IsRegular()
}

// IsValidUnixDomainSocket verifies the path points at a socket inode that is
// not a hardlink. Clients run this on every open of the service endpoint.
func IsValidUnixDomainSocket(path string) bool {
	if !IsValidPath(path) {
		return false
	}
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false
	}
	if st.Nlink > 1 {
		return false
	}
	return st.Mode&unix.S_IFMT == unix.S_IFSOCK
}
