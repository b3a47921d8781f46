/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package ipc

import (
	"errors"

	"golang.org/x/sys/unix"
)

var ErrNoFD = errors.New("no file descriptor in ancillary data")

// SendTo writes one datagram to the peer address.
func SendTo(sock int, msg []byte, to unix.Sockaddr) error {
	return unix.Sendto(sock, msg, 0, to)
}

// SendToWithFD writes one datagram with a file descriptor attached as
// SCM_RIGHTS ancillary data. The receiver takes ownership of its copy.
func SendToWithFD(sock int, msg []byte, fd int, to unix.Sockaddr) error {
	oob := unix.UnixRights(fd)
	return unix.Sendmsg(sock, msg, oob, to, 0)
}

// RecvFrom reads one datagram, returning the payload and sender address.
func RecvFrom(sock int) ([]byte, unix.Sockaddr, error) {
	buf := make([]byte, MaxMessageSize)
	n, from, err := unix.Recvfrom(sock, buf, 0)
	if err != nil {
		return nil, nil, err
	}
	return buf[:n], from, nil
}

// RecvFromWithFD reads one datagram that may carry a descriptor. The
// returned fd is -1 when the message carried none.
func RecvFromWithFD(sock int) ([]byte, int, unix.Sockaddr, error) {
	buf := make([]byte, MaxMessageSize)
	oob := make([]byte, unix.CmsgSpace(4))
	n, oobn, _, from, err := unix.Recvmsg(sock, buf, oob, 0)
	if err != nil {
		return nil, -1, nil, err
	}
	fd := -1
	if oobn > 0 {
		if cmsgs, err := unix.ParseSocketControlMessage(oob[:oobn]); err == nil {
			for _, cmsg := range cmsgs {
				if fds, err := unix.ParseUnixRights(&cmsg); err == nil && len(fds) > 0 {
					fd = fds[0]
					break
				}
			}
		}
	}
	return buf[:n], fd, from, nil
}
