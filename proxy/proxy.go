/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package proxy is the client stub talker and listener applications use to
// request deterministic QoS from a running detnetd. One datagram out, one
// datagram back per call; responses may carry a preconfigured socket via
// SCM_RIGHTS.
package proxy

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/gravwell/detnetd/ipc"
	"github.com/gravwell/detnetd/schedule"
	"github.com/gravwell/detnetd/sysconf"
)

// DefaultSocketPath is where the service listens unless configured otherwise.
const DefaultSocketPath = `/var/run/detnetd/detnetd_service.sock`

var (
	ErrNotAServiceSocket  = errors.New("service endpoint is not a valid socket")
	ErrRequestRefused     = errors.New("service refused the request")
	ErrUnexpectedResponse = errors.New("unexpected response type")
	ErrNoSocketReturned   = errors.New("service did not attach a socket")
)

// Reservation mirrors what the service grants for one stream.
type Reservation struct {
	VlanInterface  string
	SocketPriority int
}

// ServiceProxy is a single-use-per-call, reusable client connection.
type ServiceProxy struct {
	sock    int
	svcAddr *unix.SockaddrUnix
	// Timeout bounds each receive; zero blocks forever.
	Timeout time.Duration
}

// New validates the service endpoint and binds an anonymous datagram socket
// to converse over. The endpoint inode is checked on every open: it must be
// a socket and must not be a hardlink.
func New(socketPath string) (*ServiceProxy, error) {
	if !sysconf.IsValidUnixDomainSocket(socketPath) {
		return nil, fmt.Errorf("%w: %s", ErrNotAServiceSocket, socketPath)
	}
	sock, err := unix.Socket(unix.AF_UNIX, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}
	// Autobind gives us an abstract address the service can reply to.
	if err := unix.Bind(sock, &unix.SockaddrUnix{Name: ``}); err != nil {
		unix.Close(sock)
		return nil, err
	}
	return &ServiceProxy{
		sock:    sock,
		svcAddr: &unix.SockaddrUnix{Name: socketPath},
	}, nil
}

func (p *ServiceProxy) Close() error {
	if p.sock < 0 {
		return nil
	}
	err := unix.Close(p.sock)
	p.sock = -1
	return err
}

// InitInterface asks the service to prepare an interface before streams are
// added to it.
func (p *ServiceProxy) InitInterface(iface string, hints *schedule.Hints) error {
	req := &ipc.InitRequest{
		Interface: iface,
		Hints:     hintsToWire(hints),
	}
	if err := p.send(req); err != nil {
		return err
	}
	msg, _, err := p.recv(false)
	if err != nil {
		return err
	}
	resp, ok := msg.(*ipc.InitResponse)
	if !ok {
		return ErrUnexpectedResponse
	}
	if !resp.OK {
		return fmt.Errorf("%w: interface init", ErrRequestRefused)
	}
	return nil
}

// AddTalker registers a talker stream and returns the VLAN interface and
// socket priority to send with.
func (p *ServiceProxy) AddTalker(cfg *schedule.Configuration) (*Reservation, error) {
	res, _, err := p.streamRequest(talkerRequest(cfg, false))
	return res, err
}

// AddTalkerSocket is AddTalker plus a preconfigured socket handed over by
// the service; the caller owns the returned file.
func (p *ServiceProxy) AddTalkerSocket(cfg *schedule.Configuration) (*Reservation, *os.File, error) {
	req := talkerRequest(cfg, true)
	res, f, err := p.streamRequest(req)
	if err != nil {
		return nil, nil, err
	}
	if f == nil {
		return nil, nil, ErrNoSocketReturned
	}
	return res, f, nil
}

// AddListener registers a listener stream.
func (p *ServiceProxy) AddListener(cfg *schedule.ListenerConfiguration) (*Reservation, error) {
	res, _, err := p.streamRequest(listenerRequest(cfg, false))
	return res, err
}

// AddListenerSocket is AddListener plus the preconfigured socket.
func (p *ServiceProxy) AddListenerSocket(cfg *schedule.ListenerConfiguration) (*Reservation, *os.File, error) {
	res, f, err := p.streamRequest(listenerRequest(cfg, true))
	if err != nil {
		return nil, nil, err
	}
	if f == nil {
		return nil, nil, ErrNoSocketReturned
	}
	return res, f, nil
}

func (p *ServiceProxy) streamRequest(req *ipc.StreamQosRequest) (*Reservation, *os.File, error) {
	if err := p.send(req); err != nil {
		return nil, nil, err
	}
	msg, fd, err := p.recv(req.SetupSocket)
	if err != nil {
		return nil, nil, err
	}
	resp, ok := msg.(*ipc.StreamQosResponse)
	if !ok {
		if fd >= 0 {
			unix.Close(fd)
		}
		return nil, nil, ErrUnexpectedResponse
	}
	if !resp.OK {
		if fd >= 0 {
			unix.Close(fd)
		}
		return nil, nil, fmt.Errorf("%w: stream qos", ErrRequestRefused)
	}
	var f *os.File
	if fd >= 0 {
		f = os.NewFile(uintptr(fd), `detnetd-stream`)
	}
	return &Reservation{
		VlanInterface:  resp.VlanInterface,
		SocketPriority: int(resp.SocketPriority),
	}, f, nil
}

func (p *ServiceProxy) send(msg interface{}) error {
	buf, err := ipc.Encode(msg)
	if err != nil {
		return err
	}
	return ipc.SendTo(p.sock, buf, p.svcAddr)
}

func (p *ServiceProxy) recv(withFD bool) (interface{}, int, error) {
	if p.Timeout > 0 {
		tv := unix.NsecToTimeval(p.Timeout.Nanoseconds())
		if err := unix.SetsockoptTimeval(p.sock, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
			return nil, -1, err
		}
	}
	var buf []byte
	var err error
	fd := -1
	if withFD {
		buf, fd, _, err = ipc.RecvFromWithFD(p.sock)
	} else {
		buf, _, err = ipc.RecvFrom(p.sock)
	}
	if err != nil {
		return nil, -1, err
	}
	msg, err := ipc.Decode(buf)
	if err != nil {
		if fd >= 0 {
			unix.Close(fd)
		}
		return nil, -1, err
	}
	return msg, fd, nil
}

func talkerRequest(cfg *schedule.Configuration, setupSocket bool) *ipc.StreamQosRequest {
	return &ipc.StreamQosRequest{
		Interface:   cfg.Interface,
		Period:      uint64(cfg.Traffic.Interval),
		Size:        uint32(cfg.Traffic.Size),
		DMAC:        cfg.Stream.Addr,
		VID:         uint16(cfg.Stream.VID),
		PCP:         uint8(cfg.Stream.PCP),
		TxMin:       uint64(cfg.Stream.TxOffset),
		TxMax:       uint64(cfg.Stream.TxOffset),
		SetupSocket: setupSocket,
		Talker:      true,
		Hints:       hintsToWire(cfg.Hints),
	}
}

func listenerRequest(cfg *schedule.ListenerConfiguration, setupSocket bool) *ipc.StreamQosRequest {
	return &ipc.StreamQosRequest{
		Interface:   cfg.Interface,
		Period:      uint64(cfg.Traffic.Interval),
		Size:        uint32(cfg.Traffic.Size),
		DMAC:        cfg.Stream.Addr,
		VID:         uint16(cfg.Stream.VID),
		PCP:         uint8(cfg.Stream.PCP),
		TxMin:       uint64(cfg.Stream.TxOffset),
		TxMax:       uint64(cfg.Stream.TxOffset),
		SetupSocket: setupSocket,
		Talker:      false,
		MAddress:    cfg.MAddress,
		Hints:       hintsToWire(cfg.Hints),
	}
}

func hintsToWire(h *schedule.Hints) *ipc.WireHints {
	if h == nil {
		return nil
	}
	return &ipc.WireHints{
		TxSelection:        uint8(h.TxSelection),
		TxSelectionOffload: h.TxSelectionOffload,
		DataPath:           uint8(h.DataPath),
		Preemption:         h.Preemption,
		LaunchTimeControl:  h.LaunchTimeControl,
	}
}
