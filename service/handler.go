/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package service

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/gravwell/detnetd/ipc"
	"github.com/gravwell/detnetd/log"
	"github.com/gravwell/detnetd/schedule"
	"github.com/gravwell/detnetd/sysconf"
)

var errBadHints = errors.New("hints carry out of range values")

// handleDatagram decodes one request, runs it, and sends the response back
// to the requesting socket. Handler failures become ok=false responses; the
// serve loop never dies on a bad request.
func (s *Service) handleDatagram(buf []byte, from unix.Sockaddr) {
	msg, err := ipc.Decode(buf)
	if err != nil {
		if s.limiter.Allow() {
			s.lg.Warn("dropping malformed datagram", log.KVErr(err))
		}
		s.send(&ipc.StreamQosResponse{OK: false}, from)
		return
	}

	switch m := msg.(type) {
	case *ipc.InitRequest:
		s.handleInit(m, from)
	case *ipc.StreamQosRequest:
		s.handleStreamQos(m, from)
	default:
		if s.limiter.Allow() {
			s.lg.Warn("dropping unexpected message type",
				log.KV("type", fmt.Sprintf("%T", msg)))
		}
		s.send(&ipc.StreamQosResponse{OK: false}, from)
	}
}

func (s *Service) handleInit(req *ipc.InitRequest, from unix.Sockaddr) {
	ok := true
	hints, err := hintsFromWire(req.Hints)
	if err == nil {
		err = s.manager.InitInterface(req.Interface, hints)
	}
	if err != nil {
		s.lg.Error("interface init failed",
			log.KV("interface", req.Interface), log.KVErr(err))
		ok = false
	}
	s.send(&ipc.InitResponse{OK: ok}, from)
}

func (s *Service) handleStreamQos(req *ipc.StreamQosRequest, from unix.Sockaddr) {
	res, err := s.runStreamQos(req)
	if err != nil {
		s.lg.Error("stream request failed",
			log.KV("interface", req.Interface),
			log.KV("talker", req.Talker),
			log.KVErr(err))
		s.send(&ipc.StreamQosResponse{OK: false}, from)
		s.failIfInconsistent(err)
		return
	}

	resp := &ipc.StreamQosResponse{
		OK:             true,
		VlanInterface:  res.VlanInterface,
		SocketPriority: uint32(res.SocketPriority),
	}

	if !req.SetupSocket {
		s.send(resp, from)
		return
	}

	fd, err := createPrioritySocket(res.SocketPriority)
	if err != nil {
		s.lg.Error("stream socket setup failed", log.KVErr(err))
		s.send(&ipc.StreamQosResponse{OK: false}, from)
		return
	}
	defer unix.Close(fd)
	if buf, err := ipc.Encode(resp); err != nil {
		s.lg.Error("failed to encode response", log.KVErr(err))
	} else if err = ipc.SendToWithFD(s.sock, buf, fd, from); err != nil {
		s.lg.Error("failed to send response with socket", log.KVErr(err))
	}
}

func (s *Service) runStreamQos(req *ipc.StreamQosRequest) (*Reservation, error) {
	hints, err := hintsFromWire(req.Hints)
	if err != nil {
		return nil, err
	}
	stream, err := schedule.NewStreamConfiguration(req.DMAC, int(req.VID), int(req.PCP), int64(req.TxMin), nil)
	if err != nil {
		return nil, err
	}
	traffic, err := schedule.NewTrafficSpecification(int64(req.Period), int(req.Size))
	if err != nil {
		return nil, err
	}

	if req.Talker {
		cfg, err := schedule.NewConfiguration(req.Interface, stream, traffic, hints)
		if err != nil {
			return nil, err
		}
		return s.manager.AddTalker(cfg)
	}
	lcfg, err := schedule.NewListenerConfiguration(req.Interface, stream, traffic, hints, req.MAddress)
	if err != nil {
		return nil, err
	}
	return s.manager.AddListener(lcfg)
}

func (s *Service) send(msg interface{}, to unix.Sockaddr) {
	buf, err := ipc.Encode(msg)
	if err != nil {
		s.lg.Error("failed to encode response", log.KVErr(err))
		return
	}
	if err := ipc.SendTo(s.sock, buf, to); err != nil {
		s.lg.Error("failed to send response", log.KVErr(err))
	}
}

// failIfInconsistent escalates a failed external rollback: internal state no
// longer matches the system, so the daemon refuses to keep serving.
func (s *Service) failIfInconsistent(err error) {
	if errors.Is(err, sysconf.ErrInconsistent) {
		s.lg.FatalCode(1, "system state inconsistent, terminating", log.KVErr(err))
	}
}

func hintsFromWire(h *ipc.WireHints) (*schedule.Hints, error) {
	if h == nil {
		return nil, nil
	}
	if h.TxSelection > uint8(schedule.TxSelectionStrictPriority) {
		return nil, errBadHints
	}
	if h.DataPath > uint8(schedule.DataPathAFXDPZC) {
		return nil, errBadHints
	}
	return &schedule.Hints{
		TxSelection:        schedule.TxSelection(h.TxSelection),
		TxSelectionOffload: h.TxSelectionOffload,
		DataPath:           schedule.DataPath(h.DataPath),
		Preemption:         h.Preemption,
		LaunchTimeControl:  h.LaunchTimeControl,
	}, nil
}

// createPrioritySocket opens a packet socket preconfigured with the assigned
// socket priority, ready to hand to the client via SCM_RIGHTS.
func createPrioritySocket(soprio int) (int, error) {
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_PRIORITY, soprio); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}
