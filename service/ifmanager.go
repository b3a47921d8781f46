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

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/gravwell/detnetd/devices"
	"github.com/gravwell/detnetd/log"
	"github.com/gravwell/detnetd/mapping"
	"github.com/gravwell/detnetd/schedule"
	"github.com/gravwell/detnetd/sysconf"
)

var (
	ErrUnknownStream = errors.New("no reservation with that stream ID")
)

// Reservation is what a client gets back for an accepted stream.
type Reservation struct {
	StreamID       uuid.UUID
	VlanInterface  string
	SocketPriority int
	// TxOffsetMin and TxOffsetMax bound when the application should hand the
	// frame to the device so it is on the wire at its offset, accounting for
	// hardware latency. Clamped at zero.
	TxOffsetMin int64
	TxOffsetMax int64
}

type streamReservation struct {
	id      uuid.UUID
	traffic *schedule.Traffic
	soprio  int
	tc      int
	queue   int
	vid     int
	talker  bool
}

// InterfaceManager owns the reservation state of one interface: its device
// record, resource mapping, scheduler and the set of VLAN IDs already
// configured. All calls run under the Manager's mutex.
type InterfaceManager struct {
	name      string
	dev       devices.Device
	mapping   *mapping.Mapping
	scheduler *schedule.Scheduler
	vids      map[int]bool
	streams   map[uuid.UUID]*streamReservation
	conf      sysconf.SystemConfigurator
	sysinfo   sysconf.SystemInformation
	lg        *log.Logger
}

// NewInterfaceManager resolves the interface to its device record and builds
// the fresh mapping and scheduler for it.
func NewInterfaceManager(name string, conf sysconf.SystemConfigurator, sysinfo sysconf.SystemInformation, lg *log.Logger) (*InterfaceManager, error) {
	pciID, err := sysinfo.GetPCIID(name)
	if err != nil {
		return nil, err
	}
	dev, err := devices.FromPCIID(pciID)
	if err != nil {
		return nil, err
	}
	m, err := mapping.New(dev.NumTxQueues())
	if err != nil {
		return nil, err
	}
	lg.Info("interface manager created",
		log.KV("interface", name),
		log.KV("pciid", pciID),
		log.KV("device", dev.Name()))
	return &InterfaceManager{
		name:      name,
		dev:       dev,
		mapping:   m,
		scheduler: schedule.NewScheduler(mapping.BestEffortTC),
		vids:      make(map[int]bool),
		streams:   make(map[uuid.UUID]*streamReservation),
		conf:      conf,
		sysinfo:   sysinfo,
		lg:        lg,
	}, nil
}

// Device returns the capability record backing the interface.
func (im *InterfaceManager) Device() devices.Device {
	return im.dev
}

// InitInterface applies pre-stream device preparation.
func (im *InterfaceManager) InitInterface(hints *schedule.Hints) error {
	h := im.effectiveHints(hints)
	if err := devices.CheckHints(im.dev, h); err != nil {
		return err
	}
	return im.conf.InitInterface(im.name, im.dev, h)
}

// AddTalker performs the atomic talker transaction: allocate resources, grow
// the schedule, test device feasibility, then apply the system
// configuration. Any failure restores the mapping and scheduler to their
// state before the call.
func (im *InterfaceManager) AddTalker(cfg *schedule.Configuration) (*Reservation, error) {
	rate, err := im.sysinfo.GetRate(im.name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", sysconf.ErrLinkDown, err)
	}

	soprio, tc, queue, err := im.mapping.AssignAndMap(cfg.Stream.PCP)
	if err != nil {
		return nil, err
	}

	traffic, err := schedule.NewScheduledTraffic(cfg, rate)
	if err != nil {
		im.rollbackMapping(soprio, tc, queue)
		return nil, err
	}
	traffic.TC = tc

	if err := im.scheduler.Add(traffic); err != nil {
		im.rollbackMapping(soprio, tc, queue)
		return nil, err
	}

	hints := im.effectiveHints(cfg.Hints)
	if err := devices.CheckHints(im.dev, hints); err != nil {
		im.rollbackSchedule(traffic)
		im.rollbackMapping(soprio, tc, queue)
		return nil, err
	}

	if !im.dev.SupportsSchedule(im.scheduler.Schedule) {
		im.rollbackSchedule(traffic)
		im.rollbackMapping(soprio, tc, queue)
		return nil, devices.ErrUnsupportedSchedule
	}

	baseTime := im.baseTime(cfg)

	err = im.conf.SetupTalker(sysconf.TalkerParams{
		Interface:  im.name,
		Device:     im.dev,
		Mapping:    im.mapping,
		Schedule:   im.scheduler.Schedule,
		Stream:     cfg.Stream,
		Hints:      hints,
		BaseTime:   baseTime,
		CreateVlan: !im.vids[cfg.Stream.VID],
	})
	if err != nil {
		im.rollbackSchedule(traffic)
		im.rollbackMapping(soprio, tc, queue)
		if errors.Is(err, sysconf.ErrInconsistent) {
			im.lg.Critical("system revert failed, state inconsistent",
				log.KV("interface", im.name), log.KVErr(err))
			return nil, err
		}
		return nil, err
	}

	im.vids[cfg.Stream.VID] = true

	res := &streamReservation{
		id:      uuid.New(),
		traffic: traffic,
		soprio:  soprio,
		tc:      tc,
		queue:   queue,
		vid:     cfg.Stream.VID,
		talker:  true,
	}
	im.streams[res.id] = res

	im.lg.Info("talker accepted",
		log.KV("interface", im.name),
		log.KV("stream", res.id),
		log.KV("soprio", soprio),
		log.KV("tc", tc),
		log.KV("basetime", baseTime))

	txmin, txmax := im.txOffsetBounds(cfg.Stream.TxOffset)
	return &Reservation{
		StreamID:       res.id,
		VlanInterface:  sysconf.VlanName(im.name, cfg.Stream.VID),
		SocketPriority: soprio,
		TxOffsetMin:    txmin,
		TxOffsetMax:    txmax,
	}, nil
}

// AddListener allocates ingress resources for a listener stream. Listeners
// never touch the scheduler; the gate schedule is an egress concern.
func (im *InterfaceManager) AddListener(cfg *schedule.ListenerConfiguration) (*Reservation, error) {
	if _, err := im.sysinfo.GetRate(im.name); err != nil {
		return nil, fmt.Errorf("%w: %v", sysconf.ErrLinkDown, err)
	}

	soprio, tc, queue, err := im.mapping.AssignAndMap(cfg.Stream.PCP)
	if err != nil {
		return nil, err
	}

	hints := im.effectiveHints(cfg.Hints)
	if err := devices.CheckHints(im.dev, hints); err != nil {
		im.rollbackMapping(soprio, tc, queue)
		return nil, err
	}

	err = im.conf.SetupListener(sysconf.ListenerParams{
		Interface:  im.name,
		Device:     im.dev,
		Mapping:    im.mapping,
		Stream:     cfg.Stream,
		Hints:      hints,
		CreateVlan: !im.vids[cfg.Stream.VID],
	})
	if err != nil {
		im.rollbackMapping(soprio, tc, queue)
		return nil, err
	}

	im.vids[cfg.Stream.VID] = true

	res := &streamReservation{
		id:     uuid.New(),
		soprio: soprio,
		tc:     tc,
		queue:  queue,
		vid:    cfg.Stream.VID,
	}
	im.streams[res.id] = res

	im.lg.Info("listener accepted",
		log.KV("interface", im.name),
		log.KV("stream", res.id),
		log.KV("soprio", soprio))

	txmin, txmax := im.txOffsetBounds(cfg.Stream.TxOffset)
	return &Reservation{
		StreamID:       res.id,
		VlanInterface:  sysconf.VlanName(im.name, cfg.Stream.VID),
		SocketPriority: soprio,
		TxOffsetMin:    txmin,
		TxOffsetMax:    txmax,
	}, nil
}

// Remove releases a previously accepted stream's schedule slot and resource
// triple. The VLAN sub-interface stays; other streams may share the VID.
func (im *InterfaceManager) Remove(id uuid.UUID) error {
	res, ok := im.streams[id]
	if !ok {
		return ErrUnknownStream
	}
	if res.traffic != nil {
		if err := im.scheduler.Remove(res.traffic); err != nil {
			return err
		}
	}
	if err := im.mapping.UnmapAndFree(res.soprio, res.tc, res.queue); err != nil {
		return err
	}
	delete(im.streams, id)
	return nil
}

// baseTime returns the stream's base time, computing one on the next cycle
// boundary (offset by the device's cycle multiple) when the client gave none.
func (im *InterfaceManager) baseTime(cfg *schedule.Configuration) int64 {
	if cfg.Stream.BaseTime != nil {
		return *cfg.Stream.BaseTime
	}
	now := taiNow()
	interval := cfg.Traffic.Interval
	nsToNextCycle := interval - now%interval
	return now + nsToNextCycle + im.dev.BaseTimeMultiple()*interval
}

// txOffsetBounds adjusts the tx offset by the device's hardware latency,
// clamping at zero.
func (im *InterfaceManager) txOffsetBounds(txoffset int64) (int64, int64) {
	txmin := txoffset - im.dev.HardwareLatencyMax()
	txmax := txoffset - im.dev.HardwareLatencyMin()
	if txmin < 0 {
		txmin = 0
	}
	if txmax < 0 {
		txmax = 0
	}
	return txmin, txmax
}

func (im *InterfaceManager) effectiveHints(h *schedule.Hints) *schedule.Hints {
	if h != nil {
		return h
	}
	def := im.dev.DefaultHints()
	return &def
}

func (im *InterfaceManager) rollbackMapping(soprio, tc, queue int) {
	if err := im.mapping.UnmapAndFree(soprio, tc, queue); err != nil {
		im.lg.Error("mapping rollback failed",
			log.KV("interface", im.name), log.KVErr(err))
	}
}

func (im *InterfaceManager) rollbackSchedule(traffic *schedule.Traffic) {
	if err := im.scheduler.Remove(traffic); err != nil {
		im.lg.Error("scheduler rollback failed",
			log.KV("interface", im.name), log.KVErr(err))
	}
}

// taiNow reads CLOCK_TAI in nanoseconds. Gate schedules are anchored to TAI,
// matching the clock taprio runs against.
func taiNow() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_TAI, &ts); err != nil {
		// TAI should always be available on Linux; realtime keeps the
		// schedule functional if it somehow is not.
		unix.ClockGettime(unix.CLOCK_REALTIME, &ts)
	}
	return ts.Nano()
}
