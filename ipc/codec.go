/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package ipc

import (
	"encoding/binary"
	"fmt"
)

// Encode renders any of the four message types into a datagram payload.
func Encode(msg interface{}) ([]byte, error) {
	e := newEncoder()
	switch m := msg.(type) {
	case *InitRequest:
		e.magic(InitRequestMagic)
		e.str(m.Interface)
		e.hints(m.Hints)
	case *InitResponse:
		e.magic(InitResponseMagic)
		e.boolean(m.OK)
	case *StreamQosRequest:
		e.magic(StreamQosRequestMagic)
		e.str(m.Interface)
		e.u64(m.Period)
		e.u32(m.Size)
		e.str(m.DMAC)
		e.u16(m.VID)
		e.u8(m.PCP)
		e.u64(m.TxMin)
		e.u64(m.TxMax)
		e.boolean(m.SetupSocket)
		e.boolean(m.Talker)
		e.str(m.MAddress)
		e.hints(m.Hints)
	case *StreamQosResponse:
		e.magic(StreamQosResponseMagic)
		e.boolean(m.OK)
		e.str(m.VlanInterface)
		e.u32(m.SocketPriority)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, msg)
	}
	if e.err != nil {
		return nil, e.err
	}
	if len(e.buf) > MaxMessageSize {
		return nil, ErrOversized
	}
	return e.buf, nil
}

// Decode parses one datagram into its message struct. The caller switches on
// the returned type.
func Decode(buf []byte) (interface{}, error) {
	d := &decoder{buf: buf}
	ver := d.u8()
	if d.err != nil {
		return nil, ErrShortBuffer
	}
	if ver != Version {
		return nil, fmt.Errorf("%w: got %d want %d", ErrBadVersion, ver, Version)
	}
	magic := MessageMagic(d.u32())
	if d.err != nil {
		return nil, d.err
	}
	var msg interface{}
	switch magic {
	case InitRequestMagic:
		m := &InitRequest{}
		m.Interface = d.str()
		m.Hints = d.hints()
		msg = m
	case InitResponseMagic:
		m := &InitResponse{}
		m.OK = d.boolean()
		msg = m
	case StreamQosRequestMagic:
		m := &StreamQosRequest{}
		m.Interface = d.str()
		m.Period = d.u64()
		m.Size = d.u32()
		m.DMAC = d.str()
		m.VID = d.u16()
		m.PCP = d.u8()
		m.TxMin = d.u64()
		m.TxMax = d.u64()
		m.SetupSocket = d.boolean()
		m.Talker = d.boolean()
		m.MAddress = d.str()
		m.Hints = d.hints()
		msg = m
	case StreamQosResponseMagic:
		m := &StreamQosResponse{}
		m.OK = d.boolean()
		m.VlanInterface = d.str()
		m.SocketPriority = d.u32()
		msg = m
	default:
		return nil, fmt.Errorf("%w: 0x%08X", ErrUnknownMessage, uint32(magic))
	}
	if d.err != nil {
		return nil, d.err
	}
	if d.off != len(d.buf) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(d.buf)-d.off)
	}
	return msg, nil
}

type encoder struct {
	buf []byte
	err error
}

func newEncoder() *encoder {
	e := &encoder{buf: make([]byte, 0, 256)}
	e.u8(Version)
	return e
}

func (e *encoder) magic(m MessageMagic) { e.u32(uint32(m)) }

func (e *encoder) u8(v uint8)   { e.buf = append(e.buf, v) }
func (e *encoder) u16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }
func (e *encoder) u32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *encoder) u64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

func (e *encoder) boolean(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) str(s string) {
	if len(s) > 0xffff {
		e.err = ErrOversized
		return
	}
	e.u16(uint16(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *encoder) hints(h *WireHints) {
	if h == nil {
		e.boolean(false)
		return
	}
	e.boolean(true)
	e.u8(h.TxSelection)
	e.boolean(h.TxSelectionOffload)
	e.u8(h.DataPath)
	e.boolean(h.Preemption)
	e.boolean(h.LaunchTimeControl)
}

type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if d.off+n > len(d.buf) {
		d.err = ErrShortBuffer
		return false
	}
	return true
}

func (d *decoder) u8() (v uint8) {
	if d.need(1) {
		v = d.buf[d.off]
		d.off++
	}
	return
}

func (d *decoder) u16() (v uint16) {
	if d.need(2) {
		v = binary.LittleEndian.Uint16(d.buf[d.off:])
		d.off += 2
	}
	return
}

func (d *decoder) u32() (v uint32) {
	if d.need(4) {
		v = binary.LittleEndian.Uint32(d.buf[d.off:])
		d.off += 4
	}
	return
}

func (d *decoder) u64() (v uint64) {
	if d.need(8) {
		v = binary.LittleEndian.Uint64(d.buf[d.off:])
		d.off += 8
	}
	return
}

func (d *decoder) boolean() bool {
	return d.u8() != 0
}

func (d *decoder) str() (s string) {
	n := int(d.u16())
	if d.need(n) {
		s = string(d.buf[d.off : d.off+n])
		d.off += n
	}
	return
}

func (d *decoder) hints() *WireHints {
	if !d.boolean() {
		return nil
	}
	h := &WireHints{}
	h.TxSelection = d.u8()
	h.TxSelectionOffload = d.boolean()
	h.DataPath = d.u8()
	h.Preemption = d.boolean()
	h.LaunchTimeControl = d.boolean()
	if d.err != nil {
		return nil
	}
	return h
}
