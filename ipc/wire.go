/*************************************************************************
 * Copyright 2024 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package ipc implements the wire protocol spoken between detnetd and its
// client stubs over a Unix datagram socket. Every datagram carries exactly
// one message: a one byte protocol version, a uint32 message magic, then the
// fixed-width little endian fields of that message. Strings travel as a
// uint16 length followed by the bytes. File descriptors ride next to a
// response as SCM_RIGHTS ancillary data.
package ipc

import (
	"errors"
)

const (
	// Version is bumped on any incompatible change to the encoding; the two
	// sides refuse to talk across versions.
	Version uint8 = 0x1

	// MaxMessageSize bounds a single datagram. No message comes anywhere
	// close; oversized datagrams are malformed by definition.
	MaxMessageSize int = 4096
)

// Message magics, one per envelope variant.
const (
	InvalidMagic           MessageMagic = 0x00000000
	InitRequestMagic       MessageMagic = 0xB5E70301
	InitResponseMagic      MessageMagic = 0xB5E70302
	StreamQosRequestMagic  MessageMagic = 0xB5E70303
	StreamQosResponseMagic MessageMagic = 0xB5E70304
)

type MessageMagic uint32

var (
	ErrMalformed      = errors.New("malformed message")
	ErrShortBuffer    = errors.New("buffer too short for message")
	ErrBadVersion     = errors.New("protocol version mismatch")
	ErrUnknownMessage = errors.New("unknown message magic")
	ErrOversized      = errors.New("message exceeds maximum datagram size")
)

// WireHints is the optional hints block carried by requests.
type WireHints struct {
	TxSelection        uint8
	TxSelectionOffload bool
	DataPath           uint8
	Preemption         bool
	LaunchTimeControl  bool
}

// InitRequest asks the daemon to prepare an interface before any stream is
// registered on it.
type InitRequest struct {
	Interface string
	Hints     *WireHints
}

type InitResponse struct {
	OK bool
}

// StreamQosRequest registers a talker or listener stream. TxMin and TxMax
// bound the transmission offset within the cycle; the daemon currently
// schedules at TxMin. MAddress is only meaningful for listeners.
type StreamQosRequest struct {
	Interface   string
	Period      uint64
	Size        uint32
	DMAC        string
	VID         uint16
	PCP         uint8
	TxMin       uint64
	TxMax       uint64
	SetupSocket bool
	Talker      bool
	MAddress    string
	Hints       *WireHints
}

// StreamQosResponse returns the VLAN interface and socket priority the
// application must use. When the request asked for a socket, the descriptor
// arrives as ancillary data beside this message.
type StreamQosResponse struct {
	OK             bool
	VlanInterface  string
	SocketPriority uint32
}
