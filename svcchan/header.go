/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package svcchan is C5, the service channel, and C6, the counter
// decoder: a per-module client over the module's own UNIX control
// socket, and the JSON reply parser that turns a scrape into typed
// per-interface statistics.
package svcchan

import (
	"encoding/binary"
	"errors"
	"io"
)

// Command is the single byte identifying a service-channel message,
// spec.md §4.4.
type Command uint8

const (
	CmdGet Command = 10 // supervisor -> module, no payload: request counters
	CmdSet Command = 11 // reserved, unused by this core
	CmdOK  Command = 12 // module -> supervisor: response header
)

// headerSize is the wire size of Header: one byte of command plus a
// four-byte data_size, with no padding between them.
const headerSize = 5

// maxPayloadSize is a sanity bound; a real counter JSON document for
// any realistic module is a few KiB at most.
const maxPayloadSize = 1 << 20

var (
	ErrUnknownCommand = errors.New("unknown service-channel command")
	ErrPayloadTooLarge = errors.New("service-channel payload too large")
)

// Header is the fixed framing every service-channel message starts
// with: a one-byte command and a four-byte payload length, packed in
// native (host) byte order — the module and supervisor always share
// one machine, so there is no cross-host endianness concern, per
// spec.md §4.4/§6.
type Header struct {
	Command  Command
	DataSize uint32
}

// writeHeader serializes h in native byte order. encoding/binary.Write
// has no struct padding concerns here: it writes each field's exact
// byte width in sequence, so the 1-then-4 byte layout spec.md requires
// falls out directly without manual byte slicing.
func writeHeader(w io.Writer, h Header) error {
	if err := binary.Write(w, binary.NativeEndian, uint8(h.Command)); err != nil {
		return err
	}
	return binary.Write(w, binary.NativeEndian, h.DataSize)
}

func readHeader(r io.Reader) (Header, error) {
	var cmd uint8
	var h Header
	if err := binary.Read(r, binary.NativeEndian, &cmd); err != nil {
		return h, err
	}
	if err := binary.Read(r, binary.NativeEndian, &h.DataSize); err != nil {
		return h, err
	}
	h.Command = Command(cmd)
	if h.DataSize > maxPayloadSize {
		return h, ErrPayloadTooLarge
	}
	return h, nil
}
