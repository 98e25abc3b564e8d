/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package svcchan

import (
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	// transientRetries and transientDelay implement the retry policy
	// of spec.md §4.4: up to 3 transient timeouts, 25ms apart, before
	// the send/recv operation gives up.
	transientRetries = 3
	transientDelay   = 25 * time.Millisecond

	dialTimeout = 2 * time.Second
	ioTimeout   = 250 * time.Millisecond
)

var (
	ErrServiceDropped = errors.New("service channel dropped")
)

// SocketPath derives the per-module control socket path from its PID,
// per spec.md §4.4/§6.
func SocketPath(pid int) string {
	return fmt.Sprintf("/tmp/trap-localhost-service_%d.sock", pid)
}

// Dial opens a single connection attempt to a module's control socket.
// The scheduler is responsible for counting attempts across the
// module's boot and declaring the connection blocked after 3 failures
// (spec.md §4.4 "Connection policy") — this function only performs one
// attempt.
func Dial(pid int) (net.Conn, error) {
	return net.DialTimeout(`unix`, SocketPath(pid), dialTimeout)
}

// Scrape sends a GET request and returns the raw JSON payload of the
// module's OK reply, retrying transient timeouts per spec.md §4.4.
// Any other failure (bad framing, unexpected command, I/O error other
// than a timeout) drops the channel immediately without retry — the
// caller should close conn and treat this as one service_failures.
func Scrape(conn net.Conn) ([]byte, error) {
	if err := sendWithRetry(conn, Header{Command: CmdGet}, nil); err != nil {
		return nil, err
	}
	return recvWithRetry(conn)
}

func sendWithRetry(conn net.Conn, h Header, payload []byte) error {
	h.DataSize = uint32(len(payload))
	for attempt := 0; ; attempt++ {
		conn.SetWriteDeadline(time.Now().Add(ioTimeout))
		err := writeHeader(conn, h)
		if err == nil && len(payload) > 0 {
			_, err = conn.Write(payload)
		}
		if err == nil {
			return nil
		}
		if !isTransient(err) || attempt >= transientRetries-1 {
			return fmt.Errorf("%w: %v", ErrServiceDropped, err)
		}
		time.Sleep(transientDelay)
	}
}

func recvWithRetry(conn net.Conn) ([]byte, error) {
	var h Header
	var err error
	for attempt := 0; ; attempt++ {
		conn.SetReadDeadline(time.Now().Add(ioTimeout))
		h, err = readHeader(conn)
		if err == nil {
			break
		}
		if !isTransient(err) || attempt >= transientRetries-1 {
			return nil, fmt.Errorf("%w: %v", ErrServiceDropped, err)
		}
		time.Sleep(transientDelay)
	}
	if h.Command != CmdOK {
		return nil, fmt.Errorf("%w: unexpected command %d", ErrServiceDropped, h.Command)
	}
	payload := make([]byte, h.DataSize)
	transientCount := 0
	for total := 0; total < len(payload); {
		conn.SetReadDeadline(time.Now().Add(ioTimeout))
		n, err := conn.Read(payload[total:])
		total += n
		if err != nil {
			if isTransient(err) && total < len(payload) && transientCount < transientRetries-1 {
				transientCount++
				time.Sleep(transientDelay)
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrServiceDropped, err)
		}
	}
	return payload, nil
}

// isTransient reports whether err is the kind of timeout the retry
// policy is meant to absorb (net's stand-in for EAGAIN/EWOULDBLOCK on
// a deadline-bearing connection).
func isTransient(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
