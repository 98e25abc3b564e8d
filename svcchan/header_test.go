/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package svcchan

import (
	"bytes"
	"testing"
)

func TestHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	in := Header{Command: CmdOK, DataSize: 1234}
	if err := writeHeader(&buf, in); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != headerSize {
		t.Fatalf("expected %d bytes on the wire, got %d", headerSize, buf.Len())
	}
	out, err := readHeader(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Fatalf("got %+v, want %+v", out, in)
	}
}

func TestHeaderOversizedPayloadRejected(t *testing.T) {
	var buf bytes.Buffer
	writeHeader(&buf, Header{Command: CmdOK, DataSize: maxPayloadSize + 1})
	if _, err := readHeader(&buf); err != ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}
