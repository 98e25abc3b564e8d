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
	"testing"
)

const wellFormed = `{"in":[{"messages":10,"buffers":2}],"out":[{"sent-messages":5,"dropped-messages":1,"buffers":3,"autoflushes":0}]}`

func TestDecodeWellFormed(t *testing.T) {
	c, err := Decode([]byte(wellFormed), 1, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.In) != 1 || c.In[0].RecvMsg != 10 || c.In[0].RecvBuffer != 2 {
		t.Fatalf("in stats wrong: %+v", c.In)
	}
	if len(c.Out) != 1 || c.Out[0].SentMsg != 5 || c.Out[0].DroppedMsg != 1 || c.Out[0].SentBuffer != 3 {
		t.Fatalf("out stats wrong: %+v", c.Out)
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	c, err := Decode([]byte(wellFormed), 1, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	b, err := Encode(c)
	if err != nil {
		t.Fatal(err)
	}
	c2, err := Decode(b, 1, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c2.In[0] != c.In[0] || c2.Out[0] != c.Out[0] {
		t.Fatalf("round trip mismatch: %+v != %+v", c2, c)
	}
}

func TestDecodeAbsentInPermittedWhenZeroDeclared(t *testing.T) {
	if _, err := Decode([]byte(`{"out":[]}`), 0, 0, nil); err != nil {
		t.Fatal(err)
	}
}

func TestDecodeAbsentInFailsWhenDeclared(t *testing.T) {
	_, err := Decode([]byte(`{"out":[]}`), 1, 0, nil)
	if !errors.Is(err, ErrMissingIn) {
		t.Fatalf("expected ErrMissingIn, got %v", err)
	}
}

func TestDecodeMissingRequiredKeyFails(t *testing.T) {
	_, err := Decode([]byte(`{"in":[{"messages":1}]}`), 1, 0, nil)
	if !errors.Is(err, ErrMissingKey) {
		t.Fatalf("expected ErrMissingKey, got %v", err)
	}
}

func TestDecodeShorterWinsWithWarning(t *testing.T) {
	var warned bool
	warn := func(format string, args ...interface{}) { warned = true }
	c, err := Decode([]byte(`{"in":[{"messages":1,"buffers":1},{"messages":2,"buffers":2}]}`), 1, 0, warn)
	if err != nil {
		t.Fatal(err)
	}
	if !warned {
		t.Fatal("expected a length-mismatch warning")
	}
	if len(c.In) != 1 {
		t.Fatalf("expected truncation to declared count, got %d entries", len(c.In))
	}
}

func TestDecodeRootNotObjectFails(t *testing.T) {
	if _, err := Decode([]byte(`[1,2,3]`), 0, 0, nil); !errors.Is(err, ErrRootNotObject) {
		t.Fatalf("expected ErrRootNotObject, got %v", err)
	}
}
