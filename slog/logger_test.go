/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package slog

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"
)

type memWriteCloser struct {
	mtx sync.Mutex
	buf bytes.Buffer
}

func (m *memWriteCloser) Write(b []byte) (int, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.buf.Write(b)
}

func (m *memWriteCloser) Close() error { return nil }

func (m *memWriteCloser) String() string {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.buf.String()
}

func TestLoggerLevelGating(t *testing.T) {
	mw := &memWriteCloser{}
	l := New(mw)
	if err := l.SetLevel(WARN); err != nil {
		t.Fatal(err)
	}
	if err := l.Info("should not appear"); err != nil {
		t.Fatal(err)
	}
	if err := l.Warn("should appear"); err != nil {
		t.Fatal(err)
	}
	out := mw.String()
	if strings.Contains(out, "should not appear") {
		t.Fatal("info line passed through a WARN-level logger")
	}
	if !strings.Contains(out, "should appear") {
		t.Fatal("warn line did not reach the writer")
	}
}

func TestLoggerStructuredFields(t *testing.T) {
	mw := &memWriteCloser{}
	l := New(mw)
	if err := l.Info("module started", KV("module", "flow_meter"), KV("pid", 4242)); err != nil {
		t.Fatal(err)
	}
	out := mw.String()
	if !strings.Contains(out, "module started") {
		t.Fatal("message missing from output")
	}
	if !strings.Contains(out, "flow_meter") || !strings.Contains(out, "4242") {
		t.Fatalf("structured fields missing from output: %q", out)
	}
}

func TestKVLoggerPinnedFields(t *testing.T) {
	mw := &memWriteCloser{}
	l := New(mw)
	kvl := l.WithKV(KV("module", "trap_reader"))
	if err := kvl.Error("crashed", KVErr(ErrNotOpen)); err != nil {
		t.Fatal(err)
	}
	out := mw.String()
	if !strings.Contains(out, "trap_reader") {
		t.Fatal("pinned field missing from KVLogger output")
	}
	if !strings.Contains(out, "crashed") {
		t.Fatal("message missing from KVLogger output")
	}
}

type memRelay struct {
	mtx   sync.Mutex
	lines [][]byte
}

func (r *memRelay) WriteLog(_ time.Time, b []byte) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	cp := make([]byte, len(b))
	copy(cp, b)
	r.lines = append(r.lines, cp)
	return nil
}

func TestLoggerRelay(t *testing.T) {
	mw := &memWriteCloser{}
	l := New(mw)
	r := &memRelay{}
	if err := l.AddRelay(r); err != nil {
		t.Fatal(err)
	}
	if err := l.Info("hello"); err != nil {
		t.Fatal(err)
	}
	r.mtx.Lock()
	n := len(r.lines)
	r.mtx.Unlock()
	if n != 1 {
		t.Fatalf("expected relay to receive 1 line, got %d", n)
	}
	l.DeleteRelay(r)
	if err := l.Info("world"); err != nil {
		t.Fatal(err)
	}
	r.mtx.Lock()
	n = len(r.lines)
	r.mtx.Unlock()
	if n != 1 {
		t.Fatal("relay still receiving lines after DeleteRelay")
	}
}

func TestLoggerCloseThenReadyFails(t *testing.T) {
	mw := &memWriteCloser{}
	l := New(mw)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	if err := l.Info("after close"); err != ErrNotOpen {
		t.Fatalf("expected ErrNotOpen after Close, got %v", err)
	}
}

func TestNewDiscard(t *testing.T) {
	l := NewDiscard()
	if err := l.Info("swallowed"); err != nil {
		t.Fatal(err)
	}
}
