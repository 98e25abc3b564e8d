/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package svcchan

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeModule starts a one-shot UNIX listener that plays the module
// side of the protocol: read the GET header, reply with an OK header
// and the given payload.
func fakeModule(t *testing.T, path string, payload []byte) net.Listener {
	t.Helper()
	l, err := net.Listen(`unix`, path)
	if err != nil {
		t.Fatal(err)
	}
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if _, err := readHeader(conn); err != nil {
			return
		}
		writeHeader(conn, Header{Command: CmdOK, DataSize: uint32(len(payload))})
		conn.Write(payload)
	}()
	return l
}

func TestScrapeHappyPath(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, `mod.sock`)
	payload := []byte(`{"in":[{"messages":1,"buffers":2}]}`)
	l := fakeModule(t, sock, payload)
	defer l.Close()

	conn, err := net.DialTimeout(`unix`, sock, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	got, err := Scrape(conn)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestDialMissingSocketFails(t *testing.T) {
	if _, err := Dial(os.Getpid()); err == nil {
		t.Fatal("expected dial to a nonexistent per-pid socket to fail")
	}
}

func TestSocketPathFormat(t *testing.T) {
	if got, want := SocketPath(4242), `/tmp/trap-localhost-service_4242.sock`; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
