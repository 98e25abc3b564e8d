/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package scheduler

import (
	"bytes"
	"encoding/binary"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/zidekmat/nemea-supervisor/config"
	"github.com/zidekmat/nemea-supervisor/svcchan"
)

type fakeSampler struct {
	userSec, kernelSec float64
	vmKiB              uint64
}

func (f fakeSampler) Sample(pid int) (float64, float64, uint64, error) {
	return f.userSec, f.kernelSec, f.vmKiB, nil
}

func TestSampleResourceComputesPercentFromDelta(t *testing.T) {
	cfg := &config.Config{Modules: []*config.Module{{Name: `m`, PID: 99, ProfileIdx: -1}}}
	s := newTestScheduler(cfg)
	s.sampler = fakeSampler{userSec: 1.0, kernelSec: 0.5, vmKiB: 2048}
	m := cfg.Modules[0]

	s.sampleResource(m) // first sample: no prior point, no percent yet
	if m.LastCPUUser != 1.0 || m.VMSizeKiB != 2048 {
		t.Fatalf("unexpected first-sample state: %+v", m)
	}

	s.lastSampleAt[m.Name] = time.Now().Add(-1 * time.Second)
	s.sampler = fakeSampler{userSec: 1.5, kernelSec: 0.8, vmKiB: 4096}
	s.sampleResource(m)
	if m.LastPctCPUUser <= 0 {
		t.Fatalf("expected a positive user cpu percent after a one-second delta, got %v", m.LastPctCPUUser)
	}
	if m.VMSizeKiB != 4096 {
		t.Fatalf("expected vmsize updated, got %d", m.VMSizeKiB)
	}
}

func TestPublishStatisticsLineFormats(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{Modules: []*config.Module{
		{
			Name: `worker`, Up: true, ProfileIdx: -1,
			LastPctCPUKernel: 1.5, LastPctCPUUser: 2.5, VMSizeKiB: 10240,
			Interfaces: []config.Interface{
				{Direction: config.DirIn, In: config.InStats{RecvMsg: 10, RecvBuffer: 20}},
				{Direction: config.DirOut, Out: config.OutStats{SentMsg: 5, DroppedMsg: 1, SentBuffer: 6, Autoflush: 2}},
			},
		},
	}}
	s := newTestScheduler(cfg)
	s.statsW = &buf

	s.publishStatistics()
	out := buf.String()
	for _, want := range []string{
		"worker,in,0,10,20\n",
		"worker,out,0,5,1,6,2\n",
		"worker,cpu,1.50,2.50\n",
		"worker,mem,10240\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected statistics output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestPublishStatisticsSkipsCPUMemForDownModule(t *testing.T) {
	var buf bytes.Buffer
	cfg := &config.Config{Modules: []*config.Module{{Name: `idle`, Up: false, ProfileIdx: -1}}}
	s := newTestScheduler(cfg)
	s.statsW = &buf
	s.publishStatistics()
	if strings.Contains(buf.String(), "idle,cpu") || strings.Contains(buf.String(), "idle,mem") {
		t.Fatalf("did not expect cpu/mem lines for a down module, got:\n%s", buf.String())
	}
}

// writeFakeHeader mirrors the wire framing of svcchan.Header without
// depending on that package's unexported helpers.
func writeFakeHeader(conn net.Conn, cmd byte, size uint32) {
	binary.Write(conn, binary.NativeEndian, cmd)
	binary.Write(conn, binary.NativeEndian, size)
}

func TestConnectAndScrapeAppliesCounters(t *testing.T) {
	pid := os.Getpid() + 100000
	sock := svcchan.SocketPath(pid)
	os.Remove(sock)
	l, err := net.Listen(`unix`, sock)
	if err != nil {
		t.Skipf("cannot bind unix socket for test: %v", err)
	}
	defer l.Close()
	defer os.Remove(sock)

	payload := []byte(`{"in":[{"messages":7,"buffers":3}]}`)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		hdr := make([]byte, 5)
		conn.Read(hdr) // drain the GET header
		writeFakeHeader(conn, 12, uint32(len(payload)))
		conn.Write(payload)
	}()

	cfg := &config.Config{Modules: []*config.Module{
		{
			Name: `scraped`, PID: pid, Up: true, ProfileIdx: -1,
			Interfaces: []config.Interface{{Direction: config.DirIn}},
		},
	}}
	s := newTestScheduler(cfg)
	s.sampler = fakeSampler{}

	s.connectServiceChannels()
	m := cfg.Modules[0]
	if m.ServiceConn != config.ServiceConnected {
		t.Fatalf("expected connected, got %v", m.ServiceConn)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.scrape()
		if m.Interfaces[0].In.RecvMsg != 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if m.Interfaces[0].In.RecvMsg != 7 || m.Interfaces[0].In.RecvBuffer != 3 {
		t.Fatalf("expected scraped counters applied, got %+v", m.Interfaces[0].In)
	}
}
