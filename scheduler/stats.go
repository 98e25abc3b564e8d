/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package scheduler

import (
	"fmt"
	"time"

	"github.com/shirou/gopsutil/process"

	"github.com/zidekmat/nemea-supervisor/config"
)

// sampler reports a PID's cumulative CPU time and virtual memory size. It
// is an interface so tests can swap in a fake without a real child
// process to sample.
type sampler interface {
	Sample(pid int) (userSec, kernelSec float64, vmKiB uint64, err error)
}

// gopsutilSampler is the production sampler, generalising the same
// gopsutil dependency the teacher uses for host info (ingest/log) to
// per-process CPU/memory accounting.
type gopsutilSampler struct{}

func (gopsutilSampler) Sample(pid int) (userSec, kernelSec float64, vmKiB uint64, err error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}
	times, err := proc.Times()
	if err != nil {
		return
	}
	userSec, kernelSec = times.User, times.System
	if mem, merr := proc.MemoryInfo(); merr == nil && mem != nil {
		vmKiB = mem.VMS / 1024
	}
	return
}

// sampleResource updates a module's cumulative and percentage CPU
// fields plus its virtual memory size, called once per successful scrape so
// the two are always reported from the same tick.
func (s *Scheduler) sampleResource(m *config.Module) {
	if m.PID <= 0 {
		return
	}
	userSec, kernelSec, vmKiB, err := s.sampler.Sample(m.PID)
	if err != nil {
		return
	}
	now := time.Now()
	if prevAt, ok := s.lastSampleAt[m.Name]; ok {
		if elapsed := now.Sub(prevAt).Seconds(); elapsed > 0 {
			m.LastPctCPUUser = (userSec - m.LastCPUUser) / elapsed * 100
			m.LastPctCPUKernel = (kernelSec - m.LastCPUKernel) / elapsed * 100
		}
	}
	m.LastCPUUser = userSec
	m.LastCPUKernel = kernelSec
	m.VMSizeKiB = vmKiB
	s.lastSampleAt[m.Name] = now
}

// publishStatistics is step 10: one line per module per interface,
// plus a cpu/mem line for anything currently up, in the formats of
// spec.md §6.
func (s *Scheduler) publishStatistics() {
	if s.statsW == nil {
		return
	}
	for _, m := range s.cfg.Modules {
		inIdx, outIdx := 0, 0
		for _, ifc := range m.Interfaces {
			switch ifc.Direction {
			case config.DirIn:
				fmt.Fprintf(s.statsW, "%s,in,%d,%d,%d\n", m.Name, inIdx, ifc.In.RecvMsg, ifc.In.RecvBuffer)
				inIdx++
			case config.DirOut:
				fmt.Fprintf(s.statsW, "%s,out,%d,%d,%d,%d,%d\n", m.Name, outIdx,
					ifc.Out.SentMsg, ifc.Out.DroppedMsg, ifc.Out.SentBuffer, ifc.Out.Autoflush)
				outIdx++
			}
		}
		if m.Up {
			fmt.Fprintf(s.statsW, "%s,cpu,%.2f,%.2f\n", m.Name, m.LastPctCPUKernel, m.LastPctCPUUser)
			fmt.Fprintf(s.statsW, "%s,mem,%d\n", m.Name, m.VMSizeKiB)
		}
	}
}
