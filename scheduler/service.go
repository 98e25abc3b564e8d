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

	"github.com/zidekmat/nemea-supervisor/config"
	"github.com/zidekmat/nemea-supervisor/slog"
	"github.com/zidekmat/nemea-supervisor/svcchan"
)

// connectServiceChannels is step 8: attempt a C5 connect for every up
// module that isn't already connected or permanently blocked. A module
// that fails to dial serviceConnectCap times since its own boot is
// blocked without ever having been scraped, independent of the
// post-connection failure count scrape tracks.
func (s *Scheduler) connectServiceChannels() {
	for _, m := range s.cfg.Modules {
		if !m.Up || m.ServiceConn == config.ServiceBlocked {
			continue
		}
		if _, ok := s.conns[m.Name]; ok {
			continue
		}
		conn, err := svcchan.Dial(m.PID)
		if err != nil {
			m.ServiceAttempts++
			if m.ServiceAttempts >= serviceConnectCap {
				m.ServiceConn = config.ServiceBlocked
				if s.lgr != nil {
					s.lgr.Warn("ServiceConnectBlocked", slog.KV(`name`, m.Name), slog.KV(`attempts`, m.ServiceAttempts))
				}
			} else {
				m.ServiceConn = config.ServiceDisconnected
			}
			continue
		}
		s.conns[m.Name] = conn
		m.ServiceConn = config.ServiceConnected
	}
}

// scrape is step 9: GET every connected module and decode its reply.
// A dropped scrape counts toward the module's service-failure total
// for the current window of restartWindowSize ticks; reaching
// serviceFailureCap within one window blocks the connection until the
// module restarts under a new PID (spec.md §7 ServiceBlocked).
func (s *Scheduler) scrape() {
	for _, m := range s.cfg.Modules {
		conn, ok := s.conns[m.Name]
		if !ok || m.ServiceConn != config.ServiceConnected {
			continue
		}
		payload, err := svcchan.Scrape(conn)
		if err != nil {
			conn.Close()
			delete(s.conns, m.Name)
			if m.ServiceFailTick == 0 || s.tick-m.ServiceFailTick >= restartWindowSize {
				m.ServiceFailures = 0
				m.ServiceFailTick = s.tick
			}
			m.ServiceFailures++
			if m.ServiceFailures >= serviceFailureCap {
				m.ServiceConn = config.ServiceBlocked
			} else {
				m.ServiceConn = config.ServiceDisconnected
			}
			if s.lgr != nil {
				s.lgr.Warn("ServiceDropped", slog.KV(`name`, m.Name), slog.KVErr(err))
			}
			continue
		}
		counters, err := svcchan.Decode(payload, m.InCount(), m.OutCount(), s.warnf(m))
		if err != nil {
			if s.lgr != nil {
				s.lgr.Warn("malformed counter payload", slog.KV(`name`, m.Name), slog.KVErr(err))
			}
			continue
		}
		s.applyCounters(m, counters)
		s.sampleResource(m)
	}
}

func (s *Scheduler) warnf(m *config.Module) svcchan.Warnf {
	return func(format string, args ...interface{}) {
		if s.lgr != nil {
			s.lgr.Warn(fmt.Sprintf(format, args...), slog.KV(`name`, m.Name))
		}
	}
}

func (s *Scheduler) applyCounters(m *config.Module, c svcchan.Counters) {
	inIdx, outIdx := 0, 0
	for i := range m.Interfaces {
		switch m.Interfaces[i].Direction {
		case config.DirIn:
			if inIdx < len(c.In) {
				m.Interfaces[i].In = c.In[inIdx]
			}
			inIdx++
		case config.DirOut:
			if outIdx < len(c.Out) {
				m.Interfaces[i].Out = c.Out[outIdx]
			}
			outIdx++
		}
	}
}
