/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package scheduler

import (
	"os"
	"strings"
	"syscall"

	"github.com/zidekmat/nemea-supervisor/config"
	"github.com/zidekmat/nemea-supervisor/launcher"
	"github.com/zidekmat/nemea-supervisor/slog"
	"github.com/zidekmat/nemea-supervisor/svcchan"
)

// probeLiveness is step 1: a null signal against every module with a
// recorded PID, transitioning anything that has died to down.
func (s *Scheduler) probeLiveness() {
	for _, m := range s.cfg.Modules {
		if m.PID <= 0 {
			continue
		}
		if !launcher.Probe(m.PID) {
			s.transitionDown(m)
		}
	}
}

func (s *Scheduler) transitionDown(m *config.Module) {
	m.Up = false
	m.PID = 0
	m.IsMyChild = false
	m.SigintSent = false
	s.closeServiceConn(m)
	delete(s.handles, m.Name)
}

func (s *Scheduler) closeServiceConn(m *config.Module) {
	if conn, ok := s.conns[m.Name]; ok {
		conn.Close()
		delete(s.conns, m.Name)
	}
	if m.ServiceConn != config.ServiceBlocked {
		m.ServiceConn = config.ServiceDisconnected
	}
}

// applyReconciliationEffects is step 3: compact removed-and-down rows,
// promote init rows back to enabled, and start or cap-disable every
// enabled-but-down row.
func (s *Scheduler) applyReconciliationEffects() {
	kept := s.cfg.Modules[:0]
	for _, m := range s.cfg.Modules {
		if m.Remove && !m.Up {
			s.cleanupModuleSockets(m)
			delete(s.handles, m.Name)
			delete(s.conns, m.Name)
			delete(s.lastSampleAt, m.Name)
			continue
		}
		kept = append(kept, m)
	}
	s.cfg.Modules = kept

	for _, m := range s.cfg.Modules {
		if m.Init && !m.Up {
			m.Enabled = true
			m.RestartCounter = -1
			m.RestartWindowTick = 0
			m.Init = false
		}
	}

	for _, m := range s.cfg.Modules {
		if m.Up || !m.EffectiveEnabled(s.cfg.Profiles) {
			continue
		}
		s.maybeStart(m)
	}
}

func (s *Scheduler) maybeStart(m *config.Module) {
	if m.RestartCounter < 0 {
		m.RestartCounter = 0
		m.RestartWindowTick = s.tick
	} else if s.tick-m.RestartWindowTick >= restartWindowSize {
		m.RestartCounter = 0
		m.RestartWindowTick = s.tick
	}

	// limit is the number of restarts allowed after the initial start, so
	// a module is only disabled once it has already used up its budget;
	// module-restarts=0 still gets exactly one start before that happens.
	limit := m.EffectiveMaxRestarts(s.cfg.ModuleRestarts)
	if m.RestartCounter > limit {
		m.Enabled = false
		if s.lgr != nil {
			s.lgr.Warn("AutoDisabled", slog.KV(`name`, m.Name), slog.KV(`restart_cap`, limit))
		}
		return
	}
	s.startModule(m)
}

func (s *Scheduler) startModule(m *config.Module) {
	h, err := launcher.Start(m, s.cfg.LogsDirectory)
	m.RestartCounter++
	if err != nil {
		if s.lgr != nil {
			s.lgr.Error("ModuleSpawnFailed", slog.KV(`name`, m.Name), slog.KVErr(err))
		}
		m.Enabled = false
		return
	}
	s.handles[m.Name] = h
	m.SigintSent = false
	m.ServiceConn = config.ServiceDisconnected
	m.ServiceAttempts = 0
	m.ServiceFailures = 0
	m.ServiceFailTick = 0
}

// gracefulStopPhase is step 4: SIGINT every up module whose
// effective-enabled just went false and that hasn't been signalled yet.
func (s *Scheduler) gracefulStopPhase() {
	for _, m := range s.cfg.Modules {
		if !m.Up || m.SigintSent || m.EffectiveEnabled(s.cfg.Profiles) {
			continue
		}
		if err := launcher.Signal(m.PID, syscall.SIGINT); err != nil && s.lgr != nil {
			s.lgr.Warn("sigint delivery failed", slog.KV(`name`, m.Name), slog.KVErr(err))
		}
		m.SigintSent = true
	}
}

// reap is step 6: a non-blocking wait over every live handle.
func (s *Scheduler) reap() {
	for name, h := range s.handles {
		exited, _ := h.Reaped()
		if !exited {
			continue
		}
		if m := s.cfg.ByName(name); m != nil {
			m.Up = false
			m.PID = 0
			m.SigintSent = false
			s.closeServiceConn(m)
		}
		delete(s.handles, name)
	}
}

// forceStopPhase is step 7: SIGKILL anything still up that was already
// signalled, then unlink its on-disk sockets.
func (s *Scheduler) forceStopPhase() {
	for _, m := range s.cfg.Modules {
		if !m.Up || !m.SigintSent {
			continue
		}
		if err := launcher.Signal(m.PID, syscall.SIGKILL); err != nil && s.lgr != nil {
			s.lgr.Warn("sigkill delivery failed", slog.KV(`name`, m.Name), slog.KVErr(err))
		}
		s.cleanupModuleSockets(m)
	}
}

// cleanupModuleSockets unlinks every UNIX-socket OUT interface's
// on-disk file and the module's service_<pid> socket, satisfying P6.
func (s *Scheduler) cleanupModuleSockets(m *config.Module) {
	for _, ifc := range m.Interfaces {
		if ifc.Direction != config.DirOut || ifc.Type != config.TypeUnixSocket {
			continue
		}
		if path := strings.TrimSpace(ifc.Params); path != `` {
			os.Remove(path)
		}
	}
	if m.PID > 0 {
		os.Remove(svcchan.SocketPath(m.PID))
	}
}
