/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package scheduler is C7, the lifecycle scheduler: the single
// long-lived thread that, once per period and under the configuration
// lock, probes liveness, applies reconciliation effects, drives the
// graceful-stop/force-stop cascade, scrapes service channels and
// publishes statistics. Restart-rate and service-failure bookkeeping
// live here rather than in config or launcher, since they are purely a
// scheduling policy over data those packages only describe.
package scheduler

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zidekmat/nemea-supervisor/config"
	"github.com/zidekmat/nemea-supervisor/launcher"
	"github.com/zidekmat/nemea-supervisor/slog"
)

const (
	// DefaultPeriod is the scheduler tick period, spec.md §4.6.
	DefaultPeriod = 1500 * time.Millisecond
	// DefaultGrace is the module grace period between the graceful and
	// force stop phases.
	DefaultGrace = 500 * time.Millisecond

	// restartWindowSize is the tumbling window, in ticks, over which a
	// module's restart attempts are counted (~45s at DefaultPeriod).
	restartWindowSize = 30
	// statsEveryTicks is how often, in ticks, the statistics log is
	// appended to.
	statsEveryTicks = 30
	// serviceFailureCap is the number of dropped service-channel
	// scrapes within one restartWindowSize window after which a module
	// is marked Blocked until it restarts.
	serviceFailureCap = 3
	// serviceConnectCap is the number of failed C5 connect attempts
	// since a module's boot after which it is marked Blocked without
	// ever having scraped it.
	serviceConnectCap = 3
)

// Scheduler runs the ordered per-tick pass against a shared
// configuration table.
type Scheduler struct {
	mu  sync.Locker
	cfg *config.Config
	lgr *slog.Logger

	statsW statsWriter

	period     time.Duration
	grace      time.Duration
	statsEvery int

	handles      map[string]*launcher.Handle
	conns        map[string]net.Conn
	lastSampleAt map[string]time.Time
	sampler      sampler

	tick          int
	stopRequested int32

	die chan struct{}
	wg  sync.WaitGroup
}

// statsWriter is the minimal surface publishStatistics needs; satisfied
// by *slog.Logger (as an io.Writer) or any other io.Writer.
type statsWriter interface {
	Write([]byte) (int, error)
}

// New builds a Scheduler. mu is the process-wide configuration mutex,
// shared with the control-plane server; lgr receives module-event
// warnings and errors; statsW receives the statistics log lines of
// spec.md §6 (nil disables publishing, e.g. in tests that don't care).
func New(cfg *config.Config, mu sync.Locker, lgr *slog.Logger, statsW statsWriter) *Scheduler {
	return &Scheduler{
		mu:           mu,
		cfg:          cfg,
		lgr:          lgr,
		statsW:       statsW,
		period:       DefaultPeriod,
		grace:        DefaultGrace,
		statsEvery:   statsEveryTicks,
		handles:      make(map[string]*launcher.Handle),
		conns:        make(map[string]net.Conn),
		lastSampleAt: make(map[string]time.Time),
		sampler:      gopsutilSampler{},
	}
}

// Start launches the tick loop in its own goroutine.
func (s *Scheduler) Start() {
	s.die = make(chan struct{})
	s.wg.Add(1)
	go s.run()
}

// RequestStop asks the scheduler to exit once no module remains up,
// per spec.md §4.6 step 2. It does not block.
func (s *Scheduler) RequestStop() {
	atomic.StoreInt32(&s.stopRequested, 1)
}

// Wait blocks until the tick loop exits on its own (the termination
// condition of step 2 became true), without forcing it to stop early.
// The supervisor's shutdown path calls RequestStop then Wait so every
// remaining module gets its full graceful/force-stop cascade across as
// many ticks as it takes, then Close to release the ticker.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close forcibly stops the tick loop and waits for it to exit, used by
// tests and by the supervisor's own shutdown path once RequestStop's
// drain has completed or been abandoned.
func (s *Scheduler) Close() {
	if s.die == nil {
		return
	}
	select {
	case <-s.die:
	default:
		close(s.die)
	}
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	tckr := time.NewTicker(s.period)
	defer tckr.Stop()
	for {
		select {
		case <-s.die:
			return
		case <-tckr.C:
			if s.Tick() {
				return
			}
		}
	}
}

// Tick runs one ordered pass and reports whether the scheduler should
// stop entirely (the termination condition of step 2 was met).
// Exported so tests and any caller needing synchronous control can
// drive a pass directly instead of waiting on the ticker. The
// control-plane reload handler does not call it; the effects of a
// reconciliation are applied on the next regular tick.
func (s *Scheduler) Tick() (done bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick++

	s.probeLiveness()

	if atomic.LoadInt32(&s.stopRequested) != 0 && !s.anyUp() {
		return true
	}

	s.applyReconciliationEffects()
	s.gracefulStopPhase()

	interruptibleSleep(s.die, s.grace)

	s.reap()
	s.forceStopPhase()
	s.connectServiceChannels()
	s.scrape()

	if s.statsEvery > 0 && s.tick%s.statsEvery == 0 {
		s.publishStatistics()
	}
	return false
}

func (s *Scheduler) anyUp() bool {
	for _, m := range s.cfg.Modules {
		if m.Up {
			return true
		}
	}
	return false
}

func interruptibleSleep(die chan struct{}, d time.Duration) (interrupted bool) {
	if d <= 0 {
		return
	}
	tmr := time.NewTimer(d)
	defer tmr.Stop()
	select {
	case <-tmr.C:
	case <-die:
		interrupted = true
	}
	return
}
