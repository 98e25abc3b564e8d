/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package control is C8, the control-plane server: a UNIX-domain
// stream listener that accepts one connection per operator client and
// speaks the mode-code/menu protocol of spec.md §4.7. It holds its own
// server mutex (guarding config_mode_active) separately from
// the configuration mutex it is handed, matching spec.md §5's explicit
// no-lock-ordering-hazard design: the scheduler never touches the
// server mutex, and a client worker only ever acquires server-mutex
// then config-mutex, never the reverse.
package control

import (
	"net"
	"os"
	"sync"
	"time"

	"github.com/zidekmat/nemea-supervisor/config"
	"github.com/zidekmat/nemea-supervisor/slog"
)

const (
	// MaxClients is MAX_NUMBER_SUP_CLIENTS, spec.md §4.7: Go's net
	// package does not expose the listen backlog, so the same bound is
	// enforced as a concurrency cap on handled connections instead.
	MaxClients = 5

	acceptPollInterval = time.Second
	modeCodeTimeout     = 2 * time.Second
	socketMode          = 0666
)

// Hooks lets the supervisor wire the server's menu actions to its own
// reload/shutdown/statistics machinery without this package importing
// scheduler or supervisor directly.
type Hooks struct {
	Reload        func() error
	Shutdown      func()
	StatsSnapshot func() []byte
}

// Server is the accept loop plus the server-side state the spec
// requires: one active config-mode client, and the concurrent-client
// cap.
type Server struct {
	mu      sync.Locker
	cfg     *config.Config
	lgr     *slog.Logger
	hooks   Hooks
	logsDir string

	sockPath string
	ln       *net.UnixListener

	serverMu         sync.Mutex
	configModeActive bool
	clientSlots      chan struct{}

	die chan struct{}
	wg  sync.WaitGroup
}

// New builds a Server. mu is the shared configuration mutex (acquired
// only for the duration of each mutation, per spec.md §5); cfg is the
// live runtime table; logsDir is used by the "show logs" menu action.
func New(cfg *config.Config, mu sync.Locker, lgr *slog.Logger, sockPath, logsDir string, hooks Hooks) *Server {
	return &Server{
		mu:          mu,
		cfg:         cfg,
		lgr:         lgr,
		hooks:       hooks,
		sockPath:    sockPath,
		logsDir:     logsDir,
		clientSlots: make(chan struct{}, MaxClients),
		die:         make(chan struct{}),
	}
}

// Start binds the listening socket and launches the accept loop.
func (s *Server) Start() error {
	os.Remove(s.sockPath)
	addr, err := net.ResolveUnixAddr(`unix`, s.sockPath)
	if err != nil {
		return err
	}
	ln, err := net.ListenUnix(`unix`, addr)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.sockPath, socketMode); err != nil {
		ln.Close()
		return err
	}
	s.ln = ln
	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Close stops the accept loop, closes the listening socket, waits for
// in-flight client handlers to return, and unlinks the socket file.
func (s *Server) Close() {
	select {
	case <-s.die:
	default:
		close(s.die)
	}
	if s.ln != nil {
		s.ln.Close()
	}
	s.wg.Wait()
	os.Remove(s.sockPath)
}

// acceptLoop polls Accept with a 1s deadline so shutdown is responsive
// without needing a dedicated select-capable listener type, spec.md §5
// "Suspension points".
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.die:
			return
		default:
		}
		s.ln.SetDeadline(time.Now().Add(acceptPollInterval))
		conn, err := s.ln.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-s.die:
				return
			default:
			}
			if s.lgr != nil {
				s.lgr.Warn("operator accept failed", slog.KVErr(err))
			}
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}
