/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package control

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/host"
)

const cliSidecarPath = `/tmp/tmp_sup_cli_file`

const menuText = `
1) enable all      2) disable all     3) enable selection
4) disable selection 5) status         6) full listing
7) reload           8) info            9) show logs
0) terminate (press three times)
> `

// session holds the per-connection state a config-mode client worker
// needs across its menu loop: notably the zero-streak for the
// "press 0 three times" terminate gesture, which is reset by any other
// input.
type session struct {
	srv        *Server
	conn       net.Conn
	zeroStreak int
}

// handleConn is the whole state machine of spec.md §4.7: Accepting ->
// AwaitingMode(<=2s) -> {ConfigLoop | OneShotReply | Rejected} -> Closed.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	select {
	case s.clientSlots <- struct{}{}:
		defer func() { <-s.clientSlots }()
	default:
		fmt.Fprintln(conn, `OperatorRejected: too many operator clients connected`)
		return
	}

	conn.SetReadDeadline(time.Now().Add(modeCodeTimeout))
	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		fmt.Fprintln(conn, `OperatorRejected: no mode code received within 2s`)
		return
	}
	conn.SetReadDeadline(time.Time{})

	sess := &session{srv: s, conn: conn}
	switch strings.TrimSpace(line) {
	case `1`:
		sess.configMode(r)
	case `2`:
		s.oneShotReload(conn)
	case `3`:
		s.oneShotStats(conn)
	default:
		fmt.Fprintln(conn, `OperatorRejected: unknown mode code`)
	}
}

// configMode runs the interactive menu loop, refusing a second
// simultaneous config-mode client per spec.md §4.7 step 2.
func (sess *session) configMode(r *bufio.Reader) {
	s := sess.srv
	s.serverMu.Lock()
	if s.configModeActive {
		s.serverMu.Unlock()
		fmt.Fprintln(sess.conn, `OperatorRejected: another client already holds config mode`)
		return
	}
	s.configModeActive = true
	s.serverMu.Unlock()
	defer func() {
		s.serverMu.Lock()
		s.configModeActive = false
		s.serverMu.Unlock()
	}()

	fmt.Fprint(sess.conn, menuText)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		choice := strings.TrimSpace(line)
		if choice != `0` {
			sess.zeroStreak = 0
		}
		switch choice {
		case `1`:
			sess.enableAll()
		case `2`:
			sess.disableAll()
		case `3`:
			sess.applySelection(r, true)
		case `4`:
			sess.applySelection(r, false)
		case `5`:
			sess.status()
		case `6`:
			sess.fullListing()
		case `7`:
			sess.reload()
		case `8`:
			sess.info()
		case `9`:
			sess.showLogs()
		case `0`:
			sess.zeroStreak++
			if sess.zeroStreak >= 3 {
				fmt.Fprintln(sess.conn, `terminating supervisor`)
				if s.hooks.Shutdown != nil {
					s.hooks.Shutdown()
				}
				return
			}
			fmt.Fprintf(sess.conn, "press 0 %d more time(s) to terminate the supervisor\n", 3-sess.zeroStreak)
		default:
			fmt.Fprintln(sess.conn, `OperatorRejected: unknown menu selection`)
		}
		fmt.Fprint(sess.conn, menuText)
	}
}

func (sess *session) enableAll() {
	s := sess.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.cfg.Modules {
		m.Enabled = true
	}
	for i := range s.cfg.Profiles {
		s.cfg.Profiles[i].Enabled = true
	}
	fmt.Fprintln(sess.conn, `all modules and profiles enabled`)
}

func (sess *session) disableAll() {
	s := sess.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.cfg.Modules {
		m.Enabled = false
	}
	for i := range s.cfg.Profiles {
		s.cfg.Profiles[i].Enabled = false
	}
	fmt.Fprintln(sess.conn, `all modules and profiles disabled`)
}

// applySelection implements menu actions 3/4: prompt for a comma/range
// selection string, validate it against the current index space, and
// set Enabled on every resolved module or profile.
func (sess *session) applySelection(r *bufio.Reader, enable bool) {
	s := sess.srv
	fmt.Fprintln(sess.conn, `selection (e.g. 2,4-6,13):`)
	line, err := r.ReadString('\n')
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	nMod := len(s.cfg.Modules)
	total := nMod + len(s.cfg.Profiles)
	idxs, err := parseSelection(strings.TrimSpace(line), total)
	if err != nil {
		fmt.Fprintf(sess.conn, "OperatorRejected: %v\n", err)
		return
	}
	for _, idx := range idxs {
		if idx < nMod {
			s.cfg.Modules[idx].Enabled = enable
		} else {
			s.cfg.Profiles[idx-nMod].Enabled = enable
		}
	}
	fmt.Fprintf(sess.conn, "applied to %d target(s)\n", len(idxs))
}

func (sess *session) status() {
	s := sess.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(sess.conn, "loaded=%d running=%d\n", len(s.cfg.Modules), s.cfg.RunningCount())
}

func (sess *session) fullListing() {
	s := sess.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.cfg.Modules {
		fmt.Fprintf(sess.conn, "%d\t%s\tpid=%d\tup=%v\tenabled=%v\tservice=%s\n",
			i, m.Name, m.PID, m.Up, m.Enabled, m.ServiceConn)
	}
	nMod := len(s.cfg.Modules)
	for i, p := range s.cfg.Profiles {
		fmt.Fprintf(sess.conn, "%d\tprofile:%s\tenabled=%v\n", nMod+i, p.Name, p.Enabled)
	}
}

func (sess *session) reload() {
	s := sess.srv
	if s.hooks.Reload == nil {
		fmt.Fprintln(sess.conn, `reload not available`)
		return
	}
	if err := s.hooks.Reload(); err != nil {
		fmt.Fprintf(sess.conn, "reload failed: %v\n", err)
		return
	}
	fmt.Fprintln(sess.conn, `reload complete`)
}

// info prints a one-line OS banner the way the teacher's log package
// does for its own startup banner, generalized from a log-time print
// to an on-demand operator query.
func (sess *session) info() {
	if platform, _, version, err := host.PlatformInformation(); err == nil {
		fmt.Fprintf(sess.conn, "OS:\t\t%s %s (%s %s)\n", runtime.GOOS, runtime.GOARCH, platform, version)
	} else {
		fmt.Fprintf(sess.conn, "OS:\t\tERROR %v\n", err)
	}
}

// showLogs writes the absolute log path to the well-known sidecar file
// rather than streaming log contents, per spec.md §4.7 step 5; the
// client is expected to launch its own pager against that path.
func (sess *session) showLogs() {
	s := sess.srv
	path := filepath.Join(s.logsDir, `supervisor_log`)
	if err := os.WriteFile(cliSidecarPath, []byte(path+"\n"), 0644); err != nil {
		fmt.Fprintf(sess.conn, "failed to write log path: %v\n", err)
		return
	}
	fmt.Fprintf(sess.conn, "log path written to %s\n", cliSidecarPath)
}

func (s *Server) oneShotReload(conn net.Conn) {
	if s.hooks.Reload == nil {
		fmt.Fprintln(conn, `reload not available`)
		return
	}
	if err := s.hooks.Reload(); err != nil {
		fmt.Fprintf(conn, "reload failed: %v\n", err)
		return
	}
	fmt.Fprintln(conn, `reload complete`)
}

func (s *Server) oneShotStats(conn net.Conn) {
	if s.hooks.StatsSnapshot == nil {
		fmt.Fprintln(conn, `stats unavailable`)
		return
	}
	conn.Write(s.hooks.StatsSnapshot())
}
