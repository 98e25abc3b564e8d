/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package slog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

const (
	defaultCallDepth = 3
	defaultID        = `sup@1`
	maxHostname      = 255
	maxAppname       = 48
)

var ErrNotOpen = errors.New("logger is not open")

// Relay receives every emitted line in addition to the logger's own
// writers, once attached with AddRelay. The supervisor itself attaches
// none: the control-plane server does not mirror log lines to operator
// clients.
type Relay interface {
	WriteLog(time.Time, []byte) error
}

type metadata struct {
	hostname string
	appname  string
}

func (m *metadata) guessHostnameAppname() {
	if h, err := os.Hostname(); err == nil {
		m.hostname = trim(maxHostname, h)
	}
	if args := os.Args; len(args) > 0 {
		exe := filepath.Base(args[0])
		if ext := filepath.Ext(exe); len(ext) > 0 && len(ext) < len(exe) {
			exe = strings.TrimSuffix(exe, ext)
		}
		m.appname = trim(maxAppname, exe)
	}
}

// Logger is a level-gated, multi-writer structured logger. A single
// Logger is shared by every caller in a given log stream (the daemon
// log, the statistics log, a single module's stdout file, ...); writes
// are serialized under an internal mutex.
type Logger struct {
	metadata
	mtx  sync.Mutex
	wtrs []io.WriteCloser
	rls  []Relay
	lvl  Level
	hot  bool
}

// NewFile opens (creating if necessary, appending if it exists) a log
// file at the given path, matching the permissions and append
// discipline the launcher uses for per-module stdout/stderr files.
func NewFile(path string) (*Logger, error) {
	fout, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0664)
	if err != nil {
		return nil, err
	}
	return New(fout), nil
}

// New wraps an existing writer with a Logger at level INFO.
func New(wtr io.WriteCloser) *Logger {
	l := &Logger{
		wtrs: []io.WriteCloser{wtr},
		lvl:  INFO,
		hot:  true,
	}
	l.guessHostnameAppname()
	return l
}

// NewDiscard returns a Logger that throws away everything written to
// it; used when a log path couldn't be created (see supervisor/main.go).
func NewDiscard() *Logger {
	return New(discardCloser{})
}

func (l *Logger) Close() (err error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if err = l.ready(); err != nil {
		return
	}
	l.hot = false
	for _, w := range l.wtrs {
		if lerr := w.Close(); lerr != nil {
			err = lerr
		}
	}
	return
}

func (l *Logger) ready() error {
	if !l.hot || (len(l.wtrs) == 0 && len(l.rls) == 0) {
		return ErrNotOpen
	}
	return nil
}

// AddRelay attaches a Relay that will receive every subsequent line
// alongside the logger's file writers.
func (l *Logger) AddRelay(r Relay) error {
	if r == nil {
		return errors.New("nil relay")
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.rls = append(l.rls, r)
	return nil
}

// DeleteRelay detaches a previously-added Relay, by identity.
func (l *Logger) DeleteRelay(r Relay) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	for i := len(l.rls) - 1; i >= 0; i-- {
		if l.rls[i] == r {
			l.rls = append(l.rls[:i], l.rls[i+1:]...)
		}
	}
}

func (l *Logger) SetLevel(lvl Level) error {
	if !lvl.Valid() {
		return ErrInvalidLevel
	}
	l.mtx.Lock()
	l.lvl = lvl
	l.mtx.Unlock()
	return nil
}

func (l *Logger) GetLevel() Level {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.lvl
}

func (l *Logger) Debug(msg string, sds ...rfc5424.SDParam) error {
	return l.output(defaultCallDepth, DEBUG, msg, sds...)
}

func (l *Logger) Info(msg string, sds ...rfc5424.SDParam) error {
	return l.output(defaultCallDepth, INFO, msg, sds...)
}

func (l *Logger) Warn(msg string, sds ...rfc5424.SDParam) error {
	return l.output(defaultCallDepth, WARN, msg, sds...)
}

func (l *Logger) Error(msg string, sds ...rfc5424.SDParam) error {
	return l.output(defaultCallDepth, ERROR, msg, sds...)
}

func (l *Logger) Critical(msg string, sds ...rfc5424.SDParam) error {
	return l.output(defaultCallDepth, CRITICAL, msg, sds...)
}

// Fatal logs at FATAL and exits the process with code 1, matching the
// CLI exit-code contract for initialisation failures (spec.md §6).
func (l *Logger) Fatal(msg string, sds ...rfc5424.SDParam) {
	l.output(defaultCallDepth, FATAL, msg, sds...)
	os.Exit(1)
}

func (l *Logger) output(depth int, lvl Level, msg string, sds ...rfc5424.SDParam) (err error) {
	l.mtx.Lock()
	curLvl := l.lvl
	l.mtx.Unlock()
	if curLvl == OFF || lvl < curLvl {
		return nil
	}
	ts := time.Now()
	b, err := genRFCMessage(ts, lvl.priority(), l.hostname, l.appname, callLoc(depth), msg, sds...)
	if err != nil {
		return err
	}
	return l.writeLine(ts, strings.TrimRight(string(b), "\n\t\r"))
}

func (l *Logger) writeLine(ts time.Time, ln string) (err error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if err = l.ready(); err != nil {
		return
	}
	for _, w := range l.wtrs {
		if _, lerr := io.WriteString(w, ln+"\n"); lerr != nil {
			err = lerr
		}
	}
	for _, r := range l.rls {
		if lerr := r.WriteLog(ts, []byte(ln)); lerr != nil {
			err = lerr
		}
	}
	return
}

// Write implements io.Writer so a Logger can back a child process's
// redirected stdout/stderr via os/exec, and so it can be handed to
// anything expecting a plain io.Writer.
func (l *Logger) Write(b []byte) (int, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if err := l.ready(); err != nil {
		return 0, err
	}
	for _, w := range l.wtrs {
		if _, err := w.Write(b); err != nil {
			return 0, err
		}
	}
	return len(b), nil
}

func genRFCMessage(ts time.Time, prio rfc5424.Priority, hostname, appname, msgid, msg string, sds ...rfc5424.SDParam) ([]byte, error) {
	m := rfc5424.Message{
		Priority:  prio,
		Timestamp: ts,
		Hostname:  trim(maxHostname, hostname),
		AppName:   trim(maxAppname, appname),
		MessageID: trim(32, filepath.Base(msgid)),
		Message:   []byte(msg),
	}
	if len(sds) > 0 {
		m.StructuredData = []rfc5424.StructuredData{{ID: defaultID, Parameters: sds}}
	}
	return m.MarshalBinary()
}

// callLoc reports "file:line" of the caller at the given stack depth,
// used as the RFC5424 MSGID field so every log line is traceable back
// to the emitting source location.
func callLoc(depth int) string {
	if _, file, line, ok := runtime.Caller(depth); ok {
		dir, file := filepath.Split(file)
		return fmt.Sprintf("%s:%d", filepath.Join(filepath.Base(dir), file), line)
	}
	return ""
}

func trim(n int, s string) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

type discardCloser struct{}

func (discardCloser) Write(b []byte) (int, error) { return len(b), nil }
func (discardCloser) Close() error                { return nil }
