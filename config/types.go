/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package config is the in-memory representation of a supervisor
// configuration: profiles, modules, and their interfaces, plus the
// runtime-state fields the scheduler and reconciler mutate on each
// module row. Parsing walks a generic XML node tree (see tree.go);
// the grammar and validation rules live in validate.go.
package config

import "time"

// Direction is the declared flow direction of an Interface.
type Direction int

const (
	DirUnknown Direction = iota
	DirIn
	DirOut
)

func (d Direction) String() string {
	switch d {
	case DirIn:
		return `IN`
	case DirOut:
		return `OUT`
	}
	return `UNKNOWN`
}

// IfaceType is the transport an Interface's params describe.
type IfaceType int

const (
	TypeUnknown IfaceType = iota
	TypeTCP
	TypeUnixSocket
	TypeFile
	TypeBlackhole
)

func (t IfaceType) String() string {
	switch t {
	case TypeTCP:
		return `TCP`
	case TypeUnixSocket:
		return `UNIXSOCKET`
	case TypeFile:
		return `FILE`
	case TypeBlackhole:
		return `BLACKHOLE`
	}
	return `UNKNOWN`
}

// TypeChar is the single-letter code used in the wire interface
// specifier built by the launcher (spec §4.3).
func (t IfaceType) TypeChar() byte {
	switch t {
	case TypeTCP:
		return 't'
	case TypeUnixSocket:
		return 'u'
	case TypeFile:
		return 'f'
	case TypeBlackhole:
		return 'b'
	}
	return '?'
}

// InStats holds input-side interface counters scraped over the
// service channel.
type InStats struct {
	RecvMsg    uint64
	RecvBuffer uint64
}

// OutStats holds output-side interface counters scraped over the
// service channel.
type OutStats struct {
	SentMsg    uint64
	DroppedMsg uint64
	SentBuffer uint64
	Autoflush  uint64
}

// Interface is one typed endpoint declared on a Module. Ordering
// within a Module's Interfaces slice is significant: the wire index
// used by the launcher and the counter decoder is derived from
// position, with every IN interface preceding every OUT interface.
type Interface struct {
	Direction Direction
	Type      IfaceType
	Params    string
	Note      string

	In  InStats
	Out OutStats
}

// ServiceConn is the state of a module's service-channel connection.
type ServiceConn int

const (
	ServiceDisconnected ServiceConn = iota
	ServiceConnected
	ServiceBlocked
)

func (s ServiceConn) String() string {
	switch s {
	case ServiceConnected:
		return `connected`
	case ServiceBlocked:
		return `blocked`
	}
	return `disconnected`
}

// Module is one supervised child process: its static declaration plus
// the runtime state the scheduler and reconciler mutate under the
// configuration lock.
type Module struct {
	Name        string
	Path        string
	Enabled     bool
	MaxRestarts int // -1 means "use supervisor default"; 0 is a valid explicit per-module cap
	Params      string
	Interfaces  []Interface

	ProfileIdx int // index into Config.Profiles, -1 if unscoped

	// Runtime state (spec §3 "Runtime state (per module)").
	PID               int
	IsMyChild         bool
	Up                bool
	ServiceConn       ServiceConn
	RestartCounter    int
	RestartWindowTick int
	SigintSent        bool
	ServiceAttempts   int
	ServiceFailures   int
	ServiceFailTick   int

	LastCPUUser      float64
	LastCPUKernel    float64
	LastPctCPUUser   float64
	LastPctCPUKernel float64
	VMSizeKiB        uint64

	// Reconciliation flags, valid only during a reload pass.
	Seen     bool
	Modified bool
	Inserted bool
	Remove   bool
	Init     bool
}

// EffectiveEnabled computes profile.enabled AND module.enabled, per
// spec §3.
func (m *Module) EffectiveEnabled(profiles []Profile) bool {
	if !m.Enabled {
		return false
	}
	if m.ProfileIdx < 0 {
		return true
	}
	if m.ProfileIdx >= len(profiles) {
		return false
	}
	return profiles[m.ProfileIdx].Enabled
}

// EffectiveMaxRestarts resolves the per-module cap, falling back to
// the supervisor-wide default when unset.
func (m *Module) EffectiveMaxRestarts(dflt int) int {
	if m.MaxRestarts >= 0 {
		return m.MaxRestarts
	}
	return dflt
}

// InCount and OutCount report the number of IN/OUT interfaces, used by
// the launcher and counter decoder for positional alignment.
func (m *Module) InCount() (n int) {
	for _, i := range m.Interfaces {
		if i.Direction == DirIn {
			n++
		}
	}
	return
}

func (m *Module) OutCount() (n int) {
	for _, i := range m.Interfaces {
		if i.Direction == DirOut {
			n++
		}
	}
	return
}

// Profile is a named group of modules sharing one enabled gate.
type Profile struct {
	Name    string
	Enabled bool
}

// Config is the full parsed and reconciled runtime table: every
// declared module (scoped or not) plus the profiles that scope them.
type Config struct {
	ModuleRestarts int // supervisor-wide default restart cap
	LogsDirectory  string

	Profiles []Profile
	Modules  []*Module

	StartTime time.Time
}

// ByName returns the module with the given name, or nil.
func (c *Config) ByName(name string) *Module {
	for _, m := range c.Modules {
		if m.Name == name {
			return m
		}
	}
	return nil
}

// ProfileByName returns the index of the profile with the given name,
// or -1.
func (c *Config) ProfileByName(name string) int {
	for i := range c.Profiles {
		if c.Profiles[i].Name == name {
			return i
		}
	}
	return -1
}

// RunningCount reports how many modules are currently Up, used by the
// backup store's sidecar info file.
func (c *Config) RunningCount() (n int) {
	for _, m := range c.Modules {
		if m.Up {
			n++
		}
	}
	return
}
