/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package reconcile is C3: it diffs a live runtime table against a
// freshly validated configuration and mutates the live table in place
// to match, marking each row unchanged/modified/inserted, and sweeping
// anything no longer declared for eventual removal by the scheduler.
package reconcile

import (
	"github.com/zidekmat/nemea-supervisor/config"
)

// Summary is the one-line action log emitted after a reconciliation
// pass, spec.md §4.2 step 7.
type Summary struct {
	Inserted  int
	Removed   int
	Modified  int
	Unchanged int
}

// Reconcile brings live into agreement with incoming, which must
// already have passed config.Validate (and been built via
// config.Build). It never deletes a row itself — a removed module is
// only marked Remove=true here; the scheduler physically compacts the
// table once it has observed that module Down (spec.md §4.6 step 3),
// so that a module mid-shutdown is never torn out from under a
// reconciliation pass.
func Reconcile(live *config.Config, incoming *config.Config) Summary {
	oldProfiles := live.Profiles
	var sum Summary

	for _, m := range live.Modules {
		m.Seen, m.Modified, m.Inserted, m.Remove = false, false, false, false
	}

	for _, declared := range incoming.Modules {
		existing := live.ByName(declared.Name)
		if existing == nil {
			live.Modules = append(live.Modules, insertedRow(declared))
			sum.Inserted++
			continue
		}
		reconcileModule(existing, declared, oldProfiles, incoming.Profiles)
		if existing.Modified {
			sum.Modified++
			if existing.Up {
				existing.Enabled = false
				existing.Init = true
			}
		} else {
			sum.Unchanged++
		}
	}

	for _, m := range live.Modules {
		if !m.Seen {
			m.Remove = true
			m.Enabled = false
			sum.Removed++
		}
	}

	live.Profiles = incoming.Profiles
	live.ModuleRestarts = incoming.ModuleRestarts
	live.LogsDirectory = incoming.LogsDirectory
	return sum
}

func insertedRow(declared *config.Module) *config.Module {
	return &config.Module{
		Name:           declared.Name,
		Path:           declared.Path,
		Enabled:        declared.Enabled,
		MaxRestarts:    declared.MaxRestarts,
		Params:         declared.Params,
		Interfaces:     cloneInterfaces(declared.Interfaces),
		ProfileIdx:     declared.ProfileIdx,
		Seen:           true,
		Inserted:       true,
		RestartCounter: -1,
	}
}

// reconcileModule merges one declared module onto its existing live
// row, per spec.md §4.2 steps 3-4.
func reconcileModule(existing, declared *config.Module, oldProfiles, newProfiles []config.Profile) {
	existing.Seen = true
	prevEffective := existing.EffectiveEnabled(oldProfiles)

	attrsDiffer := existing.Path != declared.Path || existing.Params != declared.Params
	ifacesDiffer := !sameInterfaces(existing.Interfaces, declared.Interfaces)
	if attrsDiffer || ifacesDiffer {
		existing.Modified = true
	}
	if ifacesDiffer {
		// Invariant I-2: interface set rebuilt atomically, every
		// counter for this module discarded with it.
		existing.Interfaces = cloneInterfaces(declared.Interfaces)
	}

	existing.Path = declared.Path
	existing.Params = declared.Params
	existing.MaxRestarts = declared.MaxRestarts
	existing.Enabled = declared.Enabled
	existing.ProfileIdx = declared.ProfileIdx

	newEffective := existing.EffectiveEnabled(newProfiles)
	if newEffective && newEffective != prevEffective {
		existing.RestartCounter = -1
	}
}

func cloneInterfaces(ifaces []config.Interface) []config.Interface {
	if len(ifaces) == 0 {
		return nil
	}
	out := make([]config.Interface, len(ifaces))
	copy(out, ifaces)
	return out
}

// sameInterfaces compares declared attributes only — Direction, Type,
// Params, Note — ignoring the accumulated In/Out counters a live
// Interface carries, since those are runtime state, not declaration.
func sameInterfaces(a, b []config.Interface) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Direction != b[i].Direction || a[i].Type != b[i].Type ||
			a[i].Params != b[i].Params || a[i].Note != b[i].Note {
			return false
		}
	}
	return true
}
