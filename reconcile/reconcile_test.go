/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package reconcile

import (
	"testing"

	"github.com/zidekmat/nemea-supervisor/config"
)

func oneModuleConfig(params string) *config.Config {
	return &config.Config{
		ModuleRestarts: 3,
		Profiles:       []config.Profile{{Name: `P`, Enabled: true}},
		Modules: []*config.Module{
			{
				Name:       `A`,
				Path:       `/bin/true`,
				Enabled:    true,
				ProfileIdx: 0,
				Interfaces: []config.Interface{{Direction: config.DirIn, Type: config.TypeTCP, Params: params}},
			},
		},
	}
}

func TestReconcileInsert(t *testing.T) {
	live := &config.Config{}
	incoming := oneModuleConfig(`p1`)

	sum := Reconcile(live, incoming)
	if sum.Inserted != 1 || sum.Modified != 0 || sum.Removed != 0 || sum.Unchanged != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
	if len(live.Modules) != 1 || !live.Modules[0].Inserted || !live.Modules[0].Seen {
		t.Fatalf("module not inserted correctly: %+v", live.Modules)
	}
}

func TestReconcileModifyParams(t *testing.T) {
	live := &config.Config{}
	Reconcile(live, oneModuleConfig(`p1`))
	live.Modules[0].Up = true // pretend it's running

	sum := Reconcile(live, oneModuleConfig(`p2`))
	if sum.Inserted != 0 || sum.Removed != 0 || sum.Modified != 1 {
		t.Fatalf("expected modified=1 inserted=0 removed=0, got %+v", sum)
	}
	m := live.Modules[0]
	if !m.Modified {
		t.Fatal("expected module to be marked modified")
	}
	if m.Enabled {
		t.Fatal("expected modified+up module to be force-disabled for stop/restart cycle")
	}
	if !m.Init {
		t.Fatal("expected Init flag set so the scheduler restarts it once observed down")
	}
	if m.Interfaces[0].Params != `p2` {
		t.Fatalf("expected interface params updated to p2, got %q", m.Interfaces[0].Params)
	}
}

func TestReconcileIdempotentReload(t *testing.T) {
	live := &config.Config{}
	Reconcile(live, oneModuleConfig(`p1`))

	sum := Reconcile(live, oneModuleConfig(`p1`))
	if sum.Inserted != 0 || sum.Removed != 0 || sum.Modified != 0 {
		t.Fatalf("expected zero mutation on identical reload, got %+v", sum)
	}
	if sum.Unchanged != 1 {
		t.Fatalf("expected 1 unchanged module, got %d", sum.Unchanged)
	}
}

func TestReconcileRemovedModuleSwept(t *testing.T) {
	live := &config.Config{}
	Reconcile(live, oneModuleConfig(`p1`))

	sum := Reconcile(live, &config.Config{})
	if sum.Removed != 1 {
		t.Fatalf("expected removed=1, got %+v", sum)
	}
	m := live.Modules[0]
	if !m.Remove || m.Enabled {
		t.Fatalf("expected swept module marked Remove and disabled: %+v", m)
	}
}

func TestReconcileInterfaceTeardownWhenRemoved(t *testing.T) {
	live := &config.Config{}
	Reconcile(live, oneModuleConfig(`p1`))

	noIface := &config.Config{
		Modules: []*config.Module{{Name: `A`, Path: `/bin/true`, Enabled: true, ProfileIdx: -1}},
	}
	Reconcile(live, noIface)
	if len(live.Modules[0].Interfaces) != 0 {
		t.Fatalf("expected interfaces torn down, got %+v", live.Modules[0].Interfaces)
	}
	if !live.Modules[0].Modified {
		t.Fatal("dropping all interfaces should mark the module modified")
	}
}

func TestReconcileNewlyEnabledResetsRestartCounter(t *testing.T) {
	live := &config.Config{}
	incoming := oneModuleConfig(`p1`)
	incoming.Modules[0].Enabled = false
	Reconcile(live, incoming)
	live.Modules[0].RestartCounter = 2

	incoming2 := oneModuleConfig(`p1`)
	incoming2.Modules[0].Enabled = true
	Reconcile(live, incoming2)
	if live.Modules[0].RestartCounter != -1 {
		t.Fatalf("expected restart counter reset to -1 on re-enable transition, got %d", live.Modules[0].RestartCounter)
	}
}
