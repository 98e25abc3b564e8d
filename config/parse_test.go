/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, dir, name, contents string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

const minimalConfig = `<configuration>
  <supervisor>
    <module-restarts>3</module-restarts>
  </supervisor>
  <modules>
    <name>P</name>
    <enabled>true</enabled>
    <module>
      <name>M</name>
      <path>/bin/true</path>
      <enabled>true</enabled>
      <trapinterfaces>
        <interface>
          <type>TCP</type>
          <direction>OUT</direction>
          <params>localhost:7000</params>
        </interface>
      </trapinterfaces>
    </module>
  </modules>
</configuration>`

func TestParseMinimal(t *testing.T) {
	dir := t.TempDir()
	p := writeTemp(t, dir, "c.xml", minimalConfig)

	cfg, err := Parse(p)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Profiles) != 1 || cfg.Profiles[0].Name != `P` || !cfg.Profiles[0].Enabled {
		t.Fatalf("profile not built correctly: %+v", cfg.Profiles)
	}
	if len(cfg.Modules) != 1 {
		t.Fatalf("expected 1 module, got %d", len(cfg.Modules))
	}
	m := cfg.Modules[0]
	if m.Name != `M` || m.Path != `/bin/true` || !m.Enabled {
		t.Fatalf("module not built correctly: %+v", m)
	}
	if m.ProfileIdx != 0 {
		t.Fatalf("expected module attached to profile 0, got %d", m.ProfileIdx)
	}
	if len(m.Interfaces) != 1 || m.Interfaces[0].Type != TypeTCP || m.Interfaces[0].Direction != DirOut {
		t.Fatalf("interface not built correctly: %+v", m.Interfaces)
	}
	if cfg.ModuleRestarts != 3 {
		t.Fatalf("expected module-restarts 3, got %d", cfg.ModuleRestarts)
	}
	if m.RestartCounter != -1 {
		t.Fatalf("expected a freshly built module to carry the never-attempted sentinel, got %d", m.RestartCounter)
	}
	if m.MaxRestarts != -1 {
		t.Fatalf("expected a module with no module-restarts element to be unset, got %d", m.MaxRestarts)
	}
	if got := m.EffectiveMaxRestarts(cfg.ModuleRestarts); got != cfg.ModuleRestarts {
		t.Fatalf("expected unset MaxRestarts to fall back to the supervisor default, got %d", got)
	}
}

// TestParseModuleRestartsZeroIsExplicit covers B2: a module that
// declares module-restarts=0 gets a real, binding cap of zero rather
// than falling back to the supervisor-wide default.
func TestParseModuleRestartsZeroIsExplicit(t *testing.T) {
	const doc = `<configuration>
  <supervisor>
    <module-restarts>5</module-restarts>
  </supervisor>
  <modules>
    <module>
      <name>onceonly</name>
      <path>/bin/true</path>
      <enabled>true</enabled>
      <module-restarts>0</module-restarts>
    </module>
  </modules>
</configuration>`
	dir := t.TempDir()
	p := writeTemp(t, dir, "c.xml", doc)

	cfg, err := Parse(p)
	if err != nil {
		t.Fatal(err)
	}
	m := cfg.Modules[0]
	if m.MaxRestarts != 0 {
		t.Fatalf("expected explicit module-restarts 0 to be stored as 0, got %d", m.MaxRestarts)
	}
	if got := m.EffectiveMaxRestarts(cfg.ModuleRestarts); got != 0 {
		t.Fatalf("expected explicit 0 to override the supervisor default of %d, got %d", cfg.ModuleRestarts, got)
	}
}

func TestParseDuplicateModuleName(t *testing.T) {
	const doc = `<configuration>
  <modules>
    <module><name>dup</name><path>/bin/true</path><enabled>true</enabled></module>
    <module><name>dup</name><path>/bin/true</path><enabled>true</enabled></module>
  </modules>
</configuration>`
	dir := t.TempDir()
	p := writeTemp(t, dir, "c.xml", doc)

	_, err := Parse(p)
	var ic *InvalidConfig
	if !errors.As(err, &ic) {
		t.Fatalf("expected InvalidConfig, got %v", err)
	}
	if ic.Reason != "duplicate" {
		t.Fatalf("expected duplicate reason, got %q", ic.Reason)
	}
}

func TestParseEmptyParamsRejected(t *testing.T) {
	const doc = `<configuration>
  <modules>
    <module>
      <name>M</name>
      <path>/bin/true</path>
      <enabled>true</enabled>
      <params></params>
    </module>
  </modules>
</configuration>`
	dir := t.TempDir()
	p := writeTemp(t, dir, "c.xml", doc)

	_, err := Parse(p)
	var ic *InvalidConfig
	if !errors.As(err, &ic) {
		t.Fatalf("expected InvalidConfig for empty params, got %v", err)
	}
}

func TestParseUnknownElementRejected(t *testing.T) {
	const doc = `<configuration>
  <modules>
    <module>
      <name>M</name>
      <path>/bin/true</path>
      <enabled>true</enabled>
      <bogus>x</bogus>
    </module>
  </modules>
</configuration>`
	dir := t.TempDir()
	p := writeTemp(t, dir, "c.xml", doc)

	if _, err := Parse(p); err == nil {
		t.Fatal("expected validation failure for unknown element")
	}
}

func TestInterfaceOrderingInThenOut(t *testing.T) {
	const doc = `<configuration>
  <modules>
    <module>
      <name>M</name>
      <path>/bin/true</path>
      <enabled>true</enabled>
      <trapinterfaces>
        <interface><type>TCP</type><direction>OUT</direction><params>p1</params></interface>
        <interface><type>UNIXSOCKET</type><direction>IN</direction><params>p2</params></interface>
        <interface><type>FILE</type><direction>OUT</direction><params>p3</params></interface>
        <interface><type>BLACKHOLE</type><direction>IN</direction><params>p4</params></interface>
      </trapinterfaces>
    </module>
  </modules>
</configuration>`
	dir := t.TempDir()
	p := writeTemp(t, dir, "c.xml", doc)

	cfg, err := Parse(p)
	if err != nil {
		t.Fatal(err)
	}
	m := cfg.Modules[0]
	if len(m.Interfaces) != 4 {
		t.Fatalf("expected 4 interfaces, got %d", len(m.Interfaces))
	}
	if m.Interfaces[0].Direction != DirIn || m.Interfaces[1].Direction != DirIn {
		t.Fatal("expected both IN interfaces first")
	}
	if m.Interfaces[2].Direction != DirOut || m.Interfaces[3].Direction != DirOut {
		t.Fatal("expected both OUT interfaces last")
	}
	if m.InCount() != 2 || m.OutCount() != 2 {
		t.Fatalf("wrong in/out counts: %d/%d", m.InCount(), m.OutCount())
	}
}

func TestExpandIncludesFileAndDir(t *testing.T) {
	dir := t.TempDir()
	writeTemp(t, dir, "extra.sup", "<module-extra/>\n")
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	writeTemp(t, sub, "a.sup", "<a/>\n")
	writeTemp(t, sub, "b.sup", "<b/>\n")
	writeTemp(t, sub, "ignored.txt", "<ignored/>\n")

	tmpl := "<root>\n<!-- include extra.sup -->\n<!-- include sub -->\n</root>\n"
	p := writeTemp(t, dir, "tmpl.xml", tmpl)

	out, err := ExpandIncludes(p)
	if err != nil {
		t.Fatal(err)
	}
	s := string(out)
	for _, want := range []string{"<module-extra/>", "<a/>", "<b/>"} {
		if !strings.Contains(s, want) {
			t.Fatalf("expected expanded output to contain %q, got:\n%s", want, s)
		}
	}
	if strings.Contains(s, "<ignored/>") {
		t.Fatal("non-.sup file should not have been included")
	}
}
