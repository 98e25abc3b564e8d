/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package config

// Build constructs a Config from a node tree that has already passed
// Validate. It must not be called otherwise: every parse error path
// returns before any Config is built, so a Config never exists in a
// half-valid state.
//
// A "modules" container becomes a Profile only when it carries exactly
// one name and one enabled element (the same rule the reconciler uses
// when walking a freshly parsed configuration, spec §4.2 step 2);
// containers that don't qualify still contribute their child modules,
// just without a profile attachment.
func Build(root *node) (*Config, error) {
	c := &Config{ModuleRestarts: defaultModuleRestarts}

	if sup := firstChild(root, `supervisor`); sup != nil {
		if mr := firstChild(sup, `module-restarts`); mr != nil {
			v, err := parseNonNegativeInt(mr.trimmedText())
			if err != nil {
				return nil, invalid(mr, "module-restarts must be a non-negative integer")
			}
			c.ModuleRestarts = v
		}
		if ld := firstChild(sup, `logs-directory`); ld != nil {
			c.LogsDirectory = ld.trimmedText()
		}
	}

	for _, grp := range root.childrenNamed(`modules`) {
		profileIdx := -1
		nameNode := firstChild(grp, `name`)
		enabledNode := firstChild(grp, `enabled`)
		if nameNode != nil && nameNode.trimmedText() != `` && enabledNode != nil {
			enabled, err := parseBool(enabledNode.trimmedText())
			if err != nil {
				return nil, invalid(enabledNode, `enabled must be "true" or "false"`)
			}
			profileIdx = len(c.Profiles)
			c.Profiles = append(c.Profiles, Profile{Name: nameNode.trimmedText(), Enabled: enabled})
		}
		for _, modNode := range grp.childrenNamed(`module`) {
			m, err := buildModule(modNode)
			if err != nil {
				return nil, err
			}
			m.ProfileIdx = profileIdx
			c.Modules = append(c.Modules, m)
		}
	}
	return c, nil
}

func buildModule(n *node) (*Module, error) {
	m := &Module{RestartCounter: -1, MaxRestarts: -1}
	m.Name = firstChild(n, `name`).trimmedText()
	m.Path = firstChild(n, `path`).trimmedText()

	enabledNode := firstChild(n, `enabled`)
	enabled, err := parseBool(enabledNode.trimmedText())
	if err != nil {
		return nil, invalid(enabledNode, `enabled must be "true" or "false"`)
	}
	m.Enabled = enabled

	if mr := firstChild(n, `module-restarts`); mr != nil {
		v, err := parseNonNegativeInt(mr.trimmedText())
		if err != nil {
			return nil, invalid(mr, "module-restarts must be a non-negative integer")
		}
		m.MaxRestarts = v
	}

	if p := firstChild(n, `params`); p != nil {
		m.Params = p.trimmedText()
	}

	if ti := firstChild(n, `trapinterfaces`); ti != nil {
		ifaces, err := buildInterfaces(ti)
		if err != nil {
			return nil, err
		}
		m.Interfaces = ifaces
	}
	return m, nil
}

// buildInterfaces preserves declared order but places every IN
// interface ahead of every OUT interface, per invariant I-2.
func buildInterfaces(n *node) ([]Interface, error) {
	var in, out []Interface
	for _, c := range n.childrenNamed(`interface`) {
		iface, err := buildInterface(c)
		if err != nil {
			return nil, err
		}
		if iface.Direction == DirIn {
			in = append(in, iface)
		} else {
			out = append(out, iface)
		}
	}
	return append(in, out...), nil
}

func buildInterface(n *node) (Interface, error) {
	var iface Interface
	if note := firstChild(n, `note`); note != nil {
		iface.Note = note.trimmedText()
	}
	typeNode := firstChild(n, `type`)
	t, err := parseIfaceType(typeNode.trimmedText())
	if err != nil {
		return iface, invalid(typeNode, "type must be one of TCP, UNIXSOCKET, FILE, BLACKHOLE")
	}
	iface.Type = t

	dirNode := firstChild(n, `direction`)
	d, err := parseDirection(dirNode.trimmedText())
	if err != nil {
		return iface, invalid(dirNode, `direction must be "IN" or "OUT"`)
	}
	iface.Direction = d

	if p := firstChild(n, `params`); p != nil {
		iface.Params = p.trimmedText()
	}
	return iface, nil
}
