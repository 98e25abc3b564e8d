/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package config

import (
	"fmt"
	"strconv"
	"strings"
)

// InvalidConfig reports a structural or semantic validation failure.
// Validation is total: no Config is ever built from a tree that fails
// to validate, and no runtime state is mutated before Validate returns
// nil.
type InvalidConfig struct {
	ElementPath string
	Reason      string
}

func (e *InvalidConfig) Error() string {
	return fmt.Sprintf("invalid config at %s: %s", e.ElementPath, e.Reason)
}

func invalid(n *node, reason string) *InvalidConfig {
	return &InvalidConfig{ElementPath: n.path, Reason: reason}
}

const defaultModuleRestarts = 3

// Validate walks the node tree per the grammar in the configuration
// document and returns the first structural or semantic problem found.
// It performs no mutation and builds nothing; Build is only safe to
// call once Validate has returned nil.
func Validate(root *node) error {
	var sawSupervisor bool
	moduleNames := make(map[string]bool)
	profileNames := make(map[string]bool)

	for _, child := range root.children {
		switch child.name {
		case `supervisor`:
			if sawSupervisor {
				return invalid(child, "duplicate supervisor element")
			}
			sawSupervisor = true
			if err := validateSupervisor(child); err != nil {
				return err
			}
		case `modules`:
			if err := validateModulesContainer(child, moduleNames, profileNames); err != nil {
				return err
			}
		default:
			return invalid(child, fmt.Sprintf("unknown element %q", child.name))
		}
	}
	return nil
}

func validateSupervisor(n *node) error {
	seen := make(map[string]bool)
	for _, c := range n.children {
		if seen[c.name] {
			return invalid(c, fmt.Sprintf("duplicate element %q", c.name))
		}
		seen[c.name] = true
		switch c.name {
		case `module-restarts`:
			if _, err := parseNonNegativeInt(c.trimmedText()); err != nil {
				return invalid(c, "module-restarts must be a non-negative integer")
			}
		case `logs-directory`:
			// any string, including empty, is acceptable here
		default:
			return invalid(c, fmt.Sprintf("unknown element %q", c.name))
		}
	}
	return nil
}

func validateModulesContainer(n *node, moduleNames, profileNames map[string]bool) error {
	seen := make(map[string]bool)
	for _, c := range n.children {
		switch c.name {
		case `name`, `enabled`:
			if seen[c.name] {
				return invalid(c, fmt.Sprintf("duplicate element %q", c.name))
			}
			seen[c.name] = true
			if c.name == `enabled` {
				if _, err := parseBool(c.trimmedText()); err != nil {
					return invalid(c, `enabled must be "true" or "false"`)
				}
			}
		case `module`:
			if err := validateModule(c, moduleNames); err != nil {
				return err
			}
		default:
			return invalid(c, fmt.Sprintf("unknown element %q", c.name))
		}
	}
	if nameNode := firstChild(n, `name`); nameNode != nil {
		name := nameNode.trimmedText()
		if name != `` {
			if firstChild(n, `enabled`) == nil {
				return invalid(n, "enabled is required when name is present")
			}
			if profileNames[name] {
				return invalid(nameNode, "duplicate profile name")
			}
			profileNames[name] = true
		}
	}
	return nil
}

func validateModule(n *node, moduleNames map[string]bool) error {
	seen := make(map[string]bool)
	var haveName, haveEnabled bool
	for _, c := range n.children {
		switch c.name {
		case `name`, `path`, `enabled`, `module-restarts`, `params`:
			if seen[c.name] {
				return invalid(c, fmt.Sprintf("duplicate element %q", c.name))
			}
			seen[c.name] = true
			switch c.name {
			case `name`:
				haveName = true
				if c.trimmedText() == `` {
					return invalid(c, "name must not be empty")
				}
			case `path`:
				if c.trimmedText() == `` {
					return invalid(c, "path must not be empty")
				}
			case `enabled`:
				haveEnabled = true
				if _, err := parseBool(c.trimmedText()); err != nil {
					return invalid(c, `enabled must be "true" or "false"`)
				}
			case `module-restarts`:
				if _, err := parseNonNegativeInt(c.trimmedText()); err != nil {
					return invalid(c, "module-restarts must be a non-negative integer")
				}
			case `params`:
				if c.trimmedText() == `` {
					return invalid(c, "params must not be empty if present")
				}
			}
		case `trapinterfaces`:
			if seen[c.name] {
				return invalid(c, "duplicate trapinterfaces element")
			}
			seen[c.name] = true
			if err := validateTrapInterfaces(c); err != nil {
				return err
			}
		default:
			return invalid(c, fmt.Sprintf("unknown element %q", c.name))
		}
	}
	if !haveName {
		return invalid(n, "module missing required name")
	}
	if firstChild(n, `path`) == nil {
		return invalid(n, "module missing required path")
	}
	if !haveEnabled {
		return invalid(n, "module missing required enabled")
	}
	name := firstChild(n, `name`).trimmedText()
	if moduleNames[name] {
		return invalid(firstChild(n, `name`), "duplicate")
	}
	moduleNames[name] = true
	return nil
}

func validateTrapInterfaces(n *node) error {
	for _, c := range n.children {
		if c.name != `interface` {
			return invalid(c, fmt.Sprintf("unknown element %q", c.name))
		}
		if err := validateInterface(c); err != nil {
			return err
		}
	}
	return nil
}

func validateInterface(n *node) error {
	seen := make(map[string]bool)
	var haveType, haveDirection bool
	for _, c := range n.children {
		switch c.name {
		case `note`, `type`, `direction`, `params`:
			if seen[c.name] {
				return invalid(c, fmt.Sprintf("duplicate element %q", c.name))
			}
			seen[c.name] = true
			switch c.name {
			case `note`:
				if c.trimmedText() == `` {
					return invalid(c, "note must not be empty if present")
				}
			case `type`:
				haveType = true
				if _, err := parseIfaceType(c.trimmedText()); err != nil {
					return invalid(c, "type must be one of TCP, UNIXSOCKET, FILE, BLACKHOLE")
				}
			case `direction`:
				haveDirection = true
				if _, err := parseDirection(c.trimmedText()); err != nil {
					return invalid(c, `direction must be "IN" or "OUT"`)
				}
			case `params`:
				if c.trimmedText() == `` {
					return invalid(c, "params must not be empty if present")
				}
			}
		default:
			return invalid(c, fmt.Sprintf("unknown element %q", c.name))
		}
	}
	if !haveType {
		return invalid(n, "interface missing required type")
	}
	if !haveDirection {
		return invalid(n, "interface missing required direction")
	}
	return nil
}

func firstChild(n *node, name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func parseNonNegativeInt(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("not a non-negative integer: %q", s)
	}
	return v, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case `true`:
		return true, nil
	case `false`:
		return false, nil
	}
	return false, fmt.Errorf("not a boolean: %q", s)
}

func parseIfaceType(s string) (IfaceType, error) {
	switch strings.ToUpper(s) {
	case `TCP`:
		return TypeTCP, nil
	case `UNIXSOCKET`:
		return TypeUnixSocket, nil
	case `FILE`:
		return TypeFile, nil
	case `BLACKHOLE`:
		return TypeBlackhole, nil
	}
	return TypeUnknown, fmt.Errorf("unknown interface type %q", s)
}

func parseDirection(s string) (Direction, error) {
	switch strings.ToUpper(s) {
	case `IN`:
		return DirIn, nil
	case `OUT`:
		return DirOut, nil
	}
	return DirUnknown, fmt.Errorf("unknown direction %q", s)
}
