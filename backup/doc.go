/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package backup

import "encoding/xml"

// docRoot is the backup file's own XML grammar: a supervisor-internal
// round-trip format, not the user-facing configuration grammar of the
// config package, so struct-tag marshaling is the right tool here —
// there is no unknown-element detection or duplicate-child checking to
// do against a document this package itself produces.
type docRoot struct {
	XMLName        xml.Name       `xml:"sup-backup"`
	ConfigPath     string         `xml:"config-path,attr"`
	ModuleRestarts int            `xml:"module-restarts,attr"`
	LogsDirectory  string         `xml:"logs-directory,attr"`
	StartTimeUnix  int64          `xml:"start-time-unix,attr"`
	Profiles       []docProfile   `xml:"profile"`
	Modules        []docModule    `xml:"module"`
}

type docProfile struct {
	Name    string `xml:"name,attr"`
	Enabled bool   `xml:"enabled,attr"`
}

type docModule struct {
	Name        string          `xml:"name,attr"`
	Path        string          `xml:"path,attr"`
	Enabled     bool            `xml:"enabled,attr"`
	MaxRestarts int             `xml:"max-restarts,attr"`
	Params      string          `xml:"params,attr,omitempty"`
	ProfileIdx  int             `xml:"profile-idx,attr"`
	ModulePID   int             `xml:"module_pid,attr,omitempty"`
	Interfaces  []docInterface  `xml:"interface"`
}

type docInterface struct {
	Direction string `xml:"direction,attr"`
	Type      string `xml:"type,attr"`
	Params    string `xml:"params,attr,omitempty"`
	Note      string `xml:"note,attr,omitempty"`
}
