/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package backup

import (
	"encoding/xml"
	"errors"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"github.com/zidekmat/nemea-supervisor/config"
)

// ErrNoBackup is returned by Read when no backup file exists yet for
// the given configuration path; callers fall back to the template.
var ErrNoBackup = errors.New(`no backup file for this configuration path`)

// Read loads the backup document for absConfigPath, re-adopting any
// module whose recorded PID is still alive: such a module is entered
// as Up/not-our-child, so the scheduler probes, scrapes and stops it
// like any other row but never waitpid()s on it, since the launcher
// never forked it (spec.md scenario 5).
func Read(absConfigPath string) (*config.Config, error) {
	path := Path(absConfigPath)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoBackup
		}
		return nil, err
	}
	defer f.Close()

	var doc docRoot
	if err := xml.NewDecoder(f).Decode(&doc); err != nil {
		return nil, err
	}

	cfg := &config.Config{
		ModuleRestarts: doc.ModuleRestarts,
		LogsDirectory:  doc.LogsDirectory,
		StartTime:      time.Unix(doc.StartTimeUnix, 0),
	}
	for _, p := range doc.Profiles {
		cfg.Profiles = append(cfg.Profiles, config.Profile{Name: p.Name, Enabled: p.Enabled})
	}
	for _, dm := range doc.Modules {
		m := &config.Module{
			Name:        dm.Name,
			Path:        dm.Path,
			Enabled:     dm.Enabled,
			MaxRestarts: dm.MaxRestarts,
			Params:      dm.Params,
			ProfileIdx:  dm.ProfileIdx,

			RestartCounter: -1,
		}
		for _, di := range dm.Interfaces {
			m.Interfaces = append(m.Interfaces, config.Interface{
				Direction: parseDirection(di.Direction),
				Type:      parseIfaceType(di.Type),
				Params:    di.Params,
				Note:      di.Note,
			})
		}
		if dm.ModulePID > 0 && pidAlive(dm.ModulePID) {
			m.PID = dm.ModulePID
			m.Up = true
			m.IsMyChild = false
		}
		cfg.Modules = append(cfg.Modules, m)
	}
	return cfg, nil
}

func pidAlive(pid int) bool {
	ok, err := process.PidExists(int32(pid))
	return err == nil && ok
}

func parseDirection(s string) config.Direction {
	switch s {
	case `IN`:
		return config.DirIn
	case `OUT`:
		return config.DirOut
	}
	return config.DirUnknown
}

func parseIfaceType(s string) config.IfaceType {
	switch s {
	case `TCP`:
		return config.TypeTCP
	case `UNIXSOCKET`:
		return config.TypeUnixSocket
	case `FILE`:
		return config.TypeFile
	case `BLACKHOLE`:
		return config.TypeBlackhole
	}
	return config.TypeUnknown
}
