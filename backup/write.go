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
	"fmt"
	"os"
	"time"

	"github.com/dchest/safefile"

	"github.com/zidekmat/nemea-supervisor/config"
)

// Write dumps the currently loaded configuration, annotated with each
// up module's live PID, to the deterministic path derived from
// absConfigPath. The write is atomic: safefile.Create writes to a
// sibling temp file and Commit renames it into place, so a reader
// never observes a partial document, mirroring ingesters/utils/state.go's
// State.Write.
func Write(cfg *config.Config, absConfigPath string) (err error) {
	if err = os.MkdirAll(backupRootDir, 0775); err != nil {
		return err
	}

	doc := toDoc(cfg, absConfigPath)

	path := Path(absConfigPath)
	var fout *safefile.File
	if fout, err = safefile.Create(path, backupMode); err != nil {
		return err
	}
	n := fout.Name()

	enc := xml.NewEncoder(fout)
	enc.Indent(``, `  `)
	if err = enc.Encode(doc); err != nil {
		fout.File.Close()
		os.Remove(n)
		return err
	}
	if err = fout.Commit(); err != nil {
		fout.File.Close()
		os.Remove(n)
		return err
	}

	return writeInfo(path, cfg)
}

// writeInfo writes the sidecar "_info" file: a small human-readable
// summary of the backup, not parsed back on adoption.
func writeInfo(backupPath string, cfg *config.Config) error {
	info := fmt.Sprintf("start-time: %s\ncurrent-time: %s\nloaded: %d\nrunning: %d\n",
		cfg.StartTime.Format(time.RFC3339), time.Now().Format(time.RFC3339),
		len(cfg.Modules), cfg.RunningCount())
	return os.WriteFile(InfoPath(backupPath), []byte(info), backupMode)
}

func toDoc(cfg *config.Config, absConfigPath string) docRoot {
	doc := docRoot{
		ConfigPath:     absConfigPath,
		ModuleRestarts: cfg.ModuleRestarts,
		LogsDirectory:  cfg.LogsDirectory,
		StartTimeUnix:  cfg.StartTime.Unix(),
	}
	for _, p := range cfg.Profiles {
		doc.Profiles = append(doc.Profiles, docProfile{Name: p.Name, Enabled: p.Enabled})
	}
	for _, m := range cfg.Modules {
		dm := docModule{
			Name:        m.Name,
			Path:        m.Path,
			Enabled:     m.Enabled,
			MaxRestarts: m.MaxRestarts,
			Params:      m.Params,
			ProfileIdx:  m.ProfileIdx,
		}
		if m.Up && m.PID > 0 {
			dm.ModulePID = m.PID
		}
		for _, ifc := range m.Interfaces {
			dm.Interfaces = append(dm.Interfaces, docInterface{
				Direction: ifc.Direction.String(),
				Type:      ifc.Type.String(),
				Params:    ifc.Params,
				Note:      ifc.Note,
			})
		}
		doc.Modules = append(doc.Modules, dm)
	}
	return doc
}
