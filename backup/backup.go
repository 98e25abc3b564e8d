/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

// Package backup is C9, the backup store: on every termination path the
// supervisor writes a canonical XML dump of the currently loaded
// configuration annotated with each module's live PID, to a path
// derived deterministically from the configuration file's absolute
// path; on startup it prefers that dump over the user's template and
// re-adopts any module whose recorded PID is still alive.
package backup

import (
	"fmt"
	"path/filepath"
)

const (
	backupRootDir    = `/tmp/sup_tmp_dir`
	backupSuffix     = `_sup_backup_file.xml`
	infoSuffix       = `_info`
	backupMode       = 0666
)

// Checksum is Σ (byte_i · (i+1)) over the absolute path's bytes,
// spec.md §4.8 — deliberately not a cryptographic hash, just a
// deterministic, collision-tolerant-enough name derivation.
func Checksum(absPath string) uint64 {
	var sum uint64
	for i := 0; i < len(absPath); i++ {
		sum += uint64(absPath[i]) * uint64(i+1)
	}
	return sum
}

// Path returns the backup file path for a given absolute configuration
// path.
func Path(absConfigPath string) string {
	return filepath.Join(backupRootDir, fmt.Sprintf("%d%s", Checksum(absConfigPath), backupSuffix))
}

// InfoPath returns the sidecar info file path for a given backup path.
func InfoPath(backupPath string) string {
	return backupPath + infoSuffix
}
