/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package config

import (
	"bytes"
	"errors"
)

// maxConfigSize is a sanity bound on the expanded document, not a
// protocol limit; a legitimate configuration is a few KiB.
const maxConfigSize = 4 * 1024 * 1024

var ErrConfigTooLarge = errors.New("expanded configuration exceeds size limit")

// Parse expands includes, parses, and validates the configuration
// template at path, returning a built Config. No partial Config is
// ever returned: Build only runs once Validate has succeeded.
func Parse(path string) (*Config, error) {
	expanded, err := ExpandIncludes(path)
	if err != nil {
		return nil, err
	}
	if len(expanded) > maxConfigSize {
		return nil, ErrConfigTooLarge
	}
	root, err := parseTree(bytes.NewReader(expanded))
	if err != nil {
		return nil, err
	}
	if err := Validate(root); err != nil {
		return nil, err
	}
	return Build(root)
}
