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
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const includeSuffix = `.sup`

// ExpandIncludes replaces every line of the exact form
// "<!-- include PATH -->" in the template at path with the
// concatenation of PATH's contents (if PATH is a file) or every
// "*.sup" file directly under PATH (if it's a directory, in
// lexical order). Recursion is not performed: an included file's own
// include lines, if any, are left untouched. This is a pure text
// transform run before the XML parse ever sees the document, matching
// the out-of-scope "file-inclusion preprocessing" collaborator named
// in spec.md §1/§6.
func ExpandIncludes(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	base := filepath.Dir(path)

	var out bytes.Buffer
	lines := strings.Split(string(raw), "\n")
	for i, line := range lines {
		if target, ok := includeTarget(line); ok {
			inc, err := readInclude(resolve(base, target))
			if err != nil {
				return nil, fmt.Errorf("include %q: %w", target, err)
			}
			out.Write(inc)
		} else {
			out.WriteString(line)
		}
		if i < len(lines)-1 {
			out.WriteByte('\n')
		}
	}
	return out.Bytes(), nil
}

func resolve(base, target string) string {
	if filepath.IsAbs(target) {
		return target
	}
	return filepath.Join(base, target)
}

// includeTarget recognizes a line of exactly the form
// "<!-- include PATH -->" (surrounding whitespace on the line is
// tolerated; anything else on the line disqualifies it).
func includeTarget(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	const prefix = `<!-- include `
	const suffix = ` -->`
	if !strings.HasPrefix(trimmed, prefix) || !strings.HasSuffix(trimmed, suffix) {
		return "", false
	}
	target := strings.TrimSpace(trimmed[len(prefix) : len(trimmed)-len(suffix)])
	if target == `` {
		return "", false
	}
	return target, true
}

func readInclude(path string) ([]byte, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return readIncludeDir(path)
	}
	return os.ReadFile(path)
}

func readIncludeDir(dir string) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), includeSuffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out bytes.Buffer
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out.Write(b)
		if len(b) > 0 && b[len(b)-1] != '\n' {
			out.WriteByte('\n')
		}
	}
	return out.Bytes(), nil
}
