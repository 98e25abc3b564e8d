/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package control

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// parseSelection parses a comma-separated list of indices and
// inclusive ranges (e.g. "2,4-6,13"), deduplicates, and validates
// every value against [0, total), spec.md §4.7 step 4.
func parseSelection(input string, total int) ([]int, error) {
	seen := make(map[int]bool)
	for _, tok := range strings.Split(input, `,`) {
		tok = strings.TrimSpace(tok)
		if tok == `` {
			continue
		}
		lo, hi, err := parseToken(tok)
		if err != nil {
			return nil, err
		}
		for v := lo; v <= hi; v++ {
			if v < 0 || v >= total {
				return nil, fmt.Errorf("index %d out of range [0,%d)", v, total)
			}
			seen[v] = true
		}
	}
	out := make([]int, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Ints(out)
	return out, nil
}

func parseToken(tok string) (lo, hi int, err error) {
	if i := strings.IndexByte(tok, '-'); i > 0 {
		if lo, err = strconv.Atoi(tok[:i]); err != nil {
			return 0, 0, fmt.Errorf("invalid range start %q", tok)
		}
		if hi, err = strconv.Atoi(tok[i+1:]); err != nil {
			return 0, 0, fmt.Errorf("invalid range end %q", tok)
		}
		if lo > hi {
			return 0, 0, fmt.Errorf("invalid range %q: start after end", tok)
		}
		return lo, hi, nil
	}
	v, err := strconv.Atoi(tok)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid selection %q", tok)
	}
	return v, v, nil
}
