/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package svcchan

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/zidekmat/nemea-supervisor/config"
)

var (
	ErrRootNotObject  = errors.New("counter reply root must be a JSON object")
	ErrMissingIn      = errors.New(`"in" absent but module declares IN interfaces`)
	ErrMissingOut     = errors.New(`"out" absent but module declares OUT interfaces`)
	ErrMissingKey     = errors.New("counter entry missing a required key")
)

// Counters is the decoded form of a module's scrape reply, one entry
// per declared IN/OUT interface in positional order.
type Counters struct {
	In  []config.InStats
	Out []config.OutStats
}

// Warnf is called when the decoded array length disagrees with the
// module's declared interface count — "shorter wins" per spec.md §4.5.
type Warnf func(format string, args ...interface{})

// Decode parses a scrape reply payload against a module's declared
// IN/OUT interface counts. A missing "in"/"out" key is only acceptable
// when the module declares zero interfaces of that direction; a
// missing required field inside any entry fails the whole decode.
func Decode(payload []byte, inCount, outCount int, warn Warnf) (Counters, error) {
	var root map[string]json.RawMessage
	if err := json.Unmarshal(payload, &root); err != nil {
		return Counters{}, fmt.Errorf("%w: %v", ErrRootNotObject, err)
	}

	var c Counters
	if raw, ok := root[`in`]; ok {
		entries, err := decodeRawEntries(raw, []string{`messages`, `buffers`})
		if err != nil {
			return Counters{}, err
		}
		entries = align(entries, inCount, `in`, warn)
		for _, e := range entries {
			c.In = append(c.In, config.InStats{RecvMsg: e[`messages`], RecvBuffer: e[`buffers`]})
		}
	} else if inCount > 0 {
		return Counters{}, ErrMissingIn
	}

	if raw, ok := root[`out`]; ok {
		entries, err := decodeRawEntries(raw, []string{`sent-messages`, `dropped-messages`, `buffers`, `autoflushes`})
		if err != nil {
			return Counters{}, err
		}
		entries = align(entries, outCount, `out`, warn)
		for _, e := range entries {
			c.Out = append(c.Out, config.OutStats{
				SentMsg:    e[`sent-messages`],
				DroppedMsg: e[`dropped-messages`],
				SentBuffer: e[`buffers`],
				Autoflush:  e[`autoflushes`],
			})
		}
	} else if outCount > 0 {
		return Counters{}, ErrMissingOut
	}
	return c, nil
}

// decodeRawEntries parses a JSON array of objects, failing the whole
// decode if any entry is missing one of the required keys.
func decodeRawEntries(raw json.RawMessage, required []string) ([]map[string]uint64, error) {
	var arr []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, fmt.Errorf("counter array malformed: %w", err)
	}
	out := make([]map[string]uint64, 0, len(arr))
	for _, elem := range arr {
		m := make(map[string]uint64, len(required))
		for _, key := range required {
			raw, ok := elem[key]
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrMissingKey, key)
			}
			var v uint64
			if err := json.Unmarshal(raw, &v); err != nil {
				return nil, fmt.Errorf("key %q not a number: %w", key, err)
			}
			m[key] = v
		}
		out = append(out, m)
	}
	return out, nil
}

// align truncates or warns when the decoded array length disagrees
// with the module's declared interface count, per spec.md §4.5:
// arrays are aligned positionally, the shorter length wins, and
// supernumerary entries are ignored.
func align(entries []map[string]uint64, want int, dir string, warn Warnf) []map[string]uint64 {
	if len(entries) == want {
		return entries
	}
	if warn != nil {
		warn("%s counter array length %d disagrees with declared interface count %d", dir, len(entries), want)
	}
	if len(entries) > want {
		return entries[:want]
	}
	return entries
}

// Encode re-serializes Counters into the same wire schema Decode
// consumes, preserving every field (used to verify the round-trip
// property R2).
func Encode(c Counters) ([]byte, error) {
	type inEntry struct {
		Messages uint64 `json:"messages"`
		Buffers  uint64 `json:"buffers"`
	}
	type outEntry struct {
		SentMessages    uint64 `json:"sent-messages"`
		DroppedMessages uint64 `json:"dropped-messages"`
		Buffers         uint64 `json:"buffers"`
		Autoflushes     uint64 `json:"autoflushes"`
	}
	doc := struct {
		In  []inEntry  `json:"in,omitempty"`
		Out []outEntry `json:"out,omitempty"`
	}{}
	for _, s := range c.In {
		doc.In = append(doc.In, inEntry{Messages: s.RecvMsg, Buffers: s.RecvBuffer})
	}
	for _, s := range c.Out {
		doc.Out = append(doc.Out, outEntry{
			SentMessages:    s.SentMsg,
			DroppedMessages: s.DroppedMsg,
			Buffers:         s.SentBuffer,
			Autoflushes:     s.Autoflush,
		})
	}
	return json.Marshal(doc)
}
