/*************************************************************************
 * Copyright 2017 Gravwell, Inc. All rights reserved.
 * Contact: <legal@gravwell.io>
 *
 * This software may be modified and distributed under the terms of the
 * BSD 2-clause license. See the LICENSE file for details.
 **************************************************************************/

package launcher

import (
	"strings"

	"github.com/zidekmat/nemea-supervisor/config"
)

// BuildArgv assembles the child argument vector for a module: its own
// name as argv[0] (process-title convention, not the executable
// path), the tokenized params string, and — if the module declares
// any interfaces — a trailing "-i <specifier>" pair.
func BuildArgv(m *config.Module) ([]string, error) {
	argv := []string{m.Name}

	if strings.TrimSpace(m.Params) != `` {
		toks, err := Tokenize(m.Params)
		if err != nil {
			return nil, err
		}
		argv = append(argv, toks...)
	}

	if len(m.Interfaces) > 0 {
		argv = append(argv, `-i`, interfaceSpecifier(m.Interfaces))
	}
	return argv, nil
}

// interfaceSpecifier builds the single comma-separated wire string
// "<typechar>:<params>,..." in the order the interfaces are declared
// (config.Build already orders IN ahead of OUT, per invariant I-2).
func interfaceSpecifier(ifaces []config.Interface) string {
	var sb strings.Builder
	for _, iface := range ifaces {
		sb.WriteByte(iface.Type.TypeChar())
		sb.WriteByte(':')
		sb.WriteString(rewriteLegacyAddrPort(iface.Params))
		sb.WriteByte(',')
	}
	return strings.TrimSuffix(sb.String(), `,`)
}

// rewriteLegacyAddrPort turns a legacy "address,port" pair into
// "address:port"; params already containing a colon are left alone.
func rewriteLegacyAddrPort(params string) string {
	if strings.Contains(params, `:`) {
		return params
	}
	if idx := strings.IndexByte(params, ','); idx >= 0 {
		return params[:idx] + `:` + params[idx+1:]
	}
	return params
}
