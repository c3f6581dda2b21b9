// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"
	"strings"
)

// EnvVar is one NAME=VALUE assignment from an env row.
type EnvVar struct {
	Name  string
	Value string
}

// ParseEnvRow splits an env row like `A=1 B="two words" C=` into its ordered
// assignments.  Values may be single- or double-quoted; there is no escaping
// inside quotes, matching how the hosted runners splat these rows into the
// shell.
func ParseEnvRow(row string) ([]EnvVar, error) {
	var ret []EnvVar
	rest := strings.TrimSpace(row)
	for rest != "" {
		eq := strings.IndexByte(rest, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("env row %q: expected NAME=VALUE at %q", row, rest)
		}
		name := rest[:eq]
		if strings.ContainsAny(name, " \t") {
			return nil, fmt.Errorf("env row %q: variable name %q contains whitespace", row, name)
		}
		rest = rest[eq+1:]

		var value string
		if rest != "" && (rest[0] == '"' || rest[0] == '\'') {
			quote := rest[0]
			end := strings.IndexByte(rest[1:], quote)
			if end < 0 {
				return nil, fmt.Errorf("env row %q: unterminated quote", row)
			}
			value = rest[1 : 1+end]
			rest = rest[end+2:]
			if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
				return nil, fmt.Errorf("env row %q: junk after closing quote", row)
			}
		} else {
			end := strings.IndexAny(rest, " \t")
			if end < 0 {
				end = len(rest)
			}
			value = rest[:end]
			rest = rest[end:]
		}
		ret = append(ret, EnvVar{Name: name, Value: value})
		rest = strings.TrimLeft(rest, " \t")
	}
	return ret, nil
}

// EnvRowStrings renders parsed assignments back to NAME=VALUE strings, for
// handing to a process environment.
func EnvRowStrings(vars []EnvVar) []string {
	ret := make([]string, 0, len(vars))
	for _, v := range vars {
		ret = append(ret, v.Name+"="+v.Value)
	}
	return ret
}
