// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"
	"os"
	"sort"
)

// Severity classifies a lint problem.
type Severity int

const (
	// SeverityWarning problems are suspicious but don't make the manifest
	// unusable.
	SeverityWarning Severity = iota
	// SeverityError problems make the manifest invalid.
	SeverityError
)

// String implements fmt.Stringer.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return fmt.Sprintf("severity-%d", int(s))
	}
}

// Problem is one lint finding.
type Problem struct {
	Severity Severity
	// Path is a dotted path into the manifest ("deploy[1].on").
	Path string
	Msg  string
}

// String implements fmt.Stringer.
func (p Problem) String() string {
	return fmt.Sprintf("%s: %s: %s", p.Severity, p.Path, p.Msg)
}

// LintOptions adjusts Lint behavior.
type LintOptions struct {
	// Providers is the set of recognized deploy provider names.  When nil,
	// Lint only checks that a provider is named at all.
	Providers []string
}

// Lint checks a manifest for problems and returns all of them, errors and
// warnings alike, rather than stopping at the first.  A nil return means the
// manifest is clean.
func Lint(m *Manifest, opts LintOptions) []Problem {
	var ret []Problem
	report := func(sev Severity, path, format string, args ...interface{}) {
		ret = append(ret, Problem{Severity: sev, Path: path, Msg: fmt.Sprintf(format, args...)})
	}

	if m.Language != "" && m.Language != "python" {
		report(SeverityWarning, "language", "unsupported language %q; jobs will run on the host shell", m.Language)
	}
	if len(m.Script) == 0 {
		report(SeverityError, "script", "must contain at least one command")
	}
	for _, phase := range []struct {
		path string
		cmds CommandList
	}{
		{"before_install", m.BeforeInstall},
		{"install", m.Install},
		{"before_script", m.BeforeScript},
		{"script", m.Script},
		{"after_success", m.AfterSuccess},
		{"after_failure", m.AfterFailure},
		{"after_script", m.AfterScript},
		{"before_deploy", m.BeforeDeploy},
	} {
		for i, cmd := range phase.cmds {
			if cmd == "" {
				report(SeverityError, fmt.Sprintf("%s[%d]", phase.path, i), "command is empty")
			}
		}
	}

	for i, row := range m.Env.Global {
		if _, err := ParseEnvRow(row); err != nil {
			report(SeverityError, fmt.Sprintf("env.global[%d]", i), "%v", err)
		}
	}
	for i, row := range m.Env.Jobs {
		if _, err := ParseEnvRow(row); err != nil {
			report(SeverityError, fmt.Sprintf("env.jobs[%d]", i), "%v", err)
		}
	}

	if m.Matrix != nil {
		lintMatrixEntries(report, "matrix.exclude", m.Matrix.Exclude, m)
		lintMatrixEntries(report, "matrix.allow_failures", m.Matrix.AllowFailures, m)
	}

	for i, d := range m.Deploy {
		path := fmt.Sprintf("deploy[%d]", i)
		if d.Provider == "" {
			report(SeverityError, path+".provider", "provider is required")
		} else if len(opts.Providers) > 0 && !contains(opts.Providers, d.Provider) {
			known := append([]string(nil), opts.Providers...)
			sort.Strings(known)
			report(SeverityError, path+".provider", "unknown provider %q (known: %v)", d.Provider, known)
		}
		if d.On == nil {
			report(SeverityWarning, path+".on", "no condition; target deploys on every branch")
		} else {
			if d.On.Branch == "" && !d.On.AllBranches && !d.On.Tags {
				report(SeverityError, path+".on", "must name a branch, set all_branches, or gate on tags")
			}
			if d.On.Branch != "" && d.On.AllBranches {
				report(SeverityWarning, path+".on", "all_branches makes the branch name meaningless")
			}
			if d.On.Branch != "" {
				if _, err := matchPattern(d.On.Branch, ""); err != nil {
					report(SeverityError, path+".on.branch", "%v", err)
				}
			}
			if d.On.Condition != "" {
				if _, err := ParseConditionExpr(d.On.Condition); err != nil {
					report(SeverityError, path+".on.condition", "%v", err)
				}
			}
		}
		for _, sec := range []struct {
			path string
			val  Secret
		}{
			{path + ".github_token", d.GithubToken},
			{path + ".user", d.User},
			{path + ".password", d.Password},
		} {
			if name := sec.val.EnvRef(); name != "" {
				if _, ok := os.LookupEnv(name); !ok {
					report(SeverityWarning, sec.path, "references unset environment variable $%s", name)
				}
			}
		}
	}

	return ret
}

// HasErrors reports whether any problem in the list is an error.
func HasErrors(problems []Problem) bool {
	for _, p := range problems {
		if p.Severity >= SeverityError {
			return true
		}
	}
	return false
}

func lintMatrixEntries(
	report func(sev Severity, path, format string, args ...interface{}),
	path string,
	entries []MatrixEntry,
	m *Manifest,
) {
	eff := m.Effective()
	for i, e := range entries {
		entryPath := fmt.Sprintf("%s[%d]", path, i)
		if e.Python == "" && e.Env == "" {
			report(SeverityError, entryPath, "empty entry matches nothing")
			continue
		}
		if e.Python != "" && !contains(eff.Python, e.Python) {
			report(SeverityWarning, entryPath+".python", "%q is not a declared version", e.Python)
		}
		if e.Env != "" && !contains(eff.Env.Jobs, e.Env) {
			report(SeverityWarning, entryPath+".env", "%q is not a declared env row", e.Env)
		}
	}
}

func contains(haystack []string, needle string) bool {
	for _, straw := range haystack {
		if straw == needle {
			return true
		}
	}
	return false
}
