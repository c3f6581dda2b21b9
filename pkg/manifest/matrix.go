// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"
)

// Matrix is the `matrix:` block controlling build-matrix expansion.
type Matrix struct {
	Include       []MatrixEntry `yaml:"include,omitempty"`
	Exclude       []MatrixEntry `yaml:"exclude,omitempty"`
	AllowFailures []MatrixEntry `yaml:"allow_failures,omitempty"`
	FastFinish    bool          `yaml:"fast_finish,omitempty"`
}

// MatrixEntry names a point in the build matrix by its axis values.  An empty
// axis value matches any job (for Exclude and AllowFailures); for Include, an
// empty axis takes the manifest default.
type MatrixEntry struct {
	Python string `yaml:"python,omitempty"`
	Env    string `yaml:"env,omitempty"`
}

// Job is one expanded cell of the build matrix.
type Job struct {
	// Number is the job's position in the build, "1.1", "1.2", ...
	Number string
	// Python is the interpreter version axis value.
	Python string
	// Env is the job's matrix env row ("A=1 B=2"), if any.
	Env string
	// AllowFailure marks jobs whose failure does not fail the build.
	AllowFailure bool
}

// Jobs expands the build matrix into concrete jobs: the version axis crossed
// with the env job axis, minus matrix.exclude, plus matrix.include, with
// matrix.allow_failures applied.  Expansion is deterministic: the version axis
// varies slowest, includes come last.
func (m *Manifest) Jobs() ([]Job, error) {
	eff := m.Effective()

	envRows := eff.Env.Jobs
	if len(envRows) == 0 {
		envRows = StringList{""}
	}
	versions := eff.Python
	if len(versions) == 0 {
		versions = StringList{""}
	}

	var jobs []Job
	for _, version := range versions {
		for _, env := range envRows {
			job := Job{Python: version, Env: env}
			if eff.Matrix != nil && matchAny(eff.Matrix.Exclude, job) {
				continue
			}
			jobs = append(jobs, job)
		}
	}
	if eff.Matrix != nil {
		for _, inc := range eff.Matrix.Include {
			job := Job{Python: inc.Python, Env: inc.Env}
			if job.Python == "" {
				job.Python = versions[0]
			}
			jobs = append(jobs, job)
		}
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("build matrix is empty: every job is excluded")
	}
	for i := range jobs {
		jobs[i].Number = fmt.Sprintf("1.%d", i+1)
		if eff.Matrix != nil {
			jobs[i].AllowFailure = matchAny(eff.Matrix.AllowFailures, jobs[i])
		}
	}
	return jobs, nil
}

// FastFinish reports whether the first hard job failure should cancel the jobs
// still pending.
func (m *Manifest) FastFinish() bool {
	return m.Matrix != nil && m.Matrix.FastFinish
}

func matchAny(entries []MatrixEntry, job Job) bool {
	for _, e := range entries {
		if e.matches(job) {
			return true
		}
	}
	return false
}

func (e MatrixEntry) matches(job Job) bool {
	if e.Python == "" && e.Env == "" {
		return false
	}
	if e.Python != "" && e.Python != job.Python {
		return false
	}
	if e.Env != "" && e.Env != job.Env {
		return false
	}
	return true
}
