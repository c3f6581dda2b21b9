// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"time"

	"github.com/datawire/civet/pkg/manifest"
)

// Phase names one of the fixed pipeline phases, in their fixed order.
type Phase string

const (
	PhaseBeforeInstall Phase = "before_install"
	PhaseInstall       Phase = "install"
	PhaseBeforeScript  Phase = "before_script"
	PhaseScript        Phase = "script"
	PhaseAfterSuccess  Phase = "after_success"
	PhaseAfterFailure  Phase = "after_failure"
	PhaseAfterScript   Phase = "after_script"
	PhaseBeforeDeploy  Phase = "before_deploy"
)

// State is the outcome of a job or of a whole build.
type State string

const (
	// StatePassed means every command exited zero (ignoring the after_*
	// phases, whose exit codes never change the result).
	StatePassed State = "passed"
	// StateFailed means a `script` command exited non-zero.
	StateFailed State = "failed"
	// StateErrored means a setup phase (before_install, install,
	// before_script) exited non-zero, or the job could not be started.
	StateErrored State = "errored"
	// StateCanceled means the job was canceled before or while running,
	// e.g. by fast_finish after another job's hard failure.
	StateCanceled State = "canceled"
)

// CommandResult records one executed command.
type CommandResult struct {
	Phase    Phase
	Command  string
	ExitCode int
	Duration time.Duration
}

// JobResult records one finished (or canceled) matrix job.
type JobResult struct {
	Job   manifest.Job
	Image string
	State State
	// Message explains StateErrored results that are not a command failure
	// (bad env row, timeout setting, ...).
	Message  string
	Commands []CommandResult
}

// Passed reports whether the job passed.
func (r *JobResult) Passed() bool { return r.State == StatePassed }

// BuildResult aggregates a whole matrix run.
type BuildResult struct {
	Jobs []*JobResult
}

// State folds the job states into a build state, applying allow_failures: a
// job marked AllowFailure never makes the build worse than passed.  Errored
// wins over failed, failed over canceled, canceled over passed.
func (r *BuildResult) State() State {
	ret := StatePassed
	worsen := func(s State) {
		rank := map[State]int{StatePassed: 0, StateCanceled: 1, StateFailed: 2, StateErrored: 3}
		if rank[s] > rank[ret] {
			ret = s
		}
	}
	for _, job := range r.Jobs {
		if job.Job.AllowFailure {
			continue
		}
		worsen(job.State)
	}
	return ret
}

// Passed reports whether the build as a whole passed.
func (r *BuildResult) Passed() bool { return r.State() == StatePassed }
