// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package runner deals with executing a manifest's pipeline locally: each
// matrix job is the fixed phase sequence run strictly in order through the
// shell, with the failure semantics of the hosted platform the manifest format
// comes from.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/datawire/civet/pkg/manifest"
)

// Runner executes jobs of one manifest.
type Runner struct {
	Manifest *manifest.Manifest
	Build    manifest.BuildContext
	Config   Config

	// Dir is the working directory for phase commands; empty means the
	// process working directory.
	Dir string
	// Output receives command stdout+stderr; nil means os.Stdout.
	Output io.Writer
}

func (r *Runner) output() io.Writer {
	if r.Output != nil {
		return r.Output
	}
	return os.Stdout
}

// errJobFailed is returned by matrix workers under fast_finish to cancel the
// jobs still pending; it never escapes RunBuild.
var errJobFailed = errors.New("job failed")

// RunBuild expands the matrix and runs every job, honoring the configured
// parallelism and matrix.fast_finish.  A non-nil error means the build could
// not be run at all; job failures are reported in the BuildResult instead.
func (r *Runner) RunBuild(ctx context.Context) (*BuildResult, error) {
	jobs, err := r.Manifest.Jobs()
	if err != nil {
		return nil, err
	}

	parallel := r.Config.Parallel
	if parallel < 1 {
		// A zero-value Config would otherwise make sem unbuffered and every
		// worker block on it forever.
		parallel = 1
	}

	results := make([]*JobResult, len(jobs))
	sem := make(chan struct{}, parallel)
	fastFinish := r.Manifest.FastFinish()

	grp := dgroup.NewGroup(ctx, dgroup.GroupConfig{})
	for i := range jobs {
		i := i
		job := jobs[i]
		grp.Go("job-"+job.Number, func(ctx context.Context) error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results[i] = &JobResult{Job: job, State: StateCanceled}
				return nil
			}
			results[i] = r.RunJob(ctx, job)
			if fastFinish && !job.AllowFailure {
				switch results[i].State {
				case StateFailed, StateErrored:
					return fmt.Errorf("%s: %w", job.Number, errJobFailed)
				}
			}
			return nil
		})
	}
	// Under fast_finish the group's error is just the cancellation signal;
	// every worker still records its result.  A missing result means a worker
	// died for some other reason, and that error is real.
	waitErr := grp.Wait()
	for i := range results {
		if results[i] == nil {
			if waitErr != nil {
				return nil, waitErr
			}
			results[i] = &JobResult{Job: jobs[i], State: StateCanceled}
		}
	}

	return &BuildResult{Jobs: results}, nil
}

// RunJob runs one matrix job.  All failure modes are encoded in the result;
// RunJob itself does not fail.
func (r *Runner) RunJob(ctx context.Context, job manifest.Job) *JobResult {
	ret := &JobResult{Job: job}

	eff := r.Manifest.Effective()
	if img, err := ImageForJob(eff.Language, job); err == nil {
		ret.Image = img
	}

	if ctx.Err() != nil {
		ret.State = StateCanceled
		return ret
	}
	if r.Config.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Config.JobTimeout)
		defer cancel()
	}

	env, err := r.jobEnv(eff, job)
	if err != nil {
		ret.State = StateErrored
		ret.Message = err.Error()
		return ret
	}

	dlog.Infof(ctx, "job %s: python=%s env=%q", job.Number, job.Python, job.Env)

	// Setup phases: a non-zero exit errors the job immediately.
	for _, phase := range []struct {
		name Phase
		cmds manifest.CommandList
	}{
		{PhaseBeforeInstall, eff.BeforeInstall},
		{PhaseInstall, eff.Install},
		{PhaseBeforeScript, eff.BeforeScript},
	} {
		if !r.runPhase(ctx, ret, env, phase.name, phase.cmds) {
			ret.State = StateErrored
			if ctx.Err() != nil {
				ret.State = StateCanceled
			}
			r.finishJob(ctx, ret, env, eff)
			return ret
		}
	}

	// The script phase: a non-zero exit fails the job immediately.
	switch {
	case r.runPhase(ctx, ret, env, PhaseScript, eff.Script):
		ret.State = StatePassed
	case ctx.Err() != nil:
		ret.State = StateCanceled
	default:
		ret.State = StateFailed
	}
	r.finishJob(ctx, ret, env, eff)
	return ret
}

// finishJob runs the after_* phases appropriate for the job's state.  Their
// exit codes are recorded but never change the state.
func (r *Runner) finishJob(ctx context.Context, ret *JobResult, env []string, eff *manifest.Manifest) {
	if ctx.Err() != nil {
		if ret.State == StatePassed {
			ret.State = StateCanceled
		}
		return
	}
	switch ret.State {
	case StatePassed:
		r.runPhase(ctx, ret, env, PhaseAfterSuccess, eff.AfterSuccess)
	case StateFailed:
		r.runPhase(ctx, ret, env, PhaseAfterFailure, eff.AfterFailure)
	}
	r.runPhase(ctx, ret, env, PhaseAfterScript, eff.AfterScript)
}

// RunBeforeDeploy runs the before_deploy phase.  It is separate from RunJob
// because it only runs when at least one deploy target is about to fire.
func (r *Runner) RunBeforeDeploy(ctx context.Context, job manifest.Job) error {
	eff := r.Manifest.Effective()
	if len(eff.BeforeDeploy) == 0 {
		return nil
	}
	env, err := r.jobEnv(eff, job)
	if err != nil {
		return err
	}
	var scratch JobResult
	if !r.runPhase(ctx, &scratch, env, PhaseBeforeDeploy, eff.BeforeDeploy) {
		// runPhase can give up before running anything when the context is
		// already done.
		if len(scratch.Commands) == 0 {
			return fmt.Errorf("before_deploy: %w", ctx.Err())
		}
		last := scratch.Commands[len(scratch.Commands)-1]
		return fmt.Errorf("before_deploy: %q exited %d", last.Command, last.ExitCode)
	}
	return nil
}

// runPhase runs a phase's commands in order, stopping at the first non-zero
// exit.  It reports whether the whole phase passed.
func (r *Runner) runPhase(
	ctx context.Context,
	ret *JobResult,
	env []string,
	phase Phase,
	cmds manifest.CommandList,
) bool {
	for _, command := range cmds {
		if ctx.Err() != nil {
			return false
		}
		dlog.Infof(ctx, "job %s: %s: $ %s", ret.Job.Number, phase, command)
		res := r.runCommand(ctx, env, command)
		res.Phase = phase
		ret.Commands = append(ret.Commands, res)
		if res.ExitCode != 0 {
			dlog.Errorf(ctx, "job %s: %s: %q exited %d",
				ret.Job.Number, phase, command, res.ExitCode)
			return false
		}
	}
	return true
}

func (r *Runner) runCommand(ctx context.Context, env []string, command string) CommandResult {
	ret := CommandResult{Command: command}

	if r.Config.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Config.CommandTimeout)
		defer cancel()
	}

	shell := r.Config.Shell
	if shell == "" {
		shell = "sh"
	}
	cmd := dexec.CommandContext(ctx, shell, "-c", command)
	cmd.Dir = r.Dir
	cmd.Env = env
	cmd.Stdout = r.output()
	cmd.Stderr = r.output()
	cmd.DisableLogging = true // the phase logging above is enough

	start := time.Now()
	err := cmd.Run()
	ret.Duration = time.Since(start)

	if err != nil {
		var exitErr *dexec.ExitError
		if errors.As(err, &exitErr) {
			ret.ExitCode = exitErr.ExitCode()
		} else {
			// Couldn't even start the shell; treat as exit 127.
			dlog.Errorf(ctx, "%v", err)
			ret.ExitCode = 127
		}
	}
	return ret
}

// jobEnv assembles the process environment for a job: the host environment,
// the well-known build variables, then the manifest's global rows and the
// job's matrix row, in that order, so that later assignments win.
func (r *Runner) jobEnv(eff *manifest.Manifest, job manifest.Job) ([]string, error) {
	env := os.Environ()
	env = append(env,
		"CI=true",
		"CONTINUOUS_INTEGRATION=true",
		"CIVET=true",
		"CIVET_BRANCH="+r.Build.Branch,
		"CIVET_TAG="+r.Build.Tag,
		"CIVET_REPO_SLUG="+r.Build.RepoSlug,
		"CIVET_JOB_NUMBER="+job.Number,
		"CIVET_PYTHON_VERSION="+job.Python,
	)
	for key, val := range r.Build.Env {
		env = append(env, key+"="+val)
	}
	for _, row := range eff.Env.Global {
		vars, err := manifest.ParseEnvRow(row)
		if err != nil {
			return nil, err
		}
		env = append(env, manifest.EnvRowStrings(vars)...)
	}
	if job.Env != "" {
		vars, err := manifest.ParseEnvRow(job.Env)
		if err != nil {
			return nil, err
		}
		env = append(env, manifest.EnvRowStrings(vars)...)
	}
	return env, nil
}
