// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package runner_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/civet/pkg/manifest"
	"github.com/datawire/civet/pkg/runner"
)

func testConfig() runner.Config {
	return runner.Config{
		Shell:          "sh",
		CommandTimeout: time.Minute,
		JobTimeout:     5 * time.Minute,
		Parallel:       1,
	}
}

func parseManifest(t *testing.T, src string) *manifest.Manifest {
	t.Helper()
	m, err := manifest.Parse([]byte(src))
	require.NoError(t, err)
	return m
}

func phases(commands []runner.CommandResult) []runner.Phase {
	ret := make([]runner.Phase, 0, len(commands))
	for _, cmd := range commands {
		ret = append(ret, cmd.Phase)
	}
	return ret
}

func TestRunJobStates(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		input     string
		expState  runner.State
		expPhases []runner.Phase
	}{
		"passed": {
			input:     "install: true\nscript: true\nafter_success: true\nafter_script: true\n",
			expState:  runner.StatePassed,
			expPhases: []runner.Phase{
				runner.PhaseInstall,
				runner.PhaseScript,
				runner.PhaseAfterSuccess,
				runner.PhaseAfterScript,
			},
		},
		"script-failure-fails": {
			input:     "install: true\nscript:\n  - exit 3\n  - true\nafter_failure: true\n",
			expState:  runner.StateFailed,
			expPhases: []runner.Phase{
				runner.PhaseInstall,
				runner.PhaseScript,
				runner.PhaseAfterFailure,
			},
		},
		"install-failure-errors": {
			input:     "install: false\nscript: true\nafter_success: true\nafter_script: true\n",
			expState:  runner.StateErrored,
			expPhases: []runner.Phase{
				runner.PhaseInstall,
				runner.PhaseAfterScript,
			},
		},
		"before-install-failure-errors": {
			input:     "before_install: false\ninstall: true\nscript: true\n",
			expState:  runner.StateErrored,
			expPhases: []runner.Phase{
				runner.PhaseBeforeInstall,
			},
		},
		"after-phase-exit-codes-ignored": {
			input:     "install: true\nscript: true\nafter_success: false\nafter_script: false\n",
			expState:  runner.StatePassed,
			expPhases: []runner.Phase{
				runner.PhaseInstall,
				runner.PhaseScript,
				runner.PhaseAfterSuccess,
				runner.PhaseAfterScript,
			},
		},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			run := &runner.Runner{
				Manifest: parseManifest(t, tc.input),
				Config:   testConfig(),
				Dir:      t.TempDir(),
				Output:   new(bytes.Buffer),
			}
			jobs, err := run.Manifest.Jobs()
			require.NoError(t, err)
			require.Len(t, jobs, 1)

			res := run.RunJob(context.Background(), jobs[0])
			assert.Equal(t, tc.expState, res.State)
			assert.Equal(t, tc.expPhases, phases(res.Commands))
		})
	}
}

func TestRunJobStopsAtFirstFailure(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	run := &runner.Runner{
		Manifest: parseManifest(t, "script:\n  - echo one\n  - exit 1\n  - echo never\n"),
		Config:   testConfig(),
		Dir:      t.TempDir(),
		Output:   &out,
	}
	jobs, err := run.Manifest.Jobs()
	require.NoError(t, err)

	res := run.RunJob(context.Background(), jobs[0])
	assert.Equal(t, runner.StateFailed, res.State)
	assert.Contains(t, out.String(), "one")
	assert.NotContains(t, out.String(), "never")

	require.Len(t, res.Commands, 2)
	assert.Equal(t, 0, res.Commands[0].ExitCode)
	assert.Equal(t, 1, res.Commands[1].ExitCode)
}

func TestRunJobEnv(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	run := &runner.Runner{
		Manifest: parseManifest(t, `python: ["3.7"]
env:
  global:
    - GREETING=hello
script: echo "$GREETING $CIVET_BRANCH $CIVET_PYTHON_VERSION job=$CIVET_JOB_NUMBER ci=$CI"
`),
		Build:  manifest.BuildContext{Branch: "master", RepoSlug: "tpoveda/tpDcc"},
		Config: testConfig(),
		Dir:    t.TempDir(),
		Output: &out,
	}
	jobs, err := run.Manifest.Jobs()
	require.NoError(t, err)

	res := run.RunJob(context.Background(), jobs[0])
	require.Equal(t, runner.StatePassed, res.State)
	assert.Equal(t, "hello master 3.7 job=1.1 ci=true", strings.TrimSpace(out.String()))
}

func TestRunJobMatrixEnvWins(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	run := &runner.Runner{
		Manifest: parseManifest(t, `env:
  global:
    - A=global
  jobs:
    - A=row
script: echo "$A"
`),
		Config: testConfig(),
		Dir:    t.TempDir(),
		Output: &out,
	}
	jobs, err := run.Manifest.Jobs()
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	res := run.RunJob(context.Background(), jobs[0])
	require.Equal(t, runner.StatePassed, res.State)
	assert.Equal(t, "row", strings.TrimSpace(out.String()))
}

func TestRunBuildMatrix(t *testing.T) {
	t.Parallel()
	run := &runner.Runner{
		Manifest: parseManifest(t, `python: ["3.6", "3.7"]
script: test "$CIVET_PYTHON_VERSION" = "3.6"
matrix:
  allow_failures:
    - python: "3.7"
`),
		Config: testConfig(),
		Dir:    t.TempDir(),
		Output: new(bytes.Buffer),
	}

	result, err := run.RunBuild(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Jobs, 2)
	assert.Equal(t, runner.StatePassed, result.Jobs[0].State)
	assert.Equal(t, runner.StateFailed, result.Jobs[1].State)

	// The 3.7 failure is allowed, so the build as a whole passes.
	assert.Equal(t, runner.StatePassed, result.State())
	assert.True(t, result.Passed())
}

func TestRunBuildFastFinish(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.Parallel = 2
	run := &runner.Runner{
		Manifest: parseManifest(t, `python: ["3.6", "3.7"]
script: if test "$CIVET_PYTHON_VERSION" = "3.6"; then exit 1; else sleep 30; fi
matrix:
  fast_finish: true
`),
		Config: cfg,
		Dir:    t.TempDir(),
		Output: new(bytes.Buffer),
	}

	start := time.Now()
	result, err := run.RunBuild(context.Background())
	require.NoError(t, err)
	// The 3.6 failure cancels the 3.7 job instead of waiting out its sleep.
	assert.Less(t, time.Since(start), 10*time.Second)

	require.Len(t, result.Jobs, 2)
	assert.Equal(t, runner.StateFailed, result.Jobs[0].State)
	assert.Equal(t, runner.StateCanceled, result.Jobs[1].State)
	assert.Equal(t, runner.StateFailed, result.State())
}

func TestRunBuildZeroConfig(t *testing.T) {
	t.Parallel()
	run := &runner.Runner{
		Manifest: parseManifest(t, "python: [\"3.6\", \"3.7\"]\nscript: \"true\"\n"),
		Dir:      t.TempDir(),
		Output:   new(bytes.Buffer),
	}

	result, err := run.RunBuild(context.Background())
	require.NoError(t, err)
	require.Len(t, result.Jobs, 2)
	assert.True(t, result.Passed())
}

func TestBuildResultState(t *testing.T) {
	t.Parallel()
	job := func(state runner.State, allowFailure bool) *runner.JobResult {
		return &runner.JobResult{
			Job:   manifest.Job{AllowFailure: allowFailure},
			State: state,
		}
	}
	testcases := map[string]struct {
		jobs []*runner.JobResult
		exp  runner.State
	}{
		"all-passed": {
			jobs: []*runner.JobResult{job(runner.StatePassed, false)},
			exp:  runner.StatePassed,
		},
		"errored-beats-failed": {
			jobs: []*runner.JobResult{job(runner.StateFailed, false), job(runner.StateErrored, false)},
			exp:  runner.StateErrored,
		},
		"canceled-job": {
			jobs: []*runner.JobResult{job(runner.StatePassed, false), job(runner.StateCanceled, false)},
			exp:  runner.StateCanceled,
		},
		"allowed-failure-ignored": {
			jobs: []*runner.JobResult{job(runner.StatePassed, false), job(runner.StateFailed, true)},
			exp:  runner.StatePassed,
		},
		"allowed-canceled-ignored": {
			jobs: []*runner.JobResult{job(runner.StatePassed, false), job(runner.StateCanceled, true)},
			exp:  runner.StatePassed,
		},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			result := &runner.BuildResult{Jobs: tc.jobs}
			assert.Equal(t, tc.exp, result.State())
		})
	}
}

func TestRunBeforeDeployCanceled(t *testing.T) {
	t.Parallel()
	run := &runner.Runner{
		Manifest: parseManifest(t, "script: make\nbefore_deploy: echo never\n"),
		Config:   testConfig(),
		Dir:      t.TempDir(),
		Output:   new(bytes.Buffer),
	}
	jobs, err := run.Manifest.Jobs()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = run.RunBeforeDeploy(ctx, jobs[0])
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before_deploy")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunBuildHardFailure(t *testing.T) {
	t.Parallel()
	run := &runner.Runner{
		Manifest: parseManifest(t, "python: [\"3.6\", \"3.7\"]\nscript: \"false\"\n"),
		Config:   testConfig(),
		Dir:      t.TempDir(),
		Output:   new(bytes.Buffer),
	}

	result, err := run.RunBuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, runner.StateFailed, result.State())
}

func TestRunJobCommandTimeout(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.CommandTimeout = 100 * time.Millisecond
	run := &runner.Runner{
		Manifest: parseManifest(t, "script: sleep 30\n"),
		Config:   cfg,
		Dir:      t.TempDir(),
		Output:   new(bytes.Buffer),
	}
	jobs, err := run.Manifest.Jobs()
	require.NoError(t, err)

	start := time.Now()
	res := run.RunJob(context.Background(), jobs[0])
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, runner.StateFailed, res.State)
}

func TestImageForJob(t *testing.T) {
	t.Parallel()
	testcases := map[string]struct {
		language string
		job      manifest.Job
		exp      string
	}{
		"python":  {"python", manifest.Job{Python: "3.6"}, "index.docker.io/library/python:3.6"},
		"default": {"python", manifest.Job{}, "index.docker.io/library/python:" + manifest.DefaultPythonVersion},
		"pypy":    {"python", manifest.Job{Python: "pypy3.5-6.0"}, "index.docker.io/library/pypy:3.5-6.0"},
	}
	for tcName, tc := range testcases {
		tc := tc
		t.Run(tcName, func(t *testing.T) {
			t.Parallel()
			img, err := runner.ImageForJob(tc.language, tc.job)
			require.NoError(t, err)
			assert.Equal(t, tc.exp, img)
		})
	}
}

func TestConfigFromEnv(t *testing.T) {
	cfg, err := runner.ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "sh", cfg.Shell)
	assert.Equal(t, 10*time.Minute, cfg.CommandTimeout)
	assert.GreaterOrEqual(t, cfg.Parallel, 1)
}
