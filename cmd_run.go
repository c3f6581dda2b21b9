// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/datawire/civet/pkg/cliutil"
	"github.com/datawire/civet/pkg/deploy"
	"github.com/datawire/civet/pkg/manifest"
	"github.com/datawire/civet/pkg/runner"
)

func init() {
	var (
		jobNumber string
		branch    string
		tag       string
		repoSlug  string
		doDeploy  bool
		keyFile   string
	)
	cmd := &cobra.Command{
		Use:   "run [flags] MANIFEST_FILE",
		Short: "Run a manifest's pipeline locally",
		Long: "Expand the manifest's build matrix and run it on the local host: " +
			"for each job, the phases run strictly in order through the shell, " +
			"and any non-zero exit in a setup or script phase ends the job with " +
			"the same semantics as the hosted platform (errored vs failed).  " +
			"after_success / after_failure / after_script run as appropriate but " +
			"never change the result." +
			"\n\n" +
			"Tool defaults (shell, timeouts, parallelism) come from CIVET_* " +
			"environment variables." +
			"\n\n" +
			"With --deploy, a passing build goes on to evaluate the deploy " +
			"targets the way `civet deploy` does.",
		Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(flags *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			cfg, err := runner.ConfigFromEnv()
			if err != nil {
				return err
			}
			bc := manifest.BuildContext{
				Branch:   branch,
				Tag:      tag,
				RepoSlug: repoSlug,
			}

			if ok, err := m.Branches.Allows(branch); err != nil {
				return err
			} else if !ok {
				return fmt.Errorf("branch %q is excluded by the manifest's `branches` filter", branch)
			}

			run := &runner.Runner{
				Manifest: m,
				Build:    bc,
				Config:   cfg,
				Dir:      filepath.Dir(args[0]),
			}
			ctx := flags.Context()

			result, err := runBuild(ctx, run, jobNumber)
			if err != nil {
				return err
			}
			for _, job := range result.Jobs {
				fmt.Fprintf(flags.OutOrStdout(), "job %-4s %s\n", job.Job.Number, job.State)
			}
			state := result.State()
			fmt.Fprintf(flags.OutOrStdout(), "build %s\n", state)
			if state != runner.StatePassed {
				return fmt.Errorf("build %s", state)
			}

			if doDeploy {
				dec, err := loadDecrypter(keyFile)
				if err != nil {
					return err
				}
				jobs, err := m.Jobs()
				if err != nil {
					return err
				}
				return deploy.Run(ctx, m, deploy.Options{
					Build: bc,
					Dir:   run.Dir,
					BeforeDeploy: func(ctx context.Context) error {
						return run.RunBeforeDeploy(ctx, jobs[0])
					},
					Decrypter: dec,
				})
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jobNumber, "job", "", "Run only the job with this `number` (as shown by inspect --jobs)")
	cmd.Flags().StringVar(&branch, "branch", "master", "Branch `name` the build is for")
	cmd.Flags().StringVar(&tag, "tag", "", "Tag `name` the build is for, if any")
	cmd.Flags().StringVar(&repoSlug, "repo", "", "Repository `slug` (owner/name)")
	cmd.Flags().BoolVar(&doDeploy, "deploy", false, "Evaluate deploy targets after a passing build")
	cmd.Flags().StringVar(&keyFile, "key-file", "", "PEM `file` with the repo private key, for `secure:` values")
	argparser.AddCommand(cmd)
}

func runBuild(ctx context.Context, run *runner.Runner, jobNumber string) (*runner.BuildResult, error) {
	if jobNumber == "" {
		return run.RunBuild(ctx)
	}
	jobs, err := run.Manifest.Jobs()
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		if job.Number == jobNumber {
			return &runner.BuildResult{Jobs: []*runner.JobResult{run.RunJob(ctx, job)}}, nil
		}
	}
	return nil, fmt.Errorf("no job numbered %q in the build matrix", jobNumber)
}
