// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/datawire/civet/pkg/cliutil"
	"github.com/datawire/civet/pkg/manifest"
	"github.com/datawire/civet/pkg/runner"
)

func init() {
	var (
		format   string
		showJobs bool
	)
	cmd := &cobra.Command{
		Use:   "inspect [flags] MANIFEST_FILE",
		Short: "Show a parsed manifest, with defaults applied",
		Long: "Parse a manifest file, apply the language defaults, and dump the " +
			"result.  With --jobs, instead show the expanded build matrix: one " +
			"line per job with its number, interpreter version, env row, and " +
			"build image.",
		Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(flags *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}

			if showJobs {
				jobs, err := m.Jobs()
				if err != nil {
					return err
				}
				table := tabwriter.NewWriter(flags.OutOrStdout(), 0, 8, 2, ' ', 0)
				fmt.Fprintln(table, "JOB\tPYTHON\tENV\tIMAGE\tALLOW_FAILURE")
				language := m.Effective().Language
				for _, job := range jobs {
					img, err := runner.ImageForJob(language, job)
					if err != nil {
						return err
					}
					fmt.Fprintf(table, "%s\t%s\t%s\t%s\t%v\n",
						job.Number, job.Python, job.Env, img, job.AllowFailure)
				}
				return table.Flush()
			}

			eff := m.Effective()
			switch format {
			case "yaml":
				out, err := eff.Encode()
				if err != nil {
					return err
				}
				_, err = flags.OutOrStdout().Write(out)
				return err
			case "json":
				// Round-trip through the YAML codec so the custom manifest
				// marshalers apply, then convert.
				raw, err := eff.Encode()
				if err != nil {
					return err
				}
				out, err := yaml.YAMLToJSON(raw)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(flags.OutOrStdout(), "%s\n", out)
				return err
			default:
				return cliutil.FlagErrorFunc(flags, fmt.Errorf("invalid --format=%q", format))
			}
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "Output `format`: yaml or json")
	cmd.Flags().BoolVar(&showJobs, "jobs", false, "Show the expanded build matrix instead")
	argparser.AddCommand(cmd)
}
