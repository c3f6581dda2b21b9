// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datawire/civet/pkg/cliutil"
	"github.com/datawire/civet/pkg/deploy"
	"github.com/datawire/civet/pkg/manifest"
)

func init() {
	cmd := &cobra.Command{
		Use:   "lint MANIFEST_FILE",
		Short: "Check a manifest for problems",
		Long: "Parse a manifest file and report every problem found, both errors " +
			"(the manifest is unusable) and warnings (the manifest is suspicious).  " +
			"The exit status is non-zero iff there is at least one error.",
		Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(flags *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			problems := manifest.Lint(m, manifest.LintOptions{
				Providers: deploy.Names(),
			})
			for _, problem := range problems {
				fmt.Fprintf(flags.OutOrStdout(), "%s: %s\n", args[0], problem)
			}
			if manifest.HasErrors(problems) {
				return fmt.Errorf("%s has lint errors", args[0])
			}
			return nil
		},
	}
	argparser.AddCommand(cmd)
}
