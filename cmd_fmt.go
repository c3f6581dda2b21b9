// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"os"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/spf13/cobra"

	"github.com/datawire/civet/pkg/cliutil"
	"github.com/datawire/civet/pkg/manifest"
)

func init() {
	var (
		write    bool
		showDiff bool
	)
	cmd := &cobra.Command{
		Use:   "fmt [flags] MANIFEST_FILE",
		Short: "Rewrite a manifest in canonical form",
		Long: "Parse a manifest file and re-serialize it canonically: phases in " +
			"their run order, scalar shorthands expanded to lists, consistent " +
			"indentation.  Formatting is idempotent: formatting an " +
			"already-canonical file is a no-op." +
			"\n\n" +
			"By default the canonical form goes to stdout; --write replaces the " +
			"file in place, and --diff prints a unified diff and exits non-zero " +
			"if the file is not canonical.",
		Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(flags *cobra.Command, args []string) error {
			filename := args[0]
			original, err := os.ReadFile(filename)
			if err != nil {
				return err
			}
			m, err := manifest.Parse(original)
			if err != nil {
				return fmt.Errorf("%s: %w", filename, err)
			}
			canonical, err := m.Encode()
			if err != nil {
				return err
			}
			switch {
			case showDiff:
				if string(original) == string(canonical) {
					return nil
				}
				diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
					A:        difflib.SplitLines(string(original)),
					B:        difflib.SplitLines(string(canonical)),
					FromFile: filename,
					ToFile:   filename + " (canonical)",
					Context:  3,
				})
				if err != nil {
					return err
				}
				fmt.Fprint(flags.OutOrStdout(), diff)
				return fmt.Errorf("%s is not canonical", filename)
			case write:
				if string(original) == string(canonical) {
					return nil
				}
				return os.WriteFile(filename, canonical, 0o666)
			default:
				_, err := flags.OutOrStdout().Write(canonical)
				return err
			}
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "Rewrite the file in place")
	cmd.Flags().BoolVarP(&showDiff, "diff", "d", false, "Print a diff instead of the canonical form")
	argparser.AddCommand(cmd)
}
