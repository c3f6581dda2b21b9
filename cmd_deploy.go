// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/datawire/civet/pkg/cliutil"
	"github.com/datawire/civet/pkg/deploy"
	"github.com/datawire/civet/pkg/manifest"
	"github.com/datawire/civet/pkg/secret"
)

func init() {
	var (
		branch   string
		tag      string
		repoSlug string
		dryRun   bool
		keyFile  string
	)
	cmd := &cobra.Command{
		Use:   "deploy [flags] MANIFEST_FILE",
		Short: "Evaluate and run a manifest's deploy targets",
		Long: "Evaluate each deploy target descriptor against the given build " +
			"facts, independently and in order: targets whose `on:` condition " +
			"does not match are skipped with a logged reason, the rest are " +
			"handed to their provider (" + strings.Join(deploy.Names(), ", ") + ").  " +
			"A failing target does not stop the remaining ones." +
			"\n\n" +
			"This assumes the build already passed; it is the deploy half of " +
			"`civet run --deploy`.",
		Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(flags *cobra.Command, args []string) error {
			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			dec, err := loadDecrypter(keyFile)
			if err != nil {
				return err
			}
			return deploy.Run(flags.Context(), m, deploy.Options{
				Build: manifest.BuildContext{
					Branch:   branch,
					Tag:      tag,
					RepoSlug: repoSlug,
				},
				Dir:       filepath.Dir(args[0]),
				DryRun:    dryRun,
				Decrypter: dec,
			})
		},
	}
	cmd.Flags().StringVar(&branch, "branch", "master", "Branch `name` the build was for")
	cmd.Flags().StringVar(&tag, "tag", "", "Tag `name` the build was for, if any")
	cmd.Flags().StringVar(&repoSlug, "repo", "", "Repository `slug` (owner/name)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Log what would deploy without deploying")
	cmd.Flags().StringVar(&keyFile, "key-file", "", "PEM `file` with the repo private key, for `secure:` values")
	argparser.AddCommand(cmd)
}

// loadDecrypter wraps the repo private key, if one was given.
func loadDecrypter(keyFile string) (manifest.Decrypter, error) {
	if keyFile == "" {
		return nil, nil
	}
	key, err := secret.LoadPrivateKey(keyFile)
	if err != nil {
		return nil, err
	}
	return secret.NewKeyring(key), nil
}
