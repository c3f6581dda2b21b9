// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/datawire/civet/pkg/cliutil"
	"github.com/datawire/civet/pkg/secret"
)

var argparserSecret = &cobra.Command{
	Use:   "secret {[flags]|SUBCOMMAND...}",
	Short: "Work with `secure:` manifest values",

	Args: cliutil.OnlySubcommands,
	RunE: cliutil.RunSubcommands,
}

func init() {
	argparser.AddCommand(argparserSecret)
}

func init() {
	var keyFile string
	cmd := &cobra.Command{
		Use:   "encrypt [flags] [VALUE]",
		Short: "Encrypt a value for use under a `secure:` key",
		Long: "Encrypt a value against the repo public key and print the base64 " +
			"blob to put under a `secure:` key in the manifest.  With no " +
			"argument the value is read from stdin, so that it doesn't end up " +
			"in shell history.",
		Args: cliutil.WrapPositionalArgs(cobra.MaximumNArgs(1)),
		RunE: func(flags *cobra.Command, args []string) error {
			pub, err := secret.LoadPublicKey(keyFile)
			if err != nil {
				return err
			}
			var value string
			if len(args) == 1 {
				value = args[0]
			} else {
				raw, err := io.ReadAll(flags.InOrStdin())
				if err != nil {
					return err
				}
				value = strings.TrimSuffix(string(raw), "\n")
			}
			blob, err := secret.Encrypt(pub, value)
			if err != nil {
				return err
			}
			fmt.Fprintf(flags.OutOrStdout(), "secure: %q\n", blob)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyFile, "key-file", "", "PEM `file` with the repo public (or private) key")
	if err := cmd.MarkFlagRequired("key-file"); err != nil {
		panic(err)
	}
	argparserSecret.AddCommand(cmd)
}

func init() {
	var keyFile string
	cmd := &cobra.Command{
		Use:   "decrypt [flags] BLOB",
		Short: "Decrypt a `secure:` blob",
		Long: "Decrypt a base64 `secure:` blob with the repo private key and " +
			"print the cleartext to stdout.",
		Args: cliutil.WrapPositionalArgs(cobra.ExactArgs(1)),
		RunE: func(flags *cobra.Command, args []string) error {
			key, err := secret.LoadPrivateKey(keyFile)
			if err != nil {
				return err
			}
			value, err := secret.NewKeyring(key).Decrypt(args[0])
			if err != nil {
				return err
			}
			// No trailing newline when piped, so the value can be captured
			// exactly.
			out := flags.OutOrStdout()
			if f, ok := out.(*os.File); ok {
				if fi, err := f.Stat(); err == nil && fi.Mode()&os.ModeCharDevice == 0 {
					_, err := io.WriteString(out, value)
					return err
				}
			}
			_, err = fmt.Fprintln(out, value)
			return err
		},
	}
	cmd.Flags().StringVar(&keyFile, "key-file", "", "PEM `file` with the repo private key")
	if err := cmd.MarkFlagRequired("key-file"); err != nil {
		panic(err)
	}
	argparserSecret.AddCommand(cmd)
}
