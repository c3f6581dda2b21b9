// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dlog"
)

func init() {
	Register(pypiProvider{})
}

// pypiProvider publishes a Python package to a package index: it builds the
// requested distributions with setup.py, then uploads them with twine.
type pypiProvider struct{}

func (pypiProvider) Name() string { return "pypi" }

func (pypiProvider) Deploy(ctx context.Context, req Request) error {
	target := req.Target

	user, err := target.User.Resolve(req.Build, req.Decrypter)
	if err != nil {
		return err
	}
	if user == "" {
		return errors.New("pypi: no user")
	}
	password, err := target.Password.Resolve(req.Build, req.Decrypter)
	if err != nil {
		return err
	}
	if password == "" {
		return errors.New("pypi: no password")
	}

	distributions := target.Distributions
	if distributions == "" {
		distributions = "sdist bdist_wheel"
	}

	if req.DryRun {
		server := target.Server
		if server == "" {
			server = "the default index"
		}
		dlog.Infof(ctx, "pypi: would build %q and upload to %s as %s", distributions, server, user)
		return nil
	}

	buildArgs := append([]string{"setup.py"}, strings.Fields(distributions)...)
	build := dexec.CommandContext(ctx, "python", buildArgs...)
	build.Dir = req.Dir
	build.Stdout = os.Stderr
	build.Stderr = os.Stderr
	if err := build.Run(); err != nil {
		return fmt.Errorf("build distributions: %w", err)
	}

	files, err := filepath.Glob(filepath.Join(req.Dir, "dist", "*"))
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("pypi: setup.py produced nothing under dist/")
	}

	uploadArgs := []string{"upload", "--non-interactive"}
	if target.SkipExisting {
		uploadArgs = append(uploadArgs, "--skip-existing")
	}
	if target.Server != "" {
		uploadArgs = append(uploadArgs, "--repository-url", target.Server)
	}
	uploadArgs = append(uploadArgs, files...)

	upload := dexec.CommandContext(ctx, "twine", uploadArgs...)
	upload.Dir = req.Dir
	upload.Stdout = os.Stderr
	upload.Stderr = os.Stderr
	// Credentials go through the environment, never through argv.
	upload.Env = append(os.Environ(),
		"TWINE_USERNAME="+user,
		"TWINE_PASSWORD="+password,
	)
	if err := upload.Run(); err != nil {
		return fmt.Errorf("twine upload: %w", err)
	}
	dlog.Infof(ctx, "pypi: uploaded %d file(s)", len(files))
	return nil
}
