// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"context"
	"errors"
	"os"

	"github.com/datawire/dlib/dexec"
	"github.com/datawire/dlib/dlog"
)

func init() {
	Register(scriptProvider{})
}

// scriptProvider is the escape hatch: the target's `script:` runs through the
// shell, and a non-zero exit fails the deployment.
type scriptProvider struct{}

func (scriptProvider) Name() string { return "script" }

func (scriptProvider) Deploy(ctx context.Context, req Request) error {
	if req.Target.Script == "" {
		return errors.New("script: no script")
	}
	if req.DryRun {
		dlog.Infof(ctx, "script: would run %q", req.Target.Script)
		return nil
	}
	cmd := dexec.CommandContext(ctx, "sh", "-c", req.Target.Script)
	cmd.Dir = req.Dir
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
