// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package deploy deals with the deployment target descriptors of a manifest:
// after a successful build, each descriptor is evaluated independently against
// the build context, and the matching ones are handed to their external
// publishing provider.
package deploy

import (
	"context"
	"fmt"
	"sort"

	"github.com/datawire/dlib/derror"
	"github.com/datawire/dlib/dlog"

	"github.com/datawire/civet/pkg/manifest"
)

// Provider publishes to one kind of external endpoint ("pages", "pypi", ...).
// Providers do not reimplement the endpoint; they drive it.
type Provider interface {
	// Name is the manifest `provider:` string.
	Name() string
	// Deploy performs (or, under req.DryRun, describes) the deployment.
	Deploy(ctx context.Context, req Request) error
}

// Request is everything a provider gets to work with.
type Request struct {
	Target manifest.Deploy
	Build  manifest.BuildContext
	// Dir is the project working directory.
	Dir string
	// DryRun asks the provider to log its plan and do nothing.
	DryRun bool
	// Decrypter resolves `secure:` credential values; may be nil.
	Decrypter manifest.Decrypter
}

var registry = map[string]Provider{}

// Register adds a provider; it is called from provider init functions and
// panics on duplicates.
func Register(p Provider) {
	if _, dup := registry[p.Name()]; dup {
		panic(fmt.Sprintf("deploy provider %q registered twice", p.Name()))
	}
	registry[p.Name()] = p
}

// Names returns the sorted registered provider names, for lint and usage text.
func Names() []string {
	ret := make([]string, 0, len(registry))
	for name := range registry {
		ret = append(ret, name)
	}
	sort.Strings(ret)
	return ret
}

// Options adjusts Run.
type Options struct {
	Build     manifest.BuildContext
	Dir       string
	DryRun    bool
	Decrypter manifest.Decrypter
	// BeforeDeploy, if non-nil, runs once before the first firing target;
	// if it errors, nothing deploys.
	BeforeDeploy func(ctx context.Context) error
}

// Run evaluates every deploy descriptor in order.  Targets whose condition
// does not match are skipped with a logged reason.  A failing target does not
// stop the remaining ones; all failures are reported together.
func Run(ctx context.Context, m *manifest.Manifest, opts Options) error {
	var errs derror.MultiError
	ranBeforeDeploy := false
	for i, target := range m.Deploy {
		provider, ok := registry[target.Provider]
		if !ok {
			errs = append(errs, fmt.Errorf("deploy[%d]: unknown provider %q", i, target.Provider))
			continue
		}
		match, reason, err := target.On.Match(opts.Build)
		if err != nil {
			errs = append(errs, fmt.Errorf("deploy[%d]: %w", i, err))
			continue
		}
		if !match {
			dlog.Infof(ctx, "deploy[%d] %s: skipped: %s", i, target.Provider, reason)
			continue
		}
		if !ranBeforeDeploy && opts.BeforeDeploy != nil {
			if err := opts.BeforeDeploy(ctx); err != nil {
				errs = append(errs, err)
				break
			}
		}
		ranBeforeDeploy = true
		dlog.Infof(ctx, "deploy[%d] %s: deploying", i, target.Provider)
		if err := provider.Deploy(ctx, Request{
			Target:    target,
			Build:     opts.Build,
			Dir:       opts.Dir,
			DryRun:    opts.DryRun,
			Decrypter: opts.Decrypter,
		}); err != nil {
			errs = append(errs, fmt.Errorf("deploy[%d] %s: %w", i, target.Provider, err))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}
