// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/name"

	"github.com/datawire/civet/pkg/manifest"
)

// ImageForJob maps a job's language/version axis to the fully-qualified build
// image reference that a containerized runner would use for it.  The job
// itself still runs on the host shell; the reference is recorded in the job
// metadata and shown by `civet inspect --jobs`.
func ImageForJob(language string, job manifest.Job) (string, error) {
	var img string
	switch language {
	case "", "python":
		version := job.Python
		if version == "" {
			version = manifest.DefaultPythonVersion
		}
		if strings.HasPrefix(version, "pypy") {
			img = "pypy"
			if tag := strings.TrimPrefix(strings.TrimPrefix(version, "pypy"), "-"); tag != "" {
				img += ":" + tag
			}
		} else {
			img = "python:" + version
		}
	default:
		// Unknown languages run on a bare image; lint already warned.
		img = "buildpack-deps:stable"
	}
	ref, err := name.ParseReference(img)
	if err != nil {
		return "", fmt.Errorf("build image for job %s: %w", job.Number, err)
	}
	return ref.Name(), nil
}
