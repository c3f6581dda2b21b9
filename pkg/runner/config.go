// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package runner

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the tool-level execution defaults.  They come from the
// environment, not the manifest; the manifest describes the build, the
// environment describes the machine running it.
type Config struct {
	// Shell runs each phase command as `Shell -c COMMAND`.
	Shell string `envconfig:"SHELL" default:"sh" desc:"Shell used to run phase commands"`
	// CommandTimeout bounds a single phase command.
	CommandTimeout time.Duration `envconfig:"COMMAND_TIMEOUT" default:"10m" desc:"Timeout for a single command"`
	// JobTimeout bounds a whole job.
	JobTimeout time.Duration `envconfig:"JOB_TIMEOUT" default:"50m" desc:"Timeout for a whole job"`
	// Parallel is how many matrix jobs may run at once.
	Parallel int `envconfig:"PARALLEL" default:"1" desc:"Number of matrix jobs to run concurrently"`
}

// ConfigFromEnv reads Config from CIVET_* environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("civet", &cfg); err != nil {
		return Config{}, err
	}
	if cfg.Parallel < 1 {
		cfg.Parallel = 1
	}
	return cfg, nil
}
