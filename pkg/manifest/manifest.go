// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package manifest deals with parsing, validating, and serializing CI manifest files.
//
// A manifest describes a build as an ordered sequence of shell phases
// (before_install, install, before_script, script, after_success, after_failure,
// after_script, before_deploy), a version/env build matrix, and a list of deployment
// target descriptors that are evaluated independently after a successful build.
package manifest

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Manifest is the parsed form of a CI manifest file.
//
// Field order matters: Encode writes fields in declaration order, which is the
// canonical phase order.
type Manifest struct {
	Language string     `yaml:"language,omitempty"`
	Python   StringList `yaml:"python,omitempty"`

	Env Env `yaml:"env,omitempty"`

	BeforeInstall CommandList `yaml:"before_install,omitempty"`
	Install       CommandList `yaml:"install,omitempty"`
	BeforeScript  CommandList `yaml:"before_script,omitempty"`
	Script        CommandList `yaml:"script,omitempty"`
	AfterSuccess  CommandList `yaml:"after_success,omitempty"`
	AfterFailure  CommandList `yaml:"after_failure,omitempty"`
	AfterScript   CommandList `yaml:"after_script,omitempty"`
	BeforeDeploy  CommandList `yaml:"before_deploy,omitempty"`

	Matrix *Matrix `yaml:"matrix,omitempty"`

	Branches *BranchFilter `yaml:"branches,omitempty"`

	Deploy DeployList `yaml:"deploy,omitempty"`
}

// StringList is a []string that may be written in YAML as either a single scalar
// or a sequence.  Numeric scalars (`python: 3.6`) are accepted and read as their
// literal spelling.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*l = StringList{node.Value}
		return nil
	case yaml.SequenceNode:
		ret := make(StringList, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected a string, got a %s",
					item.Line, nodeKindName(item.Kind))
			}
			ret = append(ret, item.Value)
		}
		*l = ret
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings, got a %s",
			node.Line, nodeKindName(node.Kind))
	}
}

// MarshalYAML implements yaml.Marshaler.  A list always encodes as a sequence;
// that is part of what makes Encode canonical.
func (l StringList) MarshalYAML() (interface{}, error) {
	return []string(l), nil
}

// CommandList is an ordered list of shell commands making up one phase.  Like
// StringList it accepts scalar-or-sequence YAML.
type CommandList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *CommandList) UnmarshalYAML(node *yaml.Node) error {
	var inner StringList
	if err := inner.UnmarshalYAML(node); err != nil {
		return err
	}
	*l = CommandList(inner)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (l CommandList) MarshalYAML() (interface{}, error) {
	return []string(l), nil
}

// Env holds the environment variable configuration.  In YAML it is either a bare
// list (which populates Jobs, each entry producing a matrix row) or a mapping
// with `global` and `jobs`/`matrix` keys.
type Env struct {
	// Global rows are exported to every job.
	Global StringList
	// Jobs rows each expand to a separate job in the build matrix.
	Jobs StringList

	// jobsKey remembers whether the input spelled the job axis as `jobs` or the
	// older `matrix`, so that Encode round-trips.
	jobsKey string
}

// IsZero reports whether the Env is empty; yaml.v3 consults it for omitempty.
func (e Env) IsZero() bool {
	return len(e.Global) == 0 && len(e.Jobs) == 0
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (e *Env) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode, yaml.SequenceNode:
		return e.Jobs.UnmarshalYAML(node)
	case yaml.MappingNode:
		for i := 0; i+1 < len(node.Content); i += 2 {
			key := node.Content[i]
			val := node.Content[i+1]
			switch key.Value {
			case "global":
				if err := e.Global.UnmarshalYAML(val); err != nil {
					return err
				}
			case "jobs", "matrix":
				if err := e.Jobs.UnmarshalYAML(val); err != nil {
					return err
				}
				e.jobsKey = key.Value
			default:
				return fmt.Errorf("line %d: unknown env key %q", key.Line, key.Value)
			}
		}
		return nil
	default:
		return fmt.Errorf("line %d: expected env to be a list or a mapping, got a %s",
			node.Line, nodeKindName(node.Kind))
	}
}

// MarshalYAML implements yaml.Marshaler.
func (e Env) MarshalYAML() (interface{}, error) {
	if len(e.Global) == 0 {
		return []string(e.Jobs), nil
	}
	jobsKey := e.jobsKey
	if jobsKey == "" {
		jobsKey = "jobs"
	}
	ret := yaml.Node{Kind: yaml.MappingNode}
	appendKV := func(key string, val interface{}) error {
		var keyNode, valNode yaml.Node
		keyNode.SetString(key)
		if err := valNode.Encode(val); err != nil {
			return err
		}
		ret.Content = append(ret.Content, &keyNode, &valNode)
		return nil
	}
	if err := appendKV("global", []string(e.Global)); err != nil {
		return nil, err
	}
	if len(e.Jobs) > 0 {
		if err := appendKV(jobsKey, []string(e.Jobs)); err != nil {
			return nil, err
		}
	}
	return &ret, nil
}

// BranchFilter is the `branches:` safelist/blocklist.  Patterns wrapped in
// slashes are regular expressions; anything else matches exactly.
type BranchFilter struct {
	Only   StringList `yaml:"only,omitempty"`
	Except StringList `yaml:"except,omitempty"`
}

// Allows reports whether a branch passes the filter.  An empty filter allows
// everything; a non-empty Only list must match; Except wins over Only.
func (f *BranchFilter) Allows(branch string) (bool, error) {
	if f == nil {
		return true, nil
	}
	for _, pattern := range f.Except {
		ok, err := matchPattern(pattern, branch)
		if err != nil {
			return false, err
		}
		if ok {
			return false, nil
		}
	}
	if len(f.Only) == 0 {
		return true, nil
	}
	for _, pattern := range f.Only {
		ok, err := matchPattern(pattern, branch)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func nodeKindName(kind yaml.Kind) string {
	switch kind {
	case yaml.DocumentNode:
		return "document"
	case yaml.SequenceNode:
		return "sequence"
	case yaml.MappingNode:
		return "mapping"
	case yaml.ScalarNode:
		return "scalar"
	case yaml.AliasNode:
		return "alias"
	default:
		return fmt.Sprintf("kind-%d", kind)
	}
}
