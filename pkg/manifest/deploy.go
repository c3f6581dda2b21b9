// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Deploy is a deployment target descriptor: the name of an external publishing
// provider plus the condition under which it fires after a successful build.
// Provider-specific fields are all optional at the schema level; Lint and the
// providers themselves enforce which ones are required.
type Deploy struct {
	Provider string     `yaml:"provider"`
	On       *Condition `yaml:"on,omitempty"`

	SkipCleanup bool `yaml:"skip_cleanup,omitempty"`

	// pages
	GithubToken    Secret `yaml:"github_token,omitempty"`
	LocalDir       string `yaml:"local_dir,omitempty"`
	TargetBranch   string `yaml:"target_branch,omitempty"`
	Repo           string `yaml:"repo,omitempty"`
	CommitterEmail string `yaml:"committer_email,omitempty"`
	CommitterName  string `yaml:"committer_name,omitempty"`

	// pypi
	User          Secret `yaml:"user,omitempty"`
	Password      Secret `yaml:"password,omitempty"`
	Distributions string `yaml:"distributions,omitempty"`
	SkipExisting  bool   `yaml:"skip_existing,omitempty"`
	Server        string `yaml:"server,omitempty"`

	// script
	Script string `yaml:"script,omitempty"`
}

// DeployList is a []Deploy that may be written in YAML as either a single
// mapping or a sequence of mappings.
type DeployList []Deploy

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *DeployList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.MappingNode:
		var one Deploy
		if err := decodeStrict(node, &one); err != nil {
			return err
		}
		*l = DeployList{one}
		return nil
	case yaml.SequenceNode:
		ret := make(DeployList, 0, len(node.Content))
		for _, item := range node.Content {
			var one Deploy
			if err := decodeStrict(item, &one); err != nil {
				return err
			}
			ret = append(ret, one)
		}
		*l = ret
		return nil
	default:
		return fmt.Errorf("line %d: expected deploy to be a mapping or a list of mappings, got a %s",
			node.Line, nodeKindName(node.Kind))
	}
}

// MarshalYAML implements yaml.Marshaler.
func (l DeployList) MarshalYAML() (interface{}, error) {
	return []Deploy(l), nil
}

// Condition is a deploy gate (`on:`).  In YAML it may be spelled as a bare
// scalar, which is shorthand for `branch: SCALAR`.
type Condition struct {
	Branch      string `yaml:"branch,omitempty"`
	AllBranches bool   `yaml:"all_branches,omitempty"`
	Tags        bool   `yaml:"tags,omitempty"`
	Repo        string `yaml:"repo,omitempty"`
	Condition   string `yaml:"condition,omitempty"`

	scalar bool
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Condition) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*c = Condition{Branch: node.Value, scalar: true}
		return nil
	}
	type rawCondition Condition // avoid recursion
	var raw rawCondition
	if err := decodeStrict(node, &raw); err != nil {
		return err
	}
	*c = Condition(raw)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (c Condition) MarshalYAML() (interface{}, error) {
	if c.scalar {
		return c.Branch, nil
	}
	type rawCondition Condition
	return rawCondition(c), nil
}

// BuildContext carries the facts about the current build that deploy gates and
// condition expressions are evaluated against.
type BuildContext struct {
	Branch   string
	Tag      string
	RepoSlug string
	Env      map[string]string
}

// Getenv looks a variable up in the context env, falling back to the process
// environment when the context map doesn't have it.
func (bc BuildContext) Getenv(key string) string {
	if val, ok := bc.Env[key]; ok {
		return val
	}
	return os.Getenv(key)
}

// Match evaluates the condition against a build.  The returned reason string is
// human-readable and names the first sub-condition that did not hold; it is
// empty when the condition matches.
func (c *Condition) Match(bc BuildContext) (bool, string, error) {
	if c == nil {
		return true, "", nil
	}
	if c.Repo != "" && c.Repo != bc.RepoSlug {
		return false, fmt.Sprintf("repo is %q, not %q", bc.RepoSlug, c.Repo), nil
	}
	if c.Tags && bc.Tag == "" {
		return false, "build is not a tag build", nil
	}
	if !c.AllBranches && c.Branch != "" {
		ok, err := matchPattern(c.Branch, bc.Branch)
		if err != nil {
			return false, "", err
		}
		if !ok {
			return false, fmt.Sprintf("branch is %q, not %q", bc.Branch, c.Branch), nil
		}
	}
	if c.Condition != "" {
		expr, err := ParseConditionExpr(c.Condition)
		if err != nil {
			return false, "", err
		}
		if !expr.Eval(bc) {
			return false, fmt.Sprintf("condition %q is false", c.Condition), nil
		}
	}
	return true, "", nil
}

// matchPattern matches a branch or repo pattern: `/regexp/` forms are regular
// expressions anchored at both ends, anything else must match exactly.
func matchPattern(pattern, str string) (bool, error) {
	if len(pattern) >= 2 && strings.HasPrefix(pattern, "/") && strings.HasSuffix(pattern, "/") {
		re, err := regexp.Compile("^(?:" + pattern[1:len(pattern)-1] + ")$")
		if err != nil {
			return false, fmt.Errorf("pattern %s: %w", pattern, err)
		}
		return re.MatchString(str), nil
	}
	return pattern == str, nil
}
