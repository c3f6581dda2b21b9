// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Secret is a credential value in a deploy descriptor.  It is one of:
//
//   - a literal string, possibly containing `$VAR` / `${VAR}` references that
//     are expanded from the environment at resolve time; or
//   - a `secure: BASE64` mapping holding a blob encrypted against the repo key,
//     which needs a Decrypter to resolve.
//
// No secret material is ever held in the manifest itself; resolution is
// deferred until a provider actually needs the value.
type Secret struct {
	Plain  string
	Secure string
}

// Decrypter decrypts a base64-encoded `secure:` blob back to its cleartext.
type Decrypter interface {
	Decrypt(blob string) (string, error)
}

// IsZero reports whether the secret is unset; yaml.v3 consults it for omitempty.
func (s Secret) IsZero() bool {
	return s.Plain == "" && s.Secure == ""
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *Secret) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = Secret{Plain: node.Value}
		return nil
	case yaml.MappingNode:
		var raw struct {
			Secure string `yaml:"secure"`
		}
		if err := decodeStrict(node, &raw); err != nil {
			return err
		}
		if raw.Secure == "" {
			return fmt.Errorf("line %d: secure value is empty", node.Line)
		}
		*s = Secret{Secure: raw.Secure}
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a `secure:` mapping, got a %s",
			node.Line, nodeKindName(node.Kind))
	}
}

// MarshalYAML implements yaml.Marshaler.
func (s Secret) MarshalYAML() (interface{}, error) {
	if s.Secure != "" {
		return map[string]string{"secure": s.Secure}, nil
	}
	return s.Plain, nil
}

// EnvRef returns the name of the environment variable a plain secret refers to,
// if the whole value is a single `$VAR` / `${VAR}` reference.
func (s Secret) EnvRef() string {
	val := s.Plain
	if !strings.HasPrefix(val, "$") {
		return ""
	}
	name := strings.TrimPrefix(val, "$")
	name = strings.TrimPrefix(name, "{")
	name = strings.TrimSuffix(name, "}")
	for _, r := range name {
		if !(r == '_' || ('0' <= r && r <= '9') || ('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z')) {
			return ""
		}
	}
	return name
}

// Resolve produces the cleartext value.  Encrypted secrets need a non-nil
// Decrypter; plain values are expanded against the build context environment.
func (s Secret) Resolve(bc BuildContext, dec Decrypter) (string, error) {
	if s.Secure != "" {
		if dec == nil {
			return "", fmt.Errorf("secret is encrypted and no key is available")
		}
		val, err := dec.Decrypt(s.Secure)
		if err != nil {
			return "", fmt.Errorf("decrypt secret: %w", err)
		}
		return val, nil
	}
	return os.Expand(s.Plain, bc.Getenv), nil
}
