// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Parse parses manifest YAML.  Unknown keys are an error; the manifest format
// is small enough that a typoed key being silently ignored is worse than being
// strict.
func Parse(data []byte) (*Manifest, error) {
	var ret Manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&ret); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("manifest is empty")
		}
		return nil, err
	}
	// A manifest file is a single document.
	var extra yaml.Node
	if err := dec.Decode(&extra); err == nil {
		return nil, fmt.Errorf("manifest has more than one YAML document")
	} else if !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &ret, nil
}

// Load reads and parses a manifest file.
func Load(filename string) (*Manifest, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	ret, err := Parse(data)
	if err != nil {
		return nil, &fs.PathError{
			Op:   "parse manifest",
			Path: filename,
			Err:  err,
		}
	}
	return ret, nil
}

// Encode serializes the manifest to its canonical YAML form.  Encoding is
// deterministic, and parsing the output yields the manifest back; re-encoding a
// canonical file is the identity.
func (m *Manifest) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeStrict decodes a sub-node rejecting unknown keys.  yaml.v3's
// KnownFields setting does not reach into custom unmarshalers, so the node is
// re-serialized and run through a strict Decoder.
func decodeStrict(node *yaml.Node, out interface{}) error {
	raw, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	return nil
}

// Defaults for `language: python`, matching the hosted platform this format
// comes from: one job on the default interpreter, `pip install .` if no install
// phase is given.
const (
	DefaultLanguage      = "python"
	DefaultPythonVersion = "3.6"
)

// Effective returns a copy of the manifest with language defaults applied.  The
// original is not modified, so Encode still round-trips the input.
func (m *Manifest) Effective() *Manifest {
	ret := *m
	if ret.Language == "" {
		ret.Language = DefaultLanguage
	}
	if ret.Language == "python" && len(ret.Python) == 0 {
		ret.Python = StringList{DefaultPythonVersion}
	}
	if len(ret.Install) == 0 && ret.Language == "python" {
		ret.Install = CommandList{"pip install ."}
	}
	return &ret
}
