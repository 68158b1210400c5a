package automation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadProjectFile reads a project definition from a YAML file.
//
// Unknown keys are rejected so typos in hand-written files surface early.
// The project is not validated; pass it to Registry.Load for that.
//
// Example:
//
//	name: Demo layout
//	workflows:
//	  - name: Signal red
//	    in_port: 5
//	    actions:
//	      - type: command
//	        command:
//	          bytes: 0A 00 40 00 53 03 2C 88 F4
func LoadProjectFile(path string) (*Project, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from trusted configuration
	if err != nil {
		return nil, fmt.Errorf("reading project file: %w", err)
	}
	return ParseProject(data)
}

// ParseProject decodes a YAML project definition.
func ParseProject(data []byte) (*Project, error) {
	p := &Project{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(p); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing project: %w", err)
	}
	return p, nil
}

// MarshalProject encodes p as YAML.
func MarshalProject(p *Project) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(p); err != nil {
		return nil, fmt.Errorf("encoding project: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding project: %w", err)
	}
	return buf.Bytes(), nil
}
