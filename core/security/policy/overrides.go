package policy

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadOverrides reads an operator YAML file holding a partial policy. An empty
// path or a missing file yields no overrides.
func LoadOverrides(path string) (*PolicyPatch, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read policy overrides: %w", err)
	}
	return ParseOverrides(data)
}

// ParseOverrides decodes YAML overrides; unknown keys are rejected.
func ParseOverrides(data []byte) (*PolicyPatch, error) {
	var patch PolicyPatch
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&patch); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("parse policy overrides: %w", err)
	}
	return &patch, nil
}
