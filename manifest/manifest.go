// Package manifest loads declarative migration units and scenario files
// from TOML or YAML and compiles them into scenario migrations. Predicates,
// values and assertions are expr expressions evaluated against the state
// of the world they run in.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Sentinel errors for manifest loading and execution.
var (
	// ErrUnsupportedFormat indicates a file extension other than .toml, .yaml or .yml.
	ErrUnsupportedFormat = errors.New("unsupported manifest format")
	// ErrNoStateEnv indicates an action ran against an environment without state access.
	ErrNoStateEnv = errors.New("environment does not expose world state")
	// ErrAssertion indicates a verify or scenario assertion evaluated to false.
	ErrAssertion = errors.New("assertion failed")
	// ErrMissingField indicates a required field is empty.
	ErrMissingField = errors.New("required field missing")
)

// Extensions lists the file extensions recognised as manifests.
var Extensions = []string{".toml", ".yaml", ".yml"}

// File is the on-disk shape of a declarative migration.
type File struct {
	Name        string      `toml:"name" yaml:"name"`
	Description string      `toml:"description" yaml:"description"`
	Enacted     string      `toml:"enacted" yaml:"enacted"`
	Verify      []string    `toml:"verify" yaml:"verify"`
	Prepare     PrepareSpec `toml:"prepare" yaml:"prepare"`
	Enact       EnactSpec   `toml:"enact" yaml:"enact"`
}

// PrepareSpec lists the helper contracts deployed while preparing.
type PrepareSpec struct {
	Deploy []DeploySpec `toml:"deploy" yaml:"deploy"`
}

// DeploySpec deploys contract under alias. Args are informational.
type DeploySpec struct {
	Alias    string `toml:"alias" yaml:"alias"`
	Contract string `toml:"contract" yaml:"contract"`
	Args     []any  `toml:"args" yaml:"args"`
}

// EnactSpec lists the state changes applied when enacting.
type EnactSpec struct {
	Set    []SetSpec `toml:"set" yaml:"set"`
	Delete []string  `toml:"delete" yaml:"delete"`
}

// SetSpec writes the result of the Value expression under Key.
type SetSpec struct {
	Key   string `toml:"key" yaml:"key"`
	Value string `toml:"value" yaml:"value"`
}

// decode reads path into v, choosing the format by extension and rejecting
// unknown fields.
func decode(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("parsing TOML: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("parsing YAML: %w", err)
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
	return nil
}

// isManifest reports whether name has a manifest extension.
func isManifest(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// baseName strips directory and extension from path.
func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
