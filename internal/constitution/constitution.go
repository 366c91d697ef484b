// Package constitution loads the immutable rule manifest the authorizer
// trusts. A Constitution is built once and never mutated; reloads replace
// the whole value through Store.
package constitution

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"

	"github.com/gowebpki/jcs"
	"gopkg.in/yaml.v3"
)

// RequiredSingularities are the non-negotiable properties every manifest must declare.
var RequiredSingularities = []string{
	"anti_bypass_enforcement",
	"audit_trail_integrity",
	"fail_closed_validation",
	"human_oversight",
}

// MandatorySystems are the subsystem IDs every manifest must declare present.
var MandatorySystems = []string{
	"action_authorizer",
	"audit_log",
	"constitution",
	"gate_runner",
}

// System is a declared subsystem.
type System struct {
	ID          string `yaml:"id" json:"id"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// ActionContract is optional per-action metadata.
type ActionContract struct {
	ID             string   `yaml:"id" json:"id"`
	Requires       []string `yaml:"requires" json:"requires"`
	RiskLevel      string   `yaml:"risk_level" json:"risk_level"`
	BlockedIf      []string `yaml:"blocked_if" json:"blocked_if"`
	Constitutional bool     `yaml:"constitutional" json:"constitutional"`
}

// Manifest is the parsed constitution document. JSON manifests parse through
// the same YAML decoder.
type Manifest struct {
	Constitutional bool             `yaml:"constitutional" json:"constitutional"`
	Version        string           `yaml:"version" json:"version"`
	Singularities  []string         `yaml:"singularities" json:"singularities"`
	Systems        []System         `yaml:"systems" json:"systems"`
	Actions        []ActionContract `yaml:"actions" json:"actions"`
}

// ActionRequirements is the lookup result of RequirementsFor. The zero value
// means the action has no declared contract.
type ActionRequirements struct {
	Declared       bool     `json:"declared"`
	Requires       []string `json:"requires,omitempty"`
	RiskLevel      string   `json:"risk_level,omitempty"`
	BlockedIf      []string `json:"blocked_if,omitempty"`
	Constitutional bool     `json:"constitutional"`
}

// ValidationResult reports whether the manifest satisfies its own required fields.
type ValidationResult struct {
	Valid   bool     `json:"valid"`
	Missing []string `json:"missing,omitempty"`
}

// Missing-item prefixes and markers used in ValidationResult.Missing.
const (
	MissingSingularityPrefix = "singularity:"
	MissingSystemPrefix      = "system:"
	MissingCanonicalFlag     = "constitutional_flag"
	MissingManifest          = "manifest_not_loaded"
)

// ConfigError marks a manifest that is missing or cannot be parsed.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("constitution: load %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Constitution is an immutable, validated snapshot of a manifest.
type Constitution struct {
	path       string
	manifest   Manifest
	hash       string
	loaded     bool
	loadErr    error
	validation ValidationResult
	actions    map[string]ActionContract
}

// EmptyHash is the hash reported by a constitution that failed to load.
var EmptyHash = hashBytes(nil)

// Load reads and parses the manifest at path. On failure it returns both a
// *ConfigError and a non-nil unloaded Constitution whose Validate always fails,
// so callers can keep serving fail-closed decisions.
func Load(path string) (*Constitution, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return unloaded(path, err), &ConfigError{Path: path, Err: err}
	}
	c, err := Parse(data)
	if err != nil {
		return unloaded(path, err), &ConfigError{Path: path, Err: err}
	}
	c.path = path
	return c, nil
}

// Parse builds a Constitution from manifest bytes (YAML or JSON).
func Parse(data []byte) (*Constitution, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if _, ok := generic.(map[string]any); !ok {
		return nil, errors.New("parse manifest: top level must be a mapping")
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}

	hash, err := canonicalHash(generic)
	if err != nil {
		return nil, err
	}

	c := &Constitution{
		manifest: m,
		hash:     hash,
		loaded:   true,
		actions:  make(map[string]ActionContract, len(m.Actions)),
	}
	for _, a := range m.Actions {
		if _, dup := c.actions[a.ID]; !dup {
			c.actions[a.ID] = a
		}
	}
	c.validation = c.validate()
	return c, nil
}

func unloaded(path string, err error) *Constitution {
	c := &Constitution{path: path, hash: EmptyHash, loadErr: err}
	c.validation = c.validate()
	return c
}

// Loaded reports whether the manifest was read and parsed.
func (c *Constitution) Loaded() bool { return c.loaded }

// LoadError returns the error that prevented loading, if any.
func (c *Constitution) LoadError() error { return c.loadErr }

// Path returns the manifest path, or "" for parsed-from-bytes constitutions.
func (c *Constitution) Path() string { return c.path }

// Hash returns "sha256:<hex>" of the canonical JSON form of the manifest.
func (c *Constitution) Hash() string { return c.hash }

// Manifest returns a deep copy of the parsed manifest.
func (c *Constitution) Manifest() Manifest {
	m := c.manifest
	m.Singularities = slices.Clone(m.Singularities)
	m.Systems = slices.Clone(m.Systems)
	m.Actions = make([]ActionContract, len(c.manifest.Actions))
	for i, a := range c.manifest.Actions {
		a.Requires = slices.Clone(a.Requires)
		a.BlockedIf = slices.Clone(a.BlockedIf)
		m.Actions[i] = a
	}
	return m
}

// Validate returns the result computed at load time.
func (c *Constitution) Validate() ValidationResult {
	return ValidationResult{
		Valid:   c.validation.Valid,
		Missing: slices.Clone(c.validation.Missing),
	}
}

func (c *Constitution) validate() ValidationResult {
	if !c.loaded {
		return ValidationResult{Missing: []string{MissingManifest}}
	}

	var missing []string
	if !c.manifest.Constitutional {
		missing = append(missing, MissingCanonicalFlag)
	}
	for _, s := range RequiredSingularities {
		if !slices.Contains(c.manifest.Singularities, s) {
			missing = append(missing, MissingSingularityPrefix+s)
		}
	}
	for _, id := range MandatorySystems {
		if !slices.ContainsFunc(c.manifest.Systems, func(s System) bool { return s.ID == id }) {
			missing = append(missing, MissingSystemPrefix+id)
		}
	}
	return ValidationResult{Valid: len(missing) == 0, Missing: missing}
}

// RequirementsFor looks up the declared contract for an action ID.
// An undeclared action returns the zero value.
func (c *Constitution) RequirementsFor(actionID string) ActionRequirements {
	a, ok := c.actions[actionID]
	if !ok {
		return ActionRequirements{}
	}
	return ActionRequirements{
		Declared:       true,
		Requires:       slices.Clone(a.Requires),
		RiskLevel:      a.RiskLevel,
		BlockedIf:      slices.Clone(a.BlockedIf),
		Constitutional: a.Constitutional,
	}
}

// canonicalHash hashes the RFC 8785 canonical JSON form of a decoded
// document, so key order and formatting in the source do not matter.
func canonicalHash(doc any) (string, error) {
	data, err := json.Marshal(normalize(doc))
	if err != nil {
		return "", fmt.Errorf("canonicalize manifest: %w", err)
	}
	canon, err := jcs.Transform(data)
	if err != nil {
		return "", fmt.Errorf("canonicalize manifest: %w", err)
	}
	return hashBytes(canon), nil
}

// normalize converts YAML-decoded values into JSON-encodable ones.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return t
	}
}

func hashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}
