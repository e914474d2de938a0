package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Control kinds understood by the gate.
const (
	KindArchitectureCompliance = "architecture-compliance"
	KindEvidencePresence       = "evidence-presence"
	KindProtectedPaths         = "protected-paths"
	KindCommand                = "command"
	KindStub                   = "stub"
)

// GateFile is the gate configuration file.
type GateFile struct {
	Concurrency int             `yaml:"concurrency,omitempty" json:"concurrency,omitempty"`
	Timeout     time.Duration   `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Signature   SignatureConfig `yaml:"signature" json:"signature"`
	Controls    []ControlConfig `yaml:"controls" json:"controls"`
}

// SignatureConfig selects how the architecture signature is built and where
// the approved baseline lives.
type SignatureConfig struct {
	// Locator keys the approved baseline. Empty means the evaluation's base
	// branch.
	Locator   string `yaml:"locator,omitempty" json:"locator,omitempty"`
	Algorithm string `yaml:"algorithm,omitempty" json:"algorithm,omitempty"`
	Manifest  string `yaml:"manifest,omitempty" json:"manifest,omitempty"`
}

// ControlConfig declares one control.
type ControlConfig struct {
	Name     string `yaml:"name" json:"name"`
	Kind     string `yaml:"kind" json:"kind"`
	Severity string `yaml:"severity" json:"severity"`

	Required []string      `yaml:"required,omitempty" json:"required,omitempty"` // evidence-presence
	Command  []string      `yaml:"command,omitempty" json:"command,omitempty"`   // command
	Timeout  time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`   // command
}

// DefaultGateFile is used when no gate configuration exists.
func DefaultGateFile() *GateFile {
	return &GateFile{
		Controls: []ControlConfig{
			{Name: KindArchitectureCompliance, Kind: KindArchitectureCompliance, Severity: "CRITICAL"},
			{Name: KindProtectedPaths, Kind: KindProtectedPaths, Severity: "HIGH"},
		},
	}
}

// LoadGateFile reads a gate configuration. A missing file yields
// DefaultGateFile.
func LoadGateFile(path string) (*GateFile, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultGateFile(), nil
		}
		return nil, fmt.Errorf("load gate config: %w", err)
	}

	var gf GateFile
	if err := yaml.Unmarshal(data, &gf); err != nil {
		return nil, fmt.Errorf("parse gate config %s: %w", path, err)
	}
	if err := gf.Validate(); err != nil {
		return nil, fmt.Errorf("gate config %s: %w", path, err)
	}
	return &gf, nil
}

// Validate checks structural requirements. Control-specific options are
// checked when the control is built.
func (g *GateFile) Validate() error {
	if len(g.Controls) == 0 {
		return errors.New("no controls declared")
	}
	if g.Concurrency < 0 {
		return fmt.Errorf("concurrency must not be negative, got %d", g.Concurrency)
	}
	seen := make(map[string]bool, len(g.Controls))
	for i, c := range g.Controls {
		if c.Name == "" {
			return fmt.Errorf("control %d has no name", i)
		}
		if c.Kind == "" {
			return fmt.Errorf("control %q has no kind", c.Name)
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate control %q", c.Name)
		}
		seen[c.Name] = true
	}
	return nil
}
