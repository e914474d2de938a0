package signature

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/Mindburn-Labs/archgate/pkg/canonicalize"
	"github.com/Mindburn-Labs/archgate/pkg/constraints"
)

// DefaultManifestPath is the optional architecture manifest, relative to the
// workspace root.
const DefaultManifestPath = ".archgate/architecture.yaml"

// ComponentPrefix prefixes element ids contributed by the manifest.
const ComponentPrefix = "component:"

// excludedDirs are never tracked: VCS metadata and archgate's own state.
var excludedDirs = []string{".git/", ".archgate/"}

// Catalog enumerates constraints.
type Catalog interface {
	GetAll(ctx context.Context) []constraints.Constraint
}

// Manifest declares architecture components and their dependencies.
type Manifest struct {
	Components []Component `yaml:"components" json:"components"`
}

// Component is one declared architecture component.
type Component struct {
	Name      string   `yaml:"name" json:"name"`
	Layer     string   `yaml:"layer,omitempty" json:"layer,omitempty"`
	Paths     []string `yaml:"paths,omitempty" json:"paths,omitempty"`
	DependsOn []string `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
}

// LoadManifest reads an architecture manifest. A missing file yields
// (nil, nil).
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	seen := map[string]bool{}
	for i, c := range m.Components {
		if c.Name == "" {
			return nil, fmt.Errorf("manifest %s: component %d has no name", path, i)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("manifest %s: duplicate component %q", path, c.Name)
		}
		seen[c.Name] = true
	}
	return &m, nil
}

// Collector builds the TrackedState of a workspace. Files under the scope of
// structural, dependency and protected constraints are tracked by content
// digest; manifest components are tracked by their declaration.
type Collector struct {
	Root         string
	Catalog      Catalog
	ManifestPath string // relative to Root; DefaultManifestPath when empty
	Algorithm    canonicalize.Algorithm
}

func tracksType(t constraints.Type) bool {
	switch t {
	case constraints.TypeStructural, constraints.TypeDependency, constraints.TypeProtected:
		return true
	default:
		return false
	}
}

func excluded(p string) bool {
	for _, dir := range excludedDirs {
		if strings.HasPrefix(p, dir) {
			return true
		}
	}
	return false
}

// Collect walks the workspace and returns its tracked state.
func (c *Collector) Collect(ctx context.Context) (TrackedState, error) {
	if c.Root == "" {
		return nil, errors.New("collector: workspace root is required")
	}
	alg := c.Algorithm
	if alg == "" {
		alg = canonicalize.SHA256
	}
	fsys := os.DirFS(c.Root)

	owners := map[string][]string{}
	if c.Catalog != nil {
		for _, con := range c.Catalog.GetAll(ctx) {
			if !tracksType(con.Type) {
				continue
			}
			matches, err := doublestar.Glob(fsys, constraints.CleanPath(con.Scope), doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("collector: scope %q of %s: %w", con.Scope, con.ID, err)
			}
			for _, m := range matches {
				if excluded(m) {
					continue
				}
				owners[m] = append(owners[m], con.ID)
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}

	state := TrackedState{}
	for path, ids := range owners {
		data, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("collector: read %s: %w", path, err)
		}
		digest, err := canonicalize.Digest(alg, data)
		if err != nil {
			return nil, err
		}
		ids = dedupe(ids)
		state[path] = map[string]any{
			"kind":        "file",
			"digest":      digest,
			"constraints": ids,
		}
	}

	manifestPath := c.ManifestPath
	if manifestPath == "" {
		manifestPath = DefaultManifestPath
	}
	m, err := LoadManifest(filepath.Join(c.Root, filepath.FromSlash(manifestPath)))
	if err != nil {
		return nil, fmt.Errorf("collector: %w", err)
	}
	if m != nil {
		for _, comp := range m.Components {
			state[ComponentPrefix+comp.Name] = map[string]any{
				"kind":      "component",
				"layer":     comp.Layer,
				"paths":     nonNil(comp.Paths),
				"dependsOn": nonNil(comp.DependsOn),
			}
		}
	}
	return state, nil
}

func dedupe(ids []string) []string {
	sort.Strings(ids)
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if len(out) == 0 || out[len(out)-1] != id {
			out = append(out, id)
		}
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
