package constraints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/cel-go/cel"
	"github.com/tidwall/jsonc"
)

// DefaultCatalogPath is where the catalog lives relative to the workspace.
const DefaultCatalogPath = ".archgate/constraints.json"

// ErrCatalogNotList is returned by Parse when the catalog is not a JSON array.
var ErrCatalogNotList = errors.New("constraint catalog is not a list")

// Source provides the raw catalog bytes.
type Source interface {
	Read(ctx context.Context) ([]byte, error)
}

// FileSource reads the catalog from a file. A missing file yields an error
// satisfying errors.Is(err, fs.ErrNotExist).
type FileSource struct {
	Path string
}

func (s FileSource) Read(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(s.Path)
}

// BytesSource serves a fixed catalog.
type BytesSource []byte

func (s BytesSource) Read(context.Context) ([]byte, error) { return s, nil }

// parsed is an accepted record with its compiled applicability program.
type parsed struct {
	constraint Constraint
	when       cel.Program
}

// Parse validates a JSON or JSONC catalog. It returns one outcome per record
// in file order. Records that fail the schema, carry an invalid scope glob, an
// uncompilable `when` expression or a duplicate id are rejected; the rest are
// accepted. An error is returned only when the catalog as a whole is not a
// list.
func Parse(data []byte) ([]LoadOutcome, error) {
	outcomes, _, err := parse(data)
	return outcomes, err
}

func parse(data []byte) ([]LoadOutcome, []parsed, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(jsonc.ToJSON(data), &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrCatalogNotList, err)
	}

	schema, err := compiledSchema()
	if err != nil {
		return nil, nil, err
	}

	outcomes := make([]LoadOutcome, 0, len(raw))
	accepted := make([]parsed, 0, len(raw))
	seen := make(map[string]bool, len(raw))

	reject := func(i int, id, reason string) {
		outcomes = append(outcomes, LoadOutcome{Rejected: &Rejected{Index: i, ID: id, Reason: reason}})
	}

	for i, rec := range raw {
		var doc any
		if err := json.Unmarshal(rec, &doc); err != nil {
			reject(i, "", fmt.Sprintf("malformed record: %v", err))
			continue
		}
		if err := schema.Validate(doc); err != nil {
			id, _ := peekID(doc)
			reject(i, id, fmt.Sprintf("schema validation failed: %v", err))
			continue
		}

		var c Constraint
		if err := json.Unmarshal(rec, &c); err != nil {
			reject(i, "", fmt.Sprintf("malformed record: %v", err))
			continue
		}
		if seen[c.ID] {
			reject(i, c.ID, "duplicate constraint id")
			continue
		}
		if !doublestar.ValidatePattern(c.Scope) {
			reject(i, c.ID, fmt.Sprintf("invalid scope pattern %q", c.Scope))
			continue
		}

		p := parsed{constraint: c}
		if c.When != "" {
			prg, err := compileWhen(c.When)
			if err != nil {
				reject(i, c.ID, err.Error())
				continue
			}
			p.when = prg
		}

		seen[c.ID] = true
		accepted = append(accepted, p)
		cc := c
		outcomes = append(outcomes, LoadOutcome{Constraint: &cc})
	}
	return outcomes, accepted, nil
}

func peekID(doc any) (string, bool) {
	m, ok := doc.(map[string]any)
	if !ok {
		return "", false
	}
	id, ok := m["id"].(string)
	return id, ok
}
