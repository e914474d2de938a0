package gate

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Evidence pack file names.
const (
	IndexFile      = "00_INDEX.json"
	ResultFile     = "gate_result.json"
	ReportFile     = "report.md"
	ReportHTMLFile = "report.html"

	// EvidencePackDir is the directory under a GateContext's evidence dir
	// that holds one pack per run.
	EvidencePackDir = "archgate"
)

// IndexEntry is a single artifact reference in 00_INDEX.json.
type IndexEntry struct {
	Path        string `json:"path"`
	SHA256      string `json:"sha256"`
	SizeBytes   int64  `json:"size_bytes"`
	ContentType string `json:"content_type"`
}

// IndexManifest is the 00_INDEX.json structure.
type IndexManifest struct {
	RunID     string       `json:"run_id"`
	Passed    bool         `json:"passed"`
	CreatedAt time.Time    `json:"created_at"`
	Entries   []IndexEntry `json:"entries"`
}

var markdown = sync.OnceValue(func() goldmark.Markdown {
	return goldmark.New(goldmark.WithExtensions(extension.GFM))
})

// PackDir returns the directory WriteEvidencePack uses for res under
// evidenceDir.
func PackDir(evidenceDir string, res *GateResult) string {
	return filepath.Join(evidenceDir, EvidencePackDir, res.RunID)
}

// WriteEvidencePack writes the result, its markdown and HTML report, and an
// index hashing each of them into dir.
func WriteEvidencePack(dir string, res *GateResult) (*IndexManifest, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create evidence pack dir: %w", err)
	}

	resultJSON, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal gate result: %w", err)
	}

	var html bytes.Buffer
	html.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>Governance Gate Report</title></head><body>\n")
	if err := markdown().Convert([]byte(res.ReportMarkdown), &html); err != nil {
		return nil, fmt.Errorf("render report html: %w", err)
	}
	html.WriteString("</body></html>\n")

	files := map[string][]byte{
		ResultFile:     resultJSON,
		ReportFile:     []byte(res.ReportMarkdown),
		ReportHTMLFile: html.Bytes(),
	}

	manifest := &IndexManifest{
		RunID:     res.RunID,
		Passed:    res.Passed,
		CreatedAt: res.Timestamp.UTC(),
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), data, 0600); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
		sum := sha256.Sum256(data)
		manifest.Entries = append(manifest.Entries, IndexEntry{
			Path:        name,
			SHA256:      hex.EncodeToString(sum[:]),
			SizeBytes:   int64(len(data)),
			ContentType: contentType(name),
		})
	}
	sort.Slice(manifest.Entries, func(i, j int) bool {
		return manifest.Entries[i].Path < manifest.Entries[j].Path
	})

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, IndexFile), data, 0600); err != nil {
		return nil, fmt.Errorf("write %s: %w", IndexFile, err)
	}
	return manifest, nil
}

// VerifyEvidencePack recomputes the hashes listed in dir's index and returns
// the paths that are missing or no longer match.
func VerifyEvidencePack(dir string) ([]string, error) {
	data, err := os.ReadFile(filepath.Join(dir, IndexFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", IndexFile, err)
	}
	var manifest IndexManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse %s: %w", IndexFile, err)
	}

	var mismatched []string
	for _, entry := range manifest.Entries {
		content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(entry.Path)))
		if err != nil {
			mismatched = append(mismatched, entry.Path)
			continue
		}
		sum := sha256.Sum256(content)
		if hex.EncodeToString(sum[:]) != entry.SHA256 {
			mismatched = append(mismatched, entry.Path)
		}
	}
	return mismatched, nil
}

func contentType(path string) string {
	switch filepath.Ext(path) {
	case ".json":
		return "application/json"
	case ".md":
		return "text/markdown"
	case ".html":
		return "text/html"
	default:
		return "application/octet-stream"
	}
}
