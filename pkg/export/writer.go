// Package export serializes synced collections and stage environments to
// disk for downstream automated test runs.
//
// One collection file and one file per stage environment are written.
// Secret-typed environment values are blanked on the way out; exports are
// meant to be committed next to test suites.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/specsync/specsync/pkg/catalog"
)

// Writer writes export artifacts under a target directory.
type Writer struct {
	dir string
}

// NewWriter creates a writer rooted at dir. The directory is created on
// first write.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// WriteCollection writes the collection document to <slug>-collection.json
// and returns the written path.
func (w *Writer) WriteCollection(slug string, collection json.RawMessage) (string, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(collection, &doc); err != nil {
		return "", fmt.Errorf("invalid collection document: %w", err)
	}
	if _, ok := doc["collection"]; !ok {
		doc = map[string]json.RawMessage{"collection": collection}
	}

	return w.writeJSON(slug+"-collection.json", doc)
}

// WriteEnvironment writes one stage environment to env-<stage>.json with
// secret values redacted, and returns the written path.
func (w *Writer) WriteEnvironment(env catalog.Environment) (string, error) {
	redacted := env
	redacted.Values = make([]catalog.Variable, len(env.Values))
	copy(redacted.Values, env.Values)
	for i := range redacted.Values {
		if redacted.Values[i].Type == "secret" {
			redacted.Values[i].Value = ""
		}
	}

	name := "env-" + strings.ToLower(env.Name) + ".json"
	return w.writeJSON(name, map[string]any{"environment": redacted})
}

func (w *Writer) writeJSON(name string, v any) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode %s: %w", name, err)
	}
	data = append(data, '\n')

	path := filepath.Join(w.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
