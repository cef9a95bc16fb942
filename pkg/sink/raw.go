package sink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Sternrassler/serp-harvest/pkg/client"
)

// RawDumper writes each fetched page as indented JSON to
// <dir>/<engine>_result_page_<n>.json. With a non-empty prefix the name is
// <prefix>_<engine>_result_page_<n>.json so concurrent runs do not collide.
type RawDumper struct {
	dir    string
	engine string
}

// NewRawDumper creates dir if needed.
func NewRawDumper(dir, engine string) (*RawDumper, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create raw dir: %w", err)
	}
	return &RawDumper{dir: dir, engine: engine}, nil
}

// Path returns the file name used for page.
func (d *RawDumper) Path(prefix string, page *client.RawPage) string {
	name := fmt.Sprintf("%s_result_page_%d.json", d.engine, page.Index+1)
	if prefix != "" {
		name = prefix + "_" + name
	}
	return filepath.Join(d.dir, name)
}

// Dump writes page.
func (d *RawDumper) Dump(prefix string, page *client.RawPage) error {
	data, err := json.MarshalIndent(page.Body, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal page %d: %w", page.Index+1, err)
	}
	if err := os.WriteFile(d.Path(prefix, page), data, 0o644); err != nil {
		return fmt.Errorf("write page %d: %w", page.Index+1, err)
	}
	return nil
}
