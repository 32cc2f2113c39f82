// Package manifest reads the per-directory package manifests (package.json)
// that mark the root of an independently versioned package.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// DefaultFileName is the manifest file looked up in every directory.
const DefaultFileName = "package.json"

// Sentinel errors.
var (
	// ErrNotFound is returned when a directory has no manifest.
	ErrNotFound = errors.New("manifest not found")
	// ErrUnreadable is returned when a manifest exists but cannot be read.
	ErrUnreadable = errors.New("manifest unreadable")
	// ErrMalformed is returned when a manifest is not valid JSON or misses required fields.
	ErrMalformed = errors.New("malformed manifest")
)

// schemaJSON describes the fields monorel relies on. Everything else in the
// manifest is ignored.
const schemaJSON = `{
  "type": "object",
  "required": ["name"],
  "properties": {
    "name":    {"type": "string", "minLength": 1},
    "version": {"type": "string"},
    "private": {"type": "boolean"}
  }
}`

// Manifest is the subset of a package manifest monorel needs.
type Manifest struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
	Private bool   `json:"private,omitempty"`

	// Path is the absolute path of the manifest file.
	Path string `json:"-"`
}

// Dir returns the directory that holds the manifest.
func (m *Manifest) Dir() string {
	return filepath.Dir(m.Path)
}

// Store reads manifests from the local filesystem.
type Store struct {
	fileName string
	schema   *gojsonschema.Schema
}

// NewStore creates a Store looking for fileName in each directory.
// An empty fileName selects DefaultFileName.
func NewStore(fileName string) (*Store, error) {
	if fileName == "" {
		fileName = DefaultFileName
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}

	return &Store{fileName: fileName, schema: schema}, nil
}

// FileName returns the manifest file name the store looks for.
func (s *Store) FileName() string {
	return s.fileName
}

// Read loads and validates the manifest located directly in dir.
// It returns ErrNotFound when dir contains no manifest.
func (s *Store) Read(dir string) (*Manifest, error) {
	path := filepath.Join(dir, s.fileName)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("%w: %s: %w", ErrUnreadable, path, err)
	}

	return s.parse(path, data)
}

func (s *Store) parse(path string, data []byte) (*Manifest, error) {
	var doc any

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	decodeErr := dec.Decode(&doc)
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, path, decodeErr)
	}

	result, err := s.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, path, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			details = append(details, verr.Field()+": "+verr.Description())
		}

		return nil, fmt.Errorf("%w: %s: %s", ErrMalformed, path, strings.Join(details, "; "))
	}

	var m Manifest

	err = json.Unmarshal(data, &m)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, path, err)
	}

	m.Path = path

	return &m, nil
}
