// Package changeset persists pending release records in the changesets
// markdown format: a YAML frontmatter mapping package names to bump kinds,
// followed by the summary.
package changeset

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/monorel/pkg/bump"
)

// DefaultDir is the changesets directory relative to the repository root.
const DefaultDir = ".changeset"

const (
	frontmatterDelimiter = "---"
	filePrefix           = "monorel-"
	fileExt              = ".md"
	maxCreateAttempts    = 3
)

// Sentinel errors.
var (
	// ErrNoRelease is returned when a record contains a release with bump kind none.
	ErrNoRelease = errors.New("release without bump kind")
	// ErrDuplicateRelease is returned when a record names a package twice.
	ErrDuplicateRelease = errors.New("package released twice in one record")
)

// Release is one package entry of a record.
type Release struct {
	Name string    `json:"name" yaml:"name"`
	Type bump.Kind `json:"type" yaml:"type"`
}

// Record is a pending release: the packages to bump and the summary that
// ends up in their changelogs.
type Record struct {
	Summary  string    `json:"summary" yaml:"summary"`
	Releases []Release `json:"releases" yaml:"releases"`
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	seen := make(map[string]struct{}, len(r.Releases))

	for _, rel := range r.Releases {
		if !rel.Type.Releases() {
			return fmt.Errorf("%w: %s", ErrNoRelease, rel.Name)
		}

		if _, dup := seen[rel.Name]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateRelease, rel.Name)
		}

		seen[rel.Name] = struct{}{}
	}

	return nil
}

// Marshal renders the record as a changeset markdown document.
func (r Record) Marshal() ([]byte, error) {
	releases := append([]Release(nil), r.Releases...)
	sort.Slice(releases, func(i, j int) bool { return releases[i].Name < releases[j].Name })

	var buf bytes.Buffer

	buf.WriteString(frontmatterDelimiter + "\n")

	if len(releases) > 0 {
		mapping := &yaml.Node{Kind: yaml.MappingNode}

		for _, rel := range releases {
			mapping.Content = append(mapping.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: rel.Name, Style: yaml.DoubleQuotedStyle},
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: rel.Type.String()},
			)
		}

		out, err := yaml.Marshal(mapping)
		if err != nil {
			return nil, fmt.Errorf("marshal frontmatter: %w", err)
		}

		buf.Write(out)
	}

	buf.WriteString(frontmatterDelimiter + "\n\n")
	buf.WriteString(strings.TrimSpace(r.Summary))
	buf.WriteString("\n")

	return buf.Bytes(), nil
}

// Writer appends records to a changesets directory. It never reads or merges
// existing records.
type Writer struct {
	dir   string
	newID func() string
}

// NewWriter creates a Writer for dir. An empty dir selects DefaultDir.
func NewWriter(dir string) *Writer {
	if dir == "" {
		dir = DefaultDir
	}

	return &Writer{dir: dir, newID: randomID}
}

// Dir returns the target directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Write persists rec as a new file and returns its path.
func (w *Writer) Write(rec Record) (string, error) {
	err := rec.Validate()
	if err != nil {
		return "", err
	}

	data, err := rec.Marshal()
	if err != nil {
		return "", err
	}

	err = os.MkdirAll(w.dir, 0o755)
	if err != nil {
		return "", fmt.Errorf("create changeset dir: %w", err)
	}

	for range maxCreateAttempts {
		path := filepath.Join(w.dir, filePrefix+w.newID()+fileExt)

		created, createErr := createExclusive(path, data)
		if createErr != nil {
			return "", createErr
		}

		if created {
			return path, nil
		}
	}

	return "", fmt.Errorf("create changeset in %s: %w", w.dir, fs.ErrExist)
}

func createExclusive(path string, data []byte) (bool, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return false, nil
		}

		return false, fmt.Errorf("create changeset: %w", err)
	}

	_, err = file.Write(data)
	closeErr := file.Close()

	if err = errors.Join(err, closeErr); err != nil {
		return false, fmt.Errorf("write changeset %s: %w", path, err)
	}

	return true, nil
}

func randomID() string {
	id, _, _ := strings.Cut(uuid.NewString(), "-")

	return id
}
