// Package affected maps the files changed in a commit range to the set of
// monorepo packages that own them.
//
// A package is any directory holding a manifest. A changed file belongs to the
// package whose manifest is found first when walking upward from the file's
// directory towards the repository root. The resulting set is keyed by package
// name, so different spellings of the same directory collapse into one entry.
package affected

import (
	"path"
	"sort"
)

const tracerName = "monorel/affected"

// Package identifies one independently versioned package of the monorepo.
type Package struct {
	// Name is the manifest-declared name, unique within the monorepo.
	Name string `json:"name" yaml:"name"`
	// RootPath is the package directory relative to the repository root,
	// slash separated. The repository root itself is ".".
	RootPath string `json:"rootPath" yaml:"rootPath"`
	// Version is the manifest-declared version, empty when absent.
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
}

// DirName returns the last element of the package root path.
func (p Package) DirName() string {
	return path.Base(p.RootPath)
}

// Roots returns the root paths of pkgs in the same order.
func Roots(pkgs []Package) []string {
	roots := make([]string, 0, len(pkgs))
	for _, pkg := range pkgs {
		roots = append(roots, pkg.RootPath)
	}

	return roots
}

func sortPackages(pkgs []Package) {
	sort.Slice(pkgs, func(i, j int) bool {
		return pkgs[i].Name < pkgs[j].Name
	})
}
