package release

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Sumatoshi-tech/monorel/pkg/affected"
)

// TagFormat selects how the bare package name and version are joined.
type TagFormat string

// Supported tag formats.
const (
	// TagFormatSlash produces "{bareName}/{version}".
	TagFormatSlash TagFormat = "slash"
	// TagFormatV produces "{bareName}v{version}".
	TagFormatV TagFormat = "v"
)

// Sentinel errors for tag naming.
var (
	ErrUnknownTagFormat = errors.New("unknown tag format")
	ErrMissingVersion   = errors.New("package has no version")
	ErrInvalidVersion   = errors.New("package version is not usable in a tag name")
	ErrEmptyTagName     = errors.New("package name is empty after scope stripping")
)

// ParseTagFormat parses "slash" or "v". An empty string selects TagFormatSlash.
func ParseTagFormat(s string) (TagFormat, error) {
	switch TagFormat(s) {
	case "", TagFormatSlash:
		return TagFormatSlash, nil
	case TagFormatV:
		return TagFormatV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTagFormat, s)
	}
}

// BareName strips the "@scope/" prefix from name. Scope may be given with or
// without the leading "@" and trailing "/". Names outside the scope are
// returned unchanged.
func BareName(name, scope string) string {
	scope = strings.TrimSuffix(strings.TrimPrefix(scope, "@"), "/")
	if scope == "" {
		return name
	}

	return strings.TrimPrefix(name, "@"+scope+"/")
}

// TagNamer derives tag names for packages.
type TagNamer struct {
	Scope  string
	Format TagFormat
}

// refForbidden are the characters git rejects inside a reference name.
const refForbidden = " \t\n~^:?*[\\"

// Name returns the tag for pkg. The manifest version is used as declared, so
// calendar and two-part versions tag as well as semantic ones.
func (n TagNamer) Name(pkg affected.Package) (string, error) {
	bare := BareName(pkg.Name, n.Scope)
	if bare == "" {
		return "", fmt.Errorf("%w: %q", ErrEmptyTagName, pkg.Name)
	}

	if pkg.Version == "" {
		return "", fmt.Errorf("%w: %s", ErrMissingVersion, pkg.Name)
	}

	if !validRefComponent(pkg.Version) {
		return "", fmt.Errorf("%w: %s@%s", ErrInvalidVersion, pkg.Name, pkg.Version)
	}

	switch n.Format {
	case "", TagFormatSlash:
		return bare + "/" + pkg.Version, nil
	case TagFormatV:
		return bare + "v" + pkg.Version, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTagFormat, n.Format)
	}
}

func validRefComponent(v string) bool {
	if strings.ContainsAny(v, refForbidden) || strings.Contains(v, "..") || strings.Contains(v, "@{") {
		return false
	}

	return !strings.HasPrefix(v, ".") && !strings.HasSuffix(v, ".") &&
		!strings.HasPrefix(v, "/") && !strings.HasSuffix(v, "/") && !strings.HasSuffix(v, ".lock")
}
