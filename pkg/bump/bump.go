// Package bump classifies the intent of a change (commit message or pull
// request title) into a semantic version bump.
package bump

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the release bump a change calls for.
type Kind int

const (
	// None means the change does not release anything.
	None Kind = iota
	// Patch is a backwards compatible fix.
	Patch
	// Minor is a backwards compatible feature.
	Minor
	// Major is a breaking change.
	Major
)

// Markers checked by Classify, in precedence order.
const (
	BreakingMarker = "BREAKING CHANGE"
	FeaturePrefix  = "feat"
	FixPrefix      = "fix"
)

// ErrUnknownKind is returned when parsing an unrecognised kind name.
var ErrUnknownKind = errors.New("unknown bump kind")

var kindNames = [...]string{
	None:  "none",
	Patch: "patch",
	Minor: "minor",
	Major: "major",
}

// Classify maps intent text to a Kind. First match wins:
// a breaking-change marker anywhere, then a feat prefix, then a fix prefix.
// Matching is case-sensitive.
func Classify(intent string) Kind {
	switch {
	case strings.Contains(intent, BreakingMarker):
		return Major
	case strings.HasPrefix(intent, FeaturePrefix):
		return Minor
	case strings.HasPrefix(intent, FixPrefix):
		return Patch
	default:
		return None
	}
}

// Releases reports whether the kind triggers any release action.
func (k Kind) Releases() bool {
	return k != None
}

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	if k < None || k > Major {
		return fmt.Sprintf("Kind(%d)", int(k))
	}

	return kindNames[k]
}

// Parse converts a kind name back to a Kind.
func Parse(name string) (Kind, error) {
	for kind, kindName := range kindNames {
		if kindName == name {
			return Kind(kind), nil
		}
	}

	return None, fmt.Errorf("%w: %q", ErrUnknownKind, name)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}

	*k = parsed

	return nil
}
