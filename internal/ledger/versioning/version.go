// Package versioning derives an asset's semantic version from its ordered
// approved change requests. Versions are never stored as counters; any
// persisted copy is a cache of Derive.
package versioning

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Unversioned renders an asset with no approved creation.
const Unversioned = "unversioned"

// ErrUnversioned is returned when the history has no approved creation.
var ErrUnversioned = errors.New("asset has no approved creation")

// Initial is the version consumed by the approved creation request.
var Initial = Version{Major: 1}

// Version is a derived (major, minor, patch) triple.
type Version struct {
	Major int
	Minor int
	Patch int
}

// String renders the version as v<major>.<minor>.<patch>.
func (v Version) String() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Bump returns the next version for a change of the given severity.
func (v Version) Bump(s Severity) Version {
	switch s {
	case SeverityMajor:
		return Version{Major: v.Major + 1}
	case SeverityMinor:
		return Version{Major: v.Major, Minor: v.Minor + 1}
	default:
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
	}
}

// Compare orders versions by semver precedence.
func (v Version) Compare(o Version) int {
	return semver.Compare(v.String(), o.String())
}

// Parse reads a rendered version. Prerelease and build suffixes are rejected
// because derived versions never carry them.
func Parse(s string) (Version, error) {
	if !semver.IsValid(s) || semver.Canonical(s) != s || semver.Prerelease(s) != "" {
		return Version{}, fmt.Errorf("invalid version %q", s)
	}
	parts := strings.Split(strings.TrimPrefix(s, "v"), ".")
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Version{}, fmt.Errorf("invalid version component %q: %w", p, err)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}
