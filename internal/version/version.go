// Package version parses storage-engine versions and answers the
// version-gated questions the orchestrator asks of them.
package version

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Iron-Ham/instamo/internal/errors"
)

// Version is a parsed "major.minor[.patch]" storage-engine version.
type Version struct {
	Major int
	Minor int
	Patch int
}

// Default is the version used when none is configured.
var Default = Version{Major: 1, Minor: 5, Patch: 0}

// firstWithoutLogger is the first release that folded the write-ahead-log
// service into the tablet servers.
var firstWithoutLogger = Version{Major: 1, Minor: 5}

// Parse parses "major.minor" or "major.minor.patch".
func Parse(s string) (Version, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) < 2 || len(parts) > 3 {
		return Version{}, errors.Wrapf(errors.ErrInvalidInput, "version %q", s)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Version{}, errors.Wrapf(errors.ErrInvalidInput, "version %q", s)
		}
		nums[i] = n
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare returns -1, 0 or 1.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmpInt(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmpInt(v.Minor, o.Minor)
	default:
		return cmpInt(v.Patch, o.Patch)
	}
}

// AtLeast reports whether v >= o.
func (v Version) AtLeast(o Version) bool {
	return v.Compare(o) >= 0
}

// RequiresLoggerService reports whether this version runs write-ahead
// logging as a separate process.
func (v Version) RequiresLoggerService() bool {
	return !v.AtLeast(firstWithoutLogger)
}

// HasMajorCompactionDelay reports whether this version understands
// tserver.compaction.major.delay.
func (v Version) HasMajorCompactionDelay() bool {
	return v.AtLeast(firstWithoutLogger)
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
