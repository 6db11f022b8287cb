package pyversion

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is a concrete interpreter release. Pre holds the prerelease tag
// ("rc1", "b2") and is empty for final releases.
type Version struct {
	Major int
	Minor int
	Patch int
	Pre   string
}

var (
	// 3.9.1, 3.9, 3.9.0-rc1, 3.9.0rc1
	versionRE = regexp.MustCompile(`^(\d+)(?:\.(\d+))?(?:\.(\d+))?(?:-([0-9A-Za-z][0-9A-Za-z.-]*)|((?:a|b|c|rc|alpha|beta|dev)\d*))?$`)

	// Tags that are rendered in CPython's own spelling (no dash).
	pythonPreRE = regexp.MustCompile(`^(?:a|b|c|rc|alpha|beta|dev)\d*$`)

	// rc1, rc.1, rc-1
	preTagRE = regexp.MustCompile(`^(dev|alpha|a|beta|b|c|rc)[.-]?(\d*)$`)
)

// preKinds orders prerelease phases; the index is the rank.
var preKinds = []string{"dev", "a", "b", "rc"}

var preRank = map[string]int{"dev": 0, "a": 1, "alpha": 1, "b": 2, "beta": 2, "c": 3, "rc": 3}

// ParseVersion parses a version string. Missing minor and patch components
// default to zero. A trailing "+" (as printed by some distribution builds,
// e.g. "2.7.15+") is ignored.
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSuffix(strings.TrimSpace(s), "+")
	s = strings.TrimPrefix(s, "v")

	m := versionRE.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("malformed version %q", s)
	}

	var v Version
	var err error
	if v.Major, err = atoi(m[1]); err != nil {
		return Version{}, fmt.Errorf("malformed version %q: %w", s, err)
	}
	if v.Minor, err = atoi(m[2]); err != nil {
		return Version{}, fmt.Errorf("malformed version %q: %w", s, err)
	}
	if v.Patch, err = atoi(m[3]); err != nil {
		return Version{}, fmt.Errorf("malformed version %q: %w", s, err)
	}
	v.Pre = m[4] + m[5]

	if v.Pre != "" && (m[2] == "" || m[3] == "") {
		return Version{}, fmt.Errorf("malformed version %q: prerelease requires major.minor.patch", s)
	}
	if !semver.IsValid(v.semver()) {
		return Version{}, fmt.Errorf("malformed version %q", s)
	}
	return v, nil
}

// MustParseVersion is like ParseVersion but panics on error.
// Intended for tests and static tables.
func MustParseVersion(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func atoi(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// String renders the version the way CPython names its releases, so the
// result can be used for archive and directory names.
func (v Version) String() string {
	base := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	switch {
	case v.Pre == "":
		return base
	case pythonPreRE.MatchString(v.Pre):
		return base + v.Pre
	default:
		return base + "-" + v.Pre
	}
}

// MajorMinor returns "MAJOR.MINOR", the suffix CPython puts on its binaries.
func (v Version) MajorMinor() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// IsPrerelease reports whether v carries a prerelease tag.
func (v Version) IsPrerelease() bool {
	return v.Pre != ""
}

// Compare returns -1, 0 or +1 depending on whether v sorts before, equal to,
// or after o. Prereleases sort before the corresponding final release and
// among themselves by phase (dev < a < b < rc), then numerically.
func (v Version) Compare(o Version) int {
	if c := semver.Compare(v.base(), o.base()); c != 0 {
		return c
	}
	switch {
	case v.Pre == o.Pre:
		return 0
	case v.Pre == "":
		return 1
	case o.Pre == "":
		return -1
	}
	pa, aok := parsePreTag(v.Pre)
	pb, bok := parsePreTag(o.Pre)
	if aok && bok {
		return cmp.Or(cmp.Compare(pa.rank, pb.rank), cmp.Compare(pa.num, pb.num))
	}
	return semver.Compare(v.semver(), o.semver())
}

type preTag struct {
	rank int
	num  int
}

func parsePreTag(s string) (preTag, bool) {
	m := preTagRE.FindStringSubmatch(s)
	if m == nil {
		return preTag{}, false
	}
	n, err := atoi(m[2])
	if err != nil {
		return preTag{}, false
	}
	return preTag{rank: preRank[m[1]], num: n}, true
}

// nextPre returns the prerelease directly after v in the same phase.
func (v Version) nextPre() (Version, bool) {
	t, ok := parsePreTag(v.Pre)
	if !ok {
		return Version{}, false
	}
	v.Pre = preKinds[t.rank] + strconv.Itoa(t.num+1)
	return v, true
}

func (v Version) base() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Less reports whether v sorts before o.
func (v Version) Less(o Version) bool {
	return v.Compare(o) < 0
}

func (v Version) semver() string {
	s := fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Pre != "" {
		s += "-" + v.Pre
	}
	return s
}

// Sort orders versions ascending in place.
func Sort(vs []Version) {
	slices.SortFunc(vs, Version.Compare)
}
