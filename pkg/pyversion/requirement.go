package pyversion

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	pserrors "github.com/matzehuels/pyshim/pkg/errors"
)

// ErrNotFound is returned by [Best] when no candidate satisfies the requirement.
var ErrNotFound = errors.New("no matching version")

// Requirement is a predicate over [Version] parsed from a single line of
// text. It is the conjunction of its comparators.
type Requirement struct {
	raw   string
	comps []comparator
}

type op int

const (
	opExact op = iota
	opGreater
	opGreaterEq
	opLess
	opLessEq
	opTilde
	opCaret
	opAny
)

// comparator is one clause of a requirement. minor and patch are -1 when the
// clause names a partial version.
type comparator struct {
	op    op
	major int
	minor int
	patch int
	pre   string

	lower bound
	upper bound
}

// bound is one end of the half-open range a comparator accepts. An unset
// bound is unbounded.
type bound struct {
	v    Version
	incl bool
	set  bool
}

// Parse parses requirement text such as "3.9", "^3.8", ">=3.7, <3.10" or
// "=3.9.1". A bare version is a caret requirement. Malformed or unsatisfiable
// input returns an INVALID_REQUIREMENT error carrying the text.
func Parse(text string) (Requirement, error) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return Requirement{}, invalid(text, "empty requirement")
	}

	var comps []comparator
	for _, part := range strings.Split(raw, ",") {
		tokens, err := joinOperators(strings.Fields(part))
		if err != nil {
			return Requirement{}, invalid(text, err.Error())
		}
		if len(tokens) == 0 {
			return Requirement{}, invalid(text, "empty clause")
		}
		for _, tok := range tokens {
			c, err := parseComparator(tok)
			if err != nil {
				return Requirement{}, invalid(text, err.Error())
			}
			comps = append(comps, c)
		}
	}

	req := Requirement{raw: raw, comps: comps}
	if !req.satisfiable() {
		return Requirement{}, invalid(text, "no version can satisfy it")
	}
	return req, nil
}

// MustParse is like Parse but panics on error.
func MustParse(text string) Requirement {
	r, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return r
}

// Exact returns the requirement that matches v and nothing else.
func Exact(v Version) Requirement {
	return MustParse("=" + v.semverText())
}

func invalid(text, reason string) error {
	return pserrors.New(pserrors.ErrCodeInvalidRequirement, "invalid requirement %q: %s", text, reason)
}

// joinOperators glues a lone operator token to the version that follows it,
// so ">= 3.8" reads the same as ">=3.8".
func joinOperators(fields []string) ([]string, error) {
	var out []string
	for i := 0; i < len(fields); i++ {
		tok := fields[i]
		if strings.Trim(tok, "<>=~^!") == "" {
			if i+1 == len(fields) {
				return nil, fmt.Errorf("operator %q without version", tok)
			}
			tok += fields[i+1]
			i++
		}
		out = append(out, tok)
	}
	return out, nil
}

func parseComparator(tok string) (comparator, error) {
	for _, bad := range []string{"===", "==", "!=", "~="} {
		if strings.HasPrefix(tok, bad) {
			return comparator{}, fmt.Errorf("unsupported operator %q", bad)
		}
	}

	c := comparator{op: opCaret, minor: -1, patch: -1}
	rest := tok
	switch {
	case strings.HasPrefix(tok, ">="):
		c.op, rest = opGreaterEq, tok[2:]
	case strings.HasPrefix(tok, "<="):
		c.op, rest = opLessEq, tok[2:]
	case strings.HasPrefix(tok, ">"):
		c.op, rest = opGreater, tok[1:]
	case strings.HasPrefix(tok, "<"):
		c.op, rest = opLess, tok[1:]
	case strings.HasPrefix(tok, "="):
		c.op, rest = opExact, tok[1:]
	case strings.HasPrefix(tok, "~"):
		c.op, rest = opTilde, tok[1:]
	case strings.HasPrefix(tok, "^"):
		c.op, rest = opCaret, tok[1:]
	}
	if rest == "" {
		return comparator{}, fmt.Errorf("operator without version in %q", tok)
	}
	if strings.ContainsAny(rest[:1], "<>=~^!") {
		return comparator{}, fmt.Errorf("unsupported operator in %q", tok)
	}

	parts := strings.Split(rest, ".")
	if len(parts) > 3 && !strings.Contains(parts[2], "-") {
		return comparator{}, fmt.Errorf("too many components in %q", rest)
	}

	// Wildcards: "*", "3.*", "3.9.*" (also "x" / "X").
	if wc := wildcardAt(parts); wc >= 0 {
		if c.op != opCaret && c.op != opExact {
			return comparator{}, fmt.Errorf("wildcard not allowed with operator in %q", tok)
		}
		if wc != len(parts)-1 {
			return comparator{}, fmt.Errorf("wildcard must be the last component in %q", rest)
		}
		c.op = opExact
		nums := make([]int, wc)
		for i := range wc {
			n, err := strconv.Atoi(parts[i])
			if err != nil || n < 0 {
				return comparator{}, fmt.Errorf("malformed component %q", parts[i])
			}
			nums[i] = n
		}
		switch wc {
		case 0:
			c.op = opAny
		case 1:
			c.major = nums[0]
		case 2:
			c.major, c.minor = nums[0], nums[1]
		}
		c.bounds()
		return c, nil
	}

	if len(parts) == 3 || strings.ContainsAny(rest, "-abcdefghijklmnopqrstuvwxyz") {
		v, err := ParseVersion(rest)
		if err != nil {
			return comparator{}, err
		}
		if len(strings.SplitN(rest, ".", 3)) != 3 {
			return comparator{}, fmt.Errorf("malformed component in %q", rest)
		}
		c.major, c.minor, c.patch, c.pre = v.Major, v.Minor, v.Patch, v.Pre
		c.bounds()
		return c, nil
	}

	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return comparator{}, fmt.Errorf("malformed component %q", p)
		}
		switch i {
		case 0:
			c.major = n
		case 1:
			c.minor = n
		}
	}
	c.bounds()
	return c, nil
}

func wildcardAt(parts []string) int {
	for i, p := range parts {
		if p == "*" || p == "x" || p == "X" {
			return i
		}
	}
	return -1
}

func ver(major, minor, patch int) Version {
	return Version{Major: major, Minor: minor, Patch: patch}
}

// bounds computes the range the comparator accepts. Partial versions widen
// to the range they name, as in Cargo.
func (c *comparator) bounds() {
	full := Version{Major: c.major, Minor: c.minor, Patch: c.patch, Pre: c.pre}
	incl := func(v Version) bound { return bound{v: v, incl: true, set: true} }
	excl := func(v Version) bound { return bound{v: v, set: true} }

	nextMajor := ver(c.major+1, 0, 0)
	nextMinor := ver(c.major, c.minor+1, 0)

	switch c.op {
	case opAny:
	case opExact:
		switch {
		case c.patch >= 0:
			c.lower, c.upper = incl(full), incl(full)
		case c.minor >= 0:
			c.lower, c.upper = incl(ver(c.major, c.minor, 0)), excl(nextMinor)
		default:
			c.lower, c.upper = incl(ver(c.major, 0, 0)), excl(nextMajor)
		}
	case opGreater:
		switch {
		case c.patch >= 0:
			c.lower = excl(full)
		case c.minor >= 0:
			c.lower = incl(nextMinor)
		default:
			c.lower = incl(nextMajor)
		}
	case opGreaterEq:
		switch {
		case c.patch >= 0:
			c.lower = incl(full)
		case c.minor >= 0:
			c.lower = incl(ver(c.major, c.minor, 0))
		default:
			c.lower = incl(ver(c.major, 0, 0))
		}
	case opLess:
		switch {
		case c.patch >= 0:
			c.upper = excl(full)
		case c.minor >= 0:
			c.upper = excl(ver(c.major, c.minor, 0))
		default:
			c.upper = excl(ver(c.major, 0, 0))
		}
	case opLessEq:
		switch {
		case c.patch >= 0:
			c.upper = incl(full)
		case c.minor >= 0:
			c.upper = excl(nextMinor)
		default:
			c.upper = excl(nextMajor)
		}
	case opTilde:
		switch {
		case c.patch >= 0:
			c.lower, c.upper = incl(full), excl(nextMinor)
		case c.minor >= 0:
			c.lower, c.upper = incl(ver(c.major, c.minor, 0)), excl(nextMinor)
		default:
			c.lower, c.upper = incl(ver(c.major, 0, 0)), excl(nextMajor)
		}
	case opCaret:
		// CPython treats the minor release as its compatibility boundary,
		// so a caret locks major.minor once a minor is named.
		switch {
		case c.patch >= 0:
			c.lower, c.upper = incl(full), excl(nextMinor)
		case c.minor >= 0:
			c.lower, c.upper = incl(ver(c.major, c.minor, 0)), excl(nextMinor)
		default:
			c.lower, c.upper = incl(ver(c.major, 0, 0)), excl(nextMajor)
		}
	}
}

func (c comparator) contains(v Version) bool {
	if c.lower.set {
		cmp := v.Compare(c.lower.v)
		if cmp < 0 || (cmp == 0 && !c.lower.incl) {
			return false
		}
	}
	if c.upper.set {
		cmp := v.Compare(c.upper.v)
		if cmp > 0 || (cmp == 0 && !c.upper.incl) {
			return false
		}
	}
	return true
}

// Matches reports whether v satisfies every comparator of r. A prerelease
// only matches when some comparator names a prerelease of the same
// major.minor.patch.
func (r Requirement) Matches(v Version) bool {
	if len(r.comps) == 0 {
		return false
	}
	for _, c := range r.comps {
		if !c.contains(v) {
			return false
		}
	}
	if !v.IsPrerelease() {
		return true
	}
	for _, c := range r.comps {
		if c.pre != "" && c.major == v.Major && c.minor == v.Minor && c.patch == v.Patch {
			return true
		}
	}
	return false
}

// And returns a requirement satisfied only by versions matching both r and o.
func (r Requirement) And(o Requirement) Requirement {
	comps := make([]comparator, 0, len(r.comps)+len(o.comps))
	comps = append(comps, r.comps...)
	comps = append(comps, o.comps...)
	return Requirement{raw: r.raw + ", " + o.raw, comps: comps}
}

// NamesPrerelease reports whether any comparator carries a prerelease tag.
func (r Requirement) NamesPrerelease() bool {
	for _, c := range r.comps {
		if c.pre != "" {
			return true
		}
	}
	return false
}

// String returns the requirement text as it was parsed.
func (r Requirement) String() string {
	return r.raw
}

// IsZero reports whether r is the zero Requirement.
func (r Requirement) IsZero() bool {
	return len(r.comps) == 0
}

// satisfiable reports whether any version matches r. Versions are discrete
// and prereleases only match when named, so the check runs over the least
// version each bound admits: if anything matches, one of those does.
func (r Requirement) satisfiable() bool {
	for _, v := range r.witnesses() {
		if r.Matches(v) {
			return true
		}
	}
	return false
}

func (r Requirement) witnesses() []Version {
	out := []Version{{}}
	for _, c := range r.comps {
		if c.pre != "" {
			out = append(out, Version{Major: c.major, Minor: c.minor, Patch: c.patch, Pre: "dev0"})
		}
		if !c.lower.set {
			continue
		}
		v := c.lower.v
		final := Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch}
		out = append(out, v, final, Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1})
		if next, ok := v.nextPre(); ok {
			out = append(out, next)
		}
	}
	return out
}

// Best returns the highest version in candidates that satisfies req, or
// ErrNotFound when none does.
func Best(req Requirement, candidates []Version) (Version, error) {
	var best Version
	found := false
	for _, v := range candidates {
		if !req.Matches(v) {
			continue
		}
		if !found || v.Compare(best) > 0 {
			best, found = v, true
		}
	}
	if !found {
		return Version{}, ErrNotFound
	}
	return best, nil
}

func (v Version) semverText() string {
	return strings.TrimPrefix(v.semver(), "v")
}
