package shim

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	pserrors "github.com/matzehuels/pyshim/pkg/errors"
	"github.com/matzehuels/pyshim/pkg/pyversion"
	"github.com/matzehuels/pyshim/pkg/toolchain"
)

// Invocation is what a shim learns from the name it was invoked under.
type Invocation struct {
	// Command is the logical command from the alias table, e.g. "pip".
	Command string
	// Qualifier is how much version the invoked name carried.
	Qualifier toolchain.Qualifier
	// Major and Minor are the versions from the name; -1 when absent.
	Major int
	Minor int
}

// Constraint returns the requirement implied by a version-suffixed name, such
// as "=3" for python3 or "=3.9" for python3.9. ok is false for bare names.
func (inv Invocation) Constraint() (req pyversion.Requirement, ok bool) {
	switch inv.Qualifier {
	case toolchain.QualifyMajor:
		return pyversion.MustParse("=" + strconv.Itoa(inv.Major)), true
	case toolchain.QualifyMajorMinor:
		return pyversion.MustParse("=" + strconv.Itoa(inv.Major) + "." + strconv.Itoa(inv.Minor)), true
	default:
		return pyversion.Requirement{}, false
	}
}

type namePattern struct {
	alias toolchain.Alias
	re    *regexp.Regexp
}

var patterns = compilePatterns(toolchain.Aliases)

// compilePatterns turns each template into an anchored regexp in which the
// version marker is an optional N or N.M. A dash before the marker belongs
// to the version, so "2to3" and "2to3-3.9" both decode.
func compilePatterns(aliases []toolchain.Alias) []namePattern {
	const version = `(\d+)(?:\.(\d+))?`
	out := make([]namePattern, 0, len(aliases))
	for _, a := range aliases {
		prefix, suffix, _ := strings.Cut(a.Template, toolchain.VersionMarker)
		var expr string
		if strings.HasSuffix(prefix, "-") {
			expr = regexp.QuoteMeta(strings.TrimSuffix(prefix, "-")) + `(?:-` + version + `)?`
		} else {
			expr = regexp.QuoteMeta(prefix) + `(?:` + version + `)?`
		}
		expr = "^" + expr + regexp.QuoteMeta(suffix) + "$"
		out = append(out, namePattern{alias: a, re: regexp.MustCompile(expr)})
	}
	return out
}

// Identify decodes a shim's invoked name, such as "/usr/local/bin/python3.9"
// or "pip3", into a logical command and version qualifier.
func Identify(argv0 string) (Invocation, error) {
	name := filepath.Base(argv0)
	name = strings.TrimSuffix(name, ".exe")

	for _, p := range patterns {
		m := p.re.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		inv := Invocation{Command: p.alias.Command, Qualifier: toolchain.QualifyNone, Major: -1, Minor: -1}
		if m[1] != "" {
			inv.Major, _ = strconv.Atoi(m[1])
			inv.Qualifier = toolchain.QualifyMajor
		}
		if m[2] != "" {
			inv.Minor, _ = strconv.Atoi(m[2])
			inv.Qualifier = toolchain.QualifyMajorMinor
		}
		return inv, nil
	}
	return Invocation{}, pserrors.New(pserrors.ErrCodeUnknownShimTarget, "%q is not a known shim name", name)
}
