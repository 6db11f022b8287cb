package toolchain

import (
	"strconv"
	"strings"

	"github.com/matzehuels/pyshim/pkg/pyversion"
)

// VersionMarker is replaced by a version qualifier in alias templates.
const VersionMarker = "###"

// Qualifier selects how much of a version an alias name carries.
type Qualifier int

const (
	// QualifyNone drops the version: "python", "2to3".
	QualifyNone Qualifier = iota
	// QualifyMajor keeps the major version: "python3", "2to3-3".
	QualifyMajor
	// QualifyMajorMinor keeps major.minor: "python3.9", "2to3-3.9".
	QualifyMajorMinor
)

func (q Qualifier) String() string {
	switch q {
	case QualifyNone:
		return "none"
	case QualifyMajor:
		return "major"
	case QualifyMajorMinor:
		return "major.minor"
	default:
		return "Qualifier(" + strconv.Itoa(int(q)) + ")"
	}
}

// Alias maps a logical command to the basename template of the binary
// CPython installs for it.
type Alias struct {
	Command  string
	Template string
	// Unversioned marks tools pip installs under their plain name only
	// (pytest, poetry). The versioned names are linked to the plain one.
	Unversioned bool
}

// Aliases is the static alias table. It drives both link creation during
// install and shim name decoding, so the two can never disagree.
var Aliases = []Alias{
	{Command: "python", Template: "python###"},
	{Command: "pip", Template: "pip###"},
	{Command: "idle", Template: "idle###"},
	{Command: "pydoc", Template: "pydoc###"},
	{Command: "python-config", Template: "python###-config"},
	{Command: "2to3", Template: "2to3-###"},
	{Command: "easy_install", Template: "easy_install-###"},
	{Command: "pyvenv", Template: "pyvenv-###"},
	{Command: "pythondm-config", Template: "python###dm-config"},
	{Command: "pipenv", Template: "pipenv###", Unversioned: true},
	{Command: "poetry", Template: "poetry###", Unversioned: true},
	{Command: "pytest", Template: "pytest###", Unversioned: true},
}

// LookupAlias returns the table entry for command.
func LookupAlias(command string) (Alias, bool) {
	for _, a := range Aliases {
		if a.Command == command {
			return a, true
		}
	}
	return Alias{}, false
}

// Name renders the alias basename for v at qualifier q.
func (a Alias) Name(v pyversion.Version, q Qualifier) string {
	switch q {
	case QualifyMajor:
		return strings.Replace(a.Template, VersionMarker, strconv.Itoa(v.Major), 1)
	case QualifyMajorMinor:
		return strings.Replace(a.Template, VersionMarker, v.MajorMinor(), 1)
	default:
		if strings.Contains(a.Template, "-"+VersionMarker) {
			return strings.Replace(a.Template, "-"+VersionMarker, "", 1)
		}
		return strings.Replace(a.Template, VersionMarker, "", 1)
	}
}

// AliasSet holds the three names one template yields for a version.
type AliasSet struct {
	// Qualified is the name CPython's installer creates, e.g. "python3.9".
	Qualified string
	// Plain is the unsuffixed link, e.g. "python".
	Plain string
	// Major is the major-only link, e.g. "python3".
	Major string
}

// AliasNames returns the qualified source name and the two link names for a.
func AliasNames(a Alias, v pyversion.Version) AliasSet {
	return AliasSet{
		Qualified: a.Name(v, QualifyMajorMinor),
		Plain:     a.Name(v, QualifyNone),
		Major:     a.Name(v, QualifyMajor),
	}
}
