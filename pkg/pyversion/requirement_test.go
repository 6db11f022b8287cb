package pyversion

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"pgregory.net/rapid"

	pserrors "github.com/matzehuels/pyshim/pkg/errors"
)

func TestMatches(t *testing.T) {
	tests := []struct {
		req   string
		match []string
		miss  []string
	}{
		{"3.9", []string{"3.9.0", "3.9.7"}, []string{"3.8.9", "3.10.0", "4.0.0", "3.9.0rc1"}},
		{"3", []string{"3.0.0", "3.12.1"}, []string{"2.7.18", "4.0.0"}},
		{"^3.8", []string{"3.8.0", "3.8.6"}, []string{"3.7.9", "3.9.1", "4.0.0"}},
		{"^3.8.2", []string{"3.8.2", "3.8.11"}, []string{"3.8.1", "3.9.0"}},
		{"^3", []string{"3.0.0", "3.11.2"}, []string{"4.0.0"}},
		{"^0.2.3", []string{"0.2.3", "0.2.9"}, []string{"0.3.0", "0.2.2"}},
		{"^0.0.3", []string{"0.0.3", "0.0.9"}, []string{"0.1.0", "0.0.2"}},
		{"~3.8", []string{"3.8.0", "3.8.12"}, []string{"3.9.0", "3.7.0"}},
		{"~3.8.2", []string{"3.8.2", "3.8.10"}, []string{"3.8.1", "3.9.0"}},
		{"=3.9.1", []string{"3.9.1"}, []string{"3.9.0", "3.9.2"}},
		{"=3.9", []string{"3.9.0", "3.9.5"}, []string{"3.10.0"}},
		{">3.8", []string{"3.9.0", "4.1.0"}, []string{"3.8.9"}},
		{">3.8.1", []string{"3.8.2"}, []string{"3.8.1"}},
		{">=3.7, <3.10", []string{"3.7.0", "3.9.9"}, []string{"3.6.9", "3.10.0"}},
		{">= 3.7 < 3.10", []string{"3.8.0"}, []string{"3.10.1"}},
		{"<=3.9", []string{"3.9.9", "2.7.18"}, []string{"3.10.0"}},
		{"3.*", []string{"3.0.0", "3.12.0"}, []string{"2.7.18"}},
		{"3.9.*", []string{"3.9.4"}, []string{"3.10.0"}},
		{"*", []string{"2.7.18", "3.12.0"}, []string{"3.13.0a1"}},
		{"=3.9.0rc1", []string{"3.9.0rc1"}, []string{"3.9.0rc2", "3.9.0"}},
		{">=3.9.0b1", []string{"3.9.0b1", "3.9.0rc1", "3.9.0", "3.10.0"}, []string{"3.9.0a4", "3.10.0rc1"}},
	}

	for _, tt := range tests {
		t.Run(tt.req, func(t *testing.T) {
			req, err := Parse(tt.req)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.req, err)
			}
			for _, s := range tt.match {
				if !req.Matches(MustParseVersion(s)) {
					t.Errorf("%q should match %s", tt.req, s)
				}
			}
			for _, s := range tt.miss {
				if req.Matches(MustParseVersion(s)) {
					t.Errorf("%q should not match %s", tt.req, s)
				}
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input  string
		reason string
	}{
		{"", "empty requirement"},
		{"   ", "empty requirement"},
		{"3.x.1", "wildcard must be the last component"},
		{"3.nine", "malformed"},
		{"!=3.8", "unsupported operator"},
		{"~=3.8", "unsupported operator"},
		{"==3.8.1", "unsupported operator"},
		{">=3.*", "wildcard not allowed"},
		{">=3.10, <3.9", "no version can satisfy it"},
		{">3.9.1, <3.9.1", "no version can satisfy it"},
		{">3.9.1, <3.9.2", "no version can satisfy it"},
		{">3.9.1 <3.9.2", "no version can satisfy it"},
		{"<0.0.0", "no version can satisfy it"},
		{">3.9.0rc1, <3.9.0rc2", "no version can satisfy it"},
		{"3.9,", "empty clause"},
		{">=", "operator"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Parse(tt.input)
			if err == nil {
				t.Fatalf("Parse(%q) should fail", tt.input)
			}
			if !pserrors.Is(err, pserrors.ErrCodeInvalidRequirement) {
				t.Errorf("error code = %q, want INVALID_REQUIREMENT", pserrors.GetCode(err))
			}
			if !strings.Contains(err.Error(), tt.reason) {
				t.Errorf("error %q should mention %q", err, tt.reason)
			}
			if !strings.Contains(err.Error(), `"`+tt.input+`"`) {
				t.Errorf("error %q should carry the offending text", err)
			}
		})
	}
}

func TestParseAcceptsNarrowRanges(t *testing.T) {
	tests := []struct {
		req  string
		want string
	}{
		{">3.9.1, <3.9.3", "3.9.2"},
		{">3.9.0rc1, <3.9.0", "3.9.0rc2"},
		{">=3.9.0rc1, <3.9.0rc2", "3.9.0rc1"},
		{"<=0.0.0", "0.0.0"},
		{">3.9.0b1, <3.9.0rc1", "3.9.0b2"},
	}
	for _, tt := range tests {
		t.Run(tt.req, func(t *testing.T) {
			req, err := Parse(tt.req)
			if err != nil {
				t.Fatalf("Parse(%q) error: %v", tt.req, err)
			}
			if !req.Matches(MustParseVersion(tt.want)) {
				t.Errorf("%q should match %s", tt.req, tt.want)
			}
		})
	}
}

// universe holds every version the generators below can reach, plus the
// neighbours a bound can step to.
func universe() []Version {
	vs := []Version{{}}
	for major := 2; major <= 5; major++ {
		for minor := 0; minor <= 13; minor++ {
			for patch := 0; patch <= 11; patch++ {
				for _, pre := range []string{"", "dev0", "a1", "a2", "b2", "b3", "rc1", "rc2"} {
					vs = append(vs, Version{Major: major, Minor: minor, Patch: patch, Pre: pre})
				}
			}
		}
	}
	return vs
}

// Parse accepts a requirement exactly when some version meets it.
func TestParseRejectsOnlyUnsatisfiable(t *testing.T) {
	all := universe()
	rapid.Check(t, func(t *rapid.T) {
		text := requirementGen().Draw(t, "a") + ", " + requirementGen().Draw(t, "b")
		req, err := Parse(text)
		if err != nil && !strings.Contains(err.Error(), "no version can satisfy it") {
			t.Skip("malformed")
		}
		var witness *Version
		check := Requirement{comps: req.comps}
		if err != nil {
			check = parseUnchecked(t, text)
		}
		for i := range all {
			if check.Matches(all[i]) {
				witness = &all[i]
				break
			}
		}
		if err == nil && witness == nil {
			t.Fatalf("Parse(%q) accepted a requirement nothing matches", text)
		}
		if err != nil && witness != nil {
			t.Fatalf("Parse(%q) rejected a requirement %s matches", text, witness)
		}
	})
}

// parseUnchecked builds the comparators of text without the satisfiability
// check.
func parseUnchecked(t *rapid.T, text string) Requirement {
	var r Requirement
	for _, part := range strings.Split(text, ",") {
		tokens, err := joinOperators(strings.Fields(part))
		if err != nil {
			t.Fatalf("joinOperators(%q): %v", part, err)
		}
		for _, tok := range tokens {
			c, err := parseComparator(tok)
			if err != nil {
				t.Fatalf("parseComparator(%q): %v", tok, err)
			}
			r.comps = append(r.comps, c)
		}
	}
	return r
}

func TestRequirementString(t *testing.T) {
	if got := MustParse("  ^3.8 ").String(); got != "^3.8" {
		t.Errorf("String() = %q, want ^3.8", got)
	}
}

func TestAnd(t *testing.T) {
	req := MustParse(">=3.8").And(MustParse("=3.9"))
	if req.String() != ">=3.8, =3.9" {
		t.Errorf("String() = %q", req.String())
	}
	if req.Matches(MustParseVersion("3.8.6")) {
		t.Error("3.8.6 should be excluded by =3.9")
	}
	if !req.Matches(MustParseVersion("3.9.4")) {
		t.Error("3.9.4 should match")
	}
	if MustParse("^3.8").And(MustParse("=3.9")).Matches(MustParseVersion("3.9.4")) {
		t.Error("disjoint conjunction should match nothing")
	}
}

func TestExact(t *testing.T) {
	for _, s := range []string{"3.9.1", "3.9.0rc1"} {
		v := MustParseVersion(s)
		req := Exact(v)
		if !req.Matches(v) {
			t.Errorf("Exact(%s) should match itself", v)
		}
		if req.Matches(MustParseVersion("3.9.2")) {
			t.Errorf("Exact(%s) should not match 3.9.2", v)
		}
	}
}

func TestBest(t *testing.T) {
	installed := []Version{
		MustParseVersion("3.8.0"),
		MustParseVersion("3.8.6"),
		MustParseVersion("3.9.1"),
		MustParseVersion("3.10.0rc2"),
	}

	tests := []struct {
		req  string
		want string
	}{
		{"~3.8", "3.8.6"},
		{"^3.8", "3.8.6"},
		{"^3", "3.9.1"},
		{"=3.8.0", "3.8.0"},
		{">=3.10.0rc1", "3.10.0rc2"},
		{"3.9", "3.9.1"},
	}
	for _, tt := range tests {
		t.Run(tt.req, func(t *testing.T) {
			got, err := Best(MustParse(tt.req), installed)
			if err != nil {
				t.Fatalf("Best error: %v", err)
			}
			if got.String() != tt.want {
				t.Errorf("Best(%q) = %s, want %s", tt.req, got, tt.want)
			}
		})
	}

	if _, err := Best(MustParse("^2.7"), installed); !errors.Is(err, ErrNotFound) {
		t.Errorf("Best(^2.7) error = %v, want ErrNotFound", err)
	}
	if _, err := Best(MustParse("3"), nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Best over empty set error = %v, want ErrNotFound", err)
	}
}

func versionGen() *rapid.Generator[Version] {
	return rapid.Custom(func(t *rapid.T) Version {
		v := Version{
			Major: rapid.IntRange(2, 4).Draw(t, "major"),
			Minor: rapid.IntRange(0, 12).Draw(t, "minor"),
			Patch: rapid.IntRange(0, 10).Draw(t, "patch"),
		}
		if rapid.IntRange(0, 5).Draw(t, "pre?") == 0 {
			v.Pre = rapid.SampledFrom([]string{"a1", "b2", "rc1"}).Draw(t, "pre")
		}
		return v
	})
}

func requirementGen() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		op := rapid.SampledFrom([]string{"", "^", "~", "=", ">", ">=", "<", "<="}).Draw(t, "op")
		v := versionGen().Draw(t, "bound")
		switch rapid.IntRange(0, 2).Draw(t, "width") {
		case 0:
			return op + v.String()
		case 1:
			return op + v.MajorMinor()
		default:
			return op + strings.Split(v.MajorMinor(), ".")[0]
		}
	})
}

// Best must equal the maximum of the matching subset, or fail exactly when
// that subset is empty.
func TestBestIsMaximumOfMatches(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := requirementGen().Draw(t, "req")
		req, err := Parse(text)
		if err != nil {
			t.Skip("unsatisfiable requirement")
		}
		candidates := rapid.SliceOf(versionGen()).Draw(t, "candidates")

		var matching []Version
		for _, v := range candidates {
			if req.Matches(v) {
				matching = append(matching, v)
			}
		}

		got, err := Best(req, candidates)
		if len(matching) == 0 {
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("Best(%q) = %v, %v; want ErrNotFound", text, got, err)
			}
			return
		}
		if err != nil {
			t.Fatalf("Best(%q) error: %v", text, err)
		}
		want := slices.MaxFunc(matching, Version.Compare)
		if got.Compare(want) != 0 {
			t.Fatalf("Best(%q) = %s, want %s", text, got, want)
		}
	})
}

// A prerelease is only ever selected when the requirement names one.
func TestBestSkipsUnnamedPrereleases(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := requirementGen().Draw(t, "req")
		req, err := Parse(text)
		if err != nil || req.NamesPrerelease() {
			t.Skip("not applicable")
		}
		got, err := Best(req, rapid.SliceOf(versionGen()).Draw(t, "candidates"))
		if err == nil && got.IsPrerelease() {
			t.Fatalf("Best(%q) picked prerelease %s", text, got)
		}
	})
}
