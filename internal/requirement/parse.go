package requirement

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Comparison operators recognized after a package name.
const (
	OpEqual      = "=="
	OpGreaterEq  = ">="
	OpLessEq     = "<="
	OpGreater    = ">"
	OpLess       = "<"
	OpNotEqual   = "!="
	OpCompatible = "~="
)

// vcsPrefixes are the URL schemes pip accepts for version-control sources.
var vcsPrefixes = []string{"git+", "hg+", "svn+", "bzr+"}

var (
	nameRegex = regexp.MustCompile(`^[A-Za-z0-9_.\-]+`)

	// constraintRegex matches an optional extras block then the first comparison clause.
	// Two-character operators come first so ">=" is never read as ">".
	constraintRegex = regexp.MustCompile(`^(\[[^\]]*\])?\s*(==|>=|<=|!=|~=|>|<)\s*([^\s,;]+)`)

	// directRefRegex matches PEP 508 direct references: "name @ url".
	directRefRegex = regexp.MustCompile(`^(\[[^\]]*\])?\s*@\s*\S+`)
)

// Spec is one declared dependency parsed from a manifest line.
type Spec struct {
	Raw      string `json:"raw_text"`
	Name     string `json:"package_name,omitempty"` // empty for VCS specs
	Operator string `json:"operator,omitempty"`
	Version  string `json:"version,omitempty"`
	VCS      bool   `json:"is_vcs"`
}

// Requirement renders the spec in pip's install form: the VCS URL, name, or name+constraint.
func (s Spec) Requirement() string {
	if s.VCS {
		return s.Raw
	}
	if s.Operator == "" {
		return s.Name
	}
	return s.Name + s.Operator + s.Version
}

// Unconstrained reports whether any installed version satisfies the spec.
func (s Spec) Unconstrained() bool {
	return s.Operator == ""
}

// Parse parses manifest text into requirement specs.
// Blank lines, comments and pip option lines (-r, --index-url, ...) are skipped.
// Anything after the first ';' (environment markers) is dropped.
// Parse never fails: unparseable lines become unconstrained specs on the trimmed text.
func Parse(text string) []Spec {
	var specs []Spec
	for _, line := range strings.Split(text, "\n") {
		if spec, ok := ParseLine(line); ok {
			specs = append(specs, spec)
		}
	}
	return specs
}

// ParseLine parses a single manifest line. ok is false for lines that declare nothing.
func ParseLine(line string) (Spec, bool) {
	s := strings.TrimSpace(strings.TrimPrefix(line, "\ufeff"))
	if s == "" || strings.HasPrefix(s, "#") {
		return Spec{}, false
	}
	if i := strings.Index(s, ";"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	// Inline comments need preceding whitespace; "#egg=" fragments are part of URLs.
	if i := strings.Index(s, " #"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	if s == "" {
		return Spec{}, false
	}

	if editable, ok := cutEditable(s); ok {
		if isVCS(editable) {
			return Spec{Raw: editable, VCS: true}, true
		}
		return Spec{}, false
	}
	if strings.HasPrefix(s, "-") {
		return Spec{}, false
	}
	if isVCS(s) {
		return Spec{Raw: s, VCS: true}, true
	}

	name := nameRegex.FindString(s)
	if name == "" {
		return Spec{Raw: s, Name: s}, true
	}

	rest := s[len(name):]
	if directRefRegex.MatchString(rest) {
		return Spec{Raw: s, VCS: true}, true
	}

	spec := Spec{Raw: s, Name: name}
	if m := constraintRegex.FindStringSubmatch(rest); m != nil {
		spec.Operator = m[2]
		spec.Version = m[3]
	}
	return spec, true
}

// ParseFile reads and parses a manifest file.
// Undecodable UTF-8 is reported as an error so callers can classify the manifest.
func ParseFile(path string) ([]Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%s: not valid UTF-8", path)
	}
	return Parse(string(data)), nil
}

func isVCS(s string) bool {
	lower := strings.ToLower(s)
	for _, p := range vcsPrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func cutEditable(s string) (string, bool) {
	for _, flag := range []string{"--editable", "-e"} {
		if rest, ok := strings.CutPrefix(s, flag); ok {
			rest = strings.TrimLeft(rest, " =")
			return strings.TrimSpace(rest), true
		}
	}
	return "", false
}
