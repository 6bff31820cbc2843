package requirement

import (
	"strconv"
	"strings"
)

// Satisfies reports whether installed meets the constraint op+required.
// An empty operator is satisfied by any installed version.
// Unknown operators and unparseable versions are reported as unsatisfied.
func Satisfies(installed, op, required string) bool {
	if op == "" {
		return installed != ""
	}
	if installed == "" || required == "" {
		return false
	}

	if (op == OpEqual || op == OpNotEqual) && strings.HasSuffix(required, ".*") {
		prefix := strings.TrimSuffix(required, ".*")
		match := releasePrefixMatch(installed, prefix)
		if op == OpEqual {
			return match
		}
		return !match
	}

	c := CompareVersions(installed, required)
	switch op {
	case OpEqual:
		return c == 0
	case OpNotEqual:
		return c != 0
	case OpGreaterEq:
		return c >= 0
	case OpLessEq:
		return c <= 0
	case OpGreater:
		return c > 0
	case OpLess:
		return c < 0
	case OpCompatible:
		// ~=X.Y.Z means >=X.Y.Z and ==X.Y.*
		release := parseVersion(required).release
		if len(release) < 2 {
			return false
		}
		return c >= 0 && releaseHasPrefix(installed, release[:len(release)-1])
	}
	return false
}

// CompareVersions compares two PEP 440-style versions.
// Release segments compare numerically with missing segments treated as zero.
// Within one release, dev < a < b < rc < final < post, and each tag's number
// compares numerically. Local labels are ignored.
func CompareVersions(a, b string) int {
	return parseVersion(a).compare(parseVersion(b))
}

// Sentinels for absent tags. A release with no pre-release tag sorts after
// all of its pre-releases; no post tag sorts before any post release; no dev
// tag sorts after any dev release.
const (
	absentHigh = int(^uint(0) >> 1)
	absentLow  = -1
)

const (
	preAlpha = iota + 1
	preBeta
	preRC
)

type version struct {
	epoch   int
	release []int
	preKind int // 0 when absent
	preNum  int
	post    int // absentLow when absent
	dev     int // absentHigh when absent
}

func parseVersion(v string) version {
	v = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(v), "v"))
	v = stripLocal(v)

	out := version{post: absentLow, dev: absentHigh}
	if i := strings.Index(v, "!"); i >= 0 {
		out.epoch, _ = strconv.Atoi(v[:i])
		v = v[i+1:]
	}

	// release: dot-separated numbers
	i := 0
	for i < len(v) {
		j := i
		for j < len(v) && isDigit(v[j]) {
			j++
		}
		if j == i {
			break
		}
		n, _ := strconv.Atoi(v[i:j])
		out.release = append(out.release, n)
		i = j
		if i+1 < len(v) && v[i] == '.' && isDigit(v[i+1]) {
			i++
			continue
		}
		break
	}

	for _, t := range tagTokens(v[i:]) {
		switch t.word {
		case "a", "alpha":
			out.preKind, out.preNum = preAlpha, t.num
		case "b", "beta":
			out.preKind, out.preNum = preBeta, t.num
		case "c", "rc", "pre", "preview":
			out.preKind, out.preNum = preRC, t.num
		case "post", "rev", "r", "":
			// "1.0-1" is an implicit post release
			out.post = t.num
		case "dev":
			out.dev = t.num
		}
	}
	return out
}

type tagToken struct {
	word string
	num  int
}

// tagTokens splits a suffix like ".post1.dev0" or "rc2" into word/number pairs,
// ignoring '.', '-' and '_' separators.
func tagTokens(s string) []tagToken {
	var out []tagToken
	i := 0
	for i < len(s) {
		for i < len(s) && (s[i] == '.' || s[i] == '-' || s[i] == '_') {
			i++
		}
		j := i
		for j < len(s) && s[j] >= 'a' && s[j] <= 'z' {
			j++
		}
		k := j
		for k < len(s) && isDigit(s[k]) {
			k++
		}
		if k == i {
			if i < len(s) {
				i++
			}
			continue
		}
		n, _ := strconv.Atoi(s[j:k])
		out = append(out, tagToken{word: s[i:j], num: n})
		i = k
	}
	return out
}

// preKey places a dev-only release (1.0.dev0) before every pre-release of
// the same version, and a final or post release after them.
func (v version) preKey() (int, int) {
	if v.preKind == 0 {
		if v.post == absentLow && v.dev != absentHigh {
			return -1, 0
		}
		return absentHigh, 0
	}
	return v.preKind, v.preNum
}

func (v version) compare(o version) int {
	if c := cmpInt(v.epoch, o.epoch); c != 0 {
		return c
	}
	n := max(len(v.release), len(o.release))
	for i := 0; i < n; i++ {
		if c := cmpInt(at(v.release, i), at(o.release, i)); c != 0 {
			return c
		}
	}
	vk, vn := v.preKey()
	ok, on := o.preKey()
	if c := cmpInt(vk, ok); c != 0 {
		return c
	}
	if c := cmpInt(vn, on); c != 0 {
		return c
	}
	if c := cmpInt(v.post, o.post); c != 0 {
		return c
	}
	return cmpInt(v.dev, o.dev)
}

func releasePrefixMatch(installed, prefix string) bool {
	return releaseHasPrefix(installed, parseVersion(prefix).release)
}

func releaseHasPrefix(installed string, prefix []int) bool {
	if len(prefix) == 0 {
		return false
	}
	release := parseVersion(installed).release
	for i, p := range prefix {
		if at(release, i) != p {
			return false
		}
	}
	return true
}

func at(release []int, i int) int {
	if i < len(release) {
		return release[i]
	}
	return 0
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func stripLocal(v string) string {
	if i := strings.Index(v, "+"); i >= 0 {
		return v[:i]
	}
	return v
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
