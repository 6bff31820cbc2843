package requirement

import (
	"sort"
	"strings"
)

// ParseSnapshot parses a freeze-style snapshot into a desired name→version map.
// Accepted line forms:
//
//	name==version   pinned
//	name version    "pip list" columns
//	name            unpinned, or any other constraint form
//
// Names are kept verbatim; a leading "v" is stripped from versions.
// VCS lines and pip option lines are ignored because they cannot be keyed by name.
func ParseSnapshot(text string) map[string]string {
	desired := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		s := strings.TrimSpace(strings.TrimPrefix(line, "\ufeff"))
		if s == "" || strings.HasPrefix(s, "#") || strings.HasPrefix(s, "-") {
			continue
		}
		if i := strings.Index(s, ";"); i >= 0 {
			s = strings.TrimSpace(s[:i])
		}
		if s == "" || isVCS(s) {
			continue
		}

		if name, ver, ok := strings.Cut(s, "=="); ok && !strings.ContainsAny(name, "<>!~= ") {
			desired[strings.TrimSpace(name)] = cleanVersion(ver)
			continue
		}

		fields := strings.Fields(s)
		name := nameRegex.FindString(fields[0])
		if name == "" {
			continue
		}
		switch {
		case len(fields) >= 2 && name == fields[0] && fields[1] != "@" && !strings.ContainsAny(fields[1][:1], "<>!~=(["):
			desired[name] = cleanVersion(fields[1])
		default:
			desired[name] = ""
		}
	}
	return desired
}

// FormatSnapshot renders a name→version map as sorted freeze lines.
// Entries with an empty version are written as the bare name.
func FormatSnapshot(m map[string]string) string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return Normalize(names[i]) < Normalize(names[j])
	})

	var b strings.Builder
	for _, name := range names {
		b.WriteString(name)
		if v := m[name]; v != "" {
			b.WriteString("==")
			b.WriteString(v)
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func cleanVersion(v string) string {
	v = strings.TrimSpace(v)
	if f := strings.Fields(v); len(f) > 0 {
		v = f[0]
	}
	return strings.TrimPrefix(v, "v")
}
