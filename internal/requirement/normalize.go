package requirement

import "strings"

// Normalize canonicalizes a package name for comparison:
// lowercase, with every underscore replaced by a hyphen.
// All installed-vs-required name matching must go through here.
func Normalize(name string) string {
	if name == "" {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(name), "_", "-")
}

// NormalizeKeys returns a copy of m keyed by normalized name.
// When two keys collide after normalization, the lexically smaller original key wins
// so the result does not depend on map iteration order.
func NormalizeKeys(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	winner := make(map[string]string, len(m))
	for k, v := range m {
		n := Normalize(k)
		if prev, ok := winner[n]; ok && prev < k {
			continue
		}
		winner[n] = k
		out[n] = v
	}
	return out
}
