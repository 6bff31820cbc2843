package pip

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// ReasonTimeout is recorded when an item exceeds its per-item ceiling.
const ReasonTimeout = "timeout"

var noDistributionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)no matching distribution found`),
	regexp.MustCompile(`(?i)could not find a version that satisfies`),
}

var noisePrefixes = []string{
	"warning:",
	"[notice]",
	"deprecation:",
}

// NeedsFallback reports whether output shows the package was missing from the index,
// which is the only failure that warrants retrying against the default index.
func NeedsFallback(output string) bool {
	return matchesAny(output, noDistributionPatterns)
}

// Reason extracts a short failure reason from combined output.
// A "no matching distribution" line is preferred; otherwise the last
// non-empty line that is not a warning or notice.
func Reason(output string) string {
	lines := strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line != "" && matchesAny(line, noDistributionPatterns) {
			return trimReason(line)
		}
	}
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" || isNoise(line) {
			continue
		}
		return trimReason(line)
	}
	return "unknown error"
}

// ReasonFor classifies a result: "timeout" for timed-out runs, the start error
// when the process never ran, otherwise the extracted output reason.
func ReasonFor(res Result) string {
	if res.TimedOut {
		return ReasonTimeout
	}
	if res.Err != nil && strings.TrimSpace(res.Output) == "" {
		return trimReason(res.Err.Error())
	}
	return Reason(res.Output)
}

func matchesAny(s string, patterns []*regexp.Regexp) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func isNoise(line string) bool {
	lower := strings.ToLower(line)
	for _, p := range noisePrefixes {
		if strings.HasPrefix(lower, p) {
			return true
		}
	}
	return false
}

func trimReason(line string) string {
	const maxLen = 240
	if len(line) <= maxLen {
		return line
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	return line[:cut] + "..."
}
