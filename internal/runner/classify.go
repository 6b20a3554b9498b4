package runner

import (
	"regexp"
	"strings"
)

// failurePattern maps an engine log signature to an operator-facing message.
// Patterns are checked in order against the bounded tail; the first hit wins.
type failurePattern struct {
	pattern *regexp.Regexp
	message string
}

var failurePatterns = []failurePattern{
	{
		pattern: regexp.MustCompile(`error CS\d+`),
		message: "template scripts failed to compile",
	},
	{
		pattern: regexp.MustCompile(`(?i)unhandled exception|\bNullReferenceException\b|\bInvalidOperationException\b`),
		message: "template build hook threw an exception",
	},
	{
		pattern: regexp.MustCompile(`(?i)android sdk.*not (found|set)|unable to locate android sdk`),
		message: "android SDK is missing or misconfigured on the build host",
	},
	{
		pattern: regexp.MustCompile(`(?i)ndk.*not (found|set)|unable to locate.*ndk`),
		message: "android NDK is missing or misconfigured on the build host",
	},
	{
		pattern: regexp.MustCompile(`(?i)license.*(expired|invalid|not activated)|no valid.*license`),
		message: "engine license is invalid or expired on the build host",
	},
	{
		pattern: regexp.MustCompile(`(?i)^Build Failed|\bBuildFailedException\b`),
		message: "engine reported a failed build",
	},
}

// Classify scans the log tail for known failure signatures. The first
// pattern with a hit wins; its message heads the summary and the matched
// lines follow, so the job error carries the actual diagnostics (which CS
// error, which file) rather than just a category. Unrecognized failures
// fall back to the raw tail.
func Classify(tail []string) string {
	for _, fp := range failurePatterns {
		var matched []string
		for _, line := range tail {
			if fp.pattern.MatchString(line) {
				matched = append(matched, strings.TrimSpace(line))
			}
		}
		if len(matched) > 0 {
			return clipSummary(fp.message + ": " + strings.Join(matched, "\n"))
		}
	}
	raw := strings.TrimSpace(summarize(tail))
	if raw == "" {
		return "engine exited with an error and produced no output"
	}
	return raw
}

func clipSummary(summary string) string {
	if len(summary) <= summaryMaxLen {
		return summary
	}
	return summary[:summaryMaxLen]
}
