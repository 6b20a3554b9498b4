package buildcache

import (
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key derives the cache entry name for one template, runtime version, and
// build target. Template refs are user supplied, so the result is folded to
// a conservative filesystem-safe alphabet: unicode is decomposed, combining
// marks dropped, everything else mapped to lowercase ascii or dashes.
func Key(templateRef, runtimeVersion, target string) string {
	return fmt.Sprintf("%s-%s-%s", sanitize(templateRef), sanitize(runtimeVersion), sanitize(target))
}

var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func sanitize(value string) string {
	folded, _, err := transform.String(asciiFold, value)
	if err != nil {
		folded = value
	}
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range strings.ToLower(folded) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	out := strings.Trim(b.String(), "-")
	if out == "" {
		return "unnamed"
	}
	return out
}
