package runner

import "strings"

// Environment variables never passed to engine subprocesses. The debugger
// entries make the engine block in batch mode waiting for an attach that
// never comes on a headless host.
var blockedEnvNames = map[string]struct{}{
	"AWS_ACCESS_KEY_ID":     {},
	"AWS_SECRET_ACCESS_KEY": {},
	"AWS_SESSION_TOKEN":     {},
	"GITHUB_TOKEN":          {},
	"GOOGLE_APPLICATION_CREDENTIALS": {},
	"KILN_DRAFT_API_KEY":    {},
	"MONO_ENV_OPTIONS":      {},
	"NPM_TOKEN":             {},
	"SSH_AUTH_SOCK":         {},
	"UNITY_GIVE_CHANCE_TO_ATTACH_DEBUGGER": {},
	"UNITY_MIXED_CALLSTACK":                {},
	"VSTU_DEBUGGER":                        {},
}

// Variable name fragments that mark a value as sensitive regardless of the
// exact name.
var blockedEnvFragments = []string{
	"SECRET",
	"TOKEN",
	"PASSWORD",
	"CREDENTIAL",
	"API_KEY",
	"APIKEY",
	"PRIVATE_KEY",
}

// Value fragments that disqualify an entry whatever its name. Debugger
// agent options leak in through wrapper variables with arbitrary names.
var blockedValueFragments = []string{
	"--debugger-agent",
	"debugger-attach",
}

// SanitizeEnv drops credential-bearing and debugger-attachment entries from
// an environment slice. The engine runs caller-supplied project code, so
// nothing secret may leak into its process environment, and attach options
// from ambient developer tooling would hang it in batch mode.
func SanitizeEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, entry := range env {
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if blocked(name) || valueBlocked(value) {
			continue
		}
		out = append(out, entry)
	}
	return out
}

func valueBlocked(value string) bool {
	lower := strings.ToLower(value)
	for _, fragment := range blockedValueFragments {
		if strings.Contains(lower, fragment) {
			return true
		}
	}
	return false
}

func blocked(name string) bool {
	upper := strings.ToUpper(name)
	if _, ok := blockedEnvNames[upper]; ok {
		return true
	}
	for _, fragment := range blockedEnvFragments {
		if strings.Contains(upper, fragment) {
			return true
		}
	}
	return false
}
