package overrides

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Bounds for clamped fields. Raw caller values never reach generated patch
// files; everything is funneled through Merge.
const (
	TitleMaxLen       = 64
	PlayerSpeedMin    = 0.5
	PlayerSpeedMax    = 20
	LivesMin          = 1
	LivesMax          = 9
	SessionSecondsMin = 30
	SessionSecondsMax = 600
	KeywordsMax       = 8
	KeywordMaxLen     = 24
)

const (
	DefaultTitle          = "Untitled Game"
	DefaultDifficulty     = "normal"
	DefaultPrimaryColor   = "#1F6FEB"
	DefaultAccentColor    = "#F78166"
	DefaultPlayerSpeed    = 6.0
	DefaultLives          = 3
	DefaultSessionSeconds = 120
)

var hexColorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

var difficulties = map[string]struct{}{
	"easy":   {},
	"normal": {},
	"hard":   {},
}

// Overrides is the validated runtime configuration injected into a template.
// Every field is within its documented bounds.
type Overrides struct {
	Title          string   `json:"title"`
	Difficulty     string   `json:"difficulty"`
	PrimaryColor   string   `json:"primary_color"`
	AccentColor    string   `json:"accent_color"`
	PlayerSpeed    float64  `json:"player_speed"`
	Lives          int      `json:"lives"`
	SessionSeconds int      `json:"session_seconds"`
	Keywords       []string `json:"keywords,omitempty"`
}

// Partial is a sparse override bag; nil fields mean "not provided". It is the
// shape both callers and the draft generator supply.
type Partial struct {
	Title          *string  `json:"title,omitempty"`
	Difficulty     *string  `json:"difficulty,omitempty"`
	PrimaryColor   *string  `json:"primary_color,omitempty"`
	AccentColor    *string  `json:"accent_color,omitempty"`
	PlayerSpeed    *float64 `json:"player_speed,omitempty"`
	Lives          *int     `json:"lives,omitempty"`
	SessionSeconds *int     `json:"session_seconds,omitempty"`
	Keywords       []string `json:"keywords,omitempty"`
}

// Defaults returns the hard-coded fallback configuration.
func Defaults() Overrides {
	return Overrides{
		Title:          DefaultTitle,
		Difficulty:     DefaultDifficulty,
		PrimaryColor:   DefaultPrimaryColor,
		AccentColor:    DefaultAccentColor,
		PlayerSpeed:    DefaultPlayerSpeed,
		Lives:          DefaultLives,
		SessionSeconds: DefaultSessionSeconds,
	}
}

// Merge layers caller overrides on top of draft-generated values on top of
// defaults, then clamps every field. Caller wins over draft, draft over
// defaults.
func Merge(caller, draft Partial) Overrides {
	out := Defaults()
	apply(&out, draft)
	apply(&out, caller)
	clamp(&out)
	return out
}

func apply(dst *Overrides, src Partial) {
	if src.Title != nil {
		dst.Title = *src.Title
	}
	if src.Difficulty != nil {
		dst.Difficulty = *src.Difficulty
	}
	if src.PrimaryColor != nil {
		dst.PrimaryColor = *src.PrimaryColor
	}
	if src.AccentColor != nil {
		dst.AccentColor = *src.AccentColor
	}
	if src.PlayerSpeed != nil {
		dst.PlayerSpeed = *src.PlayerSpeed
	}
	if src.Lives != nil {
		dst.Lives = *src.Lives
	}
	if src.SessionSeconds != nil {
		dst.SessionSeconds = *src.SessionSeconds
	}
	if src.Keywords != nil {
		dst.Keywords = src.Keywords
	}
}

func clamp(o *Overrides) {
	o.Title = clampString(o.Title, TitleMaxLen, DefaultTitle)
	o.Difficulty = clampEnum(o.Difficulty)
	o.PrimaryColor = clampHexColor(o.PrimaryColor, DefaultPrimaryColor)
	o.AccentColor = clampHexColor(o.AccentColor, DefaultAccentColor)
	o.PlayerSpeed = clampFloat(o.PlayerSpeed, PlayerSpeedMin, PlayerSpeedMax)
	o.Lives = clampInt(o.Lives, LivesMin, LivesMax)
	o.SessionSeconds = clampInt(o.SessionSeconds, SessionSecondsMin, SessionSecondsMax)
	o.Keywords = clampKeywords(o.Keywords)
}

func clampString(value string, max int, fallback string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback
	}
	runes := []rune(value)
	if len(runes) > max {
		return string(runes[:max])
	}
	return value
}

func clampEnum(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if _, ok := difficulties[normalized]; ok {
		return normalized
	}
	return DefaultDifficulty
}

func clampHexColor(value, fallback string) string {
	value = strings.TrimSpace(value)
	if !hexColorPattern.MatchString(value) {
		return fallback
	}
	return strings.ToUpper(value)
}

func clampFloat(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func clampInt(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func clampKeywords(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := make([]string, 0, KeywordsMax)
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		runes := []rune(trimmed)
		if len(runes) > KeywordMaxLen {
			trimmed = string(runes[:KeywordMaxLen])
		}
		out = append(out, trimmed)
		if len(out) == KeywordsMax {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// ParsePartial decodes a sparse override bag from JSON.
func ParsePartial(raw []byte) (Partial, error) {
	var p Partial
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return Partial{}, fmt.Errorf("parse overrides: %w", err)
	}
	return p, nil
}

// EncodeJSON serializes the validated bag for persistence and patch injection.
func (o Overrides) EncodeJSON() (string, error) {
	raw, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("encode overrides: %w", err)
	}
	return string(raw), nil
}
