package duration

import (
	"errors"
	"strings"
	"time"
)

// Errors returned for malformed relative time expressions.
var (
	ErrEmptyExpression = errors.New("duration: empty relative time expression")
	ErrNoDirection     = errors.New(`duration: relative expression needs "in", "ago", or "from now"`)
)

// directionSuffixes are checked longest-first so " from now" wins over
// any shorter overlap.
var directionSuffixes = []struct {
	text string
	past bool
}{
	{" before now", true},
	{" from now", false},
	{" earlier", true},
	{" later", false},
	{" ago", true},
}

// ParseRelative resolves expressions like "10 minutes ago", "in 2
// hours", or "1 day from now" against the current time.
func ParseRelative(s string) (time.Time, error) {
	return ParseRelativeFrom(s, time.Now())
}

// ParseRelativeFrom is ParseRelative with an explicit anchor.
func ParseRelativeFrom(s string, anchor time.Time) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return time.Time{}, ErrEmptyExpression
	}
	lower := strings.ToLower(trimmed)

	if rest, ok := strings.CutPrefix(lower, "in "); ok {
		d, err := Parse(rest)
		if err != nil {
			return time.Time{}, err
		}
		return anchor.Add(d), nil
	}

	for _, suffix := range directionSuffixes {
		rest, ok := strings.CutSuffix(lower, suffix.text)
		if !ok {
			continue
		}
		d, err := Parse(rest)
		if err != nil {
			return time.Time{}, err
		}
		if suffix.past {
			d = -d
		}
		return anchor.Add(d), nil
	}

	return time.Time{}, ErrNoDirection
}

// FormatRelative renders t relative to now: "5m ago", "in 2h", "now".
func FormatRelative(t time.Time) string {
	return FormatRelativeFrom(t, time.Now())
}

// FormatRelativeFrom is FormatRelative with an explicit anchor.
func FormatRelativeFrom(t, anchor time.Time) string {
	diff := t.Sub(anchor)
	switch {
	case diff == 0:
		return "now"
	case diff < 0:
		return Format(-diff) + " ago"
	default:
		return "in " + Format(diff)
	}
}
