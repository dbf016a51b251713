// Package duration parses and formats durations with units above hours.
// The standard library stops at "h"; retention windows read better as
// "30d" or "2w". Parse accepts everything time.ParseDuration accepts
// plus:
//
//	d, day, days       24 hours
//	w, wk, week(s)     7 days
//	mo, month(s)       30 days
//	y, yr, year(s)     365 days
//
// Units may be spelled out and separated by spaces, so "2 weeks 3 days"
// and "2w3d" are equivalent.
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Calendar units are fixed-length approximations.
const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

var unitValues = map[string]time.Duration{
	"ns": time.Nanosecond, "nano": time.Nanosecond, "nanos": time.Nanosecond,
	"nanosecond": time.Nanosecond, "nanoseconds": time.Nanosecond,

	"us": time.Microsecond, "µs": time.Microsecond, "micro": time.Microsecond,
	"micros": time.Microsecond, "microsecond": time.Microsecond, "microseconds": time.Microsecond,

	"ms": time.Millisecond, "milli": time.Millisecond, "millis": time.Millisecond,
	"millisecond": time.Millisecond, "milliseconds": time.Millisecond,

	"s": time.Second, "sec": time.Second, "secs": time.Second,
	"second": time.Second, "seconds": time.Second,

	"m": time.Minute, "min": time.Minute, "mins": time.Minute,
	"minute": time.Minute, "minutes": time.Minute,

	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour,
	"hour": time.Hour, "hours": time.Hour,

	"d": Day, "day": Day, "days": Day,

	"w": Week, "wk": Week, "wks": Week, "week": Week, "weeks": Week,

	"mo": Month, "mos": Month, "month": Month, "months": Month,

	"y": Year, "yr": Year, "yrs": Year, "year": Year, "years": Year,
}

// tokenPattern matches one number-unit pair at the start of the input,
// with optional whitespace on either side of the unit.
var tokenPattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(µs|[a-z]+)\s*`)

// Parse parses a human-readable duration string.
func Parse(s string) (time.Duration, error) {
	orig := s
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("duration: empty string")
	}

	negative := strings.HasPrefix(s, "-")
	if negative {
		s = strings.TrimSpace(strings.TrimPrefix(s, "-"))
	}
	if s == "0" {
		return 0, nil
	}

	var total time.Duration
	for s != "" {
		m := tokenPattern.FindStringSubmatch(s)
		if m == nil {
			return 0, fmt.Errorf("duration: cannot parse %q", orig)
		}
		unit, ok := unitValues[m[2]]
		if !ok {
			return 0, fmt.Errorf("duration: unknown unit %q in %q", m[2], orig)
		}
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, fmt.Errorf("duration: bad number %q in %q", m[1], orig)
		}
		total += time.Duration(n * float64(unit))
		s = s[len(m[0]):]
	}

	if negative {
		total = -total
	}
	return total, nil
}

// MustParse is Parse that panics. For package-level constants only.
func MustParse(s string) time.Duration {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

var formatUnits = []struct {
	value  time.Duration
	suffix string
}{
	{Year, "y"},
	{Month, "mo"},
	{Week, "w"},
	{Day, "d"},
	{time.Hour, "h"},
	{time.Minute, "m"},
	{time.Second, "s"},
	{time.Millisecond, "ms"},
	{time.Microsecond, "µs"},
	{time.Nanosecond, "ns"},
}

// Format renders a duration using the largest units that fit, omitting
// zero components: 26h becomes "1d2h", 90s becomes "1m30s".
func Format(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	for _, u := range formatUnits {
		if n := d / u.value; n > 0 {
			fmt.Fprintf(&b, "%d%s", n, u.suffix)
			d -= n * u.value
		}
	}
	return b.String()
}
