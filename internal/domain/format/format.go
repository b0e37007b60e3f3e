// Package format renders the labels shown next to benchmark data: ISO 8601
// frequencies, frequency/horizon scopes, calculation dates and counts.
package format

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sosodev/duration"
)

// ErrInvalidDuration is returned for strings that are not ISO 8601 durations.
var ErrInvalidDuration = errors.New("invalid ISO 8601 duration")

const (
	day   = 24 * time.Hour
	week  = 7 * day
	month = 30 * day
	year  = 365 * day
)

// ParseDuration converts an ISO 8601 duration such as "PT15M" or "P1DT12H".
// Years and months are approximated as 365 and 30 days.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" || s == "P" || strings.HasSuffix(s, "T") {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	iso, err := duration.Parse(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrInvalidDuration, s, err)
	}
	total := scale(iso.Years, year) + scale(iso.Months, month) + scale(iso.Weeks, week) +
		scale(iso.Days, day) + scale(iso.Hours, time.Hour) + scale(iso.Minutes, time.Minute) +
		scale(iso.Seconds, time.Second)
	if iso.Negative {
		total = -total
	}
	return total, nil
}

func scale(n float64, u time.Duration) time.Duration {
	return time.Duration(n * float64(u))
}

type unit struct {
	size     time.Duration
	singular string
}

var humanUnits = []unit{
	{year, "year"},
	{month, "month"},
	{week, "week"},
	{day, "day"},
	{time.Hour, "hour"},
	{time.Minute, "minute"},
	{time.Second, "second"},
}

// Duration renders d with its two largest units, e.g. "1 hour and 30 minutes".
// d is rounded to the smaller of the two units first, so a rounded-up unit
// carries into the larger ones: 1h59m45s is "2 hours".
func Duration(d time.Duration) string {
	if d < time.Second/2 {
		return "0 seconds"
	}
	finest := humanUnits[len(humanUnits)-1]
	for i, u := range humanUnits {
		if d >= u.size && i+1 < len(humanUnits) {
			finest = humanUnits[i+1]
			break
		}
	}
	d = (d + finest.size/2) / finest.size * finest.size

	var parts []string
	for _, u := range humanUnits {
		if len(parts) == 2 {
			break
		}
		n := int64(d / u.size)
		if n == 0 {
			continue
		}
		d -= time.Duration(n) * u.size
		name := u.singular
		if n != 1 {
			name += "s"
		}
		parts = append(parts, fmt.Sprintf("%d %s", n, name))
	}
	return strings.Join(parts, " and ")
}

// Frequency renders an ISO 8601 frequency for display. Empty input yields "N/A";
// unparseable input is returned unchanged.
func Frequency(iso string) string {
	if strings.TrimSpace(iso) == "" {
		return "N/A"
	}
	d, err := ParseDuration(iso)
	if err != nil {
		return iso
	}
	return Duration(d)
}

var clockPrefix = regexp.MustCompile(`(\d+):(\d+):(\d+)`)

// FrequencyHorizon renders a "HH:MM:SS::horizon" scope as "15min / 1 day".
// Other shapes are returned unchanged.
func FrequencyHorizon(fh string) string {
	parts := strings.Split(fh, "::")
	if len(parts) != 2 {
		return fh
	}
	freq, horizon := parts[0], parts[1]
	if m := clockPrefix.FindStringSubmatch(freq); m != nil {
		hours, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		switch {
		case hours > 0:
			freq = fmt.Sprintf("%dh", hours)
		case mins > 0:
			freq = fmt.Sprintf("%dmin", mins)
		}
	}
	return freq + " / " + horizon
}

// CalculationDateLabel renders month-end dates as "Jan-2025" and every other date as "Recent".
func CalculationDateLabel(date string, isMonthEnd bool) string {
	if !isMonthEnd {
		return "Recent"
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, date); err == nil {
			return t.Format("Jan-2006")
		}
	}
	return date
}

// Count renders n with thousands separators. Nil renders as "N/A".
func Count(n *int) string {
	if n == nil {
		return "N/A"
	}
	return humanize.Comma(int64(*n))
}
