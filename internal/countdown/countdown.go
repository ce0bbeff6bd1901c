// Package countdown renders elapsed and remaining time against a stored anchor.
//
// Years and months use fixed divisors (365 and 30 days), so the result drifts
// from the calendar by a few days per year.
package countdown

import (
	"fmt"
	"strings"
	"time"
)

const (
	Day   = 24 * time.Hour
	Month = 30 * Day
	Year  = 365 * Day
)

// Duration is a span broken into display units.
type Duration struct {
	Years   int `json:"years"`
	Months  int `json:"months"`
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	// Past is set when the target lies behind now (for Until) or the anchor
	// lies ahead of now (for Since).
	Past bool `json:"past,omitempty"`
}

// Decompose splits d into years, months, days, hours and minutes. Negative
// durations are decomposed by magnitude with Past set.
func Decompose(d time.Duration) Duration {
	var out Duration
	if d < 0 {
		out.Past = true
		d = -d
	}
	out.Years = int(d / Year)
	d -= time.Duration(out.Years) * Year
	out.Months = int(d / Month)
	d -= time.Duration(out.Months) * Month
	out.Days = int(d / Day)
	d -= time.Duration(out.Days) * Day
	out.Hours = int(d / time.Hour)
	d -= time.Duration(out.Hours) * time.Hour
	out.Minutes = int(d / time.Minute)
	return out
}

// Since is the time elapsed from anchor to now.
func Since(anchor, now time.Time) Duration {
	return Decompose(now.Sub(anchor))
}

// Until is the time remaining from now to target.
func Until(target, now time.Time) Duration {
	return Decompose(target.Sub(now))
}

// TotalDays counts whole days elapsed since anchor.
func TotalDays(anchor, now time.Time) int {
	return int(now.Sub(anchor) / Day)
}

// CycleDay returns the 1-based day within a repeating cycle that started at
// anchor. Anchors in the future count as day 1.
func CycleDay(anchor, now time.Time, length int) int {
	if length <= 0 {
		return 0
	}
	days := TotalDays(anchor, now)
	if days < 0 {
		return 1
	}
	return days%length + 1
}

// String renders the two largest non-zero units, e.g. "1y 1mo" or "3d 4h".
// Spans under a minute render as "0m".
func (d Duration) String() string {
	units := []struct {
		n      int
		suffix string
	}{
		{d.Years, "y"},
		{d.Months, "mo"},
		{d.Days, "d"},
		{d.Hours, "h"},
		{d.Minutes, "m"},
	}
	var parts []string
	for _, u := range units {
		if u.n == 0 {
			if len(parts) > 0 {
				break
			}
			continue
		}
		parts = append(parts, fmt.Sprintf("%d%s", u.n, u.suffix))
		if len(parts) == 2 {
			break
		}
	}
	if len(parts) == 0 {
		return "0m"
	}
	return strings.Join(parts, " ")
}
