package timectrl

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	// Day is one campaign day.
	Day = 24 * time.Hour

	dateLayout = "2006-01-02"
)

// SimClock is an interface for mapping scenario offsets onto wall time. It
// lets the flow simulator depend on a clock abstraction rather than a
// concrete base date.
type SimClock interface {
	// DayStart returns midnight of the given zero-based campaign day.
	DayStart(day int) time.Time
	// At returns the instant offset into the given campaign day.
	At(day int, offset time.Duration) time.Time
}

// ScenarioClock anchors a campaign of Days days at Start (UTC midnight).
// It implements SimClock.
type ScenarioClock struct {
	Start time.Time
	Days  int
}

// NewScenarioClock constructs a clock whose day zero begins at start,
// truncated to UTC midnight.
func NewScenarioClock(start time.Time, days int) *ScenarioClock {
	s := start.UTC()
	s = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, time.UTC)
	return &ScenarioClock{Start: s, Days: days}
}

// ParseBaseDate accepts YYYY-MM-DD or RFC 3339 and returns a UTC time.
func ParseBaseDate(value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, fmt.Errorf("base_date is required")
	}
	if t, err := time.Parse(dateLayout, v); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("base_date: invalid date %q (expected YYYY-MM-DD or RFC 3339)", value)
	}
	return t.UTC(), nil
}

// DayStart returns midnight of the given campaign day. Implements SimClock.
func (c *ScenarioClock) DayStart(day int) time.Time {
	return c.Start.Add(time.Duration(day) * Day)
}

// At returns DayStart(day)+offset. Implements SimClock.
func (c *ScenarioClock) At(day int, offset time.Duration) time.Time {
	return c.DayStart(day).Add(offset)
}

// Horizon returns the end of the last campaign day.
func (c *ScenarioClock) Horizon() time.Time {
	return c.DayStart(c.Days)
}

// DayOf returns the zero-based campaign day containing t. Instants before
// Start map to negative days.
func (c *ScenarioClock) DayOf(t time.Time) int {
	d := t.Sub(c.Start)
	day := int(d / Day)
	if d < 0 && d%Day != 0 {
		day--
	}
	return day
}

// MaxDuration is the longest duration HoursToDuration returns, a whole
// number of seconds.
const MaxDuration = time.Duration(math.MaxInt64/int64(time.Second)) * time.Second

// HoursToDuration converts fractional hours to a duration rounded to the
// second. Negative and NaN inputs yield zero; inputs too large for a
// time.Duration, +Inf included, saturate at MaxDuration.
func HoursToDuration(hours float64) time.Duration {
	if math.IsNaN(hours) || hours <= 0 {
		return 0
	}
	secs := math.Round(hours * 3600)
	if secs >= float64(MaxDuration/time.Second) {
		return MaxDuration
	}
	return time.Duration(secs) * time.Second
}
