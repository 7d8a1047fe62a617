package utils

import (
	"fmt"
	"time"
)

const DayLayout = "2006-01-02"

// Day truncates t to midnight UTC of its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD string as a UTC day.
func ParseDay(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// MonthRange returns [first day of month, first day of next month).
func MonthRange(year, month int) (time.Time, time.Time, error) {
	if month < 1 || month > 12 || year < 1970 || year > 9999 {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid month %d-%d", year, month)
	}
	from := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0), nil
}

// ParseBound accepts RFC 3339 timestamps or bare dates. A bare date used as
// an upper bound covers the whole day.
func ParseBound(s string, upper bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := ParseDay(s)
	if err != nil {
		return time.Time{}, err
	}
	if upper {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}

// Streak counts consecutive days ending today, or ending yesterday when today
// has no entry yet. days must be sorted newest first; duplicates are ignored.
func Streak(days []time.Time, today time.Time) int {
	today = Day(today)
	expect := today
	count := 0
	for i, d := range days {
		d = Day(d)
		if i == 0 && d.Equal(today.AddDate(0, 0, -1)) {
			expect = d
		}
		if d.After(expect) {
			continue
		}
		if !d.Equal(expect) {
			break
		}
		count++
		expect = expect.AddDate(0, 0, -1)
	}
	return count
}
