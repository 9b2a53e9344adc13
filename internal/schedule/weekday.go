package schedule

import (
	"fmt"
	"strings"
	"time"
)

// Weekday letters used by bulk creation: M T W R F S U, Monday first.
var weekdayLetters = map[rune]time.Weekday{
	'M': time.Monday,
	'T': time.Tuesday,
	'W': time.Wednesday,
	'R': time.Thursday,
	'F': time.Friday,
	'S': time.Saturday,
	'U': time.Sunday,
}

// ParseWeekdays turns a letter string such as "MWF" into a weekday set.
// Case, spaces and commas are ignored.
func ParseWeekdays(s string) (map[time.Weekday]bool, error) {
	days := make(map[time.Weekday]bool)
	for _, r := range strings.ToUpper(s) {
		if r == ' ' || r == ',' {
			continue
		}
		wd, ok := weekdayLetters[r]
		if !ok {
			return nil, fmt.Errorf("unknown weekday letter %q", r)
		}
		days[wd] = true
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("no weekdays given")
	}
	return days, nil
}

// DatesOn lists every date in [from, to] whose weekday is in days.
func DatesOn(from, to time.Time, days map[time.Weekday]bool) []time.Time {
	var dates []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		if days[d.Weekday()] {
			dates = append(dates, d)
		}
	}
	return dates
}
