// Package hours evaluates a company's weekly schedule: whether a given
// instant is after hours, and when the company next opens. Schedules are
// immutable snapshots taken from the company record at decision time.
package hours

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NextWeekSentinel is returned by NextOpenDescription when no open day is
// found within the seven-day scan bound. Callers must treat it as a
// low-confidence answer, not an error.
const NextWeekSentinel = "next week"

// DaySchedule is one weekday's opening window in wall-clock "HH:MM" strings.
type DaySchedule struct {
	Closed bool
	Opens  string
	Closes string
}

// WeekSchedule maps each weekday to its schedule. Days absent from the map
// count as closed.
type WeekSchedule map[time.Weekday]DaySchedule

// IsAfterHours reports whether now falls outside the schedule's opening
// window for its weekday. The window is half-open: [opens, closes).
func IsAfterHours(ws WeekSchedule, now time.Time) bool {
	day, ok := ws[now.Weekday()]
	if !ok || day.Closed {
		return true
	}

	opens, err := parseClock(day.Opens)
	if err != nil {
		return true
	}
	closes, err := parseClock(day.Closes)
	if err != nil {
		return true
	}

	// hours*100+minutes compares correctly as an integer because minutes
	// never reach 100.
	current := now.Hour()*100 + now.Minute()
	return current < opens || current >= closes
}

// NextOpenDescription scans forward at most seven days and describes the
// first day the company is open, e.g. "Monday at 08:00". Today only counts
// if its opening time is still ahead of now.
func NextOpenDescription(ws WeekSchedule, now time.Time) string {
	current := now.Hour()*100 + now.Minute()

	for offset := 0; offset < 7; offset++ {
		candidate := now.AddDate(0, 0, offset)
		day, ok := ws[candidate.Weekday()]
		if !ok || day.Closed {
			continue
		}

		opens, err := parseClock(day.Opens)
		if err != nil {
			continue
		}
		if offset == 0 && current >= opens {
			continue
		}

		switch offset {
		case 0:
			return fmt.Sprintf("today at %s", day.Opens)
		case 1:
			return fmt.Sprintf("tomorrow at %s", day.Opens)
		default:
			return fmt.Sprintf("%s at %s", candidate.Weekday(), day.Opens)
		}
	}

	return NextWeekSentinel
}

// parseClock converts "HH:MM" to the hours*100+minutes comparison form.
func parseClock(value string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed clock value %q", value)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, err
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, err
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("clock value out of range %q", value)
	}
	return hh*100 + mm, nil
}
