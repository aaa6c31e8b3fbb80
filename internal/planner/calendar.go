package planner

import "time"

// AddMonths returns the date n calendar months after base, clamping the day
// to the last valid day of the target month (Jan 31 + 1 month = Feb 29 in a
// leap year, Feb 28 otherwise). Negative n subtracts months.
func AddMonths(base time.Time, months int) time.Time {
	total := int(base.Month()) - 1 + months
	year := base.Year() + floorDiv(total, 12)
	month := time.Month(floorMod(total, 12) + 1)
	day := base.Day()
	if last := daysInMonth(month, year); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, base.Location())
}

// MonthsBetweenCeiling counts whole months from start to end, rounded up.
// Never negative.
func MonthsBetweenCeiling(start, end time.Time) int {
	start = dateOnly(start)
	end = dateOnly(end)
	base := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if AddMonths(start, base).Before(end) {
		return base + 1
	}
	if base < 0 {
		return 0
	}
	return base
}

// weekStart returns the Monday of the week target falls in.
func weekStart(target time.Time) time.Time {
	target = dateOnly(target)
	offset := (int(target.Weekday()) + 6) % 7
	return target.AddDate(0, 0, -offset)
}

// isoWeek is the ISO 8601 week number of t.
func isoWeek(t time.Time) int {
	_, week := t.ISOWeek()
	return week
}

// dateOnly truncates t to its calendar date, pinned to UTC midnight so task
// dates persist and compare consistently regardless of server timezone.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// daysInMonth returns the number of days in the given month.
func daysInMonth(month time.Month, year int) int {
	// Move to the next month, roll back a day.
	firstOfMonth := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return firstOfMonth.AddDate(0, 1, -1).Day()
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	return a - floorDiv(a, b)*b
}
