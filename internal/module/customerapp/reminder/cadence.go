package reminder

import "time"

// reminderDays are the odd Fibonacci numbers below 30, deduplicated.
var reminderDays = map[int]struct{}{
	1:  {},
	3:  {},
	5:  {},
	13: {},
	21: {},
}

const smsReminderDay = 2

func IsReminderDay(days int) bool {
	_, ok := reminderDays[days]
	return ok
}

func IsSMSReminderDay(days int) bool {
	return days == smsReminderDay
}

// DaysSince counts whole elapsed days; a timestamp in the future counts as 0.
func DaysSince(since, now time.Time) int {
	d := now.Sub(since)
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}
