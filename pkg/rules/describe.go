package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/teambition/rrule-go"
)

var dayNames = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

var monthNames = []string{"", "January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December"}

func describe(opt *rrule.ROption) string {
	parts := []string{frequencyPhrase(opt.Freq, opt.Interval)}

	if len(opt.Bymonth) > 0 {
		months := make([]string, 0, len(opt.Bymonth))
		for _, m := range opt.Bymonth {
			if m >= 1 && m <= 12 {
				months = append(months, monthNames[m])
			}
		}
		parts = append(parts, "in "+joinWords(months))
	}

	if days := weekdayPhrase(opt.Byweekday); days != "" {
		parts = append(parts, days)
	}

	if len(opt.Bymonthday) > 0 {
		parts = append(parts, monthDayPhrase(opt.Bymonthday))
	}

	if at := timePhrase(opt.Byhour, opt.Byminute); at != "" {
		parts = append(parts, at)
	}

	switch {
	case opt.Count == 1:
		parts = append(parts, "once")
	case opt.Count > 1:
		parts = append(parts, fmt.Sprintf("for %d times", opt.Count))
	}
	if !opt.Until.IsZero() {
		parts = append(parts, "until "+opt.Until.Format("January 2, 2006"))
	}

	return strings.Join(parts, " ")
}

func frequencyPhrase(freq rrule.Frequency, interval int) string {
	unit := map[rrule.Frequency]string{
		rrule.YEARLY:   "year",
		rrule.MONTHLY:  "month",
		rrule.WEEKLY:   "week",
		rrule.DAILY:    "day",
		rrule.HOURLY:   "hour",
		rrule.MINUTELY: "minute",
		rrule.SECONDLY: "second",
	}[freq]
	if unit == "" {
		unit = "period"
	}
	if interval > 1 {
		return fmt.Sprintf("every %d %ss", interval, unit)
	}
	return "every " + unit
}

func weekdayPhrase(days []rrule.Weekday) string {
	if len(days) == 0 {
		return ""
	}

	set := make(map[int]bool, len(days))
	var names []string
	for _, wd := range days {
		set[wd.Day()] = true
		name := dayNames[wd.Day()]
		switch n := wd.N(); {
		case n == -1:
			name = "last " + name
		case n > 0:
			name = ordinal(n) + " " + name
		}
		names = append(names, name)
	}

	if len(set) == 5 && len(days) == 5 && !set[5] && !set[6] {
		return "on weekdays"
	}
	if len(set) == 2 && len(days) == 2 && set[5] && set[6] {
		return "on weekends"
	}
	return "on " + joinWords(names)
}

func monthDayPhrase(days []int) string {
	var names []string
	for _, d := range days {
		switch {
		case d == -1:
			names = append(names, "the last day")
		case d < 0:
			names = append(names, fmt.Sprintf("%s to last day", ordinal(-d)))
		default:
			names = append(names, "the "+ordinal(d))
		}
	}
	return "on " + joinWords(names) + " of the month"
}

func timePhrase(hours, minutes []int) string {
	if len(hours) == 0 && len(minutes) == 0 {
		return ""
	}
	if len(hours) == 0 {
		mins := append([]int(nil), minutes...)
		sort.Ints(mins)
		labels := make([]string, 0, len(mins))
		for _, m := range mins {
			labels = append(labels, fmt.Sprintf(":%02d", m))
		}
		return "at minute " + joinWords(labels)
	}

	hs := append([]int(nil), hours...)
	sort.Ints(hs)
	ms := append([]int(nil), minutes...)
	sort.Ints(ms)
	if len(ms) == 0 {
		ms = []int{0}
	}

	var labels []string
	for _, h := range hs {
		for _, m := range ms {
			labels = append(labels, fmt.Sprintf("%02d:%02d", h, m))
		}
	}
	return "at " + joinWords(labels)
}

func ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}

func joinWords(words []string) string {
	switch len(words) {
	case 0:
		return ""
	case 1:
		return words[0]
	case 2:
		return words[0] + " and " + words[1]
	default:
		return strings.Join(words[:len(words)-1], ", ") + " and " + words[len(words)-1]
	}
}
