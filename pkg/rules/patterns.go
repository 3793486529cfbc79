package rules

import "sort"

// Pattern is a named, commonly used recurrence rule
type Pattern struct {
	Name        string `json:"name"`
	Rule        string `json:"rule"`
	Description string `json:"description"`
}

var patterns = map[string]string{
	"DAILY_9PM":  "FREQ=DAILY;BYHOUR=21;BYMINUTE=0",
	"DAILY_10AM": "FREQ=DAILY;BYHOUR=10;BYMINUTE=0",
	"DAILY_6PM":  "FREQ=DAILY;BYHOUR=18;BYMINUTE=0",

	"WEEKDAYS_9PM": "FREQ=DAILY;BYDAY=MO,TU,WE,TH,FR;BYHOUR=21;BYMINUTE=0",
	"WEEKDAYS_6AM": "FREQ=DAILY;BYDAY=MO,TU,WE,TH,FR;BYHOUR=6;BYMINUTE=0",

	"WEEKENDS_10AM": "FREQ=DAILY;BYDAY=SA,SU;BYHOUR=10;BYMINUTE=0",

	"WEEKLY_MONDAY_9AM": "FREQ=WEEKLY;BYDAY=MO;BYHOUR=9;BYMINUTE=0",
	"WEEKLY_FRIDAY_6PM": "FREQ=WEEKLY;BYDAY=FR;BYHOUR=18;BYMINUTE=0",

	"MONTHLY_FIRST_DAY_9AM": "FREQ=MONTHLY;BYMONTHDAY=1;BYHOUR=9;BYMINUTE=0",
	"MONTHLY_LAST_DAY_6PM":  "FREQ=MONTHLY;BYMONTHDAY=-1;BYHOUR=18;BYMINUTE=0",
}

// PatternRule returns the rule for a named pattern
func PatternRule(name string) (string, bool) {
	rule, ok := patterns[name]
	return rule, ok
}

// Patterns returns every named pattern, sorted by name
func Patterns(e Engine) []Pattern {
	out := make([]Pattern, 0, len(patterns))
	for name, rule := range patterns {
		out = append(out, Pattern{Name: name, Rule: rule, Description: e.Describe(rule)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
