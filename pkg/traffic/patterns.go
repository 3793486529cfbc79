package traffic

import (
	"fmt"
	"strings"
	"time"
)

// Patterns holds the recurring peak and low periods of a series
type Patterns struct {
	Peaks   PatternSet `json:"peaks"`
	Lows    PatternSet `json:"lows"`
	PeakDay PeakDay    `json:"peakDay"`
}

// PatternSet is one class of hours (peak or low), overall and split by
// weekday/weekend. Nil members mean no hour fell in the class.
type PatternSet struct {
	Everyday *Window    `json:"everyday,omitempty"`
	Weekday  *DayWindow `json:"weekday,omitempty"`
	Weekend  *DayWindow `json:"weekend,omitempty"`
}

// HourRange is a run of consecutive hours, End inclusive
type HourRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Window describes hours of the day that belong to a class every day
type Window struct {
	Hours       string      `json:"hours"`
	Ranges      []HourRange `json:"ranges"`
	AvgTraffic  float64     `json:"avgTraffic"`
	Confidence  float64     `json:"confidence"`
	Consistency string      `json:"consistency"`
}

// DayWindow describes class hours on a group of days
type DayWindow struct {
	Days       string      `json:"days"`
	Hours      string      `json:"hours"`
	Ranges     []HourRange `json:"ranges"`
	AvgTraffic float64     `json:"avgTraffic"`
	Confidence float64     `json:"confidence"`
	PeakDay    string      `json:"peakDay"`
}

// PeakDay is the weekday with the highest mean traffic and its busiest hour
type PeakDay struct {
	Day        time.Weekday `json:"day"`
	Name       string       `json:"name"`
	AvgTraffic float64      `json:"avgTraffic"`
	PeakHour   int          `json:"peakHour"`
}

type slot struct {
	total float64
	count int
}

func (s slot) avg() float64 {
	if s.count == 0 {
		return 0
	}
	return s.total / float64(s.count)
}

// grouping accumulates traffic per hour of day and per (weekday, hour).
// Arrays keep iteration order fixed.
type grouping struct {
	hours    [24]slot
	dayHours [7][24]slot
}

type hourStat struct {
	hour    int
	avg     float64
	samples int
}

type dayHourStat struct {
	day     time.Weekday
	hour    int
	avg     float64
	samples int
}

func group(points []point) grouping {
	var g grouping
	for _, p := range points {
		h, d := p.at.Hour(), p.at.Weekday()
		g.hours[h].total += p.traffic
		g.hours[h].count++
		g.dayHours[d][h].total += p.traffic
		g.dayHours[d][h].count++
	}
	return g
}

func (g grouping) byHour() []hourStat {
	var out []hourStat
	for h, s := range g.hours {
		if s.count > 0 {
			out = append(out, hourStat{hour: h, avg: s.avg(), samples: s.count})
		}
	}
	return out
}

func (g grouping) byDayHour() []dayHourStat {
	var out []dayHourStat
	for d := range g.dayHours {
		for h, s := range g.dayHours[d] {
			if s.count > 0 {
				out = append(out, dayHourStat{day: time.Weekday(d), hour: h, avg: s.avg(), samples: s.count})
			}
		}
	}
	return out
}

func (g grouping) hourlyPattern() []HourAverage {
	var out []HourAverage
	for _, h := range g.byHour() {
		out = append(out, HourAverage{Hour: h.hour, AvgTraffic: round(h.avg, 2), Label: formatHour(h.hour)})
	}
	return out
}

func (g grouping) heatmap() []HeatmapCell {
	out := make([]HeatmapCell, 0, 7*24)
	for d := range g.dayHours {
		for h, s := range g.dayHours[d] {
			out = append(out, HeatmapCell{
				Day:        d,
				Hour:       h,
				DayName:    time.Weekday(d).String(),
				AvgTraffic: round(s.avg(), 2),
			})
		}
	}
	return out
}

// detectPatterns classifies hours against mean ± 0.5σ of the hourly averages
func detectPatterns(g grouping) *Patterns {
	hours := g.byHour()
	slots := g.byDayHour()

	avgs := make([]float64, len(hours))
	for i, h := range hours {
		avgs[i] = h.avg
	}
	s := describe(avgs)
	high := s.mean + 0.5*s.stdDev
	low := s.mean - 0.5*s.stdDev

	isPeak := func(v float64) bool { return v > high }
	isLow := func(v float64) bool { return v < low }

	return &Patterns{
		Peaks:   buildSet(hours, slots, isPeak),
		Lows:    buildSet(hours, slots, isLow),
		PeakDay: findPeakDay(slots),
	}
}

func buildSet(hours []hourStat, slots []dayHourStat, match func(float64) bool) PatternSet {
	var set PatternSet

	var matched []hourStat
	for _, h := range hours {
		if match(h.avg) {
			matched = append(matched, h)
		}
	}
	if len(matched) > 0 {
		set.Everyday = everydayWindow(matched)
	}

	var weekday, weekend []dayHourStat
	for _, s := range slots {
		if !match(s.avg) {
			continue
		}
		if isWeekend(s.day) {
			weekend = append(weekend, s)
		} else {
			weekday = append(weekday, s)
		}
	}
	if len(weekday) > 0 {
		set.Weekday = dayWindow(weekday, "Mon-Fri")
	}
	if len(weekend) > 0 {
		set.Weekend = dayWindow(weekend, "Sat-Sun")
	}
	return set
}

func everydayWindow(hours []hourStat) *Window {
	var (
		hs      = make([]int, len(hours))
		values  = make([]float64, len(hours))
		samples int
		sum     float64
	)
	for i, h := range hours {
		hs[i] = h.hour
		values[i] = h.avg
		samples += h.samples
		sum += h.avg
	}
	ranges := consecutiveRanges(hs)

	return &Window{
		Hours:       formatRanges(ranges),
		Ranges:      ranges,
		AvgTraffic:  round(sum/float64(len(hours)), 1),
		Confidence:  confidence(samples, values),
		Consistency: consistencyLabel(float64(samples) / float64(len(hours)*24)),
	}
}

func dayWindow(slots []dayHourStat, days string) *DayWindow {
	var (
		seen   [24]bool
		values = make([]float64, len(slots))
		sum    float64
		perDay [7]slot
	)
	for i, s := range slots {
		seen[s.hour] = true
		values[i] = s.avg
		sum += s.avg
		perDay[s.day].total += s.avg
		perDay[s.day].count++
	}

	var hs []int
	for h, ok := range seen {
		if ok {
			hs = append(hs, h)
		}
	}
	ranges := consecutiveRanges(hs)

	best, bestAvg := -1, 0.0
	for d, s := range perDay {
		if s.count > 0 && (best < 0 || s.avg() > bestAvg) {
			best, bestAvg = d, s.avg()
		}
	}

	return &DayWindow{
		Days:       days,
		Hours:      formatRanges(ranges),
		Ranges:     ranges,
		AvgTraffic: round(sum/float64(len(slots)), 1),
		Confidence: confidence(len(slots), values),
		PeakDay:    time.Weekday(best).String(),
	}
}

// findPeakDay picks the weekday with the highest mean slot traffic. Ties keep
// the earlier day.
func findPeakDay(slots []dayHourStat) PeakDay {
	var (
		perDay   [7]slot
		maxHour  [7]int
		maxValue [7]float64
	)
	for _, s := range slots {
		perDay[s.day].total += s.avg
		perDay[s.day].count++
		if s.avg > maxValue[s.day] {
			maxValue[s.day] = s.avg
			maxHour[s.day] = s.hour
		}
	}

	peak := PeakDay{Day: time.Sunday, Name: time.Sunday.String()}
	for d, s := range perDay {
		if s.count > 0 && s.avg() > peak.AvgTraffic {
			peak = PeakDay{
				Day:        time.Weekday(d),
				Name:       time.Weekday(d).String(),
				AvgTraffic: s.avg(),
				PeakHour:   maxHour[d],
			}
		}
	}
	peak.AvgTraffic = round(peak.AvgTraffic, 2)
	return peak
}

func isWeekend(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}

// consecutiveRanges collapses sorted hours into runs
func consecutiveRanges(hours []int) []HourRange {
	if len(hours) == 0 {
		return nil
	}
	var ranges []HourRange
	start, prev := hours[0], hours[0]
	for _, h := range hours[1:] {
		if h != prev+1 {
			ranges = append(ranges, HourRange{Start: start, End: prev})
			start = h
		}
		prev = h
	}
	return append(ranges, HourRange{Start: start, End: prev})
}

// formatRanges renders runs as "2:00 AM - 5:00 AM"; the end label is the hour
// the run finishes
func formatRanges(ranges []HourRange) string {
	parts := make([]string, 0, len(ranges))
	for _, r := range ranges {
		if r.Start == r.End {
			parts = append(parts, formatHour(r.Start))
			continue
		}
		parts = append(parts, formatHour(r.Start)+" - "+formatHour((r.End+1)%24))
	}
	return strings.Join(parts, ", ")
}

func formatHour(hour int) string {
	period := "AM"
	if hour >= 12 {
		period = "PM"
	}
	display := hour
	switch {
	case hour == 0:
		display = 12
	case hour > 12:
		display = hour - 12
	}
	return fmt.Sprintf("%d:00 %s", display, period)
}
