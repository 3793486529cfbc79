package traffic

import (
	"fmt"
	"math"
	"time"
)

// Trend thresholds
const (
	minTrendPoints     = 14 * 24
	significantChange  = 0.05
	weekKeyLayout      = "2006-01-02"
	highConfidenceR2   = 0.7
	mediumConfidenceR2 = 0.4
)

// Trend is the week-over-week direction of traffic
type Trend struct {
	Available     bool          `json:"available"`
	Reason        string        `json:"reason,omitempty"`
	Direction     string        `json:"direction,omitempty"`
	Rate          float64       `json:"rate,omitempty"`
	ChangePercent float64       `json:"changePercent,omitempty"`
	Significant   bool          `json:"significant"`
	Slope         float64       `json:"slope,omitempty"`
	R2            float64       `json:"r2,omitempty"`
	Forecast      *Forecast     `json:"forecast,omitempty"`
	Message       string        `json:"message,omitempty"`
	Weekly        []WeekAverage `json:"weekly,omitempty"`
}

// Forecast extrapolates the fitted line one week ahead
type Forecast struct {
	PredictedTraffic float64 `json:"predictedTraffic"`
	Week             string  `json:"week"`
	Confidence       string  `json:"confidence"`
}

// WeekAverage is the mean traffic of one calendar week starting Sunday
type WeekAverage struct {
	Week       string  `json:"week"`
	AvgTraffic float64 `json:"avgTraffic"`
}

func analyzeTrend(points []point) *Trend {
	if len(points) < minTrendPoints {
		return &Trend{Reason: "Need at least 14 days of data for trend analysis"}
	}

	weeks := weeklyAverages(points)
	if len(weeks) < 2 {
		return &Trend{Reason: "Need at least 2 weeks of data"}
	}

	ys := make([]float64, len(weeks))
	for i, w := range weeks {
		ys[i] = w.AvgTraffic
	}
	reg := linearRegression(ys)

	first, last := ys[0], ys[len(ys)-1]
	change := 0.0
	if first != 0 {
		change = (last - first) / first
	}

	direction := "stable"
	switch {
	case reg.slope > 0:
		direction = "increasing"
	case reg.slope < 0:
		direction = "decreasing"
	}
	significant := math.Abs(change) > significantChange

	for i := range weeks {
		weeks[i].AvgTraffic = round(weeks[i].AvgTraffic, 2)
	}

	return &Trend{
		Available:     true,
		Direction:     direction,
		Rate:          round(math.Abs(change), 4),
		ChangePercent: round(change*100, 1),
		Significant:   significant,
		Slope:         round(reg.slope, 4),
		R2:            round(reg.r2, 4),
		Forecast:      forecast(weeks, reg),
		Message:       trendMessage(direction, change, significant),
		Weekly:        weeks,
	}
}

// weeklyAverages buckets points by the Sunday that starts their week, in the
// points' own location, oldest first
func weeklyAverages(points []point) []WeekAverage {
	var (
		out   []WeekAverage
		index = make(map[string]int)
		sums  []slot
	)
	for _, p := range points {
		start := p.at.AddDate(0, 0, -int(p.at.Weekday()))
		key := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, p.at.Location()).Format(weekKeyLayout)

		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, WeekAverage{Week: key})
			sums = append(sums, slot{})
		}
		sums[i].total += p.traffic
		sums[i].count++
	}
	for i := range out {
		out[i].AvgTraffic = sums[i].avg()
	}
	// Points are sorted by time, so weeks are already in order
	return out
}

func forecast(weeks []WeekAverage, reg regression) *Forecast {
	predicted := reg.slope*float64(len(weeks)) + reg.intercept

	week := weeks[len(weeks)-1].Week
	if last, err := time.Parse(weekKeyLayout, week); err == nil {
		week = last.AddDate(0, 0, 7).Format(weekKeyLayout)
	}

	conf := "low"
	switch {
	case reg.r2 > highConfidenceR2:
		conf = "high"
	case reg.r2 > mediumConfidenceR2:
		conf = "medium"
	}

	return &Forecast{
		PredictedTraffic: round(predicted, 1),
		Week:             week,
		Confidence:       conf,
	}
}

func trendMessage(direction string, change float64, significant bool) string {
	if !significant {
		return "Traffic is stable with no significant trend"
	}
	pct := math.Abs(change * 100)
	if direction == "increasing" {
		return fmt.Sprintf("Traffic growing %.1f%% per week", pct)
	}
	return fmt.Sprintf("Traffic decreasing %.1f%% per week", pct)
}
