package traffic

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/types"
)

// MinPoints is the fewest hourly points Analyze accepts
const MinPoints = 24

// ErrInsufficientData is the Analysis.Error value for short series
const ErrInsufficientData = "insufficient_data"

// Analysis is the result of analyzing one server's hourly traffic
type Analysis struct {
	Success      bool              `json:"success"`
	Error        string            `json:"error,omitempty"`
	Message      string            `json:"message,omitempty"`
	Insufficient *InsufficientData `json:"insufficient,omitempty"`

	Patterns        *Patterns        `json:"patterns,omitempty"`
	Trend           *Trend           `json:"trend,omitempty"`
	Anomalies       []Anomaly        `json:"anomalies,omitempty"`
	AnomalyCount    int              `json:"anomalyCount"`
	Recommendations []Recommendation `json:"recommendations,omitempty"`
	DataQuality     *DataQuality     `json:"dataQuality,omitempty"`
	HourlyPattern   []HourAverage    `json:"hourlyPattern,omitempty"`
	WeeklyHeatmap   []HeatmapCell    `json:"weeklyHeatmap,omitempty"`
}

// InsufficientData describes how much more history is needed
type InsufficientData struct {
	DaysAvailable  int    `json:"daysAvailable"`
	DaysNeeded     int    `json:"daysNeeded"`
	HoursAvailable int    `json:"hoursAvailable"`
	HoursNeeded    int    `json:"hoursNeeded"`
	EstimatedWait  string `json:"estimatedWait"`
}

// DataQuality summarizes the input series
type DataQuality struct {
	DaysAnalyzed    int       `json:"daysAnalyzed"`
	DataPoints      int       `json:"dataPoints"`
	Coverage        float64   `json:"coverage"` // percent of points with samples
	Confidence      string    `json:"confidence"`
	ConfidenceLabel string    `json:"confidenceLabel"`
	LastUpdated     time.Time `json:"lastUpdated"`
}

// HourAverage is the mean traffic of one hour of the day
type HourAverage struct {
	Hour       int     `json:"hour"`
	AvgTraffic float64 `json:"avgTraffic"`
	Label      string  `json:"label"`
}

// HeatmapCell is the mean traffic of one (weekday, hour) slot
type HeatmapCell struct {
	Day        int     `json:"day"`
	Hour       int     `json:"hour"`
	DayName    string  `json:"dayName"`
	AvgTraffic float64 `json:"avgTraffic"`
}

// point is one hourly aggregate reduced to total throughput
type point struct {
	at      time.Time // in the analyzer's location
	traffic float64
}

// Analyzer derives usage patterns and downtime recommendations from hourly
// traffic. It holds no state besides its location and is safe for concurrent use.
type Analyzer struct {
	loc *time.Location
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithLocation evaluates hours and weekdays in loc instead of UTC
func WithLocation(loc *time.Location) Option {
	return func(a *Analyzer) {
		if loc != nil {
			a.loc = loc
		}
	}
}

// New creates an analyzer
func New(opts ...Option) *Analyzer {
	a := &Analyzer{loc: time.UTC}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs the full pipeline. The output depends only on the input:
// there are no clock reads.
func (a *Analyzer) Analyze(hourly []types.HourlyTraffic, server *types.Server) Analysis {
	if len(hourly) < MinPoints {
		return insufficient(len(hourly))
	}

	sorted := append([]types.HourlyTraffic(nil), hourly...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Hour.Before(sorted[j].Hour) })

	points := make([]point, len(sorted))
	for i, h := range sorted {
		points[i] = point{at: h.Hour.In(a.loc), traffic: h.AvgInMbps + h.AvgOutMbps}
	}

	instanceType := ""
	if server != nil {
		instanceType = server.InstanceType
	}

	g := group(points)
	patterns := detectPatterns(g)
	trend := analyzeTrend(points)
	anomalies, total := findAnomalies(points)

	return Analysis{
		Success:         true,
		Patterns:        patterns,
		Trend:           trend,
		Anomalies:       anomalies,
		AnomalyCount:    total,
		Recommendations: recommend(patterns, trend, total, instanceType),
		DataQuality:     assessQuality(sorted),
		HourlyPattern:   g.hourlyPattern(),
		WeeklyHeatmap:   g.heatmap(),
	}
}

func insufficient(hours int) Analysis {
	days := hours / 24
	needed := 7 - days
	if needed < 1 {
		needed = 1
	}
	unit := "days"
	if needed == 1 {
		unit = "day"
	}
	return Analysis{
		Success: false,
		Error:   ErrInsufficientData,
		Message: fmt.Sprintf("Traffic analysis requires at least 7 days of data. Currently have %d days.", days),
		Insufficient: &InsufficientData{
			DaysAvailable:  days,
			DaysNeeded:     needed,
			HoursAvailable: hours,
			HoursNeeded:    needed * 24,
			EstimatedWait:  fmt.Sprintf("Check back in %d %s", needed, unit),
		},
	}
}

func assessQuality(hourly []types.HourlyTraffic) *DataQuality {
	days := len(hourly) / 24
	sampled := 0
	for _, h := range hourly {
		if h.Samples > 0 {
			sampled++
		}
	}
	coverage := round(float64(sampled)/float64(len(hourly))*100, 1)

	tier := "low"
	switch {
	case days >= 30 && coverage > 95:
		tier = "very_high"
	case days >= 14 && coverage > 90:
		tier = "high"
	case days >= 7 && coverage > 80:
		tier = "medium"
	}

	return &DataQuality{
		DaysAnalyzed:    days,
		DataPoints:      len(hourly),
		Coverage:        coverage,
		Confidence:      tier,
		ConfidenceLabel: confidenceLabels[tier],
		LastUpdated:     hourly[len(hourly)-1].Hour.UTC(),
	}
}

var confidenceLabels = map[string]string{
	"very_high": "Very High",
	"high":      "High",
	"medium":    "Medium",
	"low":       "Low",
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}
