package traffic

import (
	"fmt"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/types"
)

// Recommendation types, in priority order
const (
	RecDowntimeWindow   = "downtime_window"
	RecCapacityPlanning = "capacity_planning"
	RecAvoidMaintenance = "avoid_maintenance"
	RecAnomalyAlert     = "anomaly_alert"
	RecScaleTiming      = "scale_timing"
)

// anomalyAlertThreshold is the anomaly count above which an alert is raised
const anomalyAlertThreshold = 5

// fallbackPeak is the peak traffic assumed when no weekday peak exists
const fallbackPeak = 10.0

// Recommendation is one actionable suggestion
type Recommendation struct {
	Priority   int                `json:"priority"`
	Type       string             `json:"type"`
	Title      string             `json:"title"`
	Message    string             `json:"message"`
	Reason     string             `json:"reason"`
	Window     string             `json:"window,omitempty"`
	Confidence float64            `json:"confidence,omitempty"`
	Forecast   string             `json:"forecast,omitempty"`
	Impact     string             `json:"impact,omitempty"`
	Action     *RecommendedAction `json:"action,omitempty"`
}

// RecommendedAction is the concrete step behind a recommendation
type RecommendedAction struct {
	Type        string        `json:"type"`
	Time        string        `json:"time,omitempty"`
	Hour        *int          `json:"hour,omitempty"`
	Day         *time.Weekday `json:"day,omitempty"`
	RRule       string        `json:"rrule,omitempty"`
	Current     string        `json:"current,omitempty"`
	Recommended string        `json:"recommended,omitempty"`
	Count       int           `json:"count,omitempty"`
}

var instanceUpgrades = map[string]string{
	"t3.micro":  "t3.small",
	"t3.small":  "t3.medium",
	"t3.medium": "t3.large",
	"t3.large":  "t3.xlarge",
	"t2.micro":  "t2.small",
	"t2.small":  "t2.medium",
	"t2.medium": "t2.large",
}

// SuggestUpgrade returns the next size up for known burstable types
func SuggestUpgrade(instanceType string) string {
	if instanceType == "" {
		return ""
	}
	if next, ok := instanceUpgrades[instanceType]; ok {
		return next
	}
	return "Consult with cloud provider"
}

func recommend(p *Patterns, t *Trend, anomalies int, instanceType string) []Recommendation {
	var recs []Recommendation

	if low := p.Lows.Everyday; low != nil {
		peak := fallbackPeak
		if p.Peaks.Weekday != nil && p.Peaks.Weekday.AvgTraffic > 0 {
			peak = p.Peaks.Weekday.AvgTraffic
		}
		hour := low.Ranges[0].Start
		recs = append(recs, Recommendation{
			Priority:   1,
			Type:       RecDowntimeWindow,
			Title:      "Best Maintenance Window",
			Message:    fmt.Sprintf("Schedule maintenance at %s daily", low.Hours),
			Reason:     fmt.Sprintf("Average traffic only %.1f Mbps (%.0f%% lower than peak)", low.AvgTraffic, (1-low.AvgTraffic/peak)*100),
			Window:     low.Hours,
			Confidence: low.Confidence,
			Action: &RecommendedAction{
				Type:  "schedule_downtime",
				Time:  formatHour(hour),
				Hour:  &hour,
				RRule: fmt.Sprintf("FREQ=DAILY;BYHOUR=%d;BYMINUTE=0", hour),
			},
		})
	}

	if t.Available && t.Significant && t.Direction == "increasing" {
		rec := Recommendation{
			Priority: 2,
			Type:     RecCapacityPlanning,
			Title:    "Traffic Growing",
			Message:  "Consider upgrading instance size",
			Reason:   fmt.Sprintf("Traffic increasing %.1f%% per week", t.ChangePercent),
			Action: &RecommendedAction{
				Type:        "upgrade_instance",
				Current:     orDefault(instanceType, "unknown"),
				Recommended: SuggestUpgrade(instanceType),
			},
		}
		if t.Forecast != nil {
			rec.Forecast = fmt.Sprintf("Will reach %.1f Mbps by %s", t.Forecast.PredictedTraffic, t.Forecast.Week)
		}
		recs = append(recs, rec)
	}

	if peak := p.Peaks.Weekday; peak != nil {
		recs = append(recs, Recommendation{
			Priority:   3,
			Type:       RecAvoidMaintenance,
			Title:      "High Traffic Period",
			Message:    fmt.Sprintf("Avoid maintenance during %s: %s", peak.Days, peak.Hours),
			Reason:     fmt.Sprintf("Peak traffic hours (%.1f Mbps)", peak.AvgTraffic),
			Confidence: peak.Confidence,
			Impact:     "High user activity - service disruption would affect many users",
		})
	}

	if anomalies > anomalyAlertThreshold {
		recs = append(recs, Recommendation{
			Priority: 4,
			Type:     RecAnomalyAlert,
			Title:    "Frequent Anomalies Detected",
			Message:  fmt.Sprintf("%d unusual traffic patterns in the analyzed period", anomalies),
			Reason:   "Multiple spikes or drops detected",
			Action:   &RecommendedAction{Type: "review_anomalies", Count: anomalies},
		})
	}

	if pd := p.PeakDay; pd.AvgTraffic > 0 {
		// One hour ahead of the peak, wrapping to the previous day at midnight
		day, hour := pd.Day, pd.PeakHour-1
		if hour < 0 {
			hour = 23
			day = (day + 6) % 7
		}
		recs = append(recs, Recommendation{
			Priority: 5,
			Type:     RecScaleTiming,
			Title:    "Proactive Scaling",
			Message:  fmt.Sprintf("Consider scaling up before %s %s", pd.Name, formatHour(pd.PeakHour)),
			Reason:   fmt.Sprintf("Historically highest traffic day/time (%.1f Mbps)", pd.AvgTraffic),
			Action: &RecommendedAction{
				Type:  "auto_scale",
				Day:   &day,
				Hour:  &hour,
				RRule: fmt.Sprintf("FREQ=WEEKLY;BYDAY=%s;BYHOUR=%d;BYMINUTE=0", rruleDay(day), hour),
			},
		})
	}

	return recs
}

// DowntimeWindow is the best-downtime extraction of an analysis
type DowntimeWindow struct {
	Available     bool    `json:"available"`
	Message       string  `json:"message"`
	Window        string  `json:"window,omitempty"`
	Confidence    float64 `json:"confidence,omitempty"`
	Reason        string  `json:"reason,omitempty"`
	SuggestedTime string  `json:"suggestedTime,omitempty"`
	SuggestedHour int     `json:"suggestedHour,omitempty"`
	RRule         string  `json:"rrule,omitempty"`
}

// BestDowntime analyzes hourly and returns its maintenance-window recommendation
func (a *Analyzer) BestDowntime(hourly []types.HourlyTraffic, server *types.Server) DowntimeWindow {
	if len(hourly) < MinPoints {
		return DowntimeWindow{Message: "Need at least 24 hours of data"}
	}

	analysis := a.Analyze(hourly, server)
	if !analysis.Success {
		return DowntimeWindow{Message: orDefault(analysis.Message, "Insufficient data")}
	}

	for _, rec := range analysis.Recommendations {
		if rec.Type != RecDowntimeWindow {
			continue
		}
		w := DowntimeWindow{
			Available:  true,
			Message:    rec.Message,
			Window:     rec.Window,
			Confidence: rec.Confidence,
			Reason:     rec.Reason,
		}
		if rec.Action != nil && rec.Action.Hour != nil {
			w.SuggestedTime = rec.Action.Time
			w.SuggestedHour = *rec.Action.Hour
			w.RRule = rec.Action.RRule
		}
		return w
	}
	return DowntimeWindow{Message: "No clear downtime window detected yet"}
}

func rruleDay(d time.Weekday) string {
	return [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}[d]
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
