package traffic

import (
	"math"
	"sort"
	"time"
)

// Anomaly thresholds in standard deviations
const (
	anomalyZ    = 3.0
	criticalZ   = 4.0
	extremeZ    = 5.0
	maxReturned = 10
)

// Anomaly is a single hour far from the series mean
type Anomaly struct {
	Timestamp     time.Time `json:"timestamp"`
	Traffic       float64   `json:"traffic"`
	Expected      float64   `json:"expected"`
	Deviation     float64   `json:"deviation"` // percent from the mean
	ZScore        float64   `json:"zScore"`
	Severity      string    `json:"severity"` // high, critical
	Type          string    `json:"type"`     // spike, drop
	PossibleCause string    `json:"possibleCause"`
}

// findAnomalies flags points with |z| > 3 and returns the most extreme ones,
// along with the total number flagged
func findAnomalies(points []point) ([]Anomaly, int) {
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.traffic
	}
	s := describe(values)
	if s.stdDev == 0 {
		return nil, 0
	}

	type flagged struct {
		Anomaly
		absZ float64
	}
	var found []flagged

	for _, p := range points {
		z := (p.traffic - s.mean) / s.stdDev
		absZ := math.Abs(z)
		if absZ <= anomalyZ {
			continue
		}

		severity := "high"
		if absZ > criticalZ {
			severity = "critical"
		}
		kind := "drop"
		if z > 0 {
			kind = "spike"
		}
		deviation := 0.0
		if s.mean != 0 {
			deviation = round((p.traffic-s.mean)/s.mean*100, 1)
		}

		found = append(found, flagged{
			Anomaly: Anomaly{
				Timestamp:     p.at.UTC(),
				Traffic:       round(p.traffic, 2),
				Expected:      round(s.mean, 2),
				Deviation:     deviation,
				ZScore:        round(z, 2),
				Severity:      severity,
				Type:          kind,
				PossibleCause: anomalyCause(p.at.Hour(), kind, absZ),
			},
			absZ: absZ,
		})
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].absZ > found[j].absZ })

	total := len(found)
	if len(found) > maxReturned {
		found = found[:maxReturned]
	}
	out := make([]Anomaly, len(found))
	for i, f := range found {
		out[i] = f.Anomaly
	}
	return out, total
}

func anomalyCause(hour int, kind string, absZ float64) string {
	overnight := hour >= 2 && hour <= 5
	if kind == "spike" {
		switch {
		case overnight:
			return "Batch job or scheduled task"
		case absZ > extremeZ:
			return "Possible DDoS attack or viral traffic"
		default:
			return "Marketing campaign, viral content, or legitimate traffic surge"
		}
	}
	if overnight {
		return "Normal overnight low activity"
	}
	return "Service outage, network issue, or scheduled maintenance"
}
