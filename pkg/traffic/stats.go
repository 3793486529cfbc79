package traffic

import "math"

type stats struct {
	mean     float64
	variance float64
	stdDev   float64
}

// describe returns population statistics of values
func describe(values []float64) stats {
	if len(values) == 0 {
		return stats{}
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	variance := sq / float64(len(values))
	return stats{mean: mean, variance: variance, stdDev: math.Sqrt(variance)}
}

type regression struct {
	slope     float64
	intercept float64
	r2        float64
}

// linearRegression fits y = slope*i + intercept by least squares
func linearRegression(ys []float64) regression {
	n := float64(len(ys))
	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	var r regression
	if denom := n*sumX2 - sumX*sumX; denom != 0 {
		r.slope = (n*sumXY - sumX*sumY) / denom
	}
	r.intercept = (sumY - r.slope*sumX) / n

	meanY := sumY / n
	var ssRes, ssTot float64
	for i, y := range ys {
		fit := r.slope*float64(i) + r.intercept
		ssRes += (y - fit) * (y - fit)
		ssTot += (y - meanY) * (y - meanY)
	}
	switch {
	case ssTot > 0:
		r.r2 = 1 - ssRes/ssTot
	case ssRes == 0:
		// A flat series is fitted exactly
		r.r2 = 1
	}
	return r
}

// confidence scores a pattern from its sample count and the spread of its values
func confidence(samples int, values []float64) float64 {
	s := describe(values)
	cv := 0.0
	if s.variance > 0 && s.mean > 0 {
		cv = s.stdDev / s.mean
	}
	sampleScore := math.Min(float64(samples)/100, 1)
	consistencyScore := math.Max(0, 1-cv)
	return round(sampleScore*0.6+consistencyScore*0.4, 2)
}

func consistencyLabel(ratio float64) string {
	switch {
	case ratio > 0.9:
		return "Very High - consistent daily"
	case ratio > 0.7:
		return "High - occurs most days"
	case ratio > 0.5:
		return "Medium - occurs often"
	default:
		return "Low - occasional"
	}
}
