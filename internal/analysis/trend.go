package analysis

// linearTrend fits y = mx + b over the values in row order and returns the
// slope and R-squared. Fewer than three values give no trend.
func linearTrend(vals []float64) (slope, rsquared float64, ok bool) {
	if len(vals) < 3 {
		return 0, 0, false
	}

	n := float64(len(vals))
	sumX, sumY, sumXY, sumX2 := 0.0, 0.0, 0.0, 0.0
	for i, y := range vals {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}

	denominator := n*sumX2 - sumX*sumX
	if denominator == 0 {
		return 0, 0, false
	}
	slope = (n*sumXY - sumX*sumY) / denominator

	meanY := sumY / n
	intercept := meanY - slope*(sumX/n)
	ssTotal, ssResidual := 0.0, 0.0
	for i, y := range vals {
		predicted := slope*float64(i) + intercept
		ssTotal += (y - meanY) * (y - meanY)
		ssResidual += (y - predicted) * (y - predicted)
	}

	if ssTotal == 0 {
		return slope, 0, true
	}
	return slope, 1 - ssResidual/ssTotal, true
}

func numericValues(rows []map[string]any, column string) []float64 {
	vals := make([]float64, 0, len(rows))
	for _, row := range rows {
		if f, ok := toFloat(row[column]); ok {
			vals = append(vals, f)
		}
	}
	return vals
}
