package analysis

import (
	"fmt"
	"math"
	"strings"
)

// quality holds per-column data quality metrics
type quality struct {
	nonNull  int
	nullRate float64
	distinct int
	entropy  float64
}

func columnQuality(rows []map[string]any, column string) quality {
	uniqueValues := make(map[string]int)
	nonNullCount := 0

	for _, row := range rows {
		value, ok := row[column]
		if !ok || value == nil {
			continue
		}
		key := fmt.Sprintf("%v", value)
		if s := strings.TrimSpace(key); s == "" || strings.EqualFold(s, "null") {
			continue
		}
		nonNullCount++
		uniqueValues[key]++
	}

	q := quality{
		nonNull:  nonNullCount,
		distinct: len(uniqueValues),
		entropy:  calculateEntropy(uniqueValues, nonNullCount),
	}
	if len(rows) > 0 {
		q.nullRate = float64(len(rows)-nonNullCount) / float64(len(rows))
	}
	return q
}

// calculateEntropy computes Shannon entropy in bits
func calculateEntropy(valueCounts map[string]int, total int) float64 {
	if total == 0 {
		return 0
	}

	entropy := 0.0
	for _, count := range valueCounts {
		if count > 0 {
			p := float64(count) / float64(total)
			entropy -= p * math.Log2(p)
		}
	}
	return entropy
}
