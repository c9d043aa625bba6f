package analysis

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"querygenie/internal/models"
)

// Profile infers column kinds for an accepted result set and picks the
// columns a chart would use: a label axis and the numeric value series.
func Profile(rows []map[string]any, columns []string) models.ResultProfile {
	profile := models.ResultProfile{
		RowCount:     len(rows),
		Columns:      make([]models.ColumnProfile, 0, len(columns)),
		ValueColumns: []string{},
	}

	for _, colName := range columns {
		col := models.ColumnProfile{Name: colName, Kind: models.KindString}

		// The first non-nil value decides the kind
		for _, row := range rows {
			val, ok := row[colName]
			if !ok || val == nil {
				col.Nullable = true
				continue
			}
			if s, isString := val.(string); isString && s == "" {
				continue
			}
			col.Kind = kindOf(val)
			break
		}
		if !col.Nullable {
			for _, row := range rows {
				if row[colName] == nil {
					col.Nullable = true
					break
				}
			}
		}

		q := columnQuality(rows, colName)
		col.Distinct = q.distinct
		col.NullRate = q.nullRate
		col.Entropy = q.entropy

		colLower := strings.ToLower(colName)
		switch col.Kind {
		case models.KindInt, models.KindFloat:
			profile.HasNumeric = true
			if min, max, mean, median, ok := Stats(rows, colName); ok {
				col.Stats = &models.NumericStats{Min: min, Max: max, Mean: mean, Median: median}
			}
		case models.KindDate:
			profile.HasDates = true
		default:
			// Name implies a date even if the driver handed us text
			if containsAny(colLower, []string{"date", "time", "month", "year"}) {
				profile.HasDates = true
			}
		}

		profile.Columns = append(profile.Columns, col)
	}

	for _, col := range profile.Columns {
		if col.Kind != models.KindInt && col.Kind != models.KindFloat {
			profile.LabelColumn = col.Name
			break
		}
	}
	if profile.LabelColumn == "" && len(columns) > 0 {
		profile.LabelColumn = columns[0]
	}
	for _, col := range profile.Columns {
		if col.Name == profile.LabelColumn {
			continue
		}
		if col.Kind == models.KindInt || col.Kind == models.KindFloat {
			profile.ValueColumns = append(profile.ValueColumns, col.Name)
		}
	}

	if profile.HasDates && len(profile.ValueColumns) > 0 {
		column := profile.ValueColumns[0]
		if slope, r2, ok := linearTrend(numericValues(rows, column)); ok {
			profile.Trend = &models.Trend{Column: column, Slope: slope, RSquared: r2}
		}
	}

	return profile
}

func kindOf(val any) string {
	switch v := val.(type) {
	case string:
		return inferTypeFromString(v)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return models.KindInt
	case float32, float64:
		return models.KindFloat
	case time.Time:
		return models.KindDate
	default:
		return models.KindString
	}
}

func inferTypeFromString(s string) string {
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return models.KindInt
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return models.KindFloat
	}
	if isDateString(s) {
		return models.KindDate
	}
	return models.KindString
}

func isDateString(val string) bool {
	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
		"02/01/2006",
		"01/02/2006",
		"2006/01/02",
		"2006-01",
	}
	for _, f := range formats {
		if _, err := time.Parse(f, val); err == nil {
			return true
		}
	}
	return false
}

func containsAny(s string, substrings []string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func toFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	}
	return 0, false
}

// Stats computes basic stats for a numeric column. ok is false when the
// column holds no numeric values.
func Stats(rows []map[string]any, column string) (min, max, mean, median float64, ok bool) {
	values := []float64{}
	for _, row := range rows {
		if f, isNum := toFloat(row[column]); isNum {
			values = append(values, f)
		}
	}

	if len(values) == 0 {
		return 0, 0, 0, 0, false
	}

	sort.Float64s(values)
	min = values[0]
	max = values[len(values)-1]

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	if len(values)%2 == 0 {
		median = (values[len(values)/2-1] + values[len(values)/2]) / 2
	} else {
		median = values[len(values)/2]
	}

	return min, max, mean, median, true
}
