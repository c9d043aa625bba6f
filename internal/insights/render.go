package insights

import (
	"fmt"
	"strings"
	"time"
)

// maxRenderedRows caps how many rows of one result reach a prompt.
const maxRenderedRows = 50

// maxValueLen caps one rendered value in a prompt.
const maxValueLen = 100

// formatValue renders a value for a prompt, shortened to maxValueLen.
func formatValue(v any) string {
	s := valueText(v)
	if len(s) > maxValueLen {
		s = s[:maxValueLen-3] + "..."
	}
	return s
}

// valueText keeps floats short; long decimals read as noise to the oracle.
func valueText(v any) string {
	switch val := v.(type) {
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%.2f", val)
	case float32:
		if val == float32(int32(val)) {
			return fmt.Sprintf("%.0f", val)
		}
		return fmt.Sprintf("%.2f", val)
	case time.Time:
		if val.Hour() == 0 && val.Minute() == 0 && val.Second() == 0 {
			return val.Format("2006-01-02")
		}
		return val.Format("2006-01-02 15:04:05")
	case []byte:
		return string(val)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}

// signalsError reports whether any column name or value of the full result,
// not only the part rendered into a prompt, mentions "error".
func signalsError(insight AcceptedInsight) bool {
	for _, col := range insight.Columns {
		if containsError(col) {
			return true
		}
	}
	for _, row := range insight.Rows {
		for _, col := range insight.Columns {
			if containsError(valueText(row[col])) {
				return true
			}
		}
	}
	return false
}

func containsError(s string) bool {
	return strings.Contains(strings.ToLower(s), "error")
}

// FormatResult renders the result set of one insight as text.
func FormatResult(insight AcceptedInsight) string {
	if len(insight.Rows) == 0 {
		return "Query returned no results."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Columns: %s\n", strings.Join(insight.Columns, ", "))
	fmt.Fprintf(&sb, "Rows (%d total):\n", len(insight.Rows))

	for i, row := range insight.Rows {
		if i == maxRenderedRows {
			fmt.Fprintf(&sb, "... and %d more rows\n", len(insight.Rows)-maxRenderedRows)
			break
		}
		values := make([]string, len(insight.Columns))
		for j, col := range insight.Columns {
			values[j] = formatValue(row[col])
		}
		sb.WriteString(strings.Join(values, " | ") + "\n")
	}
	return sb.String()
}

// RenderInsights lists every question with its rendered result.
func RenderInsights(accepted []AcceptedInsight) string {
	parts := make([]string, len(accepted))
	for i, insight := range accepted {
		parts[i] = fmt.Sprintf("Question: %s\nResult:\n%s", insight.Question, FormatResult(insight))
	}
	return strings.Join(parts, "\n")
}
