package database

import (
	"database/sql"
	"fmt"
)

// ScanRows reads a result set into column-keyed maps, preserving row order.
// maxRows <= 0 reads everything.
func ScanRows(rows *sql.Rows, maxRows int) ([]map[string]any, []string, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("read columns: %w", err)
	}

	result := []map[string]any{}
	for rows.Next() {
		if maxRows > 0 && len(result) >= maxRows {
			break
		}

		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}

		rowMap := make(map[string]any, len(columns))
		for i, col := range columns {
			// Drivers commonly hand text back as byte slices.
			if b, ok := values[i].([]byte); ok {
				rowMap[col] = string(b)
			} else {
				rowMap[col] = values[i]
			}
		}
		result = append(result, rowMap)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}

	return result, columns, nil
}
