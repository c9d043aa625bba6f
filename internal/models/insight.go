package models

// GenerationRequest carries the four free-text fields describing the
// organization and the role the insights are written for.
type GenerationRequest struct {
	CompanyName         string `json:"company_name"`
	CompanyDescription  string `json:"company_description"`
	JobTitle            string `json:"job_title"`
	JobResponsibilities string `json:"job_responsibilities"`
}

// Candidate is one question/sql/visualization triple extracted from
// oracle output, not yet validated.
type Candidate struct {
	Question      string `json:"question"`
	SQL           string `json:"sql"`
	Visualization string `json:"visualization"`
}

// AcceptedInsight is a Candidate that passed deduplication and execution.
type AcceptedInsight struct {
	Candidate
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Profile ResultProfile    `json:"profile"`
}

// Column kinds inferred from result values
const (
	KindInt    = "int"
	KindFloat  = "float"
	KindDate   = "date"
	KindString = "string"
)

// ColumnProfile describes one column of an accepted result set
type ColumnProfile struct {
	Name     string        `json:"name"`
	Kind     string        `json:"kind"`
	Nullable bool          `json:"nullable"`
	Distinct int           `json:"distinct"`
	NullRate float64       `json:"null_rate"`
	Entropy  float64       `json:"entropy"`
	Stats    *NumericStats `json:"stats,omitempty"`
}

// NumericStats is filled for int and float columns
type NumericStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// ResultProfile summarizes the shape of an accepted result set so a
// renderer can choose chart axes.
type ResultProfile struct {
	RowCount     int             `json:"row_count"`
	Columns      []ColumnProfile `json:"columns"`
	LabelColumn  string          `json:"label_column,omitempty"`
	ValueColumns []string        `json:"value_columns"`
	HasDates     bool            `json:"has_dates"`
	HasNumeric   bool            `json:"has_numeric"`
	Trend        *Trend          `json:"trend,omitempty"`
}

// Trend is a linear fit of the first value column over a date label,
// in row order.
type Trend struct {
	Column   string  `json:"column"`
	Slope    float64 `json:"slope"`
	RSquared float64 `json:"r_squared"`
}
