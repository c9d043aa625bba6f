package models

// AnalyzeResponse is returned by POST /analyze. The flat questions/queries/
// visualizations/results lists mirror the accepted insights in order.
type AnalyzeResponse struct {
	CompanyName         string             `json:"company_name"`
	CompanyDescription  string             `json:"company_description"`
	JobTitle            string             `json:"job_title"`
	JobResponsibilities string             `json:"job_responsibilities"`
	SessionID           string             `json:"session_id"`
	Schema              string             `json:"schema"`
	Questions           []string           `json:"questions"`
	Queries             []string           `json:"queries"`
	Visualizations      []string           `json:"visualizations"`
	Results             [][]map[string]any `json:"results"`
	Insights            []AcceptedInsight  `json:"insights"`
	Attempts            int                `json:"attempts"`
	Rejections          map[string]int     `json:"rejections"`
	Summary             string             `json:"summary"`
}

// SchemaResponse is returned by GET /schema
type SchemaResponse struct {
	Schema string `json:"schema"`
}

// TablesResponse is returned by GET /api/db/tables
type TablesResponse struct {
	Tables []string `json:"tables"`
}

// PreviewResponse is returned by the table preview endpoint
type PreviewResponse struct {
	Table string           `json:"table"`
	Rows  int              `json:"rows"`
	Data  []map[string]any `json:"data"`
}

// ErrorResponse wraps any non-2xx answer
type ErrorResponse struct {
	Error string `json:"error"`
}
