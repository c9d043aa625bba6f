package insights

import (
	"fmt"
	"strings"
	"time"
)

// BuildPrompt asks for exactly one insight. covered lists questions already
// accepted in this session so the oracle can steer away from them.
func BuildPrompt(req Request, schema string, cfg Config, covered []string) string {
	dialect := cfg.Dialect
	if dialect == "" {
		dialect = "SQL"
	}
	day := referenceDay(cfg.ReferenceDate)

	var b strings.Builder
	fmt.Fprintf(&b, "You are a senior data analyst and %s expert.\n\n", dialect)
	fmt.Fprintf(&b, "Company Name: %s\n", req.CompanyName)
	fmt.Fprintf(&b, "Company Description: %s\n", req.CompanyDescription)
	fmt.Fprintf(&b, "Job Title: %s\n", req.JobTitle)
	fmt.Fprintf(&b, "Job Responsibilities: %s\n\n", req.JobResponsibilities)
	fmt.Fprintf(&b, "Here is the database schema:\n%s\n\n", schema)

	fmt.Fprintf(&b, "Important context: the current date is %s.\n", day.Format("January 2, 2006"))
	fmt.Fprintf(&b, "All SQL queries must use fixed date ranges in %d.\n", day.Year())
	b.WriteString("Avoid NOW(), CURDATE(), or relative date filters.\n")
	fmt.Fprintf(&b, "Do not mention the year %d in the question.\n\n", day.Year())

	b.WriteString("Your task: generate ONE business question relevant to this job. Return a JSON object with:\n")
	b.WriteString("- `question`: the business question\n")
	fmt.Fprintf(&b, "- `sql`: a syntactically valid %s query using only the schema\n", dialect)
	b.WriteString("- `visualization`: a recommended chart type (Bar Chart, Line Chart, Pie Chart, etc.)\n\n")

	b.WriteString("Use only tables and columns from the schema.\n")
	b.WriteString("Always use full table names (no aliases).\n")
	b.WriteString("Always put JOINs before WHERE clauses.\n")

	if len(covered) > 0 {
		b.WriteString("\nThese questions are already answered; ask something different:\n")
		for _, q := range covered {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}

	b.WriteString("\nReturn only a single JSON object in this exact structure, no text, no markdown, no explanation:\n")
	b.WriteString(`{ "question": "...", "sql": "...", "visualization": "..." }`)
	return b.String()
}

// SummaryPrompt asks for five bullet-point insights over rendered results.
func SummaryPrompt(rendered string, reference time.Time) string {
	day := referenceDay(reference)

	var b strings.Builder
	fmt.Fprintf(&b, "Assume today is %s.\n", day.Format("January 2, 2006"))
	b.WriteString("You are writing a final business summary report for a stakeholder.\n")
	b.WriteString("Write a structured and complete list of 5 bullet-point insights based only on the following results:\n\n")
	b.WriteString(rendered)
	fmt.Fprintf(&b, "\n\nWrite clearly and do NOT repeat the year %d. Do not trail off. Finish each bullet point with a full sentence.", day.Year())
	return b.String()
}

func referenceDay(t time.Time) time.Time {
	if t.IsZero() {
		return DefaultConfig().ReferenceDate
	}
	return t
}
