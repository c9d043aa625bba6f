package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"querygenie/internal/analysis"
	"querygenie/internal/insights"
	"querygenie/internal/models"
	"querygenie/internal/schema"
)

const (
	defaultPreviewRows = 10
	maxPreviewRows     = 100
	maxRequestBody     = 1 << 20
)

type InsightGenerator interface {
	Generate(ctx context.Context, req insights.Request, opts ...insights.Option) (*insights.Result, error)
}

type SchemaDescriber interface {
	Describe(ctx context.Context) (string, error)
}

type TableBrowser interface {
	ListTables(ctx context.Context) ([]string, error)
	Preview(ctx context.Context, table string, limit int) ([]map[string]any, []string, error)
}

type Handler struct {
	Generator InsightGenerator
	Schema    SchemaDescriber
	Tables    TableBrowser
	Log       *zap.Logger
}

func NewHandler(gen InsightGenerator, describer SchemaDescriber, tables TableBrowser, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Generator: gen,
		Schema:    describer,
		Tables:    tables,
		Log:       logger,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HealthCheck)
	r.Get("/schema", h.GetSchema)
	r.Post("/schema/refresh", h.RefreshSchema)
	r.Post("/analyze", h.Analyze)

	// DB Routes
	r.Get("/api/db/tables", h.ListTables)
	r.Get("/api/db/tables/{table}/preview", h.PreviewTable)
	r.Post("/api/db/analyze", h.AnalyzeTable)
}

// ============================================================================
// Health
// ============================================================================

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}

// ============================================================================
// Insights
// ============================================================================

// GetSchema returns the schema description prompts are built from
func (h *Handler) GetSchema(w http.ResponseWriter, r *http.Request) {
	desc, err := h.Schema.Describe(r.Context())
	if err != nil {
		h.Log.Error("schema unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "schema unavailable: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, models.SchemaResponse{Schema: desc})
}

// RefreshSchema drops a cached schema description and reflects the
// database again.
func (h *Handler) RefreshSchema(w http.ResponseWriter, r *http.Request) {
	if c, ok := h.Schema.(interface{ Invalidate() }); ok {
		c.Invalidate()
		h.Log.Info("schema cache invalidated")
	}
	h.GetSchema(w, r)
}

type analyzeRequest struct {
	models.GenerationRequest
	Quota         int `json:"quota,omitempty"`
	AttemptBudget int `json:"attempt_budget,omitempty"`
}

// Analyze runs one generation session for the posted job description
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if missing := missingFields(req.GenerationRequest); len(missing) > 0 {
		writeError(w, http.StatusBadRequest, "missing required fields: "+strings.Join(missing, ", "))
		return
	}

	var opts []insights.Option
	if req.Quota > 0 {
		opts = append(opts, insights.WithQuota(req.Quota))
	}
	if req.AttemptBudget > 0 {
		opts = append(opts, insights.WithAttemptBudget(req.AttemptBudget))
	}

	result, err := h.Generator.Generate(r.Context(), req.GenerationRequest, opts...)
	if err != nil {
		if errors.Is(err, schema.ErrSchemaUnavailable) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		h.Log.Error("generation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toAnalyzeResponse(req.GenerationRequest, result))
}

func missingFields(req models.GenerationRequest) []string {
	var missing []string
	for _, f := range []struct{ name, value string }{
		{"company_name", req.CompanyName},
		{"company_description", req.CompanyDescription},
		{"job_title", req.JobTitle},
		{"job_responsibilities", req.JobResponsibilities},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, f.name)
		}
	}
	return missing
}

func toAnalyzeResponse(req models.GenerationRequest, result *insights.Result) models.AnalyzeResponse {
	resp := models.AnalyzeResponse{
		CompanyName:         req.CompanyName,
		CompanyDescription:  req.CompanyDescription,
		JobTitle:            req.JobTitle,
		JobResponsibilities: req.JobResponsibilities,
		SessionID:           result.SessionID,
		Schema:              result.Schema,
		Questions:           make([]string, 0, len(result.Accepted)),
		Queries:             make([]string, 0, len(result.Accepted)),
		Visualizations:      make([]string, 0, len(result.Accepted)),
		Results:             make([][]map[string]any, 0, len(result.Accepted)),
		Insights:            result.Accepted,
		Attempts:            result.Attempts,
		Rejections:          make(map[string]int, len(result.Rejections)),
		Summary:             result.Summary,
	}
	if resp.Insights == nil {
		resp.Insights = []models.AcceptedInsight{}
	}
	for _, insight := range result.Accepted {
		resp.Questions = append(resp.Questions, insight.Question)
		resp.Queries = append(resp.Queries, insight.SQL)
		resp.Visualizations = append(resp.Visualizations, insight.Visualization)
		resp.Results = append(resp.Results, insight.Rows)
	}
	for reason, n := range result.Rejections {
		resp.Rejections[string(reason)] = n
	}
	return resp
}

// ============================================================================
// Tables
// ============================================================================

// ListTables returns tables from the connected DB
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.Tables.ListTables(r.Context())
	if err != nil {
		h.Log.Error("error listing tables", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Error listing tables: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, models.TablesResponse{Tables: tables})
}

// PreviewTable returns the first rows of one table
func (h *Handler) PreviewTable(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	limit := clamp(getIntParam(r, "limit", defaultPreviewRows), 1, maxPreviewRows)

	data, _, err := h.Tables.Preview(r.Context(), table, limit)
	if err != nil {
		h.writeTableError(w, table, err)
		return
	}
	writeJSON(w, http.StatusOK, models.PreviewResponse{Table: table, Rows: len(data), Data: data})
}

// AnalyzeTable profiles a sample of a table's rows
func (h *Handler) AnalyzeTable(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TableName string `json:"table_name"`
		Limit     int    `json:"limit"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	if req.Limit <= 0 {
		req.Limit = maxPreviewRows
	}

	data, columns, err := h.Tables.Preview(r.Context(), req.TableName, clamp(req.Limit, 1, maxPreviewRows))
	if err != nil {
		h.writeTableError(w, req.TableName, err)
		return
	}
	if len(data) == 0 {
		writeError(w, http.StatusBadRequest, "Table is empty")
		return
	}

	writeJSON(w, http.StatusOK, analysis.Profile(data, columns))
}

func (h *Handler) writeTableError(w http.ResponseWriter, table string, err error) {
	if errors.Is(err, schema.ErrUnknownTable) {
		writeError(w, http.StatusNotFound, "unknown table: "+table)
		return
	}
	h.Log.Error("error fetching table", zap.String("table", table), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "Error fetching data: "+err.Error())
}

// ============================================================================
// Helpers
// ============================================================================

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorResponse{Error: msg})
}

func getIntParam(r *http.Request, name string, defaultVal int) int {
	valStr := r.URL.Query().Get(name)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		return defaultVal
	}
	return val
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
