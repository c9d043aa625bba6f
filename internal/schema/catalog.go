// Package schema reflects a relational database's tables and columns into the
// flat textual description embedded in generation prompts.
package schema

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"go.uber.org/zap"

	"querygenie/internal/database"
)

var (
	// ErrSchemaUnavailable means the catalog could not be reached or reflected.
	ErrSchemaUnavailable = errors.New("schema unavailable")
	// ErrUnknownTable is returned for table names absent from the catalog.
	ErrUnknownTable = errors.New("unknown table")
)

// Introspector produces the schema description for one database.
type Introspector interface {
	Describe(ctx context.Context) (string, error)
}

// Column is one reflected column.
type Column struct {
	Name string
	Type string
}

// Table is one reflected table with its columns in ordinal order.
type Table struct {
	Name    string
	Columns []Column
}

// Catalog reflects a live database through its metadata catalog.
type Catalog struct {
	ds  *database.DataSource
	log *zap.Logger
}

func NewCatalog(ds *database.DataSource, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{ds: ds, log: logger}
}

const (
	mysqlColumnsQuery = `
		SELECT table_name, column_name, UPPER(column_type)
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		ORDER BY table_name, ordinal_position`

	postgresColumnsQuery = `
		SELECT table_name, column_name, UPPER(data_type)
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		ORDER BY table_name, ordinal_position`

	sqliteColumnsQuery = `
		SELECT m.name, p.name, UPPER(p.type)
		FROM sqlite_master AS m
		JOIN pragma_table_info(m.name) AS p
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name, p.cid`
)

func (c *Catalog) columnsQuery() string {
	switch c.ds.Dialect() {
	case database.DialectMySQL:
		return mysqlColumnsQuery
	case database.DialectSQLite:
		return sqliteColumnsQuery
	default:
		return postgresColumnsQuery
	}
}

// Tables reflects every table in the current schema.
func (c *Catalog) Tables(ctx context.Context) ([]Table, error) {
	rows, err := c.ds.DB().QueryContext(ctx, c.columnsQuery())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaUnavailable, err)
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var table, column, colType string
		if err := rows.Scan(&table, &column, &colType); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSchemaUnavailable, err)
		}
		if len(tables) == 0 || tables[len(tables)-1].Name != table {
			tables = append(tables, Table{Name: table})
		}
		last := &tables[len(tables)-1]
		last.Columns = append(last.Columns, Column{Name: column, Type: colType})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaUnavailable, err)
	}
	return tables, nil
}

// Describe renders the reflected catalog. An empty catalog counts as
// unavailable: there is nothing a query could be generated against.
func (c *Catalog) Describe(ctx context.Context) (string, error) {
	tables, err := c.Tables(ctx)
	if err != nil {
		c.log.Error("schema reflection failed", zap.Error(err))
		return "", err
	}
	if len(tables) == 0 {
		return "", fmt.Errorf("%w: no tables found", ErrSchemaUnavailable)
	}

	c.log.Info("schema reflected", zap.Int("tables", len(tables)))
	return Format(tables), nil
}

// Format renders tables as "Table: name" lines followed by "  - column (TYPE)".
func Format(tables []Table) string {
	var sb strings.Builder
	for _, t := range tables {
		sb.WriteString("Table: " + t.Name + "\n")
		for _, col := range t.Columns {
			sb.WriteString("  - " + col.Name + " (" + col.Type + ")\n")
		}
	}
	return sb.String()
}

// ListTables returns table names in catalog order.
func (c *Catalog) ListTables(ctx context.Context) ([]string, error) {
	tables, err := c.Tables(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		names = append(names, t.Name)
	}
	return names, nil
}

// Preview returns up to limit rows of a table. The name must be one the
// catalog reports; it is quoted before being spliced into the statement.
func (c *Catalog) Preview(ctx context.Context, table string, limit int) ([]map[string]any, []string, error) {
	names, err := c.ListTables(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !slices.Contains(names, table) {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	query := fmt.Sprintf("SELECT * FROM %s LIMIT %d", c.ds.QuoteIdent(table), limit)
	rows, err := c.ds.DB().QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("preview %s: %w", table, err)
	}
	defer rows.Close()

	return database.ScanRows(rows, limit)
}
