// Package validator executes candidate SQL and classifies the outcome.
// A failing statement is an expected result of generated SQL, so Execute
// reports it as a value instead of returning an error.
//
// Statements run in a transaction that is always rolled back, which undoes
// DML. It does not undo DDL on MySQL, where DROP, ALTER and friends commit
// implicitly; set Options.SelectOnly there to refuse anything but reads.
package validator

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"querygenie/internal/database"
	"querygenie/internal/metrics"
)

// Kind classifies an execution outcome.
type Kind int

const (
	ExecutionError Kind = iota
	Empty
	Rows
)

func (k Kind) String() string {
	switch k {
	case Rows:
		return "rows"
	case Empty:
		return "empty"
	default:
		return "execution_error"
	}
}

// Outcome is the result of one Execute call. Rows and Columns are set only
// for Kind Rows; Message only for ExecutionError.
type Outcome struct {
	Kind    Kind
	Rows    []map[string]any
	Columns []string
	Message string
}

func failed(format string, args ...any) Outcome {
	return Outcome{Kind: ExecutionError, Message: fmt.Sprintf(format, args...)}
}

type Options struct {
	Timeout time.Duration // per statement, 0 for none
	MaxRows int           // rows beyond this are not read, 0 for no cap

	// SelectOnly refuses statements that do not start with a read keyword.
	SelectOnly bool
}

var readKeywords = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"SHOW":     true,
	"DESCRIBE": true,
	"DESC":     true,
	"EXPLAIN":  true,
	"VALUES":   true,
	"TABLE":    true,
}

// leadingKeyword returns the first word of query in upper case, skipping
// comments and opening parentheses.
func leadingKeyword(query string) string {
	s := query
	for {
		s = strings.TrimLeft(s, " \t\r\n(")
		switch {
		case strings.HasPrefix(s, "--"), strings.HasPrefix(s, "#"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s, "*/")
			if i < 0 {
				return ""
			}
			s = s[i+2:]
		default:
			end := strings.IndexFunc(s, func(r rune) bool {
				return !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
			})
			if end < 0 {
				end = len(s)
			}
			return strings.ToUpper(s[:end])
		}
	}
}

// Validator runs statements on a dedicated connection inside a transaction
// that is always rolled back.
type Validator struct {
	db   *sql.DB
	opts Options
	log  *zap.Logger
}

func New(db *sql.DB, opts Options, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{db: db, opts: opts, log: logger}
}

// Execute runs query and never returns an error.
func (v *Validator) Execute(ctx context.Context, query string) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = failed("panic during execution: %v", r)
		}
		metrics.QueryExecutionsTotal.WithLabelValues(out.Kind.String()).Inc()
		if out.Kind == ExecutionError {
			v.log.Debug("query execution failed", zap.String("sql", query), zap.String("error", out.Message))
		}
	}()

	if v.opts.SelectOnly {
		if kw := leadingKeyword(query); !readKeywords[kw] {
			return failed("refusing non-read statement %q", kw)
		}
	}

	if v.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.opts.Timeout)
		defer cancel()
	}

	conn, err := v.db.Conn(ctx)
	if err != nil {
		return failed("acquire connection: %v", err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return failed("begin transaction: %v", err)
	}
	// Generated statements never commit.
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, query)
	if err != nil {
		return failed("%v", err)
	}
	defer rows.Close()

	data, columns, err := database.ScanRows(rows, v.opts.MaxRows)
	if err != nil {
		return failed("%v", err)
	}
	if len(data) == 0 {
		return Outcome{Kind: Empty, Columns: columns}
	}
	return Outcome{Kind: Rows, Rows: data, Columns: columns}
}
