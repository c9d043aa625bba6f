// Package insights runs a generation session: it asks the oracle for one
// question/sql/visualization triple at a time, keeps the ones that are new
// and return rows, and stops at the quota or when the attempt budget is
// spent. Accepted insights are then summarized in a single oracle call.
package insights

import (
	"context"
	"time"

	"querygenie/internal/llm"
	"querygenie/internal/models"
	"querygenie/internal/validator"
)

type (
	Request         = models.GenerationRequest
	Candidate       = models.Candidate
	AcceptedInsight = models.AcceptedInsight
)

// RejectReason says why an attempt did not produce an insight. Every
// reason costs exactly one attempt.
type RejectReason string

const (
	RejectOracleUnavailable RejectReason = "oracle_unavailable"
	RejectUnparsable        RejectReason = "unparsable"
	RejectDuplicate         RejectReason = "duplicate"
	RejectExecutionError    RejectReason = "execution_error"
	RejectEmptyResult       RejectReason = "empty_result"
)

// Phase is the session's position in Collecting -> Summarizing -> Done.
type Phase int

const (
	Collecting Phase = iota
	Summarizing
	Done
)

func (p Phase) String() string {
	switch p {
	case Collecting:
		return "collecting"
	case Summarizing:
		return "summarizing"
	default:
		return "done"
	}
}

// SchemaSource yields the schema description. Errors are fatal to the
// session.
type SchemaSource interface {
	Describe(ctx context.Context) (string, error)
}

type Oracle interface {
	Complete(ctx context.Context, prompt string) llm.Completion
}

type Executor interface {
	Execute(ctx context.Context, sql string) validator.Outcome
}

type Config struct {
	Quota          int
	AttemptBudget  int
	ReferenceDate  time.Time
	Dialect        string        // named in the prompt, e.g. "MySQL"
	SessionTimeout time.Duration // 0 for none
	SummaryTimeout time.Duration // 0 for none
}

func DefaultConfig() Config {
	return Config{
		Quota:          5,
		AttemptBudget:  15,
		ReferenceDate:  time.Date(2006, time.December, 31, 0, 0, 0, 0, time.UTC),
		Dialect:        "MySQL",
		SummaryTimeout: 60 * time.Second,
	}
}

// Result is what a session hands back to its caller.
type Result struct {
	SessionID  string               `json:"session_id"`
	Schema     string               `json:"schema"`
	Accepted   []AcceptedInsight    `json:"accepted"`
	Summary    string               `json:"summary"`
	Attempts   int                  `json:"attempts"`
	Rejections map[RejectReason]int `json:"rejections"`
}

type limits struct {
	quota  int
	budget int
}

// Option narrows the limits of a single session.
type Option func(*limits)

// WithQuota lowers the quota for one session. Values above the configured
// quota are ignored.
func WithQuota(n int) Option {
	return func(l *limits) {
		if n > 0 && n < l.quota {
			l.quota = n
		}
	}
}

// WithAttemptBudget lowers the attempt budget for one session. Values above
// the configured budget are ignored.
func WithAttemptBudget(n int) Option {
	return func(l *limits) {
		if n > 0 && n < l.budget {
			l.budget = n
		}
	}
}
