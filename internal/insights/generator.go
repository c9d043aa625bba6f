package insights

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"querygenie/internal/analysis"
	"querygenie/internal/metrics"
	"querygenie/internal/sanitize"
	"querygenie/internal/schema"
	"querygenie/internal/state"
	"querygenie/internal/validator"
)

// Generator runs insight generation sessions. It holds no per-session
// state and may serve concurrent sessions.
type Generator struct {
	schema   SchemaSource
	oracle   Oracle
	executor Executor
	cfg      Config
	log      *zap.Logger
}

func NewGenerator(source SchemaSource, oracle Oracle, executor Executor, cfg Config, logger *zap.Logger) *Generator {
	defaults := DefaultConfig()
	if cfg.Quota <= 0 {
		cfg.Quota = defaults.Quota
	}
	if cfg.AttemptBudget <= 0 {
		cfg.AttemptBudget = defaults.AttemptBudget
	}
	if cfg.ReferenceDate.IsZero() {
		cfg.ReferenceDate = defaults.ReferenceDate
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		schema:   source,
		oracle:   oracle,
		executor: executor,
		cfg:      cfg,
		log:      logger,
	}
}

func (g *Generator) Config() Config {
	return g.cfg
}

// Generate runs one session. The only error it returns wraps
// schema.ErrSchemaUnavailable; every other failure is absorbed into a
// smaller accepted set.
func (g *Generator) Generate(ctx context.Context, req Request, opts ...Option) (*Result, error) {
	l := limits{quota: g.cfg.Quota, budget: g.cfg.AttemptBudget}
	for _, opt := range opts {
		opt(&l)
	}

	session := state.NewSession(uuid.NewString(), l.quota, l.budget)
	log := g.log.With(zap.String("session_id", session.ID))

	description, err := g.schema.Describe(ctx)
	if err != nil {
		metrics.SessionsTotal.WithLabelValues("schema_unavailable").Inc()
		log.Error("schema unavailable, aborting session", zap.Error(err))
		if !errors.Is(err, schema.ErrSchemaUnavailable) {
			err = fmt.Errorf("%w: %v", schema.ErrSchemaUnavailable, err)
		}
		return nil, err
	}

	log.Info("session started",
		zap.Stringer("phase", Collecting),
		zap.Int("quota", session.Quota()),
		zap.Int("attempt_budget", session.Budget()))

	g.collect(ctx, session, req, description, log)

	accepted := session.Accepted()
	log.Info("collection finished",
		zap.Stringer("phase", Summarizing),
		zap.Int("accepted", len(accepted)),
		zap.Int("attempts", session.Attempts()))

	// The summary is worth having even when the session deadline or the
	// caller cut collection short.
	summaryCtx := context.WithoutCancel(ctx)
	if g.cfg.SummaryTimeout > 0 {
		var cancel context.CancelFunc
		summaryCtx, cancel = context.WithTimeout(summaryCtx, g.cfg.SummaryTimeout)
		defer cancel()
	}
	summary := g.Summarize(summaryCtx, accepted)

	rejections := make(map[RejectReason]int)
	for reason, n := range session.Rejections() {
		rejections[RejectReason(reason)] = n
	}

	outcome := "complete"
	if len(accepted) < session.Quota() {
		outcome = "partial"
	}
	metrics.SessionsTotal.WithLabelValues(outcome).Inc()
	metrics.AcceptedPerSession.Observe(float64(len(accepted)))
	log.Info("session finished", zap.Stringer("phase", Done), zap.String("outcome", outcome))

	return &Result{
		SessionID:  session.ID,
		Schema:     description,
		Accepted:   accepted,
		Summary:    summary,
		Attempts:   session.Attempts(),
		Rejections: rejections,
	}, nil
}

// collect runs attempts until the session is done or ctx ends.
func (g *Generator) collect(ctx context.Context, session *state.Session, req Request, description string, log *zap.Logger) {
	if g.cfg.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.SessionTimeout)
		defer cancel()
	}

	var covered []string
	for ctx.Err() == nil && session.BeginAttempt() {
		attempt := session.Attempts()
		prompt := BuildPrompt(req, description, g.cfg, covered)

		insight, reason := g.attempt(ctx, session, prompt, log.With(zap.Int("attempt", attempt)))
		if reason != "" {
			session.Reject(string(reason))
			metrics.AttemptsTotal.WithLabelValues(string(reason)).Inc()
			log.Info("attempt rejected", zap.Int("attempt", attempt), zap.String("reason", string(reason)))
			continue
		}

		session.Accept(insight)
		covered = append(covered, insight.Question)
		metrics.AttemptsTotal.WithLabelValues("accepted").Inc()
		log.Info("attempt accepted",
			zap.Int("attempt", attempt),
			zap.String("question", insight.Question),
			zap.Int("rows", len(insight.Rows)))
	}

	if err := ctx.Err(); err != nil && !session.Done() {
		log.Warn("collection stopped early", zap.Error(err), zap.Int("attempts", session.Attempts()))
	}
}

// attempt performs one oracle round trip and validates its candidate.
func (g *Generator) attempt(ctx context.Context, session *state.Session, prompt string, log *zap.Logger) (AcceptedInsight, RejectReason) {
	completion := g.oracle.Complete(ctx, prompt)
	if completion.Failed() {
		return AcceptedInsight{}, RejectOracleUnavailable
	}

	candidate, err := sanitize.Sanitize(completion.Text)
	if err != nil {
		var unparsable *sanitize.UnparsableError
		if errors.As(err, &unparsable) {
			log.Debug("unparsable response",
				zap.String("reason", unparsable.Reason),
				zap.String("raw", unparsable.Raw),
				zap.String("repaired", unparsable.Repaired))
		}
		return AcceptedInsight{}, RejectUnparsable
	}

	if session.IsDuplicate(candidate) {
		return AcceptedInsight{}, RejectDuplicate
	}

	outcome := g.executor.Execute(ctx, candidate.SQL)
	switch {
	case outcome.Kind == validator.ExecutionError:
		log.Debug("candidate sql failed", zap.String("sql", candidate.SQL), zap.String("error", outcome.Message))
		return AcceptedInsight{}, RejectExecutionError
	case outcome.Kind == validator.Empty, len(outcome.Rows) == 0:
		return AcceptedInsight{}, RejectEmptyResult
	}

	return AcceptedInsight{
		Candidate: candidate,
		Columns:   outcome.Columns,
		Rows:      outcome.Rows,
		Profile:   analysis.Profile(outcome.Rows, outcome.Columns),
	}, ""
}
