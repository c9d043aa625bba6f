package insights

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// DegradedSummary replaces the summary when there is nothing trustworthy
// to summarize.
const DegradedSummary = "insights incomplete; summary unreliable"

// Summarize asks the oracle for a narrative over accepted insights. An
// oracle failure yields an empty summary.
func (g *Generator) Summarize(ctx context.Context, accepted []AcceptedInsight) string {
	if len(accepted) == 0 {
		g.log.Info("summary skipped", zap.String("reason", "no accepted insights"))
		return DegradedSummary
	}
	for _, insight := range accepted {
		if signalsError(insight) {
			g.log.Info("summary skipped", zap.String("reason", "result signals an error"), zap.String("question", insight.Question))
			return DegradedSummary
		}
	}

	completion := g.oracle.Complete(ctx, SummaryPrompt(RenderInsights(accepted), g.cfg.ReferenceDate))
	if completion.Failed() {
		return ""
	}
	return strings.TrimSpace(completion.Text)
}
