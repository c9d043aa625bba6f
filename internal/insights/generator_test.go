package insights

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"querygenie/internal/database"
	"querygenie/internal/llm"
	"querygenie/internal/schema"
	"querygenie/internal/validator"
)

type fakeSchema struct {
	text  string
	err   error
	calls int
}

func (f *fakeSchema) Describe(ctx context.Context) (string, error) {
	f.calls++
	return f.text, f.err
}

// fakeOracle scripts insight completions and answers summary prompts
// separately.
type fakeOracle struct {
	next           func(call int, ctx context.Context) llm.Completion
	summary        llm.Completion
	calls          int
	summaryCalls   int
	prompts        []string
	summaryPrompts []string
}

func (f *fakeOracle) Complete(ctx context.Context, prompt string) llm.Completion {
	if strings.HasPrefix(prompt, "Assume today is") {
		f.summaryCalls++
		f.summaryPrompts = append(f.summaryPrompts, prompt)
		return f.summary
	}
	f.calls++
	f.prompts = append(f.prompts, prompt)
	return f.next(f.calls, ctx)
}

func always(text string) func(int, context.Context) llm.Completion {
	return func(int, context.Context) llm.Completion { return llm.Completion{Text: text} }
}

func text(s string) llm.Completion { return llm.Completion{Text: s} }

func candidateJSON(question, sql string) string {
	return fmt.Sprintf(`{"question":%q,"sql":%q,"visualization":"Bar Chart"}`, question, sql)
}

const productsSchema = "Table: products\n  - name (TEXT)\n  - line (TEXT)\n  - price (REAL)\n"

func openProducts(t *testing.T) *validator.Validator {
	t.Helper()
	ctx := context.Background()
	ds, err := database.Open(ctx, database.Config{DSN: filepath.Join(t.TempDir(), "products.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })

	for _, stmt := range []string{
		`CREATE TABLE products (name TEXT, line TEXT, price REAL)`,
		`INSERT INTO products VALUES ('1969 Harley', 'Motorcycles', 48.81), ('1952 Alpine', 'Classic Cars', 98.58), ('1996 Moto Guzzi', 'Motorcycles', 68.99)`,
	} {
		_, err := ds.DB().ExecContext(ctx, stmt)
		require.NoError(t, err)
	}
	return validator.New(ds.DB(), validator.Options{}, nil)
}

func newGenerator(t *testing.T, oracle *fakeOracle, cfg Config) *Generator {
	t.Helper()
	return NewGenerator(&fakeSchema{text: productsSchema}, oracle, openProducts(t), cfg, nil)
}

var request = Request{
	CompanyName:         "Classic Models",
	CompanyDescription:  "Retailer of scale model cars and motorcycles",
	JobTitle:            "Sales Analyst",
	JobResponsibilities: "Track product line performance",
}

func TestGenerateFencedCandidateAcceptedOnFirstAttempt(t *testing.T) {
	oracle := &fakeOracle{
		next:    always("```json\n{\"question\":\"Top products?\",\"sql\":\"SELECT name FROM products\",\"visualization\":\"Bar Chart\"}\n```"),
		summary: text("- Motorcycles dominate."),
	}
	g := newGenerator(t, oracle, DefaultConfig())

	result, err := g.Generate(context.Background(), request, WithQuota(1))
	require.NoError(t, err)

	require.Len(t, result.Accepted, 1)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, "Top products?", result.Accepted[0].Question)
	assert.Equal(t, "SELECT name FROM products", result.Accepted[0].SQL)
	assert.Equal(t, "Bar Chart", result.Accepted[0].Visualization)
	assert.Equal(t, []string{"name"}, result.Accepted[0].Columns)
	assert.Len(t, result.Accepted[0].Rows, 3)
	assert.Equal(t, "- Motorcycles dominate.", result.Summary)
	assert.Equal(t, productsSchema, result.Schema)
	assert.NotEmpty(t, result.SessionID)
	assert.Empty(t, result.Rejections)
}

func TestGenerateSameCandidateIsAcceptedOnce(t *testing.T) {
	oracle := &fakeOracle{
		next:    always(candidateJSON("Top products?", "SELECT name FROM products")),
		summary: text("summary"),
	}
	g := newGenerator(t, oracle, DefaultConfig())

	result, err := g.Generate(context.Background(), request)
	require.NoError(t, err)

	assert.Len(t, result.Accepted, 1)
	assert.Equal(t, 15, result.Attempts)
	assert.Equal(t, 15, oracle.calls)
	assert.Equal(t, map[RejectReason]int{RejectDuplicate: 14}, result.Rejections)
}

func TestGenerateUnparsableEveryTime(t *testing.T) {
	oracle := &fakeOracle{next: always("I'm sorry, I can't help with that.")}
	g := newGenerator(t, oracle, DefaultConfig())

	result, err := g.Generate(context.Background(), request)
	require.NoError(t, err)

	assert.Empty(t, result.Accepted)
	assert.Equal(t, 15, result.Attempts)
	assert.Equal(t, DegradedSummary, result.Summary)
	assert.Equal(t, 0, oracle.summaryCalls)
	assert.Equal(t, map[RejectReason]int{RejectUnparsable: 15}, result.Rejections)
}

func TestGenerateMissingTableCountsAttempt(t *testing.T) {
	oracle := &fakeOracle{next: always(candidateJSON("Customers by country?", "SELECT country FROM customers"))}
	g := newGenerator(t, oracle, DefaultConfig())

	result, err := g.Generate(context.Background(), request, WithAttemptBudget(3))
	require.NoError(t, err)

	assert.Empty(t, result.Accepted)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, map[RejectReason]int{RejectExecutionError: 3}, result.Rejections)
}

func TestGenerateMixedOutcomes(t *testing.T) {
	script := []llm.Completion{
		{Err: errors.New("rate limited")},
		text("not json"),
		text(candidateJSON("Expensive products?", "SELECT name FROM products WHERE price > 1000")),
		text(candidateJSON("Products per line?", "SELECT line, COUNT(*) AS total FROM products GROUP BY line")),
		text(candidateJSON("Products   per line?", "SELECT line FROM products")),
		text(candidateJSON("Average price?", "SELECT AVG(price) AS avg_price FROM products")),
	}
	oracle := &fakeOracle{
		next: func(call int, _ context.Context) llm.Completion {
			return script[(call-1)%len(script)]
		},
		summary: text("ok"),
	}
	g := newGenerator(t, oracle, DefaultConfig())

	result, err := g.Generate(context.Background(), request, WithAttemptBudget(6))
	require.NoError(t, err)

	require.Len(t, result.Accepted, 2)
	assert.Equal(t, "Products per line?", result.Accepted[0].Question)
	assert.Equal(t, "Average price?", result.Accepted[1].Question)
	assert.Equal(t, "line", result.Accepted[0].Profile.LabelColumn)
	assert.Equal(t, []string{"total"}, result.Accepted[0].Profile.ValueColumns)
	assert.Equal(t, 6, result.Attempts)
	assert.Equal(t, map[RejectReason]int{
		RejectOracleUnavailable: 1,
		RejectUnparsable:        1,
		RejectEmptyResult:       1,
		RejectDuplicate:         1,
	}, result.Rejections)

	// accepted questions are fed back to later prompts
	assert.NotContains(t, oracle.prompts[3], "already answered")
	assert.Contains(t, oracle.prompts[4], "- Products per line?")
}

func TestGenerateStopsAtQuota(t *testing.T) {
	oracle := &fakeOracle{
		next: func(call int, _ context.Context) llm.Completion {
			return text(candidateJSON(fmt.Sprintf("Question %d?", call), fmt.Sprintf("SELECT name, %d AS n FROM products", call)))
		},
		summary: text("five bullets"),
	}
	g := newGenerator(t, oracle, DefaultConfig())

	result, err := g.Generate(context.Background(), request)
	require.NoError(t, err)

	assert.Len(t, result.Accepted, 5)
	assert.Equal(t, 5, result.Attempts)
	assert.Equal(t, 5, oracle.calls)
	assert.Equal(t, 1, oracle.summaryCalls)
	assert.Equal(t, "five bullets", result.Summary)
	assert.Contains(t, oracle.summaryPrompts[0], "Question: Question 5?")
}

func TestGenerateOptionsCannotRaiseLimits(t *testing.T) {
	oracle := &fakeOracle{next: always("garbage")}
	cfg := DefaultConfig()
	cfg.AttemptBudget = 4
	g := newGenerator(t, oracle, cfg)

	result, err := g.Generate(context.Background(), request, WithAttemptBudget(100), WithQuota(50))
	require.NoError(t, err)
	assert.Equal(t, 4, result.Attempts)
}

func TestGenerateSchemaUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "wrapped sentinel", err: fmt.Errorf("describe: %w", schema.ErrSchemaUnavailable)},
		{name: "plain error", err: errors.New("dial tcp: connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := &fakeOracle{next: always(candidateJSON("q", "SELECT 1"))}
			g := NewGenerator(&fakeSchema{err: tt.err}, oracle, openProducts(t), DefaultConfig(), nil)

			result, err := g.Generate(context.Background(), request)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, schema.ErrSchemaUnavailable)
			assert.Equal(t, 0, oracle.calls)
			assert.Equal(t, 0, oracle.summaryCalls)
		})
	}
}

func TestGenerateCancelledContextKeepsResult(t *testing.T) {
	oracle := &fakeOracle{next: always(candidateJSON("q", "SELECT name FROM products"))}
	g := newGenerator(t, oracle, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := g.Generate(ctx, request)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Attempts)
	assert.Empty(t, result.Accepted)
	assert.Equal(t, DegradedSummary, result.Summary)
}

func TestGenerateSessionTimeoutKeepsAccepted(t *testing.T) {
	oracle := &fakeOracle{
		next: func(call int, ctx context.Context) llm.Completion {
			if call == 1 {
				return text(candidateJSON("Top products?", "SELECT name FROM products"))
			}
			<-ctx.Done()
			return llm.Completion{Err: ctx.Err()}
		},
		summary: text("summary after timeout"),
	}
	cfg := DefaultConfig()
	cfg.SessionTimeout = 50 * time.Millisecond
	g := newGenerator(t, oracle, cfg)

	result, err := g.Generate(context.Background(), request)
	require.NoError(t, err)

	assert.Len(t, result.Accepted, 1)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, 1, result.Rejections[RejectOracleUnavailable])
	assert.Equal(t, "summary after timeout", result.Summary)
}

func TestGenerateInvariantsUnderRandomOracle(t *testing.T) {
	responses := []llm.Completion{
		{Err: errors.New("timeout")},
		text(""),
		text("```json\n{\"question\": \"Line\ncount?\", \"sql\": \"SELECT line, COUNT(*) FROM products GROUP BY line\", \"visualization\": \"Pie Chart\"}\n```"),
		text(candidateJSON("Top products?", "SELECT name FROM products")),
		text(candidateJSON("Top  products?", "SELECT name FROM products ORDER BY price")),
		text(candidateJSON("Cheapest?", "SELECT  name FROM   products")),
		text(candidateJSON("Priciest?", "SELECT name FROM products ORDER BY price DESC LIMIT 1")),
		text(candidateJSON("Nothing?", "SELECT name FROM products WHERE 1 = 0")),
		text(candidateJSON("Broken?", "SELECT nope FROM nowhere")),
		text(candidateJSON("Lines?", "SELECT DISTINCT line FROM products")),
		text(candidateJSON("Sum?", "SELECT SUM(price) AS total FROM products")),
		text(candidateJSON("Max?", "SELECT MAX(price) AS top FROM products")),
	}

	db := openProducts(t)
	for seed := int64(0); seed < 25; seed++ {
		rng := rand.New(rand.NewSource(seed))
		oracle := &fakeOracle{
			next: func(int, context.Context) llm.Completion {
				return responses[rng.Intn(len(responses))]
			},
			summary: text("s"),
		}
		g := NewGenerator(&fakeSchema{text: productsSchema}, oracle, db, DefaultConfig(), nil)

		result, err := g.Generate(context.Background(), request)
		require.NoError(t, err)

		assert.LessOrEqual(t, result.Attempts, 15)
		assert.Equal(t, result.Attempts, oracle.calls)
		assert.LessOrEqual(t, len(result.Accepted), 5)
		if len(result.Accepted) < 5 {
			assert.Equal(t, 15, result.Attempts, "seed %d stopped before budget", seed)
		}

		rejected := 0
		for _, n := range result.Rejections {
			rejected += n
		}
		assert.Equal(t, result.Attempts, rejected+len(result.Accepted))

		questions := map[string]bool{}
		queries := map[string]bool{}
		for _, insight := range result.Accepted {
			q := strings.Join(strings.Fields(insight.Question), " ")
			s := strings.Join(strings.Fields(insight.SQL), " ")
			assert.False(t, questions[q], "duplicate question %q", q)
			assert.False(t, queries[s], "duplicate sql %q", s)
			questions[q], queries[s] = true, true
			assert.NotEmpty(t, insight.Rows)
		}
	}
}
