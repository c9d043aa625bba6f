// Package app builds every collaborator of a generation session from
// configuration. Both the HTTP server and the CLI start here.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"querygenie/internal/config"
	"querygenie/internal/database"
	"querygenie/internal/insights"
	"querygenie/internal/llm"
	"querygenie/internal/schema"
	"querygenie/internal/validator"
)

type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	DataSource *database.DataSource
	Catalog    *schema.Catalog
	Schema     *schema.Cached
	Generator  *insights.Generator
}

// New connects to the database and wires the generator. The schema is not
// fetched here; the first session does that.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ds, err := database.Open(ctx, database.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("Connected to database",
		zap.String("driver", ds.Driver()),
		zap.String("dialect", string(ds.Dialect())))

	provider, err := llm.NewProvider(llm.Config{
		Provider:       cfg.LLM.Provider,
		Model:          cfg.LLM.Model,
		OpenAIAPIKey:   cfg.LLM.OpenAIAPIKey,
		OpenAIBaseURL:  cfg.LLM.OpenAIBaseURL,
		AnthropicKey:   cfg.LLM.AnthropicAPIKey,
		OllamaEndpoint: cfg.LLM.OllamaEndpoint,
		MaxTokens:      cfg.LLM.MaxTokens,
		Temperature:    cfg.LLM.Temperature,
		Timeout:        cfg.LLM.Timeout,
	})
	if err != nil {
		_ = ds.Close()
		return nil, err
	}

	genCfg, err := GenerationConfig(cfg, ds.Dialect())
	if err != nil {
		_ = ds.Close()
		return nil, err
	}

	catalog := schema.NewCatalog(ds, logger.Named("schema"))
	cached := schema.NewCached(catalog)
	oracle := llm.NewOracle(provider, cfg.LLM.Timeout, logger.Named("llm"))
	executor := validator.New(ds.DB(), validator.Options{
		Timeout: cfg.Database.QueryTimeout,
		MaxRows: cfg.Database.MaxRows,

		// MySQL DDL commits implicitly, so the rollback cannot undo it.
		SelectOnly: ds.Dialect() == database.DialectMySQL,
	}, logger.Named("validator"))

	logger.Info("Generator ready",
		zap.String("provider", provider.Name()),
		zap.Int("quota", genCfg.Quota),
		zap.Int("attempt_budget", genCfg.AttemptBudget),
		zap.String("dialect", genCfg.Dialect))

	return &App{
		Config:     cfg,
		Logger:     logger,
		DataSource: ds,
		Catalog:    catalog,
		Schema:     cached,
		Generator:  insights.NewGenerator(cached, oracle, executor, genCfg, logger.Named("insights")),
	}, nil
}

// GenerationConfig maps the generation section onto insights.Config. An
// unset dialect is named after the database.
func GenerationConfig(cfg *config.Config, dialect database.Dialect) (insights.Config, error) {
	ref, err := cfg.Generation.Reference()
	if err != nil {
		return insights.Config{}, fmt.Errorf("invalid generation.reference_date: %w", err)
	}

	name := cfg.Generation.Dialect
	if name == "" {
		name = dialectName(dialect)
	}

	return insights.Config{
		Quota:          cfg.Generation.Quota,
		AttemptBudget:  cfg.Generation.AttemptBudget,
		ReferenceDate:  ref,
		Dialect:        name,
		SessionTimeout: cfg.Generation.SessionTimeout,
		SummaryTimeout: cfg.Generation.SummaryTimeout,
	}, nil
}

func dialectName(d database.Dialect) string {
	switch d {
	case database.DialectMySQL:
		return "MySQL"
	case database.DialectPostgres:
		return "PostgreSQL"
	case database.DialectSQLite:
		return "SQLite"
	}
	return "SQL"
}

func (a *App) Close() error {
	return a.DataSource.Close()
}
