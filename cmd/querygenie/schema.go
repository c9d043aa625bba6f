package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"querygenie/internal/database"
	"querygenie/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the schema description used in generation prompts",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, closeFn, err := openCatalog(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		desc, err := catalog.Describe(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), desc)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

// openCatalog connects to the database without building an oracle, so
// schema inspection works without LLM credentials.
func openCatalog(cmd *cobra.Command) (*schema.Catalog, func(), error) {
	if cfg.Database.DSN == "" {
		return nil, nil, fmt.Errorf("database dsn is required (set --dsn, QUERYGENIE_DATABASE_DSN or DATABASE_URL)")
	}
	ds, err := database.Open(cmd.Context(), database.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.DSN,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return schema.NewCatalog(ds, logger.Named("schema")), func() { _ = ds.Close() }, nil
}
