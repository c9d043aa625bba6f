package main

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var tablesCmd = &cobra.Command{
	Use:   "tables [table]",
	Short: "List tables, or preview the rows of one table",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTables,
}

func init() {
	tablesCmd.Flags().Int("limit", 10, "rows to preview")
	rootCmd.AddCommand(tablesCmd)
}

func runTables(cmd *cobra.Command, args []string) error {
	catalog, closeFn, err := openCatalog(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	if len(args) == 0 {
		names, err := catalog.ListTables(cmd.Context())
		if err != nil {
			return err
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	}

	limit, _ := cmd.Flags().GetInt("limit")
	rows, columns, err := catalog.Preview(cmd.Context(), args[0], limit)
	if err != nil {
		return err
	}
	printRows(cmd.OutOrStdout(), columns, rows)
	return nil
}

func printRows(w io.Writer, columns []string, rows []map[string]any) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeader(columns)

	for _, row := range rows {
		values := make([]string, len(columns))
		for i, col := range columns {
			if row[col] != nil {
				values[i] = fmt.Sprintf("%v", row[col])
			}
		}
		table.Append(values)
	}
	table.Render()
}
