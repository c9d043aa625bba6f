package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"querygenie/internal/app"
	"querygenie/internal/insights"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Run one insight generation session and print the result",
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().String("company", "", "company name (required)")
	generateCmd.Flags().String("description", "", "company description (required)")
	generateCmd.Flags().String("title", "", "job title (required)")
	generateCmd.Flags().String("responsibilities", "", "job responsibilities (required)")
	generateCmd.Flags().Int("quota", 0, "insights to collect (at most generation.quota)")
	generateCmd.Flags().Int("attempts", 0, "attempt budget (at most generation.attempt_budget)")
	generateCmd.Flags().Bool("json", false, "print the result as JSON")

	for _, name := range []string{"company", "description", "title", "responsibilities"} {
		_ = generateCmd.MarkFlagRequired(name)
	}

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	flags := cmd.Flags()
	req := insights.Request{}
	req.CompanyName, _ = flags.GetString("company")
	req.CompanyDescription, _ = flags.GetString("description")
	req.JobTitle, _ = flags.GetString("title")
	req.JobResponsibilities, _ = flags.GetString("responsibilities")

	var opts []insights.Option
	if n, _ := flags.GetInt("quota"); n > 0 {
		opts = append(opts, insights.WithQuota(n))
	}
	if n, _ := flags.GetInt("attempts"); n > 0 {
		opts = append(opts, insights.WithAttemptBudget(n))
	}

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.Generator.Generate(cmd.Context(), req, opts...)
	if err != nil {
		return err
	}

	if asJSON, _ := flags.GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printResult(cmd.OutOrStdout(), result)
	return nil
}

func printResult(w io.Writer, result *insights.Result) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_CENTER)
	table.SetAutoFormatHeaders(false)
	table.SetBorder(true)
	table.SetRowLine(true)
	table.SetHeader([]string{"#", "Question", "SQL", "Visualization", "Rows"})

	for i, insight := range result.Accepted {
		table.Append([]string{
			strconv.Itoa(i + 1),
			insight.Question,
			insight.SQL,
			insight.Visualization,
			strconv.Itoa(len(insight.Rows)),
		})
	}
	table.Render()

	reasons := make([]string, 0, len(result.Rejections))
	for reason := range result.Rejections {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)

	fmt.Fprintf(w, "\nSession %s: %d accepted in %d attempts\n", result.SessionID, len(result.Accepted), result.Attempts)
	for _, reason := range reasons {
		fmt.Fprintf(w, "  rejected %-18s %d\n", reason, result.Rejections[insights.RejectReason(reason)])
	}
	fmt.Fprintf(w, "\nSummary:\n%s\n", result.Summary)
}

