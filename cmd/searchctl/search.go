package main

import (
	"fmt"
	"strings"

	"unisearch/internal/model"

	"github.com/spf13/cobra"
)

var (
	searchMaxResults   int
	searchNoRefinement bool
	searchRawJSON      bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Run a one-shot search against the service",
	Long: `Run a one-shot search.

Examples:
  # Plain search
  searchctl search "emails from Alice today"

  # Aggregate query, raw response
  searchctl search "top senders this week" --json

  # Skip the automatic refinement round
  searchctl search "zeus project notes" --no-refinement
`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchMaxResults, "max-results", "n", 0, "Maximum fused results (default: server default)")
	searchCmd.Flags().BoolVar(&searchNoRefinement, "no-refinement", false, "Disable the automatic refinement round")
	searchCmd.Flags().BoolVar(&searchRawJSON, "json", false, "Print the raw JSON response")
}

func runSearch(cmd *cobra.Command, args []string) error {
	doRefinement := !searchNoRefinement
	body := map[string]interface{}{
		"query":         strings.Join(args, " "),
		"max_results":   searchMaxResults,
		"do_refinement": doRefinement,
	}

	var resp model.Response
	if err := apiRequest("POST", "/api/search", body, &resp); err != nil {
		return err
	}

	if searchRawJSON {
		return printJSON(resp)
	}

	if resp.Meta.Count != nil {
		fmt.Printf("count: %d (from %s)\n", *resp.Meta.Count, resp.Meta.CountSource)
		return nil
	}
	if len(resp.Meta.Aggregates) > 0 {
		fmt.Printf("aggregates from %s:\n", resp.Meta.AggregatesSource)
		for _, g := range resp.Meta.Aggregates {
			label := g.Label
			if label == "" {
				label = g.GroupValue
			}
			fmt.Printf("  %-40s %d\n", label, g.Count)
		}
		return nil
	}

	for i, r := range resp.Results {
		fmt.Printf("%2d. [%s] %s (%.2f)\n", i+1, r.Source, r.Title, r.FusedScore)
		if r.Snippet != "" {
			fmt.Printf("    %s\n", r.Snippet)
		}
	}
	for _, e := range resp.Errors {
		fmt.Printf("error: %s\n", e)
	}
	for _, n := range resp.Notes {
		fmt.Printf("note: %s\n", n)
	}
	fmt.Printf("(%d results, %d iterations, %dms)\n",
		len(resp.Results), resp.Meta.Iterations, resp.Meta.TimingMs["total"])
	return nil
}
