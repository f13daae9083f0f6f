package main

import (
	"fmt"

	"unisearch/internal/model"

	"github.com/spf13/cobra"
)

var sourcesRawJSON bool

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the sources registered on the service",
	RunE:  runSources,
}

func init() {
	sourcesCmd.Flags().BoolVar(&sourcesRawJSON, "json", false, "Print the raw JSON response")
}

func runSources(cmd *cobra.Command, args []string) error {
	var resp struct {
		Sources []model.Capability `json:"sources"`
		Labels  map[string]string  `json:"labels"`
	}
	if err := apiRequest("GET", "/api/sources", nil, &resp); err != nil {
		return err
	}

	if sourcesRawJSON {
		return printJSON(resp)
	}

	for _, c := range resp.Sources {
		fmt.Printf("%-20s %-8s methods=%v modes=%v\n",
			c.SourceName, c.SourceClass, c.SupportedMethods, c.SupportedModes)
	}
	fmt.Printf("(%d sources)\n", len(resp.Sources))
	return nil
}
