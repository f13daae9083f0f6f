package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var registerCmd = &cobra.Command{
	Use:   "register <capability.json>",
	Short: "Register capability documents from a JSON file",
	Long: `Register one capability document, or a {"sources": [...]} envelope,
from a JSON file. The server persists the registration when it runs with
Mongo enabled.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

func runRegister(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	var payload interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return fmt.Errorf("%s is not valid JSON: %w", args[0], err)
	}

	var resp struct {
		Status     string   `json:"status"`
		New        []string `json:"new"`
		TotalCount int      `json:"totalCount"`
	}
	if err := apiRequest("POST", "/api/capabilities", payload, &resp); err != nil {
		return err
	}

	fmt.Printf("registered %v (%d sources total)\n", resp.New, resp.TotalCount)
	return nil
}
