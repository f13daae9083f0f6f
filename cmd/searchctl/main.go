// Command searchctl is the operator CLI for a running searchd instance:
// fire one-shot searches, list registered sources, and register capability
// documents.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "1.0.0"

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "searchctl",
	Short: "searchctl - administer a running unisearch service",
	Long: `searchctl talks to a searchd instance over its HTTP API.

Use it to run ad-hoc searches, inspect which sources are registered, and
push new capability documents without restarting the service.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://localhost:7799", "Base URL of the searchd instance")
	rootCmd.PersistentFlags().String("token", "", "Bearer token when the server runs with JWT enabled")

	viper.SetEnvPrefix("UNISEARCH")
	viper.AutomaticEnv()
	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(registerCmd)
}
