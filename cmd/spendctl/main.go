// spendctl is the command-line companion to the spendwise API: it parses UPI
// messages and prints dashboard stats straight from the configured backend.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"spendwise/internal/cli"
	"spendwise/internal/config"
	applog "spendwise/internal/log"
	"spendwise/internal/parser"
	"spendwise/internal/stats"
)

var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "spendctl",
		Short:         "Inspect spendwise data from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(parseCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(versionCmd())
	return rootCmd
}

func parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <message>",
		Short: "Extract amount, merchant and category from a UPI message",
		Long: `Parses a bank or UPI notification and prints the result as JSON.

Words after the command are joined with spaces, so quoting is optional:
  spendctl parse Paid Rs 250 to Zomato`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := parser.New().Parse(strings.Join(args, " "))
			return writeJSON(cmd.OutOrStdout(), parsed)
		},
	}
}

func statsCmd() *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print dashboard stats and insights for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(userID) == "" {
				return fmt.Errorf("--user is required")
			}
			cli.LoadEnvFile()
			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger := cli.SetupLogger(cfg, applog.ComponentApp)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			res, err := cli.InitBackend(ctx, logger, cfg)
			if err != nil {
				return err
			}
			defer res.Close()

			expenses, err := res.Store.GetExpenses(ctx, userID)
			if err != nil {
				return fmt.Errorf("load expenses: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), stats.Compute(expenses))
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user whose ledger to summarise")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the spendctl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "spendctl %s\n", version)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
