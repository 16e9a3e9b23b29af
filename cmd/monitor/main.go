// Command monitor runs the transaction rules over a batch file and prints
// every flagged transaction.
//
// Usage:
//
//	go run ./cmd/monitor scan data/transactions.csv [--format text|csv|json]
//	go run ./cmd/monitor config
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "monitor",
		Short:         "Monitor - flag suspicious transactions in a batch export",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "path to .env file")

	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(configCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
