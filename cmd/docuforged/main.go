package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/docuforge/docuforge/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "docuforged",
		Short: "Docuforge ingestion daemon",
		Long:  "Docuforge daemon for ingesting documents into the knowledge base and managing its background jobs",
	}

	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.SweepCmd())
	rootCmd.AddCommand(admin.JobsCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
