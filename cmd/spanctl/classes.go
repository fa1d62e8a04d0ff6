package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/spanalloc/mem/printer"
)

func init() {
	cmd := newClassesCmd()
	rootCmd.AddCommand(cmd)
}

func newClassesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classes",
		Short: "Print the size-class table",
		Long: `The classes command prints every size class with its block size, the
number of blocks moved per batch between tiers, the span length the central
cache requests for it, and the bytes lost at the end of each span.

Example:
  spanctl classes
  spanctl classes --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClasses()
		},
	}
}

func runClasses() error {
	if jsonOut {
		return printJSON(printer.Classes())
	}
	if quiet {
		return nil
	}
	return newPrinter().PrintClasses()
}
