package main

import (
	"github.com/spf13/cobra"

	"github.com/joshuapare/spanalloc/pkg/spanalloc"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// buildInfo is what `spanctl version` reports: the build stamp plus the
// allocator geometry compiled into this binary.
type buildInfo struct {
	Version  string `json:"version"`
	Commit   string `json:"commit"`
	Built    string `json:"built"`
	PageSize int    `json:"page_size"`
	MaxBytes int    `json:"max_bytes"`
	MaxPages int    `json:"max_pages"`
}

func currentBuild() buildInfo {
	return buildInfo{
		Version:  version,
		Commit:   commit,
		Built:    date,
		PageSize: spanalloc.PageSize,
		MaxBytes: spanalloc.MaxBytes,
		MaxPages: spanalloc.MaxPages,
	}
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and allocator geometry",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion() error {
	info := currentBuild()
	if jsonOut {
		return printJSON(info)
	}
	printInfo("spanctl %s\n", info.Version)
	printInfo("  commit: %s\n", info.Commit)
	printInfo("  built: %s\n", info.Built)
	printInfo("  page size: %d bytes\n", info.PageSize)
	printInfo("  small requests: up to %d bytes\n", info.MaxBytes)
	printInfo("  page-cache spans: up to %d pages\n", info.MaxPages)
	return nil
}
