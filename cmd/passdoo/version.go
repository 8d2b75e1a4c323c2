package main

import (
	"fmt"

	"github.com/balduz84/passdoo/internal/common"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Passdoo version %s %s\n", common.GetFullVersion(), common.GetVersionInfo().GoVersion)
	},
}
