package main

import (
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version is set at link time.
var Version = ""

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version of c2csim.",
	Run: func(cmd *cobra.Command, _ []string) {
		mustPrintf(cmd.OutOrStdout(), "c2csim %s\n", version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func version() string {
	if Version != "" {
		return Version
	}

	info, ok := debug.ReadBuildInfo()
	if ok && info.Main.Version != "" {
		return info.Main.Version
	}

	return "(devel)"
}
