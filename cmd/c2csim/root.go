package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/manycore-odp/c2c/config"
	"github.com/manycore-odp/c2c/mem/atomics"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "c2csim",
	Short: "c2csim exercises the cluster-to-cluster substrate in process.",
	Long: `c2csim builds a fabric of clusters in a single process and runs ` +
		`scenarios on it: negotiating channels through the C2C service and ` +
		`stressing the lock-free ring.`,
	SilenceUsage: true,
}

func init() {
	f := rootCmd.PersistentFlags()
	f.String("env", "", "Load variables from a dotenv file")
	f.Int("clusters", 0, "Number of clusters")
	f.Bool("emulated64", false, "Emulate 64-bit atomics with a lock")
	f.BoolP("verbose", "v", false, "Log hook invocations to stderr")
}

// loadConfig reads the configuration and applies the flags that were set on
// the command line.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("env")

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if cmd.Flags().Changed("clusters") {
		cfg.Clusters, _ = cmd.Flags().GetInt("clusters")
	}

	if cmd.Flags().Changed("emulated64") {
		emulated, _ := cmd.Flags().GetBool("emulated64")
		cfg.Variant = atomics.Native64
		if emulated {
			cfg.Variant = atomics.Emulated64
		}
	}

	if cmd.Flags().Lookup("mode") != nil && cmd.Flags().Changed("mode") {
		s, _ := cmd.Flags().GetString("mode")

		cfg.Mode, err = config.ParseMode(s)
		if err != nil {
			return cfg, err
		}
	}

	if cmd.Flags().Lookup("record") != nil && cmd.Flags().Changed("record") {
		cfg.RecordPath, _ = cmd.Flags().GetString("record")
	}

	if cmd.Flags().Lookup("monitor") != nil && cmd.Flags().Changed("monitor") {
		cfg.MonitorPort, _ = cmd.Flags().GetInt("monitor")
	}

	if cmd.Flags().Lookup("capacity") != nil && cmd.Flags().Changed("capacity") {
		cfg.RingCapacity, _ = cmd.Flags().GetInt("capacity")
	}

	return cfg, cfg.Validate()
}

func hookLogger(cmd *cobra.Command) *log.Logger {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return nil
	}

	return log.New(cmd.ErrOrStderr(), "", 0)
}

func mustPrintf(w io.Writer, format string, args ...any) {
	_, err := fmt.Fprintf(w, format, args...)
	if err != nil {
		log.Printf("write failed: %v", err)
		os.Exit(1)
	}
}
