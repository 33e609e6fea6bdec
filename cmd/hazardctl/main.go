package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "hazardctl",
	Short: "Command line client for the disaster-response server",
	Long: `hazardctl submits hazard reports, lists stored reports, fetches the
aggregated weather/seismic/facility view for a coordinate and tails the live
report stream.`,
	Version:      Version,
	SilenceUsage: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("hazardctl version %s\nCommit: %s\n", Version, Commit))
	rootCmd.PersistentFlags().String("server", "http://localhost:5000", "Server base URL")
}
