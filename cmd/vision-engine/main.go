package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagConfigPath string
	flagRulesDir   string
)

var rootCmd = &cobra.Command{
	Use:   "vision-engine",
	Short: "Vision engine - multi-camera detection, tracking, and behavior analysis",
	Long: `vision-engine runs the pipeline manager that owns every camera's
decode -> detect -> track -> analyze -> publish pipeline, reconciles
running pipelines against the configuration store, and serves a status
and metrics HTTP surface.

Available commands:
  serve      - Run the manager, reconcile loop, and HTTP surface until signalled
  reconcile  - Reconcile pipelines against the configuration store once and exit
  status     - Print the status of a running engine's cameras`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "path to the system config file (optional, env VISION_* overrides)")
	rootCmd.PersistentFlags().StringVar(&flagRulesDir, "rules-dir", "./rules", "directory of per-camera ROI/intrusion-rule YAML files")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
