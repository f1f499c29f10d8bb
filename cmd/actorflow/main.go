// ActorFlow - performance decomposed by actor behavior.
// Classifies the directly-follows edges of an event graph by how the
// resources behind them worked, and reports edge durations per behavior.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

// Global flags
var (
	configFile  string
	datasetName string
	dbPath      string
	logLevel    string
	logFormat   string
	metricsFile string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "actorflow",
	Short: "ActorFlow - performance decomposed by actor behavior",
	Long: `ActorFlow labels every case-level directly-follows edge of an event graph
with the behavior of the resources involved (continuation, interruption or one
of three handover variants) and reports edge durations per label.

Configuration is read from /etc/actorflow/config.yaml, ~/.actorflow/config.yaml,
./.actorflow.yaml and --config, in that order, then ACTORFLOW_* variables.`,
	Version:       fmt.Sprintf("%s (%s)", version, commit),
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "Config file path")
	pf.StringVarP(&datasetName, "dataset", "d", "", "Dataset name (overrides dataset_name)")
	pf.StringVar(&dbPath, "db", "", "Graph database path (overrides database.path)")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "", "Log format (text, json)")
	pf.StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(classifyCmd, edgesCmd, reportCmd, cacheCmd, statsCmd, configCmd)
}
