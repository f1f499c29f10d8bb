package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/logflow/actorflow/pkg/aggregate"
	"github.com/logflow/actorflow/pkg/behavior"
	"github.com/logflow/actorflow/pkg/config"
	"github.com/logflow/actorflow/pkg/edge"
	"github.com/logflow/actorflow/pkg/report"
	"github.com/logflow/actorflow/pkg/tui"
)

// Command flags
var (
	resetLabels   bool
	minFreq       int64
	edgeFlags     []string
	workers       int
	failurePolicy string
	writeXLSX     bool
	quiet         bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Label case directly-follows edges with actor behavior",
	Long: `Runs the five classification passes over the case-level directly-follows
edges. Passes only label edges that are still unlabeled, so running classify
again is harmless. Use --reset to clear every label first.`,
	RunE: runClassify,
}

var edgesCmd = &cobra.Command{
	Use:   "edges",
	Short: "List case edges above the frequency threshold",
	RunE:  runEdges,
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build the performance report decomposed by actor behavior",
	Long: `Aggregates edge durations per actor behavior for every selected edge and
writes the report to <final_output_directory>/<dataset>/decomposed_actor_behavior/.

Edges come from --edge flags when given, otherwise from case_edges.`,
	Example: `  actorflow report
  actorflow report --edge "A_Submitted->A_Accepted" --workers 4
  actorflow report --failure-policy skip --xlsx`,
	RunE: runReport,
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the edge instance cache",
}

var cachePurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete the cached instance tables of the dataset",
	RunE:  runCachePurge,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show node and relationship counts of the graph",
	RunE:  runStats,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE:  runConfigShow,
}

func init() {
	classifyCmd.Flags().BoolVar(&resetLabels, "reset", false, "Clear existing labels before classifying")

	edgesCmd.Flags().Int64Var(&minFreq, "min-freq", 0, "Exclusive frequency threshold (overrides edge_min_freq)")

	addReportFlags(reportCmd.Flags())

	cacheCmd.AddCommand(cachePurgeCmd)
	configCmd.AddCommand(configShowCmd)
}

func addReportFlags(rf *pflag.FlagSet) {
	rf.StringArrayVarP(&edgeFlags, "edge", "e", nil, `Edge to report, "source->sink" (repeatable)`)
	rf.Int64Var(&minFreq, "min-freq", 0, "Exclusive frequency threshold (overrides edge_min_freq)")
	rf.IntVarP(&workers, "workers", "w", 0, "Edges processed concurrently (overrides report.workers)")
	rf.StringVar(&failurePolicy, "failure-policy", "", "abort or skip (overrides report.failure_policy)")
	rf.BoolVar(&writeXLSX, "xlsx", false, "Also write an XLSX workbook")
	rf.BoolVarP(&quiet, "quiet", "q", false, "Hide the progress bar")
}

func runClassify(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	tui.PrintHeader(out, version)

	classifier := behavior.NewClassifier(a.store, a.cfg.Entities.Case, a.cfg.Entities.Resource,
		behavior.WithLogger(a.logger), behavior.WithMetrics(a.metrics))

	if resetLabels {
		n, err := classifier.Reset(ctx)
		if err != nil {
			return err
		}
		a.logger.Info("labels cleared", "edges", n)
	}

	summary, err := classifier.Classify(ctx)
	if err != nil {
		return err
	}

	dist, err := a.store.LabelDistribution(ctx, a.cfg.Entities.Case.DFRelationship())
	if err != nil {
		return err
	}
	tui.PrintClassification(out, summary, dist)
	return nil
}

func runEdges(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	threshold := a.cfg.EdgeMinFreq
	if cmd.Flags().Changed("min-freq") {
		threshold = minFreq
	}

	asm := report.NewAssembler(a.store, nil, a.schema, a.cfg.Entities.Case, report.WithLogger(a.logger))
	freqs, err := asm.EdgeFrequencies(cmd.Context(), threshold)
	if err != nil {
		return err
	}
	tui.PrintEdges(cmd.OutOrStdout(), freqs)
	return nil
}

// reportSettings merges report flags over the loaded configuration.
type reportSettings struct {
	selector  report.Selector
	minFreq   int64
	workers   int
	policy    report.FailurePolicy
	writeXLSX bool
}

func resolveReportSettings(cmd *cobra.Command, cfg *config.Config, schema edge.Schema) (reportSettings, error) {
	s := reportSettings{
		minFreq:   cfg.EdgeMinFreq,
		workers:   cfg.Report.Workers,
		writeXLSX: cfg.Report.XLSX || writeXLSX,
	}
	flags := cmd.Flags()

	if len(edgeFlags) > 0 {
		spec := config.CaseEdges{}
		for _, e := range edgeFlags {
			spec.Edges = append(spec.Edges, config.EdgeSpec{Text: e})
		}
		sel, err := spec.Selector(schema)
		if err != nil {
			return s, err
		}
		s.selector = sel
	} else {
		sel, err := cfg.CaseEdges.Selector(schema)
		if err != nil {
			return s, err
		}
		s.selector = sel
	}

	if flags.Changed("min-freq") {
		s.minFreq = minFreq
	}
	if flags.Changed("workers") {
		s.workers = workers
	}

	policy := cfg.Report.FailurePolicy
	if flags.Changed("failure-policy") {
		policy = failurePolicy
	}
	p, err := report.ParseFailurePolicy(policy)
	if err != nil {
		return s, err
	}
	s.policy = p
	return s, nil
}

func runReport(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	settings, err := resolveReportSettings(cmd, a.cfg, a.schema)
	if err != nil {
		return err
	}
	stats, err := a.cfg.Stats()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	tui.PrintHeader(out, version)

	cache, backend, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	opts := []report.AssemblerOption{
		report.WithWorkers(settings.workers),
		report.WithFailurePolicy(settings.policy),
		report.WithLogger(a.logger),
		report.WithMetrics(a.metrics),
	}

	// Edges are resolved up front so the progress bar knows its total.
	keys, err := report.NewAssembler(a.store, cache, a.schema, a.cfg.Entities.Case, opts...).
		ResolveEdges(ctx, settings.selector, settings.minFreq)
	if err != nil {
		return err
	}
	a.logger.Info("edges selected", "edges", len(keys), "selector", settings.selector.String(),
		"backend", backend.Name())

	if !quiet && len(keys) > 0 {
		opts = append(opts, report.WithProgress(tui.ShowProgress(os.Stderr, len(keys), "edges")))
	}
	asm := report.NewAssembler(a.store, cache, a.schema, a.cfg.Entities.Case, opts...)

	rep, err := asm.Build(ctx, report.Options{
		Selector:     report.Edges(keys...),
		MinFrequency: settings.minFreq,
		TimeUnit:     a.unit,
		Aggregate: aggregate.Options{
			Stats:               stats,
			ExcludeZeroDuration: a.cfg.ExcludeZeroDuration,
		},
	})
	if err != nil {
		return err
	}

	csvPath := a.cfg.ReportPath()
	if err := report.SaveCSV(csvPath, rep); err != nil {
		return err
	}
	paths := []string{csvPath}

	if settings.writeXLSX {
		xlsxPath := report.XLSXPath(a.cfg.FinalOutputDirectory, a.cfg.DatasetName)
		if err := report.SaveXLSX(xlsxPath, rep); err != nil {
			return err
		}
		paths = append(paths, xlsxPath)
	}

	tui.PrintReport(out, rep, cache.Stats(), paths...)
	return nil
}

func runCachePurge(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	cache, backend, err := a.openCache(ctx)
	if err != nil {
		return err
	}
	defer backend.Close()

	removed, err := cache.Purge(ctx)
	if err != nil {
		return err
	}
	tui.PrintPurge(cmd.OutOrStdout(), a.cfg.DatasetName, backend.Name(), removed)
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	st, err := a.store.Stats(cmd.Context())
	if err != nil {
		return err
	}
	tui.PrintGraphStats(cmd.OutOrStdout(), st.Nodes, st.Relationships)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	m, _, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
	return err
}
