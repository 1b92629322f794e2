package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"seatrecon/internal/analysis"
	"seatrecon/internal/format"
	"seatrecon/internal/stats"
	"seatrecon/internal/store"
)

var analyzeFlags struct {
	dataDir    string
	ledgerPath string
	rulesPath  string
	tolerance  int
	delay      int
	workers    int
	outputDir  string
	customer   string
	save       bool
	dbPath     string
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [data-dir]",
	Short: "Reconcile a telemetry export against an activity report",
	Long: `Reconcile the telemetry NDJSON exports in a data directory against the
seat activity CSV found there, then write a Markdown summary and a
discrepancies CSV into <data-dir>/output.

Usage:
  seatrecon analyze ./acme-data
  seatrecon analyze --data-dir=./acme-data --tolerance=24
  seatrecon analyze ./acme-data --save    # persist a snapshot for later comparison

Telemetry files are every *.json in the directory; the activity report is
the first *seat-activity*.csv. Use --ledger to point at a specific CSV.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeFlags.dataDir, "data-dir", "", "Directory holding the telemetry exports and activity CSV")
	f.StringVar(&analyzeFlags.ledgerPath, "ledger", "", "Activity report CSV (default: discovered in data dir)")
	f.StringVar(&analyzeFlags.rulesPath, "rules", "", "Rule set YAML (default: embedded rules)")
	f.IntVar(&analyzeFlags.tolerance, "tolerance", 0, "Match tolerance in hours, 0 for exact matching (default: from rules)")
	f.IntVar(&analyzeFlags.delay, "delay", 0, "Export populate delay in hours (default: from rules)")
	f.IntVar(&analyzeFlags.workers, "workers", 0, "Parallel telemetry readers (default: one per file)")
	f.StringVarP(&analyzeFlags.outputDir, "output", "o", "", "Output directory (default: <data-dir>/output)")
	f.StringVar(&analyzeFlags.customer, "customer", "", "Customer name (default: derived from the CSV filename)")
	f.BoolVar(&analyzeFlags.save, "save", false, "Persist a snapshot of this run to the store")
	f.StringVar(&analyzeFlags.dbPath, "db", store.DefaultDBPath, "Store DB path")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	dataDir := analyzeFlags.dataDir
	if dataDir == "" && len(args) > 0 {
		dataDir = args[0]
	}
	if dataDir == "" {
		return fmt.Errorf("data directory is required\n\nUsage: seatrecon analyze <data-dir>")
	}

	opts := analysis.Options{
		DataDir:    dataDir,
		LedgerPath: analyzeFlags.ledgerPath,
		RulesPath:  analyzeFlags.rulesPath,
		Workers:    analyzeFlags.workers,
		OutputDir:  analyzeFlags.outputDir,
		Customer:   analyzeFlags.customer,
	}
	// Only an explicitly passed flag overrides the rule defaults; a zero
	// override means exact matching.
	if cmd.Flags().Changed("tolerance") {
		opts.ToleranceHours = &analyzeFlags.tolerance
	}
	if cmd.Flags().Changed("delay") {
		opts.DelayHours = &analyzeFlags.delay
	}

	if analyzeFlags.save {
		st, err := store.Open(analyzeFlags.dbPath)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer st.Close()
		opts.Store = st
	}

	out, err := analysis.Run(cmd.Context(), opts)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Customer: %s\n\n", out.Customer)
	fmt.Fprintln(w, countersTable(out))
	fmt.Fprintln(w, familyTable(out.Stats))
	fmt.Fprintf(w, "Summary:       %s\n", out.SummaryPath)
	fmt.Fprintf(w, "Discrepancies: %s\n", out.CSVPath)
	if out.SnapshotID != 0 {
		fmt.Fprintf(w, "Snapshot:      #%d\n", out.SnapshotID)
	}
	return nil
}

func countersTable(out *analysis.Outcome) string {
	c := out.Result.Counters
	t := format.NewTable(format.ASCII)
	t.Header("Stage", "Seats")
	t.Columns(
		format.ColumnConfig{Number: 2, Align: format.AlignRight},
	)
	t.Row("Ledger rows", format.FmtCount(c.RawRows))
	t.Row("With activity", format.FmtCount(c.WithActivity))
	t.Row("In window", format.FmtCount(c.InWindow))
	t.Row("Excluded surface", format.FmtCount(c.Excluded))
	t.Row("Unsupported version", format.FmtCount(c.Ineligible))
	t.Row("Eligible", format.FmtCount(c.Eligible))
	t.Row("Matched", format.FmtCount(c.Matched))
	t.Row("Stale", format.FmtCount(c.Stale))
	t.Row("Missing from telemetry", format.FmtCount(c.Absent))
	t.Footer("Discrepant", format.FmtCount(c.Stale+c.Absent))
	return t.String()
}

func familyTable(st *stats.Stats) string {
	names := make([]string, 0, len(st.ByFamily))
	for name := range st.ByFamily {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		di, dj := st.ByFamily[names[i]].Discrepant(), st.ByFamily[names[j]].Discrepant()
		if di != dj {
			return di > dj
		}
		return names[i] < names[j]
	})

	t := format.NewTable(format.ASCII)
	t.Header("Surface", "Eligible", "Discrepant", "Rate")
	t.Columns(
		format.ColumnConfig{Number: 2, Align: format.AlignRight},
		format.ColumnConfig{Number: 3, Align: format.AlignRight},
		format.ColumnConfig{Number: 4, Align: format.AlignRight},
	)
	for _, name := range names {
		tl := st.ByFamily[name]
		t.Row(name, format.FmtCount(tl.Eligible), format.FmtCount(tl.Discrepant()), stats.FormatRate(*tl))
	}
	return t.String()
}
