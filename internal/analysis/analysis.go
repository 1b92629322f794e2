// Package analysis orchestrates one full reconciliation run: discover the
// input files in a data directory, ingest both sources, reconcile,
// aggregate, write the report artifacts, and optionally persist a
// snapshot. The CLI and the MCP server both drive runs through it.
package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"seatrecon/internal/ledger"
	"seatrecon/internal/logging"
	"seatrecon/internal/reconcile"
	"seatrecon/internal/report"
	"seatrecon/internal/rules"
	"seatrecon/internal/stats"
	"seatrecon/internal/store"
	"seatrecon/internal/telemetry"
)

// Options configures one run.
type Options struct {
	// DataDir holds the telemetry *.json exports and the activity CSV.
	DataDir string
	// LedgerPath overrides ledger discovery when set.
	LedgerPath string
	// RulesPath overrides the embedded rule set when set.
	RulesPath string

	// ToleranceHours / DelayHours override the rule set's defaults when
	// non-nil; an explicit zero is honored.
	ToleranceHours *int
	DelayHours     *int
	Workers        int

	// OutputDir receives the summary and discrepancies CSV. Defaults to
	// DataDir/output.
	OutputDir string
	// Customer overrides the name derived from the ledger filename.
	Customer string

	// Store, when non-nil, receives a snapshot of the run.
	Store store.Store
}

// Outcome is everything one run produced.
type Outcome struct {
	Customer string
	Result   *reconcile.Result
	Stats    *stats.Stats

	SummaryPath string
	CSVPath     string

	// SnapshotID is set when the run was persisted.
	SnapshotID int64
}

// Discover locates the telemetry exports and the activity ledger under
// dir. Telemetry files are every *.json; the ledger is the first
// *seat-activity*.csv, falling back to any CSV outside the output
// directory.
func Discover(dir string) (telemetryPaths []string, ledgerPath string, err error) {
	telemetryPaths, err = filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, "", fmt.Errorf("scan telemetry files: %w", err)
	}
	if len(telemetryPaths) == 0 {
		return nil, "", fmt.Errorf("no telemetry exports (*.json) in %s", dir)
	}

	csvs, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, "", fmt.Errorf("scan activity csv: %w", err)
	}
	for _, p := range csvs {
		if strings.Contains(filepath.Base(p), "seat-activity") {
			return telemetryPaths, p, nil
		}
	}
	if len(csvs) > 0 {
		return telemetryPaths, csvs[0], nil
	}
	return nil, "", fmt.Errorf("no activity ledger (*.csv) in %s", dir)
}

// Run executes one reconciliation end to end.
func Run(ctx context.Context, opts Options) (*Outcome, error) {
	logger := logging.New("analysis")

	r := rules.Default()
	if opts.RulesPath != "" {
		var err error
		if r, err = rules.Load(opts.RulesPath); err != nil {
			return nil, err
		}
	}

	telemetryPaths, ledgerPath, err := Discover(opts.DataDir)
	if err != nil {
		return nil, err
	}
	if opts.LedgerPath != "" {
		ledgerPath = opts.LedgerPath
	}
	logger.Info("inputs discovered",
		"telemetry_files", len(telemetryPaths), "ledger", filepath.Base(ledgerPath))

	index, err := telemetry.IngestFiles(ctx, telemetryPaths, r, opts.Workers)
	if err != nil {
		return nil, fmt.Errorf("ingest telemetry: %w", err)
	}

	lf, err := os.Open(ledgerPath)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	rep, err := ledger.Parse(lf)
	lf.Close()
	if err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", ledgerPath, err)
	}

	result, err := reconcile.Run(index, rep, reconcile.Config{
		Rules:          r,
		ToleranceHours: opts.ToleranceHours,
		DelayHours:     opts.DelayHours,
	})
	if err != nil {
		return nil, err
	}

	out := &Outcome{
		Customer: opts.Customer,
		Result:   result,
		Stats:    stats.Compute(result, r),
	}
	if out.Customer == "" {
		out.Customer = report.CustomerName(ledgerPath)
	}

	outDir := opts.OutputDir
	if outDir == "" {
		outDir = filepath.Join(opts.DataDir, "output")
	}
	out.SummaryPath, out.CSVPath, err = report.WriteFiles(outDir, report.Input{
		Customer: out.Customer,
		Result:   result,
		Stats:    out.Stats,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("reports written", "summary", out.SummaryPath, "csv", out.CSVPath)

	if opts.Store != nil {
		snap := &store.Snapshot{
			Customer:        out.Customer,
			CreatedAt:       time.Now().UTC(),
			WindowStart:     result.Declared.StartDay,
			WindowEnd:       result.EffectiveEnd,
			GeneratedAt:     result.GeneratedAt,
			Counters:        result.Counters,
			Discrepancies:   result.Discrepancies,
			TelemetryLogins: index.Logins(),
		}
		if out.SnapshotID, err = opts.Store.SaveSnapshot(snap); err != nil {
			return nil, fmt.Errorf("save snapshot: %w", err)
		}
		logger.Info("snapshot saved", "id", out.SnapshotID, "customer", out.Customer)
	}

	return out, nil
}
