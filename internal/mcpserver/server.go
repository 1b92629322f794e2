// Package mcpserver exposes the reconciliation engine over MCP stdio so
// agent hosts can drive runs and query snapshot history without shelling
// out to the CLI.
package mcpserver

import (
	"context"
	"fmt"

	"seatrecon/internal/analysis"
	"seatrecon/internal/logging"
	"seatrecon/internal/snapshot"
	"seatrecon/internal/store"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Server wraps the MCP SDK server around the analysis engine.
type Server struct {
	MCPServer *sdkmcp.Server

	// StorePath is the snapshot database location used by the snapshot
	// tools and by run_analysis with save=true.
	StorePath string
}

// NewServer creates an MCP server with the analysis and snapshot tools.
func NewServer(storePath string) *Server {
	s := &Server{StorePath: storePath}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "seatrecon", Version: "dev"},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "run_analysis",
		Description: "Reconcile a data directory (telemetry *.json exports plus the seat-activity CSV), write the summary and discrepancies CSV, and return the run counters.",
	}, s.handleRunAnalysis)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_snapshots",
		Description: "List persisted reconciliation snapshots, optionally filtered by customer, oldest first.",
	}, s.handleListSnapshots)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "compare_snapshots",
		Description: "Compare two snapshots of the same customer: recovered vs still-affected seats, disposition transitions, and a systematic/transient verdict.",
	}, s.handleCompareSnapshots)
}

// --- Tool input/output types ---

type runAnalysisInput struct {
	DataDir        string `json:"data_dir" jsonschema:"directory holding the telemetry *.json exports and the activity CSV"`
	RulesPath      string `json:"rules_path,omitempty" jsonschema:"optional rules YAML overriding the embedded defaults"`
	ToleranceHours *int   `json:"tolerance_hours,omitempty" jsonschema:"matcher tolerance in hours, zero for exact matching (default from rules)"`
	DelayHours     *int   `json:"delay_hours,omitempty" jsonschema:"export-population delay in hours (default from rules)"`
	Customer       string `json:"customer,omitempty" jsonschema:"customer name override (default derived from the CSV filename)"`
	Save           bool   `json:"save,omitempty" jsonschema:"persist the run as a snapshot"`
}

type runCounters struct {
	RawRows      int `json:"raw_rows"`
	WithActivity int `json:"with_activity"`
	InWindow     int `json:"in_window"`
	Eligible     int `json:"eligible"`
	Matched      int `json:"matched"`
	Stale        int `json:"stale"`
	Absent       int `json:"absent"`
	Ineligible   int `json:"ineligible"`
	Excluded     int `json:"excluded"`
}

type runAnalysisOutput struct {
	Customer    string      `json:"customer"`
	SummaryPath string      `json:"summary_path"`
	CSVPath     string      `json:"csv_path"`
	Counters    runCounters `json:"counters"`
	SnapshotID  int64       `json:"snapshot_id,omitempty"`
}

type listSnapshotsInput struct {
	Customer string `json:"customer,omitempty" jsonschema:"filter to one customer (empty = all)"`
}

type snapshotHeader struct {
	ID          int64  `json:"id"`
	Customer    string `json:"customer"`
	CreatedAt   string `json:"created_at"`
	WindowStart string `json:"window_start"`
	WindowEnd   string `json:"window_end"`
	Matched     int    `json:"matched"`
	Stale       int    `json:"stale"`
	Absent      int    `json:"absent"`
}

type listSnapshotsOutput struct {
	Snapshots []snapshotHeader `json:"snapshots"`
	Total     int              `json:"total"`
}

type compareSnapshotsInput struct {
	OldID int64 `json:"old_id" jsonschema:"id of the earlier snapshot"`
	NewID int64 `json:"new_id" jsonschema:"id of the later snapshot"`
}

type compareSnapshotsOutput struct {
	StillAffected           int      `json:"still_affected"`
	Recovered               int      `json:"recovered"`
	NewIssues               int      `json:"new_issues"`
	AbsentToAbsent          int      `json:"absent_to_absent"`
	AbsentToStale           int      `json:"absent_to_stale"`
	AbsentToOK              int      `json:"absent_to_ok"`
	StaleToStale            int      `json:"stale_to_stale"`
	StaleToAbsent           int      `json:"stale_to_absent"`
	StaleToOK               int      `json:"stale_to_ok"`
	OldAbsentNowInTelemetry int      `json:"old_absent_now_in_telemetry"`
	Verdict                 string   `json:"verdict"`
	RecoveredLogins         []string `json:"recovered_logins,omitempty"`
}

// --- Tool handlers ---

func (s *Server) handleRunAnalysis(ctx context.Context, _ *sdkmcp.CallToolRequest, input runAnalysisInput) (*sdkmcp.CallToolResult, runAnalysisOutput, error) {
	if input.DataDir == "" {
		return nil, runAnalysisOutput{}, fmt.Errorf("data_dir is required")
	}

	opts := analysis.Options{
		DataDir:        input.DataDir,
		RulesPath:      input.RulesPath,
		ToleranceHours: input.ToleranceHours,
		DelayHours:     input.DelayHours,
		Customer:       input.Customer,
	}
	if input.Save {
		st, err := store.Open(s.StorePath)
		if err != nil {
			return nil, runAnalysisOutput{}, fmt.Errorf("open snapshot store: %w", err)
		}
		defer st.Close()
		opts.Store = st
	}

	out, err := analysis.Run(ctx, opts)
	if err != nil {
		return nil, runAnalysisOutput{}, fmt.Errorf("run_analysis: %w", err)
	}

	c := out.Result.Counters
	logging.New("mcp").Info("analysis complete",
		"customer", out.Customer, "matched", c.Matched, "stale", c.Stale, "absent", c.Absent)
	return nil, runAnalysisOutput{
		Customer:    out.Customer,
		SummaryPath: out.SummaryPath,
		CSVPath:     out.CSVPath,
		Counters: runCounters{
			RawRows: c.RawRows, WithActivity: c.WithActivity, InWindow: c.InWindow,
			Eligible: c.Eligible, Matched: c.Matched, Stale: c.Stale, Absent: c.Absent,
			Ineligible: c.Ineligible, Excluded: c.Excluded,
		},
		SnapshotID: out.SnapshotID,
	}, nil
}

func (s *Server) handleListSnapshots(ctx context.Context, _ *sdkmcp.CallToolRequest, input listSnapshotsInput) (*sdkmcp.CallToolResult, listSnapshotsOutput, error) {
	st, err := store.Open(s.StorePath)
	if err != nil {
		return nil, listSnapshotsOutput{}, fmt.Errorf("open snapshot store: %w", err)
	}
	defer st.Close()

	snaps, err := st.ListSnapshots(input.Customer)
	if err != nil {
		return nil, listSnapshotsOutput{}, err
	}

	out := listSnapshotsOutput{Total: len(snaps)}
	for _, sn := range snaps {
		out.Snapshots = append(out.Snapshots, snapshotHeader{
			ID:          sn.ID,
			Customer:    sn.Customer,
			CreatedAt:   sn.CreatedAt.Format("2006-01-02T15:04:05Z"),
			WindowStart: sn.WindowStart.Format("2006-01-02"),
			WindowEnd:   sn.WindowEnd.Format("2006-01-02"),
			Matched:     sn.Counters.Matched,
			Stale:       sn.Counters.Stale,
			Absent:      sn.Counters.Absent,
		})
	}
	return nil, out, nil
}

func (s *Server) handleCompareSnapshots(ctx context.Context, _ *sdkmcp.CallToolRequest, input compareSnapshotsInput) (*sdkmcp.CallToolResult, compareSnapshotsOutput, error) {
	st, err := store.Open(s.StorePath)
	if err != nil {
		return nil, compareSnapshotsOutput{}, fmt.Errorf("open snapshot store: %w", err)
	}
	defer st.Close()

	oldSnap, err := st.GetSnapshot(input.OldID)
	if err != nil {
		return nil, compareSnapshotsOutput{}, err
	}
	if oldSnap == nil {
		return nil, compareSnapshotsOutput{}, fmt.Errorf("snapshot %d not found", input.OldID)
	}
	newSnap, err := st.GetSnapshot(input.NewID)
	if err != nil {
		return nil, compareSnapshotsOutput{}, err
	}
	if newSnap == nil {
		return nil, compareSnapshotsOutput{}, fmt.Errorf("snapshot %d not found", input.NewID)
	}
	if oldSnap.Customer != newSnap.Customer {
		return nil, compareSnapshotsOutput{}, fmt.Errorf(
			"snapshots belong to different customers: %s vs %s", oldSnap.Customer, newSnap.Customer)
	}

	d := snapshot.Compare(oldSnap, newSnap)
	return nil, compareSnapshotsOutput{
		StillAffected:           len(d.StillAffected),
		Recovered:               len(d.Recovered),
		NewIssues:               len(d.NewIssues),
		AbsentToAbsent:          d.AbsentToAbsent,
		AbsentToStale:           d.AbsentToStale,
		AbsentToOK:              d.AbsentToOK,
		StaleToStale:            d.StaleToStale,
		StaleToAbsent:           d.StaleToAbsent,
		StaleToOK:               d.StaleToOK,
		OldAbsentNowInTelemetry: d.OldAbsentNowInTelemetry,
		Verdict:                 d.Verdict(),
		RecoveredLogins:         d.Recovered,
	}, nil
}
