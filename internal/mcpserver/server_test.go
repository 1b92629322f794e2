package mcpserver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const telemetryFixture = `{"report_start_day":"2025-12-01","report_end_day":"2025-12-15","day":"2025-12-10","user_login":"alice","user_initiated_interaction_count":12,"totals_by_ide":[{"ide":"vscode","last_known_ide_version":{"ide_version":"1.101.2","sampled_at":"2025-12-10T09:30:00Z"},"last_known_plugin_version":{"plugin":"copilot-chat","plugin_version":"0.28.1","sampled_at":"2025-12-10T09:35:00Z"}}]}
`

const ledgerFixture = `Login,Last Activity At,Last Surface Used,Report Time
alice,2025-12-10T10:00:00Z,vscode/1.101.2/copilot-chat/0.28.1,2025-12-17T20:15:05Z
bob,2025-12-10T10:00:00Z,vscode/1.101.2/copilot-chat/0.28.1,2025-12-17T20:15:05Z
`

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, "export.json"), []byte(telemetryFixture), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "acme-seat-activity.csv"), []byte(ledgerFixture), 0o644); err != nil {
		t.Fatal(err)
	}
	srv := NewServer(filepath.Join(t.TempDir(), "seatrecon.db"))
	return srv, dataDir
}

func TestRunAnalysisTool(t *testing.T) {
	srv, dataDir := newTestServer(t)

	_, out, err := srv.handleRunAnalysis(context.Background(), nil, runAnalysisInput{
		DataDir: dataDir,
		Save:    true,
	})
	if err != nil {
		t.Fatalf("run_analysis: %v", err)
	}
	if out.Customer != "acme" {
		t.Errorf("customer = %q", out.Customer)
	}
	if out.Counters.Matched != 1 || out.Counters.Absent != 1 {
		t.Errorf("counters = %+v", out.Counters)
	}
	if out.SnapshotID == 0 {
		t.Error("save=true did not persist a snapshot")
	}
	if _, err := os.Stat(out.SummaryPath); err != nil {
		t.Errorf("summary missing: %v", err)
	}
}

func TestRunAnalysisTool_RequiresDataDir(t *testing.T) {
	srv, _ := newTestServer(t)
	_, _, err := srv.handleRunAnalysis(context.Background(), nil, runAnalysisInput{})
	if err == nil || !strings.Contains(err.Error(), "data_dir") {
		t.Fatalf("expected data_dir error, got %v", err)
	}
}

func TestListAndCompareSnapshotsTools(t *testing.T) {
	srv, dataDir := newTestServer(t)
	ctx := context.Background()

	_, first, err := srv.handleRunAnalysis(ctx, nil, runAnalysisInput{DataDir: dataDir, Save: true})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	// SaveSnapshot keyed by created_at; keep the runs apart.
	time.Sleep(1100 * time.Millisecond)
	_, second, err := srv.handleRunAnalysis(ctx, nil, runAnalysisInput{DataDir: dataDir, Save: true})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	_, list, err := srv.handleListSnapshots(ctx, nil, listSnapshotsInput{Customer: "acme"})
	if err != nil {
		t.Fatalf("list_snapshots: %v", err)
	}
	if list.Total != 2 {
		t.Fatalf("snapshots = %d, want 2", list.Total)
	}

	_, cmpOut, err := srv.handleCompareSnapshots(ctx, nil, compareSnapshotsInput{
		OldID: first.SnapshotID,
		NewID: second.SnapshotID,
	})
	if err != nil {
		t.Fatalf("compare_snapshots: %v", err)
	}
	// Identical inputs: bob stays absent both times.
	if cmpOut.StillAffected != 1 || cmpOut.Recovered != 0 || cmpOut.AbsentToAbsent != 1 {
		t.Errorf("compare output = %+v", cmpOut)
	}
	if !strings.HasPrefix(cmpOut.Verdict, "systematic") {
		t.Errorf("verdict = %q", cmpOut.Verdict)
	}
}

func TestCompareSnapshotsTool_UnknownID(t *testing.T) {
	srv, _ := newTestServer(t)
	_, _, err := srv.handleCompareSnapshots(context.Background(), nil, compareSnapshotsInput{OldID: 1, NewID: 2})
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
