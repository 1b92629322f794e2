package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const telemetryFixture = `{"report_start_day":"2025-12-01","report_end_day":"2025-12-15","day":"2025-12-10","user_login":"alice","user_initiated_interaction_count":12,"totals_by_ide":[{"ide":"vscode","last_known_ide_version":{"ide_version":"1.101.2","sampled_at":"2025-12-10T09:30:00Z"},"last_known_plugin_version":{"plugin":"copilot-chat","plugin_version":"0.28.1","sampled_at":"2025-12-10T09:35:00Z"}}]}
`

const ledgerFixture = `Login,Last Activity At,Last Surface Used,Report Time
alice,2025-12-10T10:00:00Z,vscode/1.101.2/copilot-chat/0.28.1,2025-12-17T20:15:05Z
bob,2025-12-10T10:00:00Z,vscode/1.101.2/copilot-chat/0.28.1,2025-12-17T20:15:05Z
carol,None,vscode/1.101.2,2025-12-17T20:15:05Z
`

func runCLI(t *testing.T, args ...string) string {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("%v: %v\n%s", args, err, buf.String())
	}
	return buf.String()
}

func TestAnalyzeSnapshotsCompare(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "export-1.json"), []byte(telemetryFixture), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "acme-seat-activity-2025-12-17.csv"), []byte(ledgerFixture), 0o644); err != nil {
		t.Fatal(err)
	}
	dbPath := filepath.Join(dir, "store.db")

	out := runCLI(t, "analyze", dir, "--save", "--db", dbPath)
	if !strings.Contains(out, "Customer: acme") {
		t.Errorf("missing customer line:\n%s", out)
	}
	if !strings.Contains(out, "Snapshot:      #1") {
		t.Errorf("missing snapshot line:\n%s", out)
	}
	for _, name := range []string{"acme-summary.md", "acme-discrepancies.csv"} {
		if _, err := os.Stat(filepath.Join(dir, "output", name)); err != nil {
			t.Errorf("output file %s: %v", name, err)
		}
	}

	out = runCLI(t, "analyze", dir, "--save", "--db", dbPath)
	if !strings.Contains(out, "Snapshot:      #2") {
		t.Errorf("second run should create snapshot 2:\n%s", out)
	}

	out = runCLI(t, "snapshots", "--db", dbPath, "--customer", "acme")
	if !strings.Contains(out, "acme") || !strings.Contains(out, "2025-12-01") {
		t.Errorf("snapshots listing:\n%s", out)
	}

	// Identical runs: bob stays absent, so the diff is fully systematic.
	out = runCLI(t, "compare", "1", "2", "--db", dbPath)
	if !strings.Contains(out, "Verdict: systematic") {
		t.Errorf("compare verdict:\n%s", out)
	}
	if !strings.Contains(out, "absent -> absent") {
		t.Errorf("compare transitions:\n%s", out)
	}
}

func TestCompare_UnknownSnapshot(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "store.db")
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs([]string{"compare", "7", "8", "--db", dbPath})
	if err := rootCmd.Execute(); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("err = %v", err)
	}
}

func TestRulesCommand(t *testing.T) {
	out := runCLI(t, "rules")
	for _, want := range []string{"Version floors", "vscode", "intellij", "Excluded families:"} {
		if !strings.Contains(out, want) {
			t.Errorf("rules output missing %q:\n%s", want, out)
		}
	}
}

func TestVersionTable(t *testing.T) {
	all := map[string]int{"1.101.2": 30, "1.102.0": 25, "1.99.0": 5}
	disc := map[string]int{"1.101.2": 3}
	got := versionTable(all, disc, 20)

	if strings.Contains(got, "1.99.0") {
		t.Errorf("version below min-count should be hidden:\n%s", got)
	}
	if !strings.Contains(got, "10.0%") {
		t.Errorf("missing rate for 1.101.2:\n%s", got)
	}
	if strings.Index(got, "1.102.0") > strings.Index(got, "1.101.2") {
		t.Errorf("versions should be newest first:\n%s", got)
	}
}

func TestTrailingVersion(t *testing.T) {
	if got := trailingVersion("copilot-chat/0.28.1"); got != "0.28.1" {
		t.Errorf("got %q", got)
	}
	if got := trailingVersion("1.101.2"); got != "1.101.2" {
		t.Errorf("got %q", got)
	}
}

func TestConsolidateTelemetry(t *testing.T) {
	dir := t.TempDir()
	exports := filepath.Join(dir, "dashboard_exports")
	if err := os.MkdirAll(exports, 0o755); err != nil {
		t.Fatal(err)
	}
	first := `{"user_login":"alice","day":"2025-12-10","user_initiated_interaction_count":1}
{"user_login":"bob","day":"2025-12-10","user_initiated_interaction_count":2}
`
	second := `{"user_login":"alice","day":"2025-12-10","user_initiated_interaction_count":9}
{"user_login":"alice","day":"2025-12-11","user_initiated_interaction_count":3}
`
	if err := os.WriteFile(filepath.Join(exports, "a.json"), []byte(first), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(exports, "b.json"), []byte(second), 0o644); err != nil {
		t.Fatal(err)
	}

	outPath := filepath.Join(dir, "merged.json")
	n, err := consolidateTelemetry(exports, outPath)
	if err != nil {
		t.Fatalf("consolidateTelemetry: %v", err)
	}
	if n != 3 {
		t.Errorf("records = %d, want 3 (alice 12-10 deduplicated)", n)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	// The later file wins for the duplicated key.
	if !strings.Contains(string(data), `"user_initiated_interaction_count":9`) {
		t.Errorf("later export should win:\n%s", data)
	}
	if strings.Contains(string(data), `"user_initiated_interaction_count":1`) {
		t.Errorf("earlier duplicate should be dropped:\n%s", data)
	}
}

func TestConsolidateLedger(t *testing.T) {
	dir := t.TempDir()
	reports := filepath.Join(dir, "activity_reports")
	if err := os.MkdirAll(reports, 0o755); err != nil {
		t.Fatal(err)
	}
	first := `Login,Last Activity At,Last Surface Used,Report Time
alice,2025-12-10T10:00:00Z,vscode/1.101.2,2025-12-11T00:00:00Z
bob,2025-12-10T11:00:00Z,vscode/1.101.2,2025-12-11T00:00:00Z
`
	second := `Login,Last Activity At,Last Surface Used,Report Time
alice,2025-12-10T10:00:00Z,vscode/1.101.2,2025-12-12T00:00:00Z
alice,2025-12-11T09:00:00Z,vscode/1.102.0,2025-12-12T00:00:00Z
`
	if err := os.WriteFile(filepath.Join(reports, "a.csv"), []byte(first), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(reports, "b.csv"), []byte(second), 0o644); err != nil {
		t.Fatal(err)
	}

	outPath := filepath.Join(dir, "merged.csv")
	n, err := consolidateLedger(reports, outPath)
	if err != nil {
		t.Fatalf("consolidateLedger: %v", err)
	}
	// alice keeps both distinct timestamps; the repeated one deduplicates.
	if n != 3 {
		t.Errorf("rows = %d, want 3", n)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Errorf("lines = %d, want header + 3 rows:\n%s", len(lines), data)
	}
	if !strings.Contains(string(data), "1.102.0") {
		t.Errorf("second timestamp row missing:\n%s", data)
	}
}
