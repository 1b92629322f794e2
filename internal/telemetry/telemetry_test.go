package telemetry

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"seatrecon/internal/rules"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeTimestamp(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"2025-12-13T11:35:21Z", "2025-12-13T11:35:21Z", true},
		{"2025-12-13T11:35:21.1234567Z", "2025-12-13T11:35:21Z", true},
		{"2025-12-13T11:35:21", "2025-12-13T11:35:21Z", true},
		{"2025-12-13T11:35:21+02:00", "2025-12-13T09:35:21Z", true},
		{"", "", false},
		{"yesterday", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeTimestamp(tc.in)
		if ok != tc.ok {
			t.Errorf("NormalizeTimestamp(%q) ok = %v, want %v", tc.in, ok, tc.ok)
			continue
		}
		if ok && got.Format(time.RFC3339) != tc.want {
			t.Errorf("NormalizeTimestamp(%q) = %s, want %s", tc.in, got.Format(time.RFC3339), tc.want)
		}
	}
}

func TestSplitConcatenated(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"single object", `{"a":1}`, []string{`{"a":1}`}},
		{"two objects", `{"a":1}{"b":2}`, []string{`{"a":1}`, `{"b":2}`}},
		{"three objects", `{"a":1}{"b":2}{"c":3}`, []string{`{"a":1}`, `{"b":2}`, `{"c":3}`}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(tc.want, SplitConcatenated(tc.in)); diff != "" {
				t.Errorf("mismatch:\n%s", diff)
			}
		})
	}
}

const sampleLine = `{"report_start_day":"2025-12-01","report_end_day":"2025-12-15","day":"2025-12-12","user_login":"alice","user_initiated_interaction_count":7,"totals_by_ide":[{"ide":"vscode","last_known_ide_version":{"ide_version":"1.101.2","sampled_at":"2025-12-12T09:59:59.123Z"},"last_known_plugin_version":{"plugin":"copilot-chat","plugin_version":"0.28.1","sampled_at":"2025-12-12T10:00:00.500Z"}}]}`

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.json")
	content := sampleLine + "\n" +
		`{"day":"2025-12-13","user_login":"bob","user_initiated_interaction_count":2,"totals_by_ide":[]}` + "\n" +
		"not json at all\n" +
		`{"day":"2025-12-13","user_login":"alice","user_initiated_interaction_count":3,"totals_by_ide":[{"ide":"intellij","last_known_ide_version":{"ide_version":"243.26053.27","sampled_at":"2025-12-13T08:00:00Z"},"last_known_plugin_version":{"plugin":"copilot-intellij","plugin_version":"1.5.57-243","sampled_at":""}}]}` + "\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	ix, err := ParseFile(path, rules.Default())
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}

	w, ok := ix.Window()
	if !ok {
		t.Fatal("window not captured")
	}
	if w.StartDay.Format("2006-01-02") != "2025-12-01" || w.EndDay.Format("2006-01-02") != "2025-12-15" {
		t.Errorf("window = %s..%s", w.StartDay, w.EndDay)
	}

	if ix.Len() != 2 {
		t.Fatalf("Len = %d, want 2 (malformed line skipped)", ix.Len())
	}

	alice, ok := ix.User("alice")
	if !ok {
		t.Fatal("alice missing")
	}
	// Plugin sampled_at preferred; sub-second precision stripped. The
	// intellij entry has no plugin timestamp, so the IDE one is used.
	wantTS := []string{"2025-12-12T10:00:00Z", "2025-12-13T08:00:00Z"}
	var gotTS []string
	for ts := range alice.Timestamps {
		gotTS = append(gotTS, ts.Format(time.RFC3339))
	}
	if len(gotTS) != 2 {
		t.Fatalf("alice timestamps = %v, want %v", gotTS, wantTS)
	}
	if alice.Interactions != 10 {
		t.Errorf("alice interactions = %d, want 10", alice.Interactions)
	}
	if !alice.Days["2025-12-12"] || !alice.Days["2025-12-13"] {
		t.Errorf("alice days = %v", alice.Days)
	}

	ts, _ := NormalizeTimestamp("2025-12-12T10:00:00Z")
	if got := alice.Timestamps[ts]; got != "vscode/1.101.2/copilot-chat/0.28.1" {
		t.Errorf("client at %s = %q", ts, got)
	}

	bob, ok := ix.User("bob")
	if !ok {
		t.Fatal("bob missing: a record without totals_by_ide still registers the user")
	}
	if len(bob.Timestamps) != 0 || bob.Interactions != 2 {
		t.Errorf("bob = %+v", bob)
	}
}

func TestParseFile_ConcatenatedObjects(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "export.json")
	line := `{"report_start_day":"2025-12-01","report_end_day":"2025-12-15","day":"2025-12-12","user_login":"u1","totals_by_ide":[]}{"day":"2025-12-12","user_login":"u2","totals_by_ide":[]}`
	if err := os.WriteFile(path, []byte(line+"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	ix, err := ParseFile(path, rules.Default())
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if !ix.Has("u1") || !ix.Has("u2") {
		t.Errorf("logins = %v, want u1 and u2", ix.Logins())
	}
}

func TestIngestFiles_MergeIsCommutative(t *testing.T) {
	dir := t.TempDir()
	r := rules.Default()

	fileA := filepath.Join(dir, "a.json")
	fileB := filepath.Join(dir, "b.json")
	lineA := `{"report_start_day":"2025-12-01","report_end_day":"2025-12-15","day":"2025-12-10","user_login":"alice","user_initiated_interaction_count":4,"totals_by_ide":[{"ide":"vscode","last_known_ide_version":{"ide_version":"1.101.2","sampled_at":"2025-12-10T12:00:00Z"},"last_known_plugin_version":{}}]}`
	lineB := `{"day":"2025-12-11","user_login":"alice","user_initiated_interaction_count":6,"totals_by_ide":[{"ide":"vscode","last_known_ide_version":{"ide_version":"1.101.2","sampled_at":"2025-12-11T12:00:00Z"},"last_known_plugin_version":{}}]}`
	if err := os.WriteFile(fileA, []byte(lineA+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(fileB, []byte(lineB+"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	forward, err := IngestFiles(context.Background(), []string{fileA, fileB}, r, 2)
	if err != nil {
		t.Fatalf("IngestFiles: %v", err)
	}
	reverse, err := IngestFiles(context.Background(), []string{fileB, fileA}, r, 1)
	if err != nil {
		t.Fatalf("IngestFiles: %v", err)
	}

	for _, ix := range []*Index{forward, reverse} {
		ua, ok := ix.User("alice")
		if !ok {
			t.Fatal("alice missing")
		}
		if len(ua.Timestamps) != 2 {
			t.Errorf("timestamps = %d, want 2", len(ua.Timestamps))
		}
		if ua.Interactions != 10 {
			t.Errorf("interactions = %d, want 10", ua.Interactions)
		}
	}

	if _, ok := forward.Window(); !ok {
		t.Error("window should survive the merge")
	}
}

func TestIngestFiles_UnreadableFileSkipped(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	if err := os.WriteFile(good, []byte(sampleLine+"\n"), 0600); err != nil {
		t.Fatal(err)
	}

	ix, err := IngestFiles(context.Background(), []string{filepath.Join(dir, "missing.json"), good}, rules.Default(), 2)
	if err != nil {
		t.Fatalf("IngestFiles should skip-and-warn, got error: %v", err)
	}
	if !ix.Has("alice") {
		t.Error("good file should still be ingested")
	}
}

func TestIndex_UsersThrough(t *testing.T) {
	ix := NewIndex()
	ix.Add(Event{User: "early", Day: "2025-12-05"})
	ix.Add(Event{User: "late", Day: "2025-12-14"})
	ix.Add(Event{User: "both", Day: "2025-12-05"})
	ix.Add(Event{User: "both", Day: "2025-12-14"})

	if got := ix.UsersThrough("2025-12-10"); got != 2 {
		t.Errorf("UsersThrough(2025-12-10) = %d, want 2", got)
	}
	if got := ix.UsersThrough("2025-12-14"); got != 3 {
		t.Errorf("UsersThrough(2025-12-14) = %d, want 3", got)
	}
}

func TestIndex_LatestTimestamp(t *testing.T) {
	ix := NewIndex()
	t1, _ := NormalizeTimestamp("2025-12-10T08:00:00Z")
	t2, _ := NormalizeTimestamp("2025-12-12T08:00:00Z")
	ix.Add(Event{User: "alice", Day: "2025-12-10", SampledAt: t1})
	ix.Add(Event{User: "alice", Day: "2025-12-12", SampledAt: t2})

	got, ok := ix.LatestTimestamp("alice")
	if !ok || !got.Equal(t2) {
		t.Errorf("LatestTimestamp = %v, %v", got, ok)
	}
	if _, ok := ix.LatestTimestamp("ghost"); ok {
		t.Error("absent user must not report a timestamp")
	}
}
