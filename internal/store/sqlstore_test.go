package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"seatrecon/internal/reconcile"
)

func openTemp(t *testing.T) *SqlStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "seatrecon.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleSnapshot(customer string, createdAt time.Time) *Snapshot {
	return &Snapshot{
		Customer:    customer,
		CreatedAt:   createdAt,
		WindowStart: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2025, 12, 13, 0, 0, 0, 0, time.UTC),
		GeneratedAt: time.Date(2025, 12, 17, 20, 15, 5, 0, time.UTC),
		Counters: reconcile.Counters{
			RawRows: 100, WithActivity: 80, InWindow: 60,
			Eligible: 50, Matched: 40, Stale: 6, Absent: 4,
		},
		Discrepancies: []reconcile.Discrepancy{
			{
				Login:             "alice",
				Disposition:       reconcile.OutcomeStale,
				LastActivityAt:    time.Date(2025, 12, 11, 9, 0, 0, 0, time.UTC),
				NearestTelemetry:  time.Date(2025, 12, 8, 9, 0, 0, 0, time.UTC),
				LatestTelemetry:   time.Date(2025, 12, 8, 9, 0, 0, 0, time.UTC),
				RawSurface:        "vscode/1.101.2/copilot-chat/0.28.1",
				ReportGeneratedAt: time.Date(2025, 12, 17, 20, 15, 5, 0, time.UTC),
			},
			{
				Login:             "bob",
				Disposition:       reconcile.OutcomeAbsent,
				LastActivityAt:    time.Date(2025, 12, 12, 9, 0, 0, 0, time.UTC),
				RawSurface:        "jetbrains-iu/252.100.1",
				ReportGeneratedAt: time.Date(2025, 12, 17, 20, 15, 5, 0, time.UTC),
			},
		},
		TelemetryLogins: []string{"alice", "carol"},
	}
}

func TestSaveAndGetSnapshot(t *testing.T) {
	s := openTemp(t)
	want := sampleSnapshot("acme", time.Date(2025, 12, 17, 21, 0, 0, 0, time.UTC))

	id, err := s.SaveSnapshot(want)
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero id")
	}

	got, err := s.GetSnapshot(id)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if got == nil {
		t.Fatal("snapshot not found")
	}
	want.ID = id
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot round-trip mismatch (-want +got):\n%s", diff)
	}
	// Absent discrepancy keeps its zero telemetry timestamps.
	if !got.Discrepancies[1].NearestTelemetry.IsZero() {
		t.Errorf("absent discrepancy gained a nearest timestamp: %+v", got.Discrepancies[1])
	}
}

func TestGetSnapshot_UnknownID(t *testing.T) {
	s := openTemp(t)
	got, err := s.GetSnapshot(42)
	if err != nil {
		t.Fatalf("GetSnapshot: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown id, got %+v", got)
	}
}

func TestListSnapshots(t *testing.T) {
	s := openTemp(t)
	base := time.Date(2025, 12, 17, 21, 0, 0, 0, time.UTC)
	for i, customer := range []string{"acme", "acme", "globex"} {
		if _, err := s.SaveSnapshot(sampleSnapshot(customer, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("SaveSnapshot %d: %v", i, err)
		}
	}

	all, err := s.ListSnapshots("")
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("all snapshots = %d, want 3", len(all))
	}
	// Headers only.
	if len(all[0].Discrepancies) != 0 || len(all[0].TelemetryLogins) != 0 {
		t.Errorf("list returned full snapshot bodies: %+v", all[0])
	}

	acme, err := s.ListSnapshots("acme")
	if err != nil {
		t.Fatalf("ListSnapshots(acme): %v", err)
	}
	if len(acme) != 2 {
		t.Fatalf("acme snapshots = %d, want 2", len(acme))
	}
	if !acme[0].CreatedAt.Before(acme[1].CreatedAt) {
		t.Errorf("snapshots not ordered oldest first: %v, %v", acme[0].CreatedAt, acme[1].CreatedAt)
	}
}

func TestOpen_ReopensExistingStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seatrecon.db")

	s1, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id, err := s1.SaveSnapshot(sampleSnapshot("acme", time.Now().UTC()))
	if err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.GetSnapshot(id)
	if err != nil || got == nil {
		t.Fatalf("GetSnapshot after reopen: %v, %v", got, err)
	}
}
