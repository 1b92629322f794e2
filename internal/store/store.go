// Package store persists reconciliation snapshots in SQLite so runs for
// the same customer can be compared over time. The source files are never
// stored; a snapshot keeps the run's counters, its discrepancy set, and
// the telemetry login roster needed for recovery checks.
package store

import (
	"time"

	"seatrecon/internal/reconcile"
)

// DefaultDBPath is where the CLI keeps its snapshot database.
const DefaultDBPath = ".seatrecon/seatrecon.db"

// Snapshot is one persisted reconciliation run.
type Snapshot struct {
	ID        int64
	Customer  string
	CreatedAt time.Time

	WindowStart time.Time
	WindowEnd   time.Time
	GeneratedAt time.Time

	Counters      reconcile.Counters
	Discrepancies []reconcile.Discrepancy

	// TelemetryLogins is every login seen anywhere in the run's telemetry
	// export. Cohort tracking uses it to tell "recovered in telemetry"
	// apart from "dropped out of the ledger".
	TelemetryLogins []string
}

// Store is the snapshot persistence interface.
type Store interface {
	// SaveSnapshot persists a run and returns its id.
	SaveSnapshot(snap *Snapshot) (int64, error)
	// GetSnapshot returns a snapshot with its discrepancies and telemetry
	// roster, or nil when the id is unknown.
	GetSnapshot(id int64) (*Snapshot, error)
	// ListSnapshots returns snapshot headers (no discrepancies or roster),
	// oldest first. Empty customer lists every snapshot.
	ListSnapshots(customer string) ([]*Snapshot, error)
	Close() error
}
