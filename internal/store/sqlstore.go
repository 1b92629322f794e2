package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"seatrecon/internal/reconcile"

	_ "modernc.org/sqlite"
)

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and runs migrations. Creates
// the parent directory if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	s := &SqlStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqlStore) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableCount == 0 {
		// Fresh database.
		if _, err := s.db.Exec(schemaV1); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", currentSchemaVersion); err != nil {
			return fmt.Errorf("set schema version: %w", err)
		}
		return nil
	}

	var v int
	if err := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != currentSchemaVersion {
		return fmt.Errorf("unknown schema version %d", v)
	}
	return nil
}

// Close closes the database connection.
func (s *SqlStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot persists one run atomically.
func (s *SqlStore) SaveSnapshot(snap *Snapshot) (int64, error) {
	if snap == nil {
		return 0, errors.New("snapshot is nil")
	}
	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	c := snap.Counters
	res, err := tx.Exec(
		`INSERT INTO snapshots(customer, created_at, window_start, window_end, generated_at,
		        raw_rows, with_activity, before_window, in_window, after_window,
		        excluded, ineligible, eligible, matched, stale, absent)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.Customer, fmtTime(createdAt), fmtTime(snap.WindowStart), fmtTime(snap.WindowEnd),
		fmtTime(snap.GeneratedAt),
		c.RawRows, c.WithActivity, c.BeforeWindow, c.InWindow, c.AfterWindow,
		c.Excluded, c.Ineligible, c.Eligible, c.Matched, c.Stale, c.Absent,
	)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}

	for _, d := range snap.Discrepancies {
		_, err := tx.Exec(
			`INSERT INTO discrepancies(snapshot_id, login, disposition, last_activity_at,
			        nearest_telemetry, latest_telemetry, raw_surface, report_generated_at)
			 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
			id, d.Login, string(d.Disposition), fmtTime(d.LastActivityAt),
			fmtTime(d.NearestTelemetry), fmtTime(d.LatestTelemetry), d.RawSurface,
			fmtTime(d.ReportGeneratedAt),
		)
		if err != nil {
			return 0, fmt.Errorf("insert discrepancy %s: %w", d.Login, err)
		}
	}
	for _, login := range snap.TelemetryLogins {
		if _, err := tx.Exec(
			"INSERT OR IGNORE INTO telemetry_logins(snapshot_id, login) VALUES(?, ?)",
			id, login,
		); err != nil {
			return 0, fmt.Errorf("insert telemetry login %s: %w", login, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit snapshot tx: %w", err)
	}
	return id, nil
}

// GetSnapshot returns a full snapshot, or nil if the id is unknown.
func (s *SqlStore) GetSnapshot(id int64) (*Snapshot, error) {
	var snap Snapshot
	var createdAt, winStart, winEnd, genAt string
	c := &snap.Counters
	err := s.db.QueryRow(
		`SELECT id, customer, created_at, window_start, window_end, generated_at,
		        raw_rows, with_activity, before_window, in_window, after_window,
		        excluded, ineligible, eligible, matched, stale, absent
		 FROM snapshots WHERE id = ?`, id,
	).Scan(&snap.ID, &snap.Customer, &createdAt, &winStart, &winEnd, &genAt,
		&c.RawRows, &c.WithActivity, &c.BeforeWindow, &c.InWindow, &c.AfterWindow,
		&c.Excluded, &c.Ineligible, &c.Eligible, &c.Matched, &c.Stale, &c.Absent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	snap.CreatedAt = parseTime(createdAt)
	snap.WindowStart = parseTime(winStart)
	snap.WindowEnd = parseTime(winEnd)
	snap.GeneratedAt = parseTime(genAt)

	if snap.Discrepancies, err = s.loadDiscrepancies(id); err != nil {
		return nil, err
	}
	if snap.TelemetryLogins, err = s.loadTelemetryLogins(id); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *SqlStore) loadDiscrepancies(snapshotID int64) ([]reconcile.Discrepancy, error) {
	rows, err := s.db.Query(
		`SELECT login, disposition, last_activity_at, nearest_telemetry, latest_telemetry,
		        raw_surface, report_generated_at
		 FROM discrepancies WHERE snapshot_id = ? ORDER BY login`, snapshotID,
	)
	if err != nil {
		return nil, fmt.Errorf("list discrepancies: %w", err)
	}
	defer rows.Close()
	var list []reconcile.Discrepancy
	for rows.Next() {
		var d reconcile.Discrepancy
		var disposition string
		var lastActive, nearest, latest, surface, generated sql.NullString
		if err := rows.Scan(&d.Login, &disposition, &lastActive, &nearest, &latest, &surface, &generated); err != nil {
			return nil, fmt.Errorf("scan discrepancy: %w", err)
		}
		d.Disposition = reconcile.Outcome(disposition)
		d.LastActivityAt = parseTime(nullStr(lastActive))
		d.NearestTelemetry = parseTime(nullStr(nearest))
		d.LatestTelemetry = parseTime(nullStr(latest))
		d.RawSurface = nullStr(surface)
		d.ReportGeneratedAt = parseTime(nullStr(generated))
		list = append(list, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list discrepancies: %w", err)
	}
	return list, nil
}

func (s *SqlStore) loadTelemetryLogins(snapshotID int64) ([]string, error) {
	rows, err := s.db.Query(
		"SELECT login FROM telemetry_logins WHERE snapshot_id = ?", snapshotID,
	)
	if err != nil {
		return nil, fmt.Errorf("list telemetry logins: %w", err)
	}
	defer rows.Close()
	var logins []string
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, fmt.Errorf("scan telemetry login: %w", err)
		}
		logins = append(logins, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list telemetry logins: %w", err)
	}
	sort.Strings(logins)
	return logins, nil
}

// ListSnapshots returns snapshot headers, oldest first.
func (s *SqlStore) ListSnapshots(customer string) ([]*Snapshot, error) {
	q := `SELECT id, customer, created_at, window_start, window_end, generated_at,
	             raw_rows, with_activity, before_window, in_window, after_window,
	             excluded, ineligible, eligible, matched, stale, absent
	      FROM snapshots`
	var args []any
	if customer != "" {
		q += " WHERE customer = ?"
		args = append(args, customer)
	}
	q += " ORDER BY created_at, id"

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()
	var list []*Snapshot
	for rows.Next() {
		var snap Snapshot
		var createdAt, winStart, winEnd, genAt string
		c := &snap.Counters
		if err := rows.Scan(&snap.ID, &snap.Customer, &createdAt, &winStart, &winEnd, &genAt,
			&c.RawRows, &c.WithActivity, &c.BeforeWindow, &c.InWindow, &c.AfterWindow,
			&c.Excluded, &c.Ineligible, &c.Eligible, &c.Matched, &c.Stale, &c.Absent); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.CreatedAt = parseTime(createdAt)
		snap.WindowStart = parseTime(winStart)
		snap.WindowEnd = parseTime(winEnd)
		snap.GeneratedAt = parseTime(genAt)
		list = append(list, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return list, nil
}

// fmtTime stores times as RFC 3339 UTC strings; the zero value stores as
// the empty string.
func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}
