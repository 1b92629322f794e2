// Package ledger reads the activity-report CSV: one row per user holding
// only that user's most recent known activity as of report generation.
package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"seatrecon/internal/logging"
	"seatrecon/internal/telemetry"
)

// Entry is one parsed ledger row.
type Entry struct {
	Login      string
	LastActive time.Time // zero when the row reported "None" or nothing
	RawSurface string
	ReportTime time.Time
}

// HasActivity reports whether the row carried a real activity timestamp.
func (e Entry) HasActivity() bool { return !e.LastActive.IsZero() }

// ActivityDay returns the activity calendar date (YYYY-MM-DD).
func (e Entry) ActivityDay() string {
	return e.LastActive.UTC().Format("2006-01-02")
}

// Report is the parsed ledger.
type Report struct {
	Entries []Entry
	// RawRows counts every data row, including rows skipped for missing
	// or unparseable fields; denominators use this.
	RawRows int
	// GeneratedAt is the report generation time from the first non-empty
	// Report Time column.
	GeneratedAt time.Time
}

var requiredColumns = []string{"Login", "Last Activity At", "Last Surface Used", "Report Time"}

// ParseFile reads an activity-report CSV from disk.
func ParseFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()
	rep, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("ledger %s: %w", path, err)
	}
	return rep, nil
}

// Parse reads the ledger CSV. Rows with an unparseable activity timestamp
// are kept in RawRows but carry a zero LastActive, so they are counted yet
// excluded from window classification.
func Parse(rd io.Reader) (*Report, error) {
	cr := csv.NewReader(rd)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, want := range requiredColumns {
		if _, ok := col[want]; !ok {
			return nil, fmt.Errorf("missing required column %q", want)
		}
	}

	log := logging.New("ledger")
	rep := &Report{}
	field := func(row []string, name string) string {
		i := col[name]
		if i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A mangled row is a data defect, not a reason to abort.
			log.Warn("skipping malformed ledger row", "error", err)
			rep.RawRows++
			continue
		}
		rep.RawRows++

		e := Entry{
			Login:      field(row, "Login"),
			RawSurface: field(row, "Last Surface Used"),
		}

		if raw := field(row, "Last Activity At"); raw != "" && !strings.EqualFold(raw, "none") {
			ts, ok := telemetry.NormalizeTimestamp(raw)
			if !ok {
				log.Warn("unparseable activity timestamp", "login", e.Login, "value", raw)
			} else {
				e.LastActive = ts
			}
		}

		if raw := field(row, "Report Time"); raw != "" {
			if ts, ok := telemetry.NormalizeTimestamp(raw); ok {
				e.ReportTime = ts
				if rep.GeneratedAt.IsZero() {
					rep.GeneratedAt = ts
				}
			}
		}

		rep.Entries = append(rep.Entries, e)
	}
	return rep, nil
}
