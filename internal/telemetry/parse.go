package telemetry

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"seatrecon/internal/logging"
	"seatrecon/internal/rules"

	"golang.org/x/sync/errgroup"
)

// record mirrors one line of the NDJSON export.
type record struct {
	ReportStartDay string      `json:"report_start_day"`
	ReportEndDay   string      `json:"report_end_day"`
	Day            string      `json:"day"`
	UserLogin      string      `json:"user_login"`
	Interactions   int         `json:"user_initiated_interaction_count"`
	TotalsByIDE    []ideTotals `json:"totals_by_ide"`
}

type ideTotals struct {
	IDE                    string         `json:"ide"`
	LastKnownIDEVersion    sampledVersion `json:"last_known_ide_version"`
	LastKnownPluginVersion sampledVersion `json:"last_known_plugin_version"`
}

type sampledVersion struct {
	IDEVersion    string `json:"ide_version"`
	Plugin        string `json:"plugin"`
	PluginVersion string `json:"plugin_version"`
	SampledAt     string `json:"sampled_at"`
}

// SplitConcatenated splits a line holding multiple concatenated JSON
// objects on "}{" boundaries. A well-formed single object passes through
// unchanged. The heuristic assumes the export never embeds "}{" inside a
// string value, which holds for this schema.
func SplitConcatenated(line string) []string {
	if !strings.Contains(line, "}{") {
		return []string{line}
	}
	parts := strings.Split(line, "}{")
	out := make([]string, len(parts))
	for i, p := range parts {
		switch i {
		case 0:
			out[i] = p + "}"
		case len(parts) - 1:
			out[i] = "{" + p
		default:
			out[i] = "{" + p + "}"
		}
	}
	return out
}

// parseRecord expands one export record into events and folds them into
// the index. A record with no totals_by_ide still registers the user and
// their interactions.
func parseRecord(rec record, r *rules.Rules, ix *Index) {
	if rec.ReportStartDay != "" && rec.ReportEndDay != "" {
		start, okStart := parseDay(rec.ReportStartDay)
		end, okEnd := parseDay(rec.ReportEndDay)
		if okStart && okEnd {
			ix.SetWindow(Window{StartDay: start, EndDay: end})
		}
	}
	if rec.UserLogin == "" {
		return
	}

	if len(rec.TotalsByIDE) == 0 {
		ix.Add(Event{User: rec.UserLogin, Day: rec.Day, Interactions: rec.Interactions})
		return
	}

	for i, tot := range rec.TotalsByIDE {
		client := canonicalClient(
			tot.IDE,
			tot.LastKnownIDEVersion.IDEVersion,
			tot.LastKnownPluginVersion.Plugin,
			tot.LastKnownPluginVersion.PluginVersion,
			r,
		)
		// The plugin's sampling time is the better activity signal; fall
		// back to the IDE's when the plugin carries none.
		raw := tot.LastKnownPluginVersion.SampledAt
		if raw == "" {
			raw = tot.LastKnownIDEVersion.SampledAt
		}
		var ev Event
		ev.User = rec.UserLogin
		ev.Day = rec.Day
		ev.Client = client
		if ts, ok := NormalizeTimestamp(raw); ok {
			ev.SampledAt = ts
		}
		if i == 0 {
			// Interactions are per record, not per IDE entry.
			ev.Interactions = rec.Interactions
		}
		ix.Add(ev)
	}
}

// ParseFile reads one NDJSON export file into a fresh partial index.
// Malformed JSON objects are logged and skipped; the file never aborts
// the run.
func ParseFile(path string, r *rules.Rules) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open telemetry file: %w", err)
	}
	defer f.Close()

	log := logging.New("telemetry")
	ix := NewIndex()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		for _, js := range SplitConcatenated(line) {
			var rec record
			if err := json.Unmarshal([]byte(js), &rec); err != nil {
				log.Warn("skipping malformed record", "file", path, "line", lineNo, "error", err)
				continue
			}
			parseRecord(rec, r, ix)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return ix, nil
}

// IngestFiles parses all telemetry files and merges the partial indexes.
// Files shard across workers; each contributes an independent partial
// index, and the merge is commutative, so the result is deterministic.
// A file that cannot be read is logged and skipped (offline batch tool:
// skip-and-warn, no retries).
func IngestFiles(ctx context.Context, paths []string, r *rules.Rules, workers int) (*Index, error) {
	if workers < 1 {
		workers = 1
	}
	log := logging.New("telemetry")

	partials := make([]*Index, len(paths))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, path := range paths {
		g.Go(func() error {
			ix, err := ParseFile(path, r)
			if err != nil {
				log.Warn("skipping unreadable telemetry file", "file", path, "error", err)
				return nil
			}
			partials[i] = ix
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := NewIndex()
	for _, p := range partials {
		if p != nil {
			merged.Merge(p)
		}
	}
	return merged, nil
}
