// Package telemetry ingests the NDJSON usage export and builds the per-user
// activity index the matcher runs against. The index is a deliberately
// coarse fingerprint: de-duplicated second-granularity sampling timestamps
// per user, the client observed at each, and a running interaction total.
package telemetry

import (
	"sort"
	"strings"
	"time"

	"seatrecon/internal/rules"
	"seatrecon/internal/surface"
)

// Event is one observation extracted from a telemetry record: one user, one
// day, one client. Immutable once created.
type Event struct {
	User         string
	Day          string // YYYY-MM-DD
	Client       surface.Canonical
	SampledAt    time.Time // zero when the record carried no sampling time
	Interactions int
}

// Window is the inclusive calendar-date range the export declares.
type Window struct {
	StartDay time.Time
	EndDay   time.Time
}

// UserActivity aggregates everything the index knows about one user.
type UserActivity struct {
	// Timestamps maps each normalized sampling time to the canonical
	// surface string observed there. Map semantics de-duplicate.
	Timestamps map[time.Time]string
	// Days is the set of calendar days (YYYY-MM-DD) with any record.
	Days map[string]bool
	// Interactions is the summed user-initiated interaction count.
	Interactions int
}

// Index is the per-user activity fingerprint for one reconciliation run.
type Index struct {
	users     map[string]*UserActivity
	window    Window
	hasWindow bool
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{users: make(map[string]*UserActivity)}
}

// Add folds one event into the index.
func (ix *Index) Add(ev Event) {
	if ev.User == "" {
		return
	}
	ua := ix.users[ev.User]
	if ua == nil {
		ua = &UserActivity{
			Timestamps: make(map[time.Time]string),
			Days:       make(map[string]bool),
		}
		ix.users[ev.User] = ua
	}
	if !ev.SampledAt.IsZero() {
		ua.Timestamps[ev.SampledAt] = ev.Client.String()
	}
	if ev.Day != "" {
		ua.Days[ev.Day] = true
	}
	ua.Interactions += ev.Interactions
}

// SetWindow records the declared report window. First writer wins; the
// window is expected to be consistent across all records of one export.
func (ix *Index) SetWindow(w Window) {
	if !ix.hasWindow {
		ix.window = w
		ix.hasWindow = true
	}
}

// Window returns the declared report window, if any record carried one.
func (ix *Index) Window() (Window, bool) {
	return ix.window, ix.hasWindow
}

// User returns the activity for one login.
func (ix *Index) User(login string) (*UserActivity, bool) {
	ua, ok := ix.users[login]
	return ua, ok
}

// Has reports whether the user appears anywhere in telemetry.
func (ix *Index) Has(login string) bool {
	_, ok := ix.users[login]
	return ok
}

// Len returns the number of distinct users.
func (ix *Index) Len() int { return len(ix.users) }

// UsersThrough counts distinct users with at least one record on or before
// the given day (YYYY-MM-DD).
func (ix *Index) UsersThrough(day string) int {
	n := 0
	for _, ua := range ix.users {
		for d := range ua.Days {
			if d <= day {
				n++
				break
			}
		}
	}
	return n
}

// Interactions returns the summed interaction count for a login, zero when
// the user is absent.
func (ix *Index) Interactions(login string) int {
	if ua, ok := ix.users[login]; ok {
		return ua.Interactions
	}
	return 0
}

// LatestTimestamp returns the most recent sampling time for a login.
func (ix *Index) LatestTimestamp(login string) (time.Time, bool) {
	ua, ok := ix.users[login]
	if !ok || len(ua.Timestamps) == 0 {
		return time.Time{}, false
	}
	var latest time.Time
	for ts := range ua.Timestamps {
		if ts.After(latest) {
			latest = ts
		}
	}
	return latest, true
}

// Merge folds another index into this one. Union of timestamp sets, union
// of day sets, sum of interactions: commutative, so shard merge order does
// not affect the result.
func (ix *Index) Merge(other *Index) {
	for login, oua := range other.users {
		ua := ix.users[login]
		if ua == nil {
			ix.users[login] = oua
			continue
		}
		for ts, client := range oua.Timestamps {
			ua.Timestamps[ts] = client
		}
		for d := range oua.Days {
			ua.Days[d] = true
		}
		ua.Interactions += oua.Interactions
	}
	if other.hasWindow {
		ix.SetWindow(other.window)
	}
}

// Logins returns all logins in sorted order, for deterministic iteration.
func (ix *Index) Logins() []string {
	out := make([]string, 0, len(ix.users))
	for login := range ix.users {
		out = append(out, login)
	}
	sort.Strings(out)
	return out
}

// NormalizeTimestamp parses an export timestamp and strips sub-second
// precision so timestamps from both sources compare at one-second
// granularity. Accepts RFC 3339 with or without fractional seconds, and
// the zoneless "2006-01-02T15:04:05" form some exports emit.
func NormalizeTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC().Truncate(time.Second), true
	}
	if t, err := time.Parse("2006-01-02T15:04:05", strings.TrimSuffix(s, "Z")); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}

// parseDay parses a YYYY-MM-DD calendar date as a UTC midnight instant.
func parseDay(s string) (time.Time, bool) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// canonicalClient assembles the canonical surface for one totals_by_ide
// entry. Telemetry reports the pieces structurally, so this renormalizes
// through the same rules the ledger surfaces go through.
func canonicalClient(ide, ideVersion, plugin, pluginVersion string, r *rules.Rules) surface.Canonical {
	parts := []string{strings.ToLower(ide)}
	if ideVersion != "" {
		parts = append(parts, ideVersion)
	}
	if plugin != "" {
		parts = append(parts, plugin)
	}
	if pluginVersion != "" {
		parts = append(parts, pluginVersion)
	}
	return surface.Normalize(strings.Join(parts, "/"), r)
}
