// Package reconcile classifies every ledger entry against the telemetry
// index: eligible entries inside the effective window come out as exactly
// one of matched, stale, or absent. Only stale and absent become
// discrepancies; matched is the quiet success case.
package reconcile

import (
	"fmt"
	"time"

	"seatrecon/internal/eligibility"
	"seatrecon/internal/ledger"
	"seatrecon/internal/logging"
	"seatrecon/internal/rules"
	"seatrecon/internal/surface"
	"seatrecon/internal/telemetry"
)

// Outcome is the terminal state of one ledger entry.
type Outcome string

const (
	// OutcomeNoActivity: row carried no usable activity timestamp.
	OutcomeNoActivity Outcome = "no_activity"
	// OutcomeBeforeWindow / OutcomeAfterWindow: activity outside the
	// effective analysis window; counted, never judged.
	OutcomeBeforeWindow Outcome = "before_window"
	OutcomeAfterWindow  Outcome = "after_window"
	// OutcomeExcluded: client family has no telemetry integration.
	OutcomeExcluded Outcome = "excluded"
	// OutcomeIneligible: client or extension below the version floor.
	OutcomeIneligible Outcome = "ineligible"
	// OutcomeMatched: telemetry timestamp within tolerance. Terminal
	// success; not emitted as a discrepancy.
	OutcomeMatched Outcome = "matched"
	// OutcomeStale: user present in telemetry, nearest timestamp beyond
	// tolerance.
	OutcomeStale Outcome = "stale"
	// OutcomeAbsent: user missing from telemetry entirely.
	OutcomeAbsent Outcome = "absent"
)

// IsDiscrepancy reports whether the outcome is emitted downstream.
func (o Outcome) IsDiscrepancy() bool {
	return o == OutcomeStale || o == OutcomeAbsent
}

// Evaluation is the full classification of one ledger entry, kept for
// aggregation; Discrepancy is the exported subset.
type Evaluation struct {
	Entry   ledger.Entry
	Surface surface.Canonical
	Outcome Outcome
	// Reason explains ineligibility.
	Reason string
	// Nearest and Diff are set when the matcher ran and found timestamps.
	Nearest time.Time
	Diff    time.Duration
	// Latest is the user's most recent telemetry timestamp, for display.
	Latest time.Time
	// Interactions is the user's summed telemetry interaction count.
	Interactions int
}

// Discrepancy is one reported reconciliation problem. Never mutated after
// creation; one per user per run at most.
type Discrepancy struct {
	Login             string
	Disposition       Outcome // OutcomeStale or OutcomeAbsent
	LastActivityAt    time.Time
	NearestTelemetry  time.Time // zero for absent users
	LatestTelemetry   time.Time // zero for absent users
	RawSurface        string
	ReportGeneratedAt time.Time
}

// Counters is the run's transparency ledger: every raw row lands in
// exactly one place.
type Counters struct {
	RawRows            int
	WithActivity       int
	BeforeWindow       int
	InWindow           int
	AfterWindow        int
	Excluded           int
	Ineligible         int
	Eligible           int
	Matched            int
	Stale              int
	Absent             int
	IneligibleByFamily map[string]int
}

// Result is everything one reconciliation pass produces.
type Result struct {
	Declared     telemetry.Window
	EffectiveEnd time.Time
	GeneratedAt  time.Time

	Evaluations   []Evaluation
	Discrepancies []Discrepancy
	Counters      Counters

	// TelemetryUsers / TelemetryUsersInWindow are distinct-user counts in
	// the export, total and restricted to the effective window.
	TelemetryUsers         int
	TelemetryUsersInWindow int
}

// Config holds the run parameters. ToleranceHours and DelayHours override
// the rule set's defaults when non-nil; an explicit zero means exact
// timestamp matching / no window trim.
type Config struct {
	Rules          *rules.Rules
	ToleranceHours *int
	DelayHours     *int
	// Now substitutes the clock when the ledger carries no generation
	// time; nil means time.Now.
	Now func() time.Time
}

func (c Config) tolerance() time.Duration {
	h := c.Rules.ToleranceHours
	if c.ToleranceHours != nil && *c.ToleranceHours >= 0 {
		h = *c.ToleranceHours
	}
	return time.Duration(h) * time.Hour
}

func (c Config) delay() time.Duration {
	h := c.Rules.ExportDelayHours
	if c.DelayHours != nil && *c.DelayHours >= 0 {
		h = *c.DelayHours
	}
	return time.Duration(h) * time.Hour
}

// Closest scans a user's timestamp set for the entry nearest to the report
// timestamp. Returns the nearest timestamp, the absolute difference, and
// whether any timestamp existed. Symmetric in time direction.
func Closest(report time.Time, timestamps map[time.Time]string) (time.Time, time.Duration, bool) {
	var nearest time.Time
	var minDiff time.Duration
	found := false
	for ts := range timestamps {
		diff := ts.Sub(report)
		if diff < 0 {
			diff = -diff
		}
		if !found || diff < minDiff {
			nearest, minDiff, found = ts, diff, true
		}
	}
	return nearest, minDiff, found
}

// EffectiveEnd trims the declared window end by the export population
// delay: entries more recent than generation minus delay are too fresh to
// be fairly judged.
func EffectiveEnd(declaredEnd, generatedAt time.Time, delay time.Duration) time.Time {
	cutoff := generatedAt.Add(-delay).UTC().Truncate(24 * time.Hour)
	if cutoff.Before(declaredEnd) {
		return cutoff
	}
	return declaredEnd
}

// Run performs one full reconciliation pass. The telemetry index must be
// completely populated before this is called: the matcher needs every
// timestamp the export holds for a user.
func Run(ix *telemetry.Index, rep *ledger.Report, cfg Config) (*Result, error) {
	declared, ok := ix.Window()
	if !ok {
		return nil, fmt.Errorf("telemetry export declares no report window; cannot reconcile without one")
	}

	log := logging.New("reconcile")

	generatedAt := rep.GeneratedAt
	if generatedAt.IsZero() {
		now := time.Now
		if cfg.Now != nil {
			now = cfg.Now
		}
		generatedAt = now().UTC()
		log.Warn("ledger carries no report time; using current time", "generated_at", generatedAt)
	}

	res := &Result{
		Declared:     declared,
		GeneratedAt:  generatedAt,
		EffectiveEnd: EffectiveEnd(declared.EndDay, generatedAt, cfg.delay()),
	}
	res.Counters.IneligibleByFamily = make(map[string]int)
	res.Counters.RawRows = rep.RawRows
	res.TelemetryUsers = ix.Len()
	res.TelemetryUsersInWindow = ix.UsersThrough(res.EffectiveEnd.Format("2006-01-02"))

	tolerance := cfg.tolerance()

	for _, entry := range rep.Entries {
		ev := evaluate(entry, ix, cfg.Rules, declared.StartDay, res.EffectiveEnd, tolerance)
		res.tally(ev)
		res.Evaluations = append(res.Evaluations, ev)

		if ev.Outcome.IsDiscrepancy() {
			res.Discrepancies = append(res.Discrepancies, Discrepancy{
				Login:             entry.Login,
				Disposition:       ev.Outcome,
				LastActivityAt:    entry.LastActive,
				NearestTelemetry:  ev.Nearest,
				LatestTelemetry:   ev.Latest,
				RawSurface:        entry.RawSurface,
				ReportGeneratedAt: entry.ReportTime,
			})
		}
	}

	return res, nil
}

// evaluate runs the per-entry state machine.
func evaluate(entry ledger.Entry, ix *telemetry.Index, r *rules.Rules, start, effectiveEnd time.Time, tolerance time.Duration) Evaluation {
	ev := Evaluation{
		Entry:        entry,
		Surface:      surface.Normalize(entry.RawSurface, r),
		Interactions: ix.Interactions(entry.Login),
	}

	if !entry.HasActivity() {
		ev.Outcome = OutcomeNoActivity
		return ev
	}

	day := entry.LastActive.UTC().Truncate(24 * time.Hour)
	switch {
	case day.Before(start):
		ev.Outcome = OutcomeBeforeWindow
		return ev
	case day.After(effectiveEnd):
		ev.Outcome = OutcomeAfterWindow
		return ev
	}

	// Rows with no parseable surface at all cannot have a telemetry
	// counterpart; they are excluded, like the placeholder families.
	if ev.Surface.Family == "" || r.IsExcludedFamily(ev.Surface.Family) {
		ev.Outcome = OutcomeExcluded
		return ev
	}

	if ok, reason := eligibility.Check(ev.Surface, r); !ok {
		ev.Outcome = OutcomeIneligible
		ev.Reason = reason
		return ev
	}

	ua, ok := ix.User(entry.Login)
	if !ok {
		ev.Outcome = OutcomeAbsent
		return ev
	}

	if latest, ok := ix.LatestTimestamp(entry.Login); ok {
		ev.Latest = latest
	}

	nearest, diff, found := Closest(entry.LastActive, ua.Timestamps)
	if !found {
		// The user appears in telemetry but the export recorded no
		// sampling time at all; nothing can corroborate the ledger
		// timestamp, so the entry is stale, not matched.
		ev.Outcome = OutcomeStale
		return ev
	}
	ev.Nearest = nearest
	ev.Diff = diff
	if diff <= tolerance {
		ev.Outcome = OutcomeMatched
	} else {
		ev.Outcome = OutcomeStale
	}
	return ev
}

func (r *Result) tally(ev Evaluation) {
	c := &r.Counters
	if ev.Outcome == OutcomeNoActivity {
		return
	}
	c.WithActivity++
	switch ev.Outcome {
	case OutcomeBeforeWindow:
		c.BeforeWindow++
		return
	case OutcomeAfterWindow:
		c.AfterWindow++
		return
	}
	c.InWindow++
	switch ev.Outcome {
	case OutcomeExcluded:
		c.Excluded++
	case OutcomeIneligible:
		c.Ineligible++
		c.IneligibleByFamily[ev.Surface.Family]++
	case OutcomeMatched:
		c.Eligible++
		c.Matched++
	case OutcomeStale:
		c.Eligible++
		c.Stale++
	case OutcomeAbsent:
		c.Eligible++
		c.Absent++
	}
}
