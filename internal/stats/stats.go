// Package stats folds a reconciliation result into the grouped counts the
// reports are built from: per family, per display category, per extension
// version, per calendar dimension, per engagement bucket, plus gap-day and
// interaction distributions.
//
// Every rate is discrepant over eligible-in-the-same-bucket. Ineligible and
// excluded entries are tallied for denominator display but never mix into a
// rate: "old version" and "eligible but missing" are different problems.
package stats

import (
	"fmt"
	"sort"
	"time"

	"seatrecon/internal/eligibility"
	"seatrecon/internal/reconcile"
	"seatrecon/internal/rules"
)

// Tally is one dimension bucket. Matched + Stale + Absent = Eligible.
type Tally struct {
	Eligible   int
	Matched    int
	Stale      int
	Absent     int
	Ineligible int
	Excluded   int
}

// Discrepant is the numerator of every rate.
func (t Tally) Discrepant() int { return t.Stale + t.Absent }

// Rate returns discrepant/eligible. ok is false when the bucket holds no
// eligible entries; callers omit such buckets rather than dividing by zero.
func (t Tally) Rate() (float64, bool) {
	if t.Eligible == 0 {
		return 0, false
	}
	return float64(t.Discrepant()) / float64(t.Eligible), true
}

// ExtensionCount is one extension name+version bucket, in release order.
type ExtensionCount struct {
	Name    string
	Version string
	Tally
}

// EngagementBucket is one interaction-volume band.
type EngagementBucket struct {
	Label string
	Lo    int
	Hi    int // -1 means unbounded
	Tally
}

// GapSide summarizes one direction of the stale gap distribution.
type GapSide struct {
	Count    int
	MeanDays float64
	MaxDays  float64
}

// GapStats splits stale entries by which side of the ledger timestamp the
// nearest telemetry sample fell on. Only stale entries with at least one
// telemetry timestamp contribute.
type GapStats struct {
	TelemetryOlder GapSide
	TelemetryNewer GapSide
}

// InteractionStats compares telemetry engagement between matched and stale
// users. Absent users carry no telemetry and are not represented.
type InteractionStats struct {
	MatchedUsers int
	MatchedMean  float64
	StaleUsers   int
	StaleMean    float64
}

// Stats is the full aggregate view of one reconciliation run.
type Stats struct {
	ByFamily   map[string]*Tally
	ByCategory map[string]*Tally

	// ByExtension follows the curated release order, restricted to
	// versions actually present in the ledger; observed versions missing
	// from the curated list trail in descending version order.
	ByExtension []ExtensionCount

	// Calendar dimensions, from the ledger activity timestamp. Only
	// in-window entries contribute.
	ByDate    map[string]*Tally // YYYY-MM-DD
	ByWeekday map[time.Weekday]*Tally
	ByHour    [24]Tally

	Engagement   []EngagementBucket
	Gaps         GapStats
	Interactions InteractionStats
}

// engagementBands are the fixed interaction-volume bands. A user's
// engagement is their summed telemetry interaction count over the export.
var engagementBands = []EngagementBucket{
	{Label: "0", Lo: 0, Hi: 0},
	{Label: "1-5", Lo: 1, Hi: 5},
	{Label: "6-20", Lo: 6, Hi: 20},
	{Label: "21-50", Lo: 21, Hi: 50},
	{Label: "51-100", Lo: 51, Hi: 100},
	{Label: "101-500", Lo: 101, Hi: 500},
	{Label: "500+", Lo: 501, Hi: -1},
}

// Compute rebuilds the aggregate view from scratch. Nothing is persisted
// between runs.
func Compute(res *reconcile.Result, r *rules.Rules) *Stats {
	s := &Stats{
		ByFamily:   make(map[string]*Tally),
		ByCategory: make(map[string]*Tally),
		ByDate:     make(map[string]*Tally),
		ByWeekday:  make(map[time.Weekday]*Tally),
	}
	s.Engagement = make([]EngagementBucket, len(engagementBands))
	copy(s.Engagement, engagementBands)

	byExt := make(map[string]*ExtensionCount)

	var gapOlder, gapNewer []float64
	var matchedSum, staleSum int

	for _, ev := range res.Evaluations {
		switch ev.Outcome {
		case reconcile.OutcomeNoActivity, reconcile.OutcomeBeforeWindow, reconcile.OutcomeAfterWindow:
			continue
		}

		fam := ev.Surface.Family
		if fam == "" {
			fam = "unparseable"
		}
		ft := tallyFor(s.ByFamily, fam)
		ct := tallyFor(s.ByCategory, r.Category(fam))

		switch ev.Outcome {
		case reconcile.OutcomeExcluded:
			ft.Excluded++
			ct.Excluded++
			continue
		case reconcile.OutcomeIneligible:
			ft.Ineligible++
			ct.Ineligible++
			continue
		}

		// Eligible in-window entry from here on.
		tallies := []*Tally{ft, ct}
		ts := ev.Entry.LastActive
		tallies = append(tallies,
			tallyFor(s.ByDate, ts.Format("2006-01-02")),
			tallyFor(s.ByWeekday, ts.Weekday()),
			&s.ByHour[ts.Hour()],
			&bandFor(s.Engagement, ev.Interactions).Tally)
		if ev.Surface.ExtensionName != "" && ev.Surface.ExtensionVersion != "" {
			key := ev.Surface.ExtensionName + "/" + ev.Surface.ExtensionVersion
			ec := byExt[key]
			if ec == nil {
				ec = &ExtensionCount{Name: ev.Surface.ExtensionName, Version: ev.Surface.ExtensionVersion}
				byExt[key] = ec
			}
			tallies = append(tallies, &ec.Tally)
		}

		for _, t := range tallies {
			t.Eligible++
			switch ev.Outcome {
			case reconcile.OutcomeMatched:
				t.Matched++
			case reconcile.OutcomeStale:
				t.Stale++
			case reconcile.OutcomeAbsent:
				t.Absent++
			}
		}

		switch ev.Outcome {
		case reconcile.OutcomeMatched:
			s.Interactions.MatchedUsers++
			matchedSum += ev.Interactions
		case reconcile.OutcomeStale:
			s.Interactions.StaleUsers++
			staleSum += ev.Interactions
			if !ev.Nearest.IsZero() {
				days := ev.Nearest.Sub(ts).Hours() / 24
				if days < 0 {
					gapOlder = append(gapOlder, -days)
				} else {
					gapNewer = append(gapNewer, days)
				}
			}
		}
	}

	s.ByExtension = orderExtensions(byExt, r)
	s.Gaps.TelemetryOlder = summarizeGaps(gapOlder)
	s.Gaps.TelemetryNewer = summarizeGaps(gapNewer)
	if s.Interactions.MatchedUsers > 0 {
		s.Interactions.MatchedMean = float64(matchedSum) / float64(s.Interactions.MatchedUsers)
	}
	if s.Interactions.StaleUsers > 0 {
		s.Interactions.StaleMean = float64(staleSum) / float64(s.Interactions.StaleUsers)
	}
	return s
}

func tallyFor[K comparable](m map[K]*Tally, k K) *Tally {
	t := m[k]
	if t == nil {
		t = &Tally{}
		m[k] = t
	}
	return t
}

func bandFor(bands []EngagementBucket, n int) *EngagementBucket {
	for i := range bands {
		if n >= bands[i].Lo && (bands[i].Hi < 0 || n <= bands[i].Hi) {
			return &bands[i]
		}
	}
	// Bands cover all non-negative counts; a negative count cannot occur.
	return &bands[len(bands)-1]
}

// orderExtensions lays the observed extension buckets out in curated
// release order. Observed versions the curated list does not know trail
// in descending version order, so a new release still reports before the
// rule file catches up.
func orderExtensions(byExt map[string]*ExtensionCount, r *rules.Rules) []ExtensionCount {
	names := make(map[string]bool)
	for _, ec := range byExt {
		names[ec.Name] = true
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	var out []ExtensionCount
	for _, name := range sorted {
		taken := make(map[string]bool)
		for _, v := range r.ExtensionReleases[name] {
			if ec := byExt[name+"/"+v]; ec != nil {
				out = append(out, *ec)
				taken[v] = true
			}
		}
		var rest []ExtensionCount
		for _, ec := range byExt {
			if ec.Name == name && !taken[ec.Version] {
				rest = append(rest, *ec)
			}
		}
		sort.Slice(rest, func(i, j int) bool {
			vi := eligibility.ParseVersion(rest[i].Version)
			vj := eligibility.ParseVersion(rest[j].Version)
			if c := eligibility.CompareVersions(vi, vj); c != 0 {
				return c > 0
			}
			return rest[i].Version < rest[j].Version
		})
		out = append(out, rest...)
	}
	return out
}

// FormatRate renders a rate for display, or a dash when the bucket holds
// no eligible entries.
func FormatRate(t Tally) string {
	rate, ok := t.Rate()
	if !ok {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", rate*100)
}

// summarizeGaps reduces one side's gap magnitudes (in days) to a summary.
func summarizeGaps(days []float64) GapSide {
	g := GapSide{Count: len(days)}
	if g.Count == 0 {
		return g
	}
	var sum float64
	for _, d := range days {
		sum += d
		if d > g.MaxDays {
			g.MaxDays = d
		}
	}
	g.MeanDays = sum / float64(g.Count)
	return g
}
