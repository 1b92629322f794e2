package snapshot

import (
	"sort"
	"time"

	"seatrecon/internal/reconcile"
	"seatrecon/internal/store"
)

// CohortPoint is one cohort's state at one later snapshot.
type CohortPoint struct {
	SnapshotID int64
	Date       time.Time
	DaysLater  int

	StillAbsent     int
	NowStale        int
	NowOK           int
	NowInTelemetry  int
	RecoveredShare  float64 // (NowOK + NowStale) / cohort size
	InTelemetryRate float64
}

// Cohort tracks one snapshot's absent users through every later snapshot.
// A user counts as recovered the moment they stop being absent; appearing
// in a later export's telemetry is tracked separately since a seat can be
// back in telemetry yet still stale.
type Cohort struct {
	OriginID   int64
	OriginDate time.Time
	Users      []string
	Tracking   []CohortPoint
}

// Cohorts builds recovery cohorts from a customer's snapshots, oldest
// first. Snapshots must be full (with discrepancies and telemetry
// rosters). Fewer than two snapshots yield no cohorts.
func Cohorts(snaps []*store.Snapshot) []Cohort {
	if len(snaps) < 2 {
		return nil
	}

	type indexed struct {
		snap      *store.Snapshot
		absent    map[string]bool
		stale     map[string]bool
		telemetry map[string]bool
	}
	idx := make([]indexed, len(snaps))
	for i, s := range snaps {
		ix := indexed{
			snap:      s,
			absent:    make(map[string]bool),
			stale:     make(map[string]bool),
			telemetry: toSet(s.TelemetryLogins),
		}
		for _, d := range s.Discrepancies {
			switch d.Disposition {
			case reconcile.OutcomeAbsent:
				ix.absent[d.Login] = true
			case reconcile.OutcomeStale:
				ix.stale[d.Login] = true
			}
		}
		idx[i] = ix
	}

	var cohorts []Cohort
	// The newest snapshot has nothing later to track against.
	for i, origin := range idx[:len(idx)-1] {
		if len(origin.absent) == 0 {
			continue
		}
		c := Cohort{
			OriginID:   origin.snap.ID,
			OriginDate: origin.snap.CreatedAt,
			Users:      sortedKeys(origin.absent),
		}
		for j := i + 1; j < len(idx); j++ {
			later := idx[j]
			p := CohortPoint{
				SnapshotID: later.snap.ID,
				Date:       later.snap.CreatedAt,
				DaysLater:  daysBetween(origin.snap.CreatedAt, later.snap.CreatedAt),
			}
			for _, u := range c.Users {
				switch {
				case later.absent[u]:
					p.StillAbsent++
				case later.stale[u]:
					p.NowStale++
				default:
					p.NowOK++
				}
				if later.telemetry[u] {
					p.NowInTelemetry++
				}
			}
			size := float64(len(c.Users))
			p.RecoveredShare = float64(p.NowOK+p.NowStale) / size
			p.InTelemetryRate = float64(p.NowInTelemetry) / size
			c.Tracking = append(c.Tracking, p)
		}
		cohorts = append(cohorts, c)
	}
	return cohorts
}

// RecoveryByDay averages cohort recovery shares by elapsed days, across
// all cohorts that have a data point at that distance.
func RecoveryByDay(cohorts []Cohort) map[int]float64 {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, c := range cohorts {
		for _, p := range c.Tracking {
			sums[p.DaysLater] += p.RecoveredShare
			counts[p.DaysLater]++
		}
	}
	avg := make(map[int]float64, len(sums))
	for day, sum := range sums {
		avg[day] = sum / float64(counts[day])
	}
	return avg
}

func daysBetween(a, b time.Time) int {
	d := int(b.Sub(a).Hours() / 24)
	if d < 0 {
		return -d
	}
	return d
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
