// Package snapshot compares persisted reconciliation runs. A single run
// says who is affected today; two runs say whether the same seats stay
// affected (a systematic pipeline problem) or the set churns (transient
// export lag).
package snapshot

import (
	"sort"

	"seatrecon/internal/reconcile"
	"seatrecon/internal/store"
)

// Diff is the comparison of two snapshots of the same customer.
type Diff struct {
	Old *store.Snapshot
	New *store.Snapshot

	StillAffected []string
	Recovered     []string
	NewIssues     []string

	// Disposition transitions for users present in the old snapshot.
	AbsentToAbsent int
	AbsentToStale  int
	AbsentToOK     int
	StaleToStale   int
	StaleToAbsent  int
	StaleToOK      int

	// OldAbsentNowInTelemetry counts previously absent users whose login
	// appears anywhere in the new run's telemetry export, whatever their
	// new disposition. This is the signal that data eventually arrived.
	OldAbsentNowInTelemetry int
}

// Compare diffs two snapshots, oldest first.
func Compare(oldSnap, newSnap *store.Snapshot) *Diff {
	d := &Diff{Old: oldSnap, New: newSnap}

	oldByLogin := byLogin(oldSnap.Discrepancies)
	newByLogin := byLogin(newSnap.Discrepancies)
	newTelemetry := toSet(newSnap.TelemetryLogins)

	for login, oldDisp := range oldByLogin {
		newDisp, still := newByLogin[login]
		if still {
			d.StillAffected = append(d.StillAffected, login)
		} else {
			d.Recovered = append(d.Recovered, login)
		}
		switch oldDisp {
		case reconcile.OutcomeAbsent:
			switch {
			case !still:
				d.AbsentToOK++
			case newDisp == reconcile.OutcomeAbsent:
				d.AbsentToAbsent++
			case newDisp == reconcile.OutcomeStale:
				d.AbsentToStale++
			}
			if newTelemetry[login] {
				d.OldAbsentNowInTelemetry++
			}
		case reconcile.OutcomeStale:
			switch {
			case !still:
				d.StaleToOK++
			case newDisp == reconcile.OutcomeStale:
				d.StaleToStale++
			case newDisp == reconcile.OutcomeAbsent:
				d.StaleToAbsent++
			}
		}
	}
	for login := range newByLogin {
		if _, was := oldByLogin[login]; !was {
			d.NewIssues = append(d.NewIssues, login)
		}
	}

	sort.Strings(d.StillAffected)
	sort.Strings(d.Recovered)
	sort.Strings(d.NewIssues)
	return d
}

// OverlapRate is the share of old discrepancies still present in the new
// snapshot. ok is false when the old snapshot had none.
func (d *Diff) OverlapRate() (float64, bool) {
	total := len(d.StillAffected) + len(d.Recovered)
	if total == 0 {
		return 0, false
	}
	return float64(len(d.StillAffected)) / float64(total), true
}

// Verdict classifies the overlap: the same seats affected run after run
// point at a systematic problem, heavy churn points at transient lag.
func (d *Diff) Verdict() string {
	rate, ok := d.OverlapRate()
	switch {
	case !ok:
		return "no prior discrepancies to compare"
	case rate >= 0.7:
		return "systematic: the same seats remain affected"
	case rate <= 0.3:
		return "transient: the affected set churns between runs"
	default:
		return "mixed: some seats persist, others churn"
	}
}

func byLogin(ds []reconcile.Discrepancy) map[string]reconcile.Outcome {
	m := make(map[string]reconcile.Outcome, len(ds))
	for _, d := range ds {
		m[d.Login] = d.Disposition
	}
	return m
}

func toSet(logins []string) map[string]bool {
	m := make(map[string]bool, len(logins))
	for _, l := range logins {
		m[l] = true
	}
	return m
}
