package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"seatrecon/internal/format"
	"seatrecon/internal/snapshot"
	"seatrecon/internal/store"
)

var cohortsFlags struct {
	customer string
	dbPath   string
}

var cohortsCmd = &cobra.Command{
	Use:   "cohorts",
	Short: "Track absent-seat cohorts across a customer's snapshots",
	Long: `Group each snapshot's absent seats into a cohort and follow it through
every later snapshot: how many are still absent, how many turned stale or
healthy, and how many reappeared in telemetry. Recovery rates that climb
with elapsed days indicate delayed data rather than lost seats.`,
	RunE: runCohorts,
}

func init() {
	f := cohortsCmd.Flags()
	f.StringVar(&cohortsFlags.customer, "customer", "", "Customer to track (required)")
	f.StringVar(&cohortsFlags.dbPath, "db", store.DefaultDBPath, "Store DB path")
	_ = cohortsCmd.MarkFlagRequired("customer")
}

func runCohorts(cmd *cobra.Command, _ []string) error {
	st, err := store.Open(cohortsFlags.dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	headers, err := st.ListSnapshots(cohortsFlags.customer)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	if len(headers) < 2 {
		return fmt.Errorf("need at least two snapshots for %q, have %d", cohortsFlags.customer, len(headers))
	}

	snaps := make([]*store.Snapshot, 0, len(headers))
	for _, h := range headers {
		full, err := st.GetSnapshot(h.ID)
		if err != nil {
			return fmt.Errorf("load snapshot %d: %w", h.ID, err)
		}
		snaps = append(snaps, full)
	}

	cohorts := snapshot.Cohorts(snaps)
	w := cmd.OutOrStdout()
	if len(cohorts) == 0 {
		fmt.Fprintln(w, "No absent seats in any snapshot.")
		return nil
	}

	for _, c := range cohorts {
		fmt.Fprintf(w, "Cohort from snapshot #%d (%s): %d absent seats\n",
			c.OriginID, format.FmtDay(c.OriginDate), len(c.Users))

		t := format.NewTable(format.ASCII)
		t.Header("Snapshot", "Days later", "Still absent", "Stale", "OK", "In telemetry", "Recovered")
		t.Columns(
			format.ColumnConfig{Number: 2, Align: format.AlignRight},
			format.ColumnConfig{Number: 3, Align: format.AlignRight},
			format.ColumnConfig{Number: 4, Align: format.AlignRight},
			format.ColumnConfig{Number: 5, Align: format.AlignRight},
			format.ColumnConfig{Number: 6, Align: format.AlignRight},
			format.ColumnConfig{Number: 7, Align: format.AlignRight},
		)
		for _, p := range c.Tracking {
			t.Row(fmt.Sprintf("#%d", p.SnapshotID), p.DaysLater,
				p.StillAbsent, p.NowStale, p.NowOK, p.NowInTelemetry,
				format.FmtPercent(p.RecoveredShare))
		}
		fmt.Fprintln(w, t.String())
	}

	recovery := snapshot.RecoveryByDay(cohorts)
	days := make([]int, 0, len(recovery))
	for d := range recovery {
		days = append(days, d)
	}
	sort.Ints(days)

	fmt.Fprintln(w, "Recovery by elapsed days (all cohorts):")
	rt := format.NewTable(format.ASCII)
	rt.Header("Days later", "Recovered")
	rt.Columns(
		format.ColumnConfig{Number: 1, Align: format.AlignRight},
		format.ColumnConfig{Number: 2, Align: format.AlignRight},
	)
	for _, d := range days {
		rt.Row(d, format.FmtPercent(recovery[d]))
	}
	fmt.Fprintln(w, rt.String())
	return nil
}
