package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"seatrecon/internal/format"
	"seatrecon/internal/snapshot"
	"seatrecon/internal/store"
)

var compareFlags struct {
	dbPath string
}

var compareCmd = &cobra.Command{
	Use:   "compare <old-id> <new-id>",
	Short: "Compare two snapshots of the same customer",
	Long: `Compare two persisted snapshots, oldest first, and report which seats are
still affected, which recovered, and which are newly affected. The verdict
distinguishes a systematic problem (the same seats stay affected) from
transient lag (the affected set churns between runs).`,
	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

func init() {
	compareCmd.Flags().StringVar(&compareFlags.dbPath, "db", store.DefaultDBPath, "Store DB path")
}

func runCompare(cmd *cobra.Command, args []string) error {
	oldID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("old snapshot id %q: %w", args[0], err)
	}
	newID, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return fmt.Errorf("new snapshot id %q: %w", args[1], err)
	}

	st, err := store.Open(compareFlags.dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	oldSnap, err := st.GetSnapshot(oldID)
	if err != nil {
		return fmt.Errorf("load snapshot %d: %w", oldID, err)
	}
	if oldSnap == nil {
		return fmt.Errorf("snapshot %d not found", oldID)
	}
	newSnap, err := st.GetSnapshot(newID)
	if err != nil {
		return fmt.Errorf("load snapshot %d: %w", newID, err)
	}
	if newSnap == nil {
		return fmt.Errorf("snapshot %d not found", newID)
	}
	if oldSnap.Customer != newSnap.Customer {
		return fmt.Errorf("snapshots belong to different customers (%s vs %s)", oldSnap.Customer, newSnap.Customer)
	}

	d := snapshot.Compare(oldSnap, newSnap)
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Customer: %s\n", oldSnap.Customer)
	fmt.Fprintf(w, "Old: #%d (%s)   New: #%d (%s)\n\n",
		oldSnap.ID, format.FmtTimestamp(oldSnap.CreatedAt),
		newSnap.ID, format.FmtTimestamp(newSnap.CreatedAt))

	t := format.NewTable(format.ASCII)
	t.Header("Set", "Seats")
	t.Columns(format.ColumnConfig{Number: 2, Align: format.AlignRight})
	t.Row("Still affected", len(d.StillAffected))
	t.Row("Recovered", len(d.Recovered))
	t.Row("Newly affected", len(d.NewIssues))
	fmt.Fprintln(w, t.String())

	tt := format.NewTable(format.ASCII)
	tt.Header("Transition", "Seats")
	tt.Columns(format.ColumnConfig{Number: 2, Align: format.AlignRight})
	tt.Row("absent -> absent", d.AbsentToAbsent)
	tt.Row("absent -> stale", d.AbsentToStale)
	tt.Row("absent -> ok", d.AbsentToOK)
	tt.Row("stale -> stale", d.StaleToStale)
	tt.Row("stale -> absent", d.StaleToAbsent)
	tt.Row("stale -> ok", d.StaleToOK)
	fmt.Fprintln(w, tt.String())

	fmt.Fprintf(w, "Previously absent, now in telemetry: %d\n", d.OldAbsentNowInTelemetry)
	if rate, ok := d.OverlapRate(); ok {
		fmt.Fprintf(w, "Overlap: %s\n", format.FmtPercent(rate))
	}
	fmt.Fprintf(w, "Verdict: %s\n", d.Verdict())
	return nil
}
