package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"seatrecon/internal/format"
	"seatrecon/internal/store"
)

var snapshotsFlags struct {
	customer string
	dbPath   string
}

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List persisted reconciliation snapshots",
	RunE:  runSnapshots,
}

func init() {
	f := snapshotsCmd.Flags()
	f.StringVar(&snapshotsFlags.customer, "customer", "", "Filter by customer (default: all)")
	f.StringVar(&snapshotsFlags.dbPath, "db", store.DefaultDBPath, "Store DB path")
}

func runSnapshots(cmd *cobra.Command, _ []string) error {
	st, err := store.Open(snapshotsFlags.dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	snaps, err := st.ListSnapshots(snapshotsFlags.customer)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	if len(snaps) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No snapshots. Run 'seatrecon analyze --save' to create one.")
		return nil
	}

	t := format.NewTable(format.ASCII)
	t.Header("ID", "Customer", "Created", "Window", "Eligible", "Stale", "Absent")
	t.Columns(
		format.ColumnConfig{Number: 1, Align: format.AlignRight},
		format.ColumnConfig{Number: 5, Align: format.AlignRight},
		format.ColumnConfig{Number: 6, Align: format.AlignRight},
		format.ColumnConfig{Number: 7, Align: format.AlignRight},
	)
	for _, s := range snaps {
		window := fmt.Sprintf("%s .. %s", format.FmtDay(s.WindowStart), format.FmtDay(s.WindowEnd))
		t.Row(s.ID, s.Customer, format.FmtTimestamp(s.CreatedAt), window,
			format.FmtCount(s.Counters.Eligible),
			format.FmtCount(s.Counters.Stale),
			format.FmtCount(s.Counters.Absent))
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.String())
	return nil
}
