package report

import (
	"encoding/csv"
	"io"

	"seatrecon/internal/format"
	"seatrecon/internal/reconcile"
)

// csvHeader is the discrepancies CSV column order. The versions subcommand
// reads files in this shape back.
var csvHeader = []string{
	"Login",
	"Disposition",
	"Last Activity At",
	"Nearest Telemetry",
	"Latest Telemetry",
	"Last Surface Used",
	"Report Time",
}

// WriteDiscrepancies writes the discrepancy records as CSV. Zero timestamps
// render as empty cells.
func WriteDiscrepancies(w io.Writer, ds []reconcile.Discrepancy) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, d := range ds {
		row := []string{
			d.Login,
			string(d.Disposition),
			cell(format.FmtTimestamp(d.LastActivityAt)),
			cell(format.FmtTimestamp(d.NearestTelemetry)),
			cell(format.FmtTimestamp(d.LatestTelemetry)),
			d.RawSurface,
			cell(format.FmtTimestamp(d.ReportGeneratedAt)),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func cell(s string) string {
	if s == "-" {
		return ""
	}
	return s
}
