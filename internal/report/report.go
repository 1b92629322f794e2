// Package report renders one reconciliation run into its output artifacts:
// a Markdown summary, a discrepancies CSV, and the terminal tables the CLI
// prints after a run.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"seatrecon/internal/format"
	"seatrecon/internal/reconcile"
	"seatrecon/internal/stats"
)

// Input bundles everything the renderers need for one run.
type Input struct {
	Customer string
	Result   *reconcile.Result
	Stats    *stats.Stats
}

// CustomerName derives the customer identifier from an activity-ledger
// filename, e.g. "acme-seat-activity-2025-12-17.csv" yields "acme". When
// the filename does not follow that shape the base name without extension
// is used.
func CustomerName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.Index(base, "-seat-activity"); i > 0 {
		return base[:i]
	}
	return base
}

// WriteFiles writes the summary and discrepancies CSV into dir, named
// after the customer. Returns the paths written.
func WriteFiles(dir string, in Input) (summaryPath, csvPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output dir: %w", err)
	}

	summaryPath = filepath.Join(dir, in.Customer+"-summary.md")
	sf, err := os.Create(summaryPath)
	if err != nil {
		return "", "", fmt.Errorf("create summary: %w", err)
	}
	defer sf.Close()
	if err := Summary(sf, in); err != nil {
		return "", "", fmt.Errorf("write summary: %w", err)
	}

	csvPath = filepath.Join(dir, in.Customer+"-discrepancies.csv")
	cf, err := os.Create(csvPath)
	if err != nil {
		return "", "", fmt.Errorf("create discrepancies csv: %w", err)
	}
	defer cf.Close()
	if err := WriteDiscrepancies(cf, in.Result.Discrepancies); err != nil {
		return "", "", fmt.Errorf("write discrepancies csv: %w", err)
	}
	return summaryPath, csvPath, nil
}

// pct renders "x.x% (n / d)" and an empty marker when the denominator is
// zero, so a section never divides by zero.
func pct(n, d int) string {
	if d == 0 {
		return fmt.Sprintf("- (%d / 0)", n)
	}
	return fmt.Sprintf("%.1f%% (%s / %s)", float64(n)/float64(d)*100,
		format.FmtCount(n), format.FmtCount(d))
}

// Summary writes the Markdown analysis summary for one run.
func Summary(w io.Writer, in Input) error {
	res, st := in.Result, in.Stats
	c := res.Counters

	var b strings.Builder
	title := "SEAT ACTIVITY RECONCILIATION"
	if in.Customer != "" {
		title = strings.ToUpper(in.Customer) + " - " + title
	}
	fmt.Fprintf(&b, "# %s\n\n", title)

	b.WriteString("## Telemetry Export\n\n### Report Window\n\n")
	fmt.Fprintf(&b, "- Declared: %s to %s\n",
		format.FmtDay(res.Declared.StartDay), format.FmtDay(res.Declared.EndDay))
	fmt.Fprintf(&b, "- Trimmed: **%s to %s**\n\n",
		format.FmtDay(res.Declared.StartDay), format.FmtDay(res.EffectiveEnd))
	b.WriteString("NOTE: The window end is trimmed by the export-population delay; recent days may not be fully exported yet.\n\n")
	fmt.Fprintf(&b, "- Unique users in declared window: **%s**\n", format.FmtCount(res.TelemetryUsers))
	fmt.Fprintf(&b, "- Unique users in trimmed window: **%s**\n", format.FmtCount(res.TelemetryUsersInWindow))

	b.WriteString("\n## Activity Ledger\n\n")
	fmt.Fprintf(&b, "- %% of seats with recorded activity: %s\n\n", pct(c.WithActivity, c.RawRows))
	fmt.Fprintf(&b, "- %% active before window: %s\n", pct(c.BeforeWindow, c.WithActivity))
	fmt.Fprintf(&b, "- %% active within window: **%s**\n", pct(c.InWindow, c.WithActivity))
	fmt.Fprintf(&b, "- %% active after window: %s\n", pct(c.AfterWindow, c.WithActivity))
	if note := windowSkewNote(c); note != "" {
		fmt.Fprintf(&b, "\nNOTE: %s\n", note)
	}
	fmt.Fprintf(&b, "\n- %% of in-window seats on unsupported versions: %s\n", pct(c.Ineligible, c.InWindow))
	fmt.Fprintf(&b, "- %% of in-window seats on supported versions: **%s**\n", pct(c.Eligible, c.InWindow))

	b.WriteString("\n## Analysis\n\n")
	discrepant := c.Stale + c.Absent
	fmt.Fprintf(&b, "- %% of active seats affected: **%s**\n\n", pct(discrepant, c.WithActivity))
	fmt.Fprintf(&b, "- %% of telemetry events missing: **%s**\n", pct(discrepant, c.Eligible))
	fmt.Fprintf(&b, "  - %% absent: %s\n", pct(c.Absent, c.Eligible))
	fmt.Fprintf(&b, "  - %% stale: %s\n\n", pct(c.Stale, c.Eligible))
	b.WriteString("NOTE: Stale means the nearest telemetry sample lies beyond the matching tolerance of the ledger timestamp.\n")

	writeIDESection(&b, st, discrepant)
	writeExtensionSection(&b, st)
	writeDateGraph(&b, st)
	writeGapSection(&b, st)
	writeStaleDistribution(&b, st)
	writeRateByEngagement(&b, st)

	_, err := io.WriteString(w, b.String())
	return err
}

func windowSkewNote(c reconcile.Counters) string {
	if c.InWindow >= c.BeforeWindow && c.InWindow >= c.AfterWindow {
		return ""
	}
	side := "after"
	if c.BeforeWindow > c.AfterWindow {
		side = "before"
	}
	return fmt.Sprintf("Scope of analysis is limited: most active seats fall outside the analysis window (%s).", side)
}

func writeIDESection(b *strings.Builder, st *stats.Stats, discrepant int) {
	b.WriteString("\n### IDEs\n\n")

	type row struct {
		name  string
		tally stats.Tally
	}
	rows := make([]row, 0, len(st.ByCategory))
	for name, t := range st.ByCategory {
		if t.Discrepant() > 0 {
			rows = append(rows, row{name, *t})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if d := rows[i].tally.Discrepant() - rows[j].tally.Discrepant(); d != 0 {
			return d > 0
		}
		return rows[i].name < rows[j].name
	})
	if len(rows) == 0 {
		b.WriteString("No discrepancies.\n")
		return
	}

	tb := format.NewTable(format.Markdown)
	tb.Header("IDE", "Share", "Absent", "Stale", "Rate")
	tb.Columns(
		format.ColumnConfig{Number: 2, Align: format.AlignRight},
		format.ColumnConfig{Number: 3, Align: format.AlignRight},
		format.ColumnConfig{Number: 4, Align: format.AlignRight},
		format.ColumnConfig{Number: 5, Align: format.AlignRight},
	)
	for _, r := range rows {
		share := "-"
		if discrepant > 0 {
			share = format.FmtPercent(float64(r.tally.Discrepant()) / float64(discrepant))
		}
		tb.Row(r.name, share, r.tally.Absent, r.tally.Stale, stats.FormatRate(r.tally))
	}
	b.WriteString(tb.String())
	b.WriteString("\n")
}

func writeExtensionSection(b *strings.Builder, st *stats.Stats) {
	b.WriteString("\n### Patterns\n\n")
	if len(st.ByExtension) == 0 {
		b.WriteString("No extension versions observed.\n")
		return
	}
	tb := format.NewTable(format.Markdown)
	tb.Header("Extension", "Seats", "Absent", "Stale", "Rate")
	tb.Columns(
		format.ColumnConfig{Number: 2, Align: format.AlignRight},
		format.ColumnConfig{Number: 3, Align: format.AlignRight},
		format.ColumnConfig{Number: 4, Align: format.AlignRight},
		format.ColumnConfig{Number: 5, Align: format.AlignRight},
	)
	for _, ec := range st.ByExtension {
		tb.Row(ec.Name+"/"+ec.Version, ec.Eligible, ec.Absent, ec.Stale, stats.FormatRate(ec.Tally))
	}
	b.WriteString(tb.String())
	b.WriteString("\n")
}

func writeDateGraph(b *strings.Builder, st *stats.Stats) {
	b.WriteString("\n#### Discrepancies by Date\n\n```\n")
	byDate := make(map[string]int, len(st.ByDate))
	for d, t := range st.ByDate {
		byDate[d] = t.Discrepant()
	}
	for _, line := range LineGraph(byDate, 10) {
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("```\n")
}

func writeGapSection(b *strings.Builder, st *stats.Stats) {
	b.WriteString("\n#### Timestamp Gap Analysis\n\n")
	o, n := st.Gaps.TelemetryOlder, st.Gaps.TelemetryNewer
	fmt.Fprintf(b, "- Telemetry OLDER than ledger activity: %d", o.Count)
	if o.Count > 0 {
		fmt.Fprintf(b, " (mean gap %s, max %s)", format.FmtGapDays(o.MeanDays), format.FmtGapDays(o.MaxDays))
	}
	b.WriteString("\n")
	fmt.Fprintf(b, "- Telemetry NEWER than ledger activity: %d", n.Count)
	if n.Count > 0 {
		fmt.Fprintf(b, " (mean gap %s, max %s)", format.FmtGapDays(n.MeanDays), format.FmtGapDays(n.MaxDays))
	}
	b.WriteString("\n")
}

const barWidth = 40

func writeStaleDistribution(b *strings.Builder, st *stats.Stats) {
	totalStale := st.Interactions.StaleUsers
	if totalStale == 0 {
		return
	}
	b.WriteString("\n#### Interaction Count per Stale Seat\n\n")
	b.WriteString("*(How engaged are the seats whose telemetry lags?)*\n\n```\n")
	for _, bk := range st.Engagement {
		if bk.Stale == 0 && bk.Eligible == 0 {
			continue
		}
		rate := float64(bk.Stale) / float64(totalStale)
		fmt.Fprintf(b, "  %-12s |%s| %5.1f%% (%d/%d)\n", bk.Label, format.Bar(rate, barWidth), rate*100, bk.Stale, totalStale)
	}
	b.WriteString("```\n")
	fmt.Fprintf(b, "\n- Average interactions for stale seats: **%.1f**\n", st.Interactions.StaleMean)
	if st.Interactions.MatchedUsers > 0 {
		fmt.Fprintf(b, "- Average interactions for healthy seats: **%.1f**\n", st.Interactions.MatchedMean)
	}
}

func writeRateByEngagement(b *strings.Builder, st *stats.Stats) {
	b.WriteString("\n#### Discrepancy Rate by Interaction Count\n\n")
	b.WriteString("*(By engagement level, how many seats have stale or absent telemetry?)*\n\n```\n")
	for _, bk := range st.Engagement {
		rate, ok := bk.Rate()
		if !ok {
			// Empty bucket: nothing to rate, nothing to draw.
			continue
		}
		fmt.Fprintf(b, "  %-12s |%s| %5.1f%% (%d/%d)\n", bk.Label, format.Bar(rate, barWidth), rate*100, bk.Discrepant(), bk.Eligible)
	}
	b.WriteString("```\n")
}
