package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"seatrecon/internal/eligibility"
	"seatrecon/internal/format"
	"seatrecon/internal/ledger"
	"seatrecon/internal/rules"
	"seatrecon/internal/surface"
)

var versionsFlags struct {
	family    string
	minCount  int
	rulesPath string
}

var versionsCmd = &cobra.Command{
	Use:   "versions <activity.csv> <discrepancies.csv>",
	Short: "Break down discrepancy rates by client and extension version",
	Long: `Cross-reference an activity report with a run's discrepancies CSV and
show the discrepancy rate per client version and per extension version for
one surface family. A rate that spikes on a single version points at a
client-side telemetry regression rather than an export problem.

Only supported versions of the family are counted; versions with fewer
seats than --min-count are hidden.`,
	Args: cobra.ExactArgs(2),
	RunE: runVersions,
}

func init() {
	f := versionsCmd.Flags()
	f.StringVar(&versionsFlags.family, "family", "vscode", "Surface family to break down")
	f.IntVar(&versionsFlags.minCount, "min-count", 20, "Hide versions with fewer seats")
	f.StringVar(&versionsFlags.rulesPath, "rules", "", "Rule set YAML (default: embedded rules)")
}

type versionCounts struct {
	clients    map[string]int
	extensions map[string]int
}

func newVersionCounts() versionCounts {
	return versionCounts{clients: map[string]int{}, extensions: map[string]int{}}
}

func (vc versionCounts) add(c surface.Canonical) {
	if c.ClientVersion != "" {
		vc.clients[c.ClientVersion]++
	}
	if c.ExtensionName != "" && c.ExtensionVersion != "" {
		vc.extensions[c.ExtensionName+"/"+c.ExtensionVersion]++
	}
}

func runVersions(cmd *cobra.Command, args []string) error {
	r := rules.Default()
	if versionsFlags.rulesPath != "" {
		loaded, err := rules.Load(versionsFlags.rulesPath)
		if err != nil {
			return err
		}
		r = loaded
	}
	family := r.CanonicalFamily(strings.ToLower(versionsFlags.family))

	all := newVersionCounts()
	rep, err := ledger.ParseFile(args[0])
	if err != nil {
		return fmt.Errorf("read activity report: %w", err)
	}
	for _, e := range rep.Entries {
		c := surface.Normalize(e.RawSurface, r)
		if c.Family != family {
			continue
		}
		if ok, _ := eligibility.Check(c, r); !ok {
			continue
		}
		all.add(c)
	}

	disc := newVersionCounts()
	if err := eachDiscrepancySurface(args[1], func(raw string) {
		c := surface.Normalize(raw, r)
		if c.Family == family {
			disc.add(c)
		}
	}); err != nil {
		return fmt.Errorf("read discrepancies: %w", err)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Family: %s (supported versions only)\n\n", family)
	fmt.Fprintln(w, "Client version:")
	fmt.Fprintln(w, versionTable(all.clients, disc.clients, versionsFlags.minCount))
	fmt.Fprintln(w, "Extension version:")
	fmt.Fprintln(w, versionTable(all.extensions, disc.extensions, versionsFlags.minCount))
	return nil
}

// eachDiscrepancySurface streams the Last Surface Used column of a
// discrepancies CSV produced by the analyze command.
func eachDiscrepancySurface(path string, fn func(raw string)) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rd := csv.NewReader(f)
	header, err := rd.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	col := -1
	for i, name := range header {
		if strings.EqualFold(strings.TrimSpace(name), "Last Surface Used") {
			col = i
			break
		}
	}
	if col < 0 {
		return fmt.Errorf("no %q column", "Last Surface Used")
	}
	for {
		row, err := rd.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if col < len(row) && row[col] != "" {
			fn(row[col])
		}
	}
}

func versionTable(all, disc map[string]int, minCount int) string {
	versions := make([]string, 0, len(all))
	for v := range all {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		vi := eligibility.ParseVersion(trailingVersion(versions[i]))
		vj := eligibility.ParseVersion(trailingVersion(versions[j]))
		if c := eligibility.CompareVersions(vi, vj); c != 0 {
			return c > 0
		}
		return versions[i] < versions[j]
	})

	t := format.NewTable(format.ASCII)
	t.Header("Version", "Seats", "Discrepant", "Rate")
	t.Columns(
		format.ColumnConfig{Number: 2, Align: format.AlignRight},
		format.ColumnConfig{Number: 3, Align: format.AlignRight},
		format.ColumnConfig{Number: 4, Align: format.AlignRight},
	)
	for _, v := range versions {
		total := all[v]
		if total < minCount {
			continue
		}
		n := disc[v]
		t.Row(v, format.FmtCount(total), format.FmtCount(n), format.FmtPercent(float64(n)/float64(total)))
	}
	return t.String()
}

// trailingVersion returns the version part of either a bare version or an
// extension "name/version" key.
func trailingVersion(s string) string {
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}
