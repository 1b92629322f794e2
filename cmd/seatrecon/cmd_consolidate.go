package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"seatrecon/internal/logging"
	"seatrecon/internal/telemetry"
)

var consolidateFlags struct {
	dataDir   string
	outputDir string
	all       bool
}

var consolidateCmd = &cobra.Command{
	Use:   "consolidate [customer]",
	Short: "Merge a customer's incremental exports into single input files",
	Long: `Merge incremental telemetry exports and activity reports into one NDJSON
file and one CSV per customer, ready for the analyze command.

Expects the layout:
  <data-dir>/<customer>/dashboard_exports/*.json
  <data-dir>/<customer>/activity_reports/*.csv

Telemetry records deduplicate by (user_login, day) with later files
winning; activity rows deduplicate by (Login, Last Activity At) so every
distinct activity timestamp per seat survives.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConsolidate,
}

func init() {
	f := consolidateCmd.Flags()
	f.StringVar(&consolidateFlags.dataDir, "data-dir", "data", "Directory holding per-customer subdirectories")
	f.StringVar(&consolidateFlags.outputDir, "output", "consolidated-data", "Directory receiving the merged files")
	f.BoolVar(&consolidateFlags.all, "all", false, "Consolidate every customer under the data directory")
}

func runConsolidate(cmd *cobra.Command, args []string) error {
	var customers []string
	switch {
	case consolidateFlags.all:
		found, err := availableCustomers(consolidateFlags.dataDir)
		if err != nil {
			return err
		}
		if len(found) == 0 {
			return fmt.Errorf("no customers with exports under %s", consolidateFlags.dataDir)
		}
		customers = found
	case len(args) == 1:
		customers = args
	default:
		return fmt.Errorf("customer name or --all is required\n\nUsage: seatrecon consolidate <customer>")
	}

	if err := os.MkdirAll(consolidateFlags.outputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	w := cmd.OutOrStdout()
	for _, customer := range customers {
		base := filepath.Join(consolidateFlags.dataDir, customer)
		jsonOut := filepath.Join(consolidateFlags.outputDir, customer+"-consolidated.json")
		csvOut := filepath.Join(consolidateFlags.outputDir, customer+"-seat-activity-consolidated.csv")

		nRecords, err := consolidateTelemetry(filepath.Join(base, "dashboard_exports"), jsonOut)
		if err != nil {
			return fmt.Errorf("%s: %w", customer, err)
		}
		nRows, err := consolidateLedger(filepath.Join(base, "activity_reports"), csvOut)
		if err != nil {
			return fmt.Errorf("%s: %w", customer, err)
		}
		fmt.Fprintf(w, "%s: %d telemetry records -> %s, %d activity rows -> %s\n",
			customer, nRecords, jsonOut, nRows, csvOut)
	}
	return nil
}

// availableCustomers lists subdirectories that hold at least one export.
func availableCustomers(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("read data dir: %w", err)
	}
	var customers []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		matches, _ := filepath.Glob(filepath.Join(dataDir, e.Name(), "dashboard_exports", "*.json"))
		if len(matches) > 0 {
			customers = append(customers, e.Name())
		}
	}
	sort.Strings(customers)
	return customers, nil
}

// consolidateTelemetry merges every NDJSON export in dir, deduplicating by
// (user_login, day). Files are visited in name order so later exports
// override earlier ones for the same key.
func consolidateTelemetry(dir, outPath string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, err
	}
	if len(paths) == 0 {
		return 0, fmt.Errorf("no JSON exports under %s", dir)
	}
	sort.Strings(paths)

	log := logging.New("consolidate")
	type key struct{ login, day string }
	records := map[key]string{}
	order := []key{}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, err
		}
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			for _, chunk := range telemetry.SplitConcatenated(line) {
				var rec struct {
					UserLogin string `json:"user_login"`
					Day       string `json:"day"`
				}
				if err := json.Unmarshal([]byte(chunk), &rec); err != nil {
					log.Warn("skipping invalid JSON record", "file", filepath.Base(path), "error", err)
					continue
				}
				if rec.UserLogin == "" || rec.Day == "" {
					continue
				}
				k := key{rec.UserLogin, rec.Day}
				if _, seen := records[k]; !seen {
					order = append(order, k)
				}
				records[k] = chunk
			}
		}
	}

	out, err := os.Create(outPath)
	if err != nil {
		return 0, err
	}
	defer out.Close()
	for _, k := range order {
		if _, err := fmt.Fprintln(out, records[k]); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

// consolidateLedger merges every activity CSV in dir, deduplicating by
// (Login, Last Activity At). The header is the union of all columns in
// first-seen order; rows from files missing a column get empty cells.
func consolidateLedger(dir, outPath string) (int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return 0, err
	}
	if len(paths) == 0 {
		return 0, fmt.Errorf("no activity CSVs under %s", dir)
	}
	sort.Strings(paths)

	type key struct{ login, at string }
	var columns []string
	colSeen := map[string]bool{}
	rows := map[key]map[string]string{}
	order := []key{}

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return 0, err
		}
		rd := csv.NewReader(f)
		all, err := rd.ReadAll()
		f.Close()
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", filepath.Base(path), err)
		}
		if len(all) == 0 {
			continue
		}
		header := all[0]
		for _, col := range header {
			if !colSeen[col] {
				colSeen[col] = true
				columns = append(columns, col)
			}
		}
		loginCol, atCol := -1, -1
		for i, col := range header {
			switch col {
			case "Login":
				loginCol = i
			case "Last Activity At":
				atCol = i
			}
		}
		if loginCol < 0 || atCol < 0 {
			return 0, fmt.Errorf("%s: missing Login or Last Activity At column", filepath.Base(path))
		}
		for _, row := range all[1:] {
			if loginCol >= len(row) || row[loginCol] == "" {
				continue
			}
			at := ""
			if atCol < len(row) {
				at = row[atCol]
			}
			k := key{row[loginCol], at}
			if _, seen := rows[k]; !seen {
				order = append(order, k)
			}
			cells := map[string]string{}
			for i, col := range header {
				if i < len(row) {
					cells[col] = row[i]
				}
			}
			rows[k] = cells
		}
	}

	out, err := os.Create(outPath)
	if err != nil {
		return 0, err
	}
	defer out.Close()
	cw := csv.NewWriter(out)
	if err := cw.Write(columns); err != nil {
		return 0, err
	}
	for _, k := range order {
		row := make([]string, len(columns))
		for i, col := range columns {
			row[i] = rows[k][col]
		}
		if err := cw.Write(row); err != nil {
			return 0, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, err
	}
	return len(rows), nil
}
