package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"seatrecon/internal/format"
	"seatrecon/internal/rules"
)

var rulesFlags struct {
	rulesPath string
}

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Print the effective normalization and eligibility rules",
	RunE:  runRules,
}

func init() {
	rulesCmd.Flags().StringVar(&rulesFlags.rulesPath, "rules", "", "Rule set YAML (default: embedded rules)")
}

func runRules(cmd *cobra.Command, _ []string) error {
	r := rules.Default()
	if rulesFlags.rulesPath != "" {
		loaded, err := rules.Load(rulesFlags.rulesPath)
		if err != nil {
			return err
		}
		r = loaded
	}

	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "Version floors (families without an entry are eligible by default):")
	ft := format.NewTable(format.ASCII)
	ft.Header("Family", "Min client", "Min extension")
	for _, family := range sortedRuleKeys(r.VersionFloors) {
		floor := r.VersionFloors[family]
		client := floor.ClientVersion
		if floor.ClientBuildPrefix != 0 {
			client = fmt.Sprintf("build %d+", floor.ClientBuildPrefix)
		}
		ft.Row(family, orDash(client), orDash(floor.ExtensionVersion))
	}
	fmt.Fprintln(w, ft.String())

	fmt.Fprintln(w, "Family aliases:")
	at := format.NewTable(format.ASCII)
	at.Header("Raw segment", "Family")
	for _, raw := range sortedRuleKeys(r.FamilyAliases) {
		at.Row(raw, r.FamilyAliases[raw])
	}
	fmt.Fprintln(w, at.String())

	fmt.Fprintln(w, "Report categories:")
	ct := format.NewTable(format.ASCII)
	ct.Header("Family", "Category")
	for _, family := range sortedRuleKeys(r.Categories) {
		ct.Row(family, r.Categories[family])
	}
	fmt.Fprintln(w, ct.String())

	fmt.Fprintf(w, "Excluded families: %s\n", strings.Join(r.ExcludedFamilies, ", "))
	fmt.Fprintf(w, "Dropped segments:  %s\n", strings.Join(r.DropSegments, ", "))
	fmt.Fprintf(w, "Tolerance: %dh   Export delay: %dh\n", r.ToleranceHours, r.ExportDelayHours)
	return nil
}

func sortedRuleKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
