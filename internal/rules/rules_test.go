package rules_test

import (
	"os"
	"path/filepath"
	"testing"

	"seatrecon/internal/rules"

	"github.com/google/go-cmp/cmp"
)

func TestDefault_Tables(t *testing.T) {
	r := rules.Default()

	if got := r.CanonicalFamily("JetBrains-IU"); got != "intellij" {
		t.Errorf("CanonicalFamily(JetBrains-IU) = %q, want intellij", got)
	}
	if got := r.CanonicalFamily("eclipse"); got != "intellij" {
		t.Errorf("CanonicalFamily(eclipse) = %q, want intellij", got)
	}
	if got := r.CanonicalFamily("vscode"); got != "vscode" {
		t.Errorf("CanonicalFamily(vscode) = %q, want vscode", got)
	}
	if got := r.CanonicalFamily("zed"); got != "zed" {
		t.Errorf("unlisted family should pass through, got %q", got)
	}

	if !r.IsExcludedFamily("neovim") {
		t.Error("neovim should be excluded from telemetry coverage")
	}
	if !r.IsExcludedFamily("none") {
		t.Error("the literal none placeholder should be excluded")
	}
	if r.IsExcludedFamily("vscode") {
		t.Error("vscode must not be excluded")
	}

	if !r.IsDropSegment("GitHubCopilotChat") || !r.IsDropSegment("githubcopilot") {
		t.Error("marketing-name segments should be droppable in any casing")
	}

	if got := r.Category("intellij"); got != "JetBrains" {
		t.Errorf("Category(intellij) = %q", got)
	}
	if got := r.Category("some-new-ide"); got != "Other" {
		t.Errorf("Category fallback = %q, want Other", got)
	}
}

func TestDefault_ShapeOverride(t *testing.T) {
	r := rules.Default()

	cases := []struct {
		segment string
		family  string
		ok      bool
	}{
		{"0.35.3", "vscode", true},
		{"0.9.3", "vscode", true},
		{"1.5.57-243", "", false},
		{"252.25557.131", "", false},
		{"0.123.4", "", false}, // three-digit minor is not the shape
	}
	for _, tc := range cases {
		family, ok := r.OverrideFamily(tc.segment)
		if ok != tc.ok || family != tc.family {
			t.Errorf("OverrideFamily(%q) = (%q, %v), want (%q, %v)",
				tc.segment, family, ok, tc.family, tc.ok)
		}
	}
}

func TestDefault_Floors(t *testing.T) {
	r := rules.Default()

	f, ok := r.Floor("intellij")
	if !ok {
		t.Fatal("intellij floor missing")
	}
	if f.ClientBuildPrefix != 242 {
		t.Errorf("intellij build prefix = %d, want 242", f.ClientBuildPrefix)
	}
	if f.ExtensionVersion != "1.5.52" {
		t.Errorf("intellij extension floor = %q", f.ExtensionVersion)
	}

	f, ok = r.Floor("vscode")
	if !ok || f.ClientVersion != "1.101" {
		t.Errorf("vscode floor = %+v, ok=%v", f, ok)
	}

	if _, ok := r.Floor("zed"); ok {
		t.Error("zed has no floor; the table encodes known exclusions only")
	}
}

func TestDefault_ReleaseOrder(t *testing.T) {
	r := rules.Default()
	releases := r.ExtensionReleases["copilot-chat"]
	if len(releases) == 0 {
		t.Fatal("copilot-chat release list missing")
	}
	if releases[0] != "0.35.1" {
		t.Errorf("newest release = %q, want 0.35.1", releases[0])
	}
	if releases[len(releases)-1] != "0.28.0" {
		t.Errorf("oldest listed release = %q, want 0.28.0", releases[len(releases)-1])
	}
}

func TestDefault_WindowParameters(t *testing.T) {
	r := rules.Default()
	if r.ExportDelayHours != 96 {
		t.Errorf("ExportDelayHours = %d, want 96", r.ExportDelayHours)
	}
	if r.ToleranceHours != 24 {
		t.Errorf("ToleranceHours = %d, want 24", r.ToleranceHours)
	}
}

func TestLoad_OverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := []byte(`
family_aliases:
  myide-pro: myide
excluded_families: [ticker]
version_floors:
  myide:
    client_version: "2.0"
export_delay_hours: 48
tolerance_hours: 6
`)
	if err := os.WriteFile(path, content, 0600); err != nil {
		t.Fatal(err)
	}

	r, err := rules.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if got := r.CanonicalFamily("myide-pro"); got != "myide" {
		t.Errorf("CanonicalFamily = %q", got)
	}
	if !r.IsExcludedFamily("ticker") {
		t.Error("ticker should be excluded")
	}
	f, ok := r.Floor("myide")
	if !ok {
		t.Fatal("myide floor missing")
	}
	if diff := cmp.Diff(rules.Floor{ClientVersion: "2.0"}, f); diff != "" {
		t.Errorf("floor mismatch:\n%s", diff)
	}
	if r.ExportDelayHours != 48 || r.ToleranceHours != 6 {
		t.Errorf("window params = %d/%d", r.ExportDelayHours, r.ToleranceHours)
	}
}

func TestParse_BadPattern(t *testing.T) {
	_, err := rules.Parse([]byte("shape_overrides:\n  - pattern: '('\n    family: x\n"))
	if err == nil {
		t.Fatal("expected error for invalid regexp")
	}
}

func TestParse_NegativeWindow(t *testing.T) {
	_, err := rules.Parse([]byte("export_delay_hours: -1\n"))
	if err == nil {
		t.Fatal("expected error for negative delay")
	}
}
