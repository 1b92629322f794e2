package ledger_test

import (
	"strings"
	"testing"
	"time"

	"seatrecon/internal/ledger"
)

const sampleCSV = `Login,Last Activity At,Last Surface Used,Report Time
alice,2025-12-13T11:35:21Z,vscode/1.101.2/copilot-chat/0.28.1,2025-12-17T20:15:05Z
bob,None,neovim,2025-12-17T20:15:05Z
carol,,unknown/GitHubCopilotChat/0.35.3,2025-12-17T20:15:05Z
dave,not-a-time,vscode/1.96.0,2025-12-17T20:15:05Z
erin,2025-12-10T08:00:00.250Z,JetBrains-IU/252.25557.131/copilot-intellij/1.5.57-243,2025-12-17T20:15:05Z
`

func TestParse(t *testing.T) {
	rep, err := ledger.Parse(strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if rep.RawRows != 5 {
		t.Errorf("RawRows = %d, want 5", rep.RawRows)
	}
	if len(rep.Entries) != 5 {
		t.Fatalf("Entries = %d, want 5", len(rep.Entries))
	}

	if got := rep.GeneratedAt.Format(time.RFC3339); got != "2025-12-17T20:15:05Z" {
		t.Errorf("GeneratedAt = %s", got)
	}

	alice := rep.Entries[0]
	if !alice.HasActivity() {
		t.Error("alice has activity")
	}
	if got := alice.ActivityDay(); got != "2025-12-13" {
		t.Errorf("alice ActivityDay = %s", got)
	}

	// "None", empty, and unparseable timestamps are all no-activity rows
	// that still count in the raw total.
	for _, i := range []int{1, 2, 3} {
		if rep.Entries[i].HasActivity() {
			t.Errorf("entry %d (%s) should have no activity", i, rep.Entries[i].Login)
		}
	}

	erin := rep.Entries[4]
	if got := erin.LastActive.Format(time.RFC3339); got != "2025-12-10T08:00:00Z" {
		t.Errorf("erin LastActive = %s (sub-second precision must be stripped)", got)
	}
	if erin.RawSurface != "JetBrains-IU/252.25557.131/copilot-intellij/1.5.57-243" {
		t.Errorf("erin RawSurface = %q", erin.RawSurface)
	}
}

func TestParse_MissingColumn(t *testing.T) {
	_, err := ledger.Parse(strings.NewReader("Login,Last Surface Used\nalice,vscode\n"))
	if err == nil || !strings.Contains(err.Error(), "Last Activity At") {
		t.Fatalf("expected missing-column error, got %v", err)
	}
}

func TestParse_ShortRow(t *testing.T) {
	csv := "Login,Last Activity At,Last Surface Used,Report Time\nalice\n"
	rep, err := ledger.Parse(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rep.RawRows != 1 {
		t.Errorf("RawRows = %d, want 1", rep.RawRows)
	}
	if len(rep.Entries) != 1 || rep.Entries[0].Login != "alice" {
		t.Errorf("Entries = %+v", rep.Entries)
	}
}
