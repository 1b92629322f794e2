// Package rules holds the reconciliation rule tables: family aliases,
// excluded surfaces, version floors, curated release lists, and the window
// defaults. The tables are data, not code: a default set ships embedded in
// the binary and a customer-specific YAML file can replace it wholesale.
package rules

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Floor is the minimum supported version pair for one client family.
// Exactly one of ClientVersion / ClientBuildPrefix gates the client:
// a non-zero ClientBuildPrefix selects the build-number regime where only
// the leading three-digit YYR prefix of the client version is compared.
type Floor struct {
	ClientVersion     string `yaml:"client_version,omitempty"`
	ClientBuildPrefix int    `yaml:"client_build_prefix,omitempty"`
	ExtensionVersion  string `yaml:"extension_version,omitempty"`
}

// ShapeOverride reassigns the client family when any surface segment
// matches Pattern. The telemetry upstream tags some records "unknown"
// even though the extension version shape identifies the host client.
type ShapeOverride struct {
	Pattern string `yaml:"pattern"`
	Family  string `yaml:"family"`

	re *regexp.Regexp
}

// Rules is the full rule set for one reconciliation run.
type Rules struct {
	// FamilyAliases collapses raw first-segment names onto canonical
	// family identifiers (every JetBrains product reports as intellij).
	FamilyAliases map[string]string `yaml:"family_aliases"`

	// ShapeOverrides run before the alias table; first match wins.
	ShapeOverrides []ShapeOverride `yaml:"shape_overrides"`

	// DropSegments are intermediate segments that restate the extension's
	// marketing name without carrying a version; matched case-insensitively.
	DropSegments []string `yaml:"drop_segments"`

	// ExcludedFamilies are surfaces with no telemetry integration at all
	// (terminal clients, web chat, mobile apps). Entries are matched
	// against the canonical family.
	ExcludedFamilies []string `yaml:"excluded_families"`

	// Categories maps canonical family to the display grouping used in
	// reports ("VS Code", "JetBrains", ...). Unlisted families render
	// under "Other".
	Categories map[string]string `yaml:"categories"`

	// VersionFloors is keyed by canonical family. Families without an
	// entry are eligible by default: the table encodes known exclusions,
	// not known inclusions.
	VersionFloors map[string]Floor `yaml:"version_floors"`

	// ExtensionReleases lists known release versions per extension name,
	// newest first. Reports order version breakdowns by this list,
	// restricted to versions actually observed in the ledger.
	ExtensionReleases map[string][]string `yaml:"extension_releases"`

	// ExportDelayHours is how long the telemetry export may lag a calendar
	// day before its data is fully populated.
	ExportDelayHours int `yaml:"export_delay_hours"`

	// ToleranceHours is the matcher's timestamp tolerance window.
	ToleranceHours int `yaml:"tolerance_hours"`

	dropSet     map[string]bool
	excludedSet map[string]bool
}

// Default returns the embedded rule set.
func Default() *Rules {
	r, err := Parse(defaultYAML)
	if err != nil {
		// The embedded file is part of the build; a parse failure here is
		// a programming error, not an input error.
		panic(fmt.Sprintf("rules: embedded default.yaml invalid: %v", err))
	}
	return r
}

// Load reads a rule set from a YAML file.
func Load(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules %s: %w", path, err)
	}
	return r, nil
}

// Parse decodes and validates a rule set from YAML bytes.
func Parse(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse rules yaml: %w", err)
	}
	if err := r.compile(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Rules) compile() error {
	for i := range r.ShapeOverrides {
		re, err := regexp.Compile(r.ShapeOverrides[i].Pattern)
		if err != nil {
			return fmt.Errorf("shape override %q: %w", r.ShapeOverrides[i].Pattern, err)
		}
		r.ShapeOverrides[i].re = re
	}
	r.dropSet = make(map[string]bool, len(r.DropSegments))
	for _, s := range r.DropSegments {
		r.dropSet[lower(s)] = true
	}
	r.excludedSet = make(map[string]bool, len(r.ExcludedFamilies))
	for _, s := range r.ExcludedFamilies {
		r.excludedSet[lower(s)] = true
	}
	if r.ExportDelayHours < 0 {
		return fmt.Errorf("export_delay_hours must be >= 0, got %d", r.ExportDelayHours)
	}
	if r.ToleranceHours < 0 {
		return fmt.Errorf("tolerance_hours must be >= 0, got %d", r.ToleranceHours)
	}
	return nil
}

// CanonicalFamily maps a raw family name through the alias table.
// Unlisted names pass through unchanged.
func (r *Rules) CanonicalFamily(name string) string {
	name = lower(name)
	if canon, ok := r.FamilyAliases[name]; ok {
		return canon
	}
	return name
}

// OverrideFamily returns the family a segment's shape implies, if any.
func (r *Rules) OverrideFamily(segment string) (string, bool) {
	for i := range r.ShapeOverrides {
		if r.ShapeOverrides[i].re.MatchString(segment) {
			return r.ShapeOverrides[i].Family, true
		}
	}
	return "", false
}

// IsDropSegment reports whether a segment is redundant marketing-name noise.
func (r *Rules) IsDropSegment(segment string) bool {
	return r.dropSet[lower(segment)]
}

// IsExcludedFamily reports whether the family never emits telemetry.
func (r *Rules) IsExcludedFamily(family string) bool {
	return r.excludedSet[lower(family)]
}

// Category returns the display grouping for a canonical family.
func (r *Rules) Category(family string) string {
	if c, ok := r.Categories[lower(family)]; ok {
		return c
	}
	return "Other"
}

// Floor returns the version floor for a canonical family, if one exists.
func (r *Rules) Floor(family string) (Floor, bool) {
	f, ok := r.VersionFloors[lower(family)]
	return f, ok
}

func lower(s string) string {
	// ASCII-only lowercasing; surface strings are ASCII by construction.
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
