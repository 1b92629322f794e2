// Package eligibility decides whether a client surface is new enough to be
// expected in the telemetry export at all. It encodes known exclusions, not
// known inclusions: families without a configured floor are eligible.
package eligibility

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"seatrecon/internal/rules"
	"seatrecon/internal/surface"
)

var versionRE = regexp.MustCompile(`^(\d+)(?:\.(\d+))?(?:\.(\d+))?`)

// ParseVersion extracts up to three leading numeric components from a
// version string, discarding non-numeric suffixes ("1.5.57-243" -> 1.5.57).
// Returns nil when no leading numeric component exists.
func ParseVersion(s string) []int {
	m := versionRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return nil
	}
	var parts []int
	for _, g := range m[1:] {
		if g == "" {
			break
		}
		n, err := strconv.Atoi(g)
		if err != nil {
			return nil
		}
		parts = append(parts, n)
	}
	if len(parts) == 0 {
		return nil
	}
	return parts
}

// CompareVersions compares two numeric component sequences after zero-
// padding the shorter to the longer length. Returns -1, 0, or 1.
func CompareVersions(a, b []int) int {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

// Check reports whether the canonical surface meets its family's version
// floor. The second return is a human-readable reason when ineligible.
//
// Version checks apply only to segments that are present: an absent client
// or extension version satisfies its check, but a present version that
// cannot be parsed fails closed.
func Check(c surface.Canonical, r *rules.Rules) (bool, string) {
	floor, ok := r.Floor(c.Family)
	if !ok {
		// Unknown family: assume supported. The one place this classifier
		// can under-report, and an intentional policy.
		return true, ""
	}

	if c.ClientVersion != "" {
		if floor.ClientBuildPrefix > 0 {
			// Build-number regime: only the three-digit YYR prefix is
			// comparable; trailing build digits never matter.
			v := ParseVersion(c.ClientVersion)
			if v == nil {
				return false, fmt.Sprintf("cannot parse client build %q", c.ClientVersion)
			}
			if v[0] < floor.ClientBuildPrefix {
				return false, fmt.Sprintf("client build %s below minimum %d.x", c.ClientVersion, floor.ClientBuildPrefix)
			}
		} else if floor.ClientVersion != "" {
			v := ParseVersion(c.ClientVersion)
			if v == nil {
				return false, fmt.Sprintf("cannot parse client version %q", c.ClientVersion)
			}
			if CompareVersions(v, ParseVersion(floor.ClientVersion)) < 0 {
				return false, fmt.Sprintf("client version %s below minimum %s", c.ClientVersion, floor.ClientVersion)
			}
		}
	}

	if c.ExtensionVersion != "" && floor.ExtensionVersion != "" {
		v := ParseVersion(c.ExtensionVersion)
		if v == nil {
			return false, fmt.Sprintf("cannot parse extension version %q", c.ExtensionVersion)
		}
		if CompareVersions(v, ParseVersion(floor.ExtensionVersion)) < 0 {
			return false, fmt.Sprintf("extension version %s below minimum %s", c.ExtensionVersion, floor.ExtensionVersion)
		}
	}

	return true, ""
}
