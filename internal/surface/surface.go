// Package surface normalizes raw slash-delimited client surface strings
// into a canonical {family, client version, extension, extension version}
// form. Both the activity ledger and the telemetry export describe clients
// this way, but with different vocabularies; reconciliation compares the
// canonical form only.
package surface

import (
	"strings"

	"seatrecon/internal/rules"
)

// Canonical is the normalized identity of one client surface.
// The zero value is the "unparseable" sentinel.
type Canonical struct {
	Family           string
	ClientVersion    string
	ExtensionName    string
	ExtensionVersion string
}

// IsZero reports whether nothing could be parsed from the raw string.
func (c Canonical) IsZero() bool {
	return c == Canonical{}
}

// String reassembles the slash-delimited form. Normalizing the result is a
// no-op, which makes Normalize idempotent.
func (c Canonical) String() string {
	parts := []string{c.Family}
	if c.ClientVersion != "" {
		parts = append(parts, c.ClientVersion)
	}
	if c.ExtensionName != "" {
		parts = append(parts, c.ExtensionName)
	}
	if c.ExtensionVersion != "" {
		parts = append(parts, c.ExtensionVersion)
	}
	return strings.Join(parts, "/")
}

// Normalize parses a raw surface string into canonical form. It never
// fails: malformed input yields a partially-filled Canonical with empty
// strings for whatever could not be resolved.
//
// Rule order: family from the lowercased first segment; family override
// when a later segment's shape identifies the host client; alias-table
// mapping; drop of redundant marketing-name segments; positional mapping
// of the remaining segments.
func Normalize(raw string, r *rules.Rules) Canonical {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Canonical{}
	}

	segments := strings.Split(raw, "/")
	family := strings.ToLower(strings.TrimSpace(segments[0]))

	// Marketing-name segments are dropped from positional mapping but still
	// name the extension; "unknown/GitHubCopilotChat/0.35.3" must land in
	// the copilot-chat version bucket.
	droppedExt := ""
	rest := make([]string, 0, len(segments)-1)
	for _, seg := range segments[1:] {
		seg = strings.TrimSpace(seg)
		if seg == "" {
			continue
		}
		if r.IsDropSegment(seg) {
			droppedExt = canonicalExtensionName(seg)
			continue
		}
		rest = append(rest, seg)
	}

	// An extension-version-shaped segment pins the family even when the
	// first segment says "unknown"; the upstream mislabels these records.
	for _, seg := range rest {
		if override, ok := r.OverrideFamily(seg); ok {
			family = override
			break
		}
	}

	family = r.CanonicalFamily(family)

	c := Canonical{Family: family}
	switch len(rest) {
	case 0:
	case 1:
		// A single trailing segment is a version: the client's when its
		// shape doesn't identify an extension, the extension's otherwise.
		if _, ok := r.OverrideFamily(rest[0]); ok {
			c.ExtensionVersion = rest[0]
		} else {
			c.ClientVersion = rest[0]
		}
	case 2:
		// A version-shaped trailing segment is the extension's version,
		// whether the segment before it names the extension or carries
		// the client version.
		_, secondIsVersion := r.OverrideFamily(rest[1])
		_, firstIsVersion := r.OverrideFamily(rest[0])
		switch {
		case secondIsVersion && looksLikeExtensionName(rest[0]):
			c.ExtensionName = canonicalExtensionName(rest[0])
			c.ExtensionVersion = rest[1]
		case secondIsVersion:
			c.ClientVersion = rest[0]
			c.ExtensionVersion = rest[1]
		case firstIsVersion:
			c.ExtensionVersion = rest[0]
			c.ExtensionName = canonicalExtensionName(rest[1])
		default:
			c.ClientVersion = rest[0]
			if looksLikeExtensionName(rest[1]) {
				c.ExtensionName = canonicalExtensionName(rest[1])
			} else {
				c.ExtensionVersion = rest[1]
			}
		}
	default:
		c.ClientVersion = rest[0]
		c.ExtensionName = canonicalExtensionName(rest[1])
		c.ExtensionVersion = rest[2]
	}
	if c.ExtensionName == "" && c.ExtensionVersion != "" && droppedExt != "" {
		c.ExtensionName = droppedExt
	}
	return c
}

// looksLikeExtensionName reports whether a segment names an extension
// rather than carrying a version (no leading digit).
func looksLikeExtensionName(s string) bool {
	return s != "" && (s[0] < '0' || s[0] > '9')
}

// canonicalExtensionName collapses marketing spellings of the chat
// extension onto its package name.
func canonicalExtensionName(s string) string {
	switch strings.ToLower(s) {
	case "githubcopilotchat":
		return "copilot-chat"
	case "githubcopilot":
		return "copilot"
	}
	return s
}
