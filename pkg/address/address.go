// Package address validates and normalizes user-submitted postal addresses
// before any paid provider call is made.
package address

import (
	"regexp"
	"strings"
)

// MaxLength bounds the address to keep downstream payloads and cost in check.
const MaxLength = 200

// allowed is the full character policy: Unicode letters and digits, space,
// and a small punctuation set. Anything else is treated as malformed input.
var allowed = regexp.MustCompile(`^[\p{L}\p{N} ,.#'&/()\-]+$`)

// regionRule recognizes addresses belonging to one supported region.
// The table is the only thing to extend when a new region is onboarded.
type regionRule struct {
	name     string
	patterns []*regexp.Regexp
}

var regions = []regionRule{
	{
		name: "United States",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`\b[A-Z]{2}[ ,]+\d{5}(?:-\d{4})?\b`),
			regexp.MustCompile(`(?i)\b(?:USA|U\.S\.A|United States)\b`),
		},
	},
	{
		name: "Canada",
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\b[ABCEGHJ-NPRSTVXY]\d[A-Z] ?\d[A-Z]\d\b`),
			regexp.MustCompile(`(?i)\bCanada\b`),
		},
	},
}

// Sanitize normalizes a raw address and reports whether it is acceptable.
// It trims, truncates to MaxLength, enforces the character policy, and
// requires the address to match a supported region. The returned string is
// empty whenever ok is false.
func Sanitize(raw string) (string, bool) {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return "", false
	}
	if len(addr) > MaxLength {
		addr = strings.TrimSpace(addr[:MaxLength])
	}
	if !allowed.MatchString(addr) {
		return "", false
	}
	if matchRegion(addr) == "" {
		return "", false
	}
	return addr, true
}

func matchRegion(addr string) string {
	for _, r := range regions {
		for _, p := range r.patterns {
			if p.MatchString(addr) {
				return r.name
			}
		}
	}
	return ""
}

// Regions lists the supported region names, for client-facing error messages.
func Regions() []string {
	names := make([]string, len(regions))
	for i, r := range regions {
		names[i] = r.name
	}
	return names
}

// CacheKey folds an address to the canonical cache key. Two addresses
// differing only in case or surrounding whitespace share one key.
func CacheKey(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Locality extracts a location name from a validated address for prompt
// substitution. Returns "" when no usable segment exists.
func Locality(addr string) string {
	parts := strings.Split(addr, ",")
	if len(parts) < 2 {
		return ""
	}
	city := strings.TrimSpace(parts[1])
	if city == "" || strings.ContainsAny(city, "0123456789") {
		return ""
	}
	return city
}
