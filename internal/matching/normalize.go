package matching

import "strings"

// NormalizeKey canonicalizes a raw deployment value for joining: surrounding
// whitespace stripped, then lowercased. Two raw values differing only in
// case or padding map to the same canonical key.
//
// A missing value canonicalizes to the empty key, so rows without a
// deployment all collapse into one group. That mirrors the upstream report
// tooling; whether such rows should be rejected instead is an open product
// question (see DESIGN.md).
func NormalizeKey(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
