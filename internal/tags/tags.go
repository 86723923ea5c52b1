// Package tags normalizes the comma separated tag text users type and keeps
// a node's tags a set of unique, case-sensitive strings.
package tags

import (
	"slices"
	"strings"
)

// Normalize splits raw on commas, trims each piece and drops empty pieces.
// Duplicates are kept; Add removes them.
func Normalize(raw string) []string {
	var out []string
	for _, piece := range strings.Split(raw, ",") {
		if tag := strings.TrimSpace(piece); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// Add unions the tags in raw into existing. The existing order is kept and
// new tags follow in the order they were typed. added is empty when the union
// changes nothing.
func Add(existing []string, raw string) (result, added []string) {
	result = slices.Clone(existing)
	for _, tag := range Normalize(raw) {
		if slices.Contains(result, tag) {
			continue
		}
		result = append(result, tag)
		added = append(added, tag)
	}
	return result, added
}

// Remove drops the exact tag. Removing an absent tag is not an error.
func Remove(existing []string, tag string) (result []string, removed bool) {
	tag = strings.TrimSpace(tag)
	result = slices.Clone(existing)
	i := slices.Index(result, tag)
	if i < 0 {
		return result, false
	}
	return slices.Delete(result, i, i+1), true
}
