package lifecycle

import (
	"encoding/csv"
	"strings"
)

// ParseTags splits a comma-separated tag list. Quoted substrings keep
// internal commas as one tag; duplicates are dropped
// case-insensitively, first spelling wins.
func ParseTags(list string) []string {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil
	}

	reader := csv.NewReader(strings.NewReader(list))
	reader.TrimLeadingSpace = true
	fields, err := reader.Read()
	if err != nil {
		// Unbalanced quotes; fall back to a plain split.
		fields = strings.Split(list, ",")
	}

	seen := make(map[string]bool, len(fields))
	var tags []string
	for _, f := range fields {
		tag := strings.TrimSpace(f)
		if tag == "" {
			continue
		}
		key := strings.ToLower(tag)
		if seen[key] {
			continue
		}
		seen[key] = true
		tags = append(tags, tag)
	}
	return tags
}
