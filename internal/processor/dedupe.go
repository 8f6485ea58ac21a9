package processor

import "strings"

// DedupeLines removes duplicate lines while preserving first occurrence
// order. Lines are keyed by their trimmed form; blank lines are dropped and
// kept lines are returned untrimmed.
func DedupeLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))

	for _, line := range lines {
		key := strings.TrimSpace(line)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, line)
	}

	return out
}
