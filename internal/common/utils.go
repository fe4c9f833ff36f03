package common

import "strings"

// SplitList flattens values that may each hold a comma-separated list into
// one list, trimming blanks. Order and duplicates are preserved.
func SplitList(values ...string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
