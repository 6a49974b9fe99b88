package matching

import (
	"fmt"
	"strings"
)

// Summarize renders a short deterministic explanation of a match from its
// breakdown.
func Summarize(m PotentialMatch) string {
	var good, bad, unknown []string
	for _, d := range m.Breakdown {
		name := strings.ReplaceAll(string(d.Dimension), "_", " ")
		switch d.Verdict {
		case VerdictCompatible:
			good = append(good, name)
		case VerdictIncompatible:
			bad = append(bad, name)
		default:
			unknown = append(unknown, name)
		}
	}

	parts := []string{fmt.Sprintf("Score %d/100.", m.OverallScore)}
	if len(good) > 0 {
		parts = append(parts, "Compatible on "+strings.Join(good, ", ")+".")
	}
	if len(bad) > 0 {
		parts = append(parts, "Mismatch on "+strings.Join(bad, ", ")+".")
	}
	if len(unknown) > 0 {
		parts = append(parts, "Missing data for "+strings.Join(unknown, ", ")+".")
	}
	return strings.Join(parts, " ")
}
