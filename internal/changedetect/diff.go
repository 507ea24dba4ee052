package changedetect

import (
	"strings"

	"github.com/carelane/content-pipeline/internal/pipeline"
)

// Diff produces an audit-level comparison of two normalized texts. Regions
// are the newline-separated blocks the normalizer emits. Counts are
// order-independent: a removal paired with an addition is reported as one
// modified region.
func Diff(previous, current string) pipeline.ContentDiff {
	prev := regions(previous)
	cur := regions(current)

	prevCount := make(map[string]int, len(prev))
	for _, r := range prev {
		prevCount[r]++
	}
	curCount := make(map[string]int, len(cur))
	for _, r := range cur {
		curCount[r]++
	}

	var added, removed int
	for r, n := range curCount {
		if n > prevCount[r] {
			added += n - prevCount[r]
		}
	}
	for r, n := range prevCount {
		if n > curCount[r] {
			removed += n - curCount[r]
		}
	}

	modified := min(added, removed)
	added -= modified
	removed -= modified

	var significance float64
	if total := max(len(prev), len(cur)); total > 0 {
		significance = float64(added+removed+modified) / float64(total)
		if significance > 1 {
			significance = 1
		}
	}

	return pipeline.ContentDiff{
		AddedRegions:    added,
		RemovedRegions:  removed,
		ModifiedRegions: modified,
		Significance:    significance,
	}
}

func regions(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
