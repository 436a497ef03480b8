// File: internal/locator/nms.go
package locator

import "sort"

// iouThreshold is the overlap ratio above which two candidates are treated
// as duplicates of the same on-screen element.
const iouThreshold = 0.5

// iou computes the intersection-over-union of two match rectangles.
func iou(a, b MatchResult) float64 {
	ix1 := max(a.X, b.X)
	iy1 := max(a.Y, b.Y)
	ix2 := min(a.X+a.Width, b.X+b.Width)
	iy2 := min(a.Y+a.Height, b.Y+b.Height)

	iw := ix2 - ix1
	ih := iy2 - iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}

	inter := float64(iw * ih)
	union := float64(a.Width*a.Height+b.Width*b.Height) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// suppress applies greedy non-maximum suppression: candidates are sorted by
// confidence descending, the best remaining candidate is kept, and every
// other candidate overlapping it by more than iouThreshold is discarded.
// The survivors, still ordered by confidence, are truncated to maxResults.
func suppress(candidates []MatchResult, maxResults int) []MatchResult {
	if len(candidates) == 0 {
		return nil
	}

	sorted := make([]MatchResult, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	kept := make([]MatchResult, 0, len(sorted))
	for len(sorted) > 0 {
		best := sorted[0]
		kept = append(kept, best)

		remaining := sorted[:0]
		for _, c := range sorted[1:] {
			if iou(best, c) <= iouThreshold {
				remaining = append(remaining, c)
			}
		}
		sorted = remaining
	}

	if maxResults > 0 && len(kept) > maxResults {
		kept = kept[:maxResults]
	}
	return kept
}
