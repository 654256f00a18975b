package tracker

import "sort"

// iou computes intersection-over-union on two boxes in continuous pixel
// space (no +1 discrete-pixel convention here, matching the tracker's
// floating-point box representation).
func iou(a, b Box) float64 {
	x1 := maxF(a.X1, b.X1)
	y1 := maxF(a.Y1, b.Y1)
	x2 := minF(a.X2, b.X2)
	y2 := minF(a.Y2, b.Y2)

	interW := maxF(0, x2-x1)
	interH := maxF(0, y2-y1)
	inter := interW * interH

	areaA := (a.X2 - a.X1) * (a.Y2 - a.Y1)
	areaB := (b.X2 - b.X1) * (b.Y2 - b.Y1)
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// cosineSimilarity assumes both vectors are L2-normalized; if either is empty the pair has no appearance
// signal and the caller should fall back to IoU-only scoring.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

const appearanceWeight = 0.3 // w_app default

// pairScore combines IoU with cosine similarity when both sides carry
// an appearance feature: (1-w_app)*IoU + w_app*cos_sim.
func pairScore(trackBox Box, trackFeature []float32, detBox Box, detFeature []float32) float64 {
	i := iou(trackBox, detBox)
	if len(trackFeature) == 0 || len(detFeature) == 0 {
		return i
	}
	c := cosineSimilarity(trackFeature, detFeature)
	return (1-appearanceWeight)*i + appearanceWeight*c
}

type assignment struct {
	trackIdx int
	detIdx   int
	score    float64
}

// greedyAssign builds every candidate pair's score, then assigns in
// descending score order, skipping any pair whose either side is
// already taken or whose score falls below minScore.
func greedyAssign(numTracks, numDets int, score func(t, d int) float64, minScore float64) []assignment {
	var candidates []assignment
	for t := 0; t < numTracks; t++ {
		for d := 0; d < numDets; d++ {
			s := score(t, d)
			if s >= minScore {
				candidates = append(candidates, assignment{trackIdx: t, detIdx: d, score: s})
			}
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })

	trackTaken := make([]bool, numTracks)
	detTaken := make([]bool, numDets)
	var result []assignment
	for _, c := range candidates {
		if trackTaken[c.trackIdx] || detTaken[c.detIdx] {
			continue
		}
		trackTaken[c.trackIdx] = true
		detTaken[c.detIdx] = true
		result = append(result, c)
	}
	return result
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
