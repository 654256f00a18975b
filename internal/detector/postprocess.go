package detector

import (
	"math"
	"sort"
)

const dflBins = 16

// Softmax returns the softmax distribution over bins.
func Softmax(bins []float32) []float32 {
	out := make([]float32, len(bins))
	maxV := bins[0]
	for _, v := range bins {
		if v > maxV {
			maxV = v
		}
	}
	var sum float64
	for i, v := range bins {
		e := math.Exp(float64(v - maxV))
		out[i] = float32(e)
		sum += e
	}
	if sum == 0 {
		return out
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// DFLExpectation decodes a Distribution Focal Loss bin vector into a
// scalar distance in stride units: softmax over the bins, then the
// probability-weighted expectation over bin index.
func DFLExpectation(bins []float32) float32 {
	probs := Softmax(bins)
	var exp float32
	for i, p := range probs {
		exp += float32(i) * p
	}
	return exp
}

// StrideOutput holds one scale branch's raw model output for a single
// frame: gridW*gridH cells, each with a 4*dflBins box-DFL vector and a
// numClasses class-score vector, plus an optional fast score_sum channel
//. All slices are grid-major (cell index = i*gridW+j).
type StrideOutput struct {
	Stride     int
	GridW      int
	GridH      int
	NumClasses int
	BoxDFL     []float32 // len == gridW*gridH*4*dflBins
	ClassScore []float32 // len == gridW*gridH*numClasses
	ScoreSum   []float32 // len == gridW*gridH, nil if the model doesn't export it
}

// Decode runs the score_sum prefilter, class scan, threshold, and DFL
// box-decode over one stride's float32 output (it does no
// dequantization), returning candidate detections in letterboxed
// model-input coordinates (the
// caller still owes the NMS pass and the letterbox inverse).
func (s StrideOutput) Decode(cfg Config) []Detection {
	var out []Detection

	for i := 0; i < s.GridH; i++ {
		for j := 0; j < s.GridW; j++ {
			cell := i*s.GridW + j

			// Step 1: fast score_sum prefilter, when the model exports it.
			if s.ScoreSum != nil && s.ScoreSum[cell] < cfg.ConfidenceThreshold {
				continue
			}

			// Step 2: class scan.
			classBase := cell * s.NumClasses
			maxScore := float32(-1)
			argmax := -1
			for c := 0; c < s.NumClasses; c++ {
				sc := s.ClassScore[classBase+c]
				if sc > maxScore {
					maxScore = sc
					argmax = c
				}
			}
			if maxScore < cfg.ConfidenceThreshold {
				continue
			}

			// Step 3: DFL decode of the four sides.
			boxBase := cell * 4 * dflBins
			dl := DFLExpectation(s.BoxDFL[boxBase : boxBase+dflBins])
			dt := DFLExpectation(s.BoxDFL[boxBase+dflBins : boxBase+2*dflBins])
			dr := DFLExpectation(s.BoxDFL[boxBase+2*dflBins : boxBase+3*dflBins])
			db := DFLExpectation(s.BoxDFL[boxBase+3*dflBins : boxBase+4*dflBins])

			// Step 4: anchor-relative distances -> absolute box, in
			// stride units per the grid cell center (j+0.5, i+0.5).
			st := float32(s.Stride)
			x1 := (-dl + float32(j) + 0.5) * st
			y1 := (-dt + float32(i) + 0.5) * st
			x2 := (dr + float32(j) + 0.5) * st
			y2 := (db + float32(i) + 0.5) * st

			out = append(out, Detection{
				Box:        Box{X1: x1, Y1: y1, X2: x2, Y2: y2},
				Confidence: maxScore,
				ClassID:    argmax,
				ClassName:  ClassName(argmax),
			})
		}
	}
	return out
}

// IoU uses the +1-pixel convention so overlap
// math stays consistent when mixed with detector-space integer
// coordinates from other reference implementations.
func IoU(a, b Box) float32 {
	x1 := maxF(a.X1, b.X1)
	y1 := maxF(a.Y1, b.Y1)
	x2 := minF(a.X2, b.X2)
	y2 := minF(a.Y2, b.Y2)

	interW := maxF(0, x2-x1+1)
	interH := maxF(0, y2-y1+1)
	inter := interW * interH

	areaA := (a.X2 - a.X1 + 1) * (a.Y2 - a.Y1 + 1)
	areaB := (b.X2 - b.X1 + 1) * (b.Y2 - b.Y1 + 1)
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// NMS performs per-class greedy non-maximum suppression.
func NMS(dets []Detection, iouThreshold float32) []Detection {
	byClass := map[int][]Detection{}
	for _, d := range dets {
		byClass[d.ClassID] = append(byClass[d.ClassID], d)
	}

	var result []Detection
	for _, group := range byClass {
		sort.Slice(group, func(i, j int) bool { return group[i].Confidence > group[j].Confidence })
		keep := make([]bool, len(group))
		for i := range keep {
			keep[i] = true
		}
		for i := 0; i < len(group); i++ {
			if !keep[i] {
				continue
			}
			result = append(result, group[i])
			for j := i + 1; j < len(group); j++ {
				if keep[j] && IoU(group[i].Box, group[j].Box) > iouThreshold {
					keep[j] = false
				}
			}
		}
	}
	return result
}

// Dequantize performs the affine int8 -> float32 conversion: f = (q - zp) * scale.
func Dequantize(q int32, scale float32, zp int32) float32 {
	return float32(q-zp) * scale
}

// QuantizeThreshold converts a float confidence threshold into the
// quantized domain so the score_sum prefilter can compare int8 values
// directly instead of dequantizing every cell.
func QuantizeThreshold(threshold float32, scale float32, zp int32) int32 {
	if scale == 0 {
		return zp
	}
	return int32(math.Round(float64(threshold/scale))) + zp
}

func maxF(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func minF(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
