package detector

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// LetterboxParams records the transform needed to map model-space
// coordinates back to the original image.
type LetterboxParams struct {
	Scale float32
	PadX  float32
	PadY  float32
	SrcW  int
	SrcH  int
}

// Letterbox resizes src to fit inside an inputSize x inputSize square,
// preserving aspect ratio, and pads the remainder with gray (114,114,114)
// as YOLO-family training pipelines expect. Resizing uses
// golang.org/x/image/draw's bilinear scaler rather than a hand-rolled
// nearest-neighbor loop.
func Letterbox(src image.Image, inputSize int) (*image.RGBA, LetterboxParams) {
	b := src.Bounds()
	srcW, srcH := b.Dx(), b.Dy()

	scale := float32(inputSize) / float32(srcW)
	if s := float32(inputSize) / float32(srcH); s < scale {
		scale = s
	}

	newW := int(float32(srcW) * scale)
	newH := int(float32(srcH) * scale)
	padX := float32(inputSize-newW) / 2
	padY := float32(inputSize-newH) / 2

	dst := image.NewRGBA(image.Rect(0, 0, inputSize, inputSize))
	fill := color.RGBA{R: 114, G: 114, B: 114, A: 255}
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)

	destRect := image.Rect(int(padX), int(padY), int(padX)+newW, int(padY)+newH)
	draw.BiLinear.Scale(dst, destRect, src, b, draw.Over, nil)

	return dst, LetterboxParams{Scale: scale, PadX: padX, PadY: padY, SrcW: srcW, SrcH: srcH}
}

// Forward maps a point from original-image space into letterboxed
// model-input space.
func (p LetterboxParams) Forward(x, y float32) (float32, float32) {
	return x*p.Scale + p.PadX, y*p.Scale + p.PadY
}

// Inverse maps a point from letterboxed model-input space back to
// original-image space — the transform applied to detector output boxes.
func (p LetterboxParams) Inverse(x, y float32) (float32, float32) {
	return (x - p.PadX) / p.Scale, (y - p.PadY) / p.Scale
}

// InverseBox applies Inverse to both corners of a box and clips the
// result to the original image bounds.
func (p LetterboxParams) InverseBox(b Box) Box {
	x1, y1 := p.Inverse(b.X1, b.Y1)
	x2, y2 := p.Inverse(b.X2, b.Y2)
	return Box{X1: x1, Y1: y1, X2: x2, Y2: y2}.Clip(float32(p.SrcW), float32(p.SrcH))
}
