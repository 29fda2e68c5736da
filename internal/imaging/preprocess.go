// Package imaging prepares product images for the joint image/text encoder.
package imaging

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// DefaultSize is the square edge length the joint encoder expects.
const DefaultSize = 224

// Result is a preprocessed image.
type Result struct {
	PNG          []byte
	SourceWidth  int
	SourceHeight int
	SourceFormat string
}

// Base64 returns the PNG bytes base64-encoded.
func (r *Result) Base64() string {
	return base64.StdEncoding.EncodeToString(r.PNG)
}

// Preprocess decodes an image, scales it to fit a size×size square keeping
// its aspect ratio, centers it on a black canvas and encodes it as PNG.
func Preprocess(data []byte, size int) (*Result, error) {
	if size <= 0 {
		size = DefaultSize
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	bounds := src.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("image has no pixels")
	}

	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.Black}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(canvas, fitRect(bounds.Dx(), bounds.Dy(), size), src, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}

	return &Result{
		PNG:          buf.Bytes(),
		SourceWidth:  bounds.Dx(),
		SourceHeight: bounds.Dy(),
		SourceFormat: format,
	}, nil
}

// fitRect returns the centered rectangle a w×h image occupies once scaled
// into a size×size square.
func fitRect(w, h, size int) image.Rectangle {
	dw, dh := size, size
	if w >= h {
		dh = h * size / w
		if dh == 0 {
			dh = 1
		}
	} else {
		dw = w * size / h
		if dw == 0 {
			dw = 1
		}
	}
	x := (size - dw) / 2
	y := (size - dh) / 2
	return image.Rect(x, y, x+dw, y+dh)
}
