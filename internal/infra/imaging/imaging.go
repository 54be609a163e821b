// Package imaging decodes uploaded images, derives sized variants and
// extracts the dominant colour used as a placeholder background.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif" // register decoder
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"entitysync/pkg/domain"
)

// ErrEmptyImage is returned for zero-sized input.
var ErrEmptyImage = errors.New("imaging: empty image")

// colorSample is the edge length images are reduced to before averaging.
const colorSample = 32

// Decode parses b in any registered format.
func Decode(b domain.Blob) (image.Image, string, error) {
	if len(b.Data) == 0 {
		return nil, "", ErrEmptyImage
	}
	img, format, err := image.Decode(bytes.NewReader(b.Data))
	if err != nil {
		return nil, "", fmt.Errorf("imaging: decode: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, "", ErrEmptyImage
	}
	return img, format, nil
}

// Resize scales b to width pixels keeping the aspect ratio and encodes the
// result as PNG. Images already narrower than width, and a zero width, are
// returned unchanged.
func Resize(b domain.Blob, width int) (domain.Blob, error) {
	img, _, err := Decode(b)
	if err != nil {
		return domain.Blob{}, err
	}
	bounds := img.Bounds()
	if width <= 0 || bounds.Dx() <= width {
		return b, nil
	}
	height := max(1, bounds.Dy()*width/bounds.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return domain.Blob{}, fmt.Errorf("imaging: encode: %w", err)
	}
	return domain.Blob{ContentType: "image/png", Data: buf.Bytes()}, nil
}

// DominantColor returns the mean colour of b as "#rrggbb". Transparent
// pixels do not contribute; a fully transparent image yields white.
func DominantColor(b domain.Blob) (string, error) {
	img, _, err := Decode(b)
	if err != nil {
		return "", err
	}
	bounds := img.Bounds()
	w, h := min(colorSample, bounds.Dx()), min(colorSample, bounds.Dy())
	sample := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(sample, sample.Bounds(), img, bounds, draw.Src, nil)

	var r, g, bl, n uint64
	for i := 0; i < len(sample.Pix); i += 4 {
		a := uint64(sample.Pix[i+3])
		if a == 0 {
			continue
		}
		r += uint64(sample.Pix[i]) * a
		g += uint64(sample.Pix[i+1]) * a
		bl += uint64(sample.Pix[i+2]) * a
		n += a
	}
	if n == 0 {
		return "#ffffff", nil
	}
	return fmt.Sprintf("#%02x%02x%02x", r/n, g/n, bl/n), nil
}

var _ domain.DeriveFunc = DominantColor
