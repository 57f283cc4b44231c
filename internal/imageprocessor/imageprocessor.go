// Package imageprocessor turns uploaded bytes into the 3-channel raster the
// embedding model consumes.
package imageprocessor

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaxPixels bounds the decoded size so a small compressed upload cannot
// expand into an enormous raster.
const MaxPixels = 40_000_000

// ErrDecode is matched by every *DecodeError.
var ErrDecode = errors.New("imageprocessor: cannot decode image")

// DecodeError carries the reason an upload could not be decoded.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%v: %v", ErrDecode, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrDecode) succeed.
func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// RGB is a packed 8-bit RGB raster, three bytes per pixel, row-major.
type RGB struct {
	Width  int
	Height int
	Pix    []uint8
}

// At returns the channels of the pixel at (x, y).
func (r *RGB) At(x, y int) (uint8, uint8, uint8) {
	i := (y*r.Width + x) * 3
	return r.Pix[i], r.Pix[i+1], r.Pix[i+2]
}

// Decoded is a decoded upload together with the format it was sniffed as.
type Decoded struct {
	Format string
	Image  *RGB
}

// Decode parses any registered raster format and flattens it to RGB.
// Transparent pixels are composited onto white.
func Decode(data []byte) (*Decoded, error) {
	if len(data) == 0 {
		return nil, &DecodeError{Err: errors.New("empty upload")}
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, &DecodeError{Err: fmt.Errorf("invalid dimensions %dx%d", cfg.Width, cfg.Height)}
	}
	if cfg.Width*cfg.Height > MaxPixels {
		return nil, &DecodeError{Err: fmt.Errorf("image %dx%d exceeds %d pixels", cfg.Width, cfg.Height, MaxPixels)}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	return &Decoded{Format: format, Image: ToRGB(img)}, nil
}

// ToRGB flattens img onto a white background and drops the alpha channel.
func ToRGB(img image.Image) *RGB {
	b := img.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), img, b.Min, draw.Over)

	out := &RGB{Width: b.Dx(), Height: b.Dy(), Pix: make([]uint8, b.Dx()*b.Dy()*3)}
	for y := 0; y < out.Height; y++ {
		row := canvas.Pix[y*canvas.Stride : y*canvas.Stride+out.Width*4]
		for x := 0; x < out.Width; x++ {
			copy(out.Pix[(y*out.Width+x)*3:], row[x*4:x*4+3])
		}
	}
	return out
}

// EncodePNG serializes r losslessly so it can be shipped to a remote model.
func EncodePNG(r *RGB) ([]byte, error) {
	img := image.NewNRGBA(image.Rect(0, 0, r.Width, r.Height))
	for i, j := 0, 0; i < len(r.Pix); i, j = i+3, j+4 {
		img.Pix[j] = r.Pix[i]
		img.Pix[j+1] = r.Pix[i+1]
		img.Pix[j+2] = r.Pix[i+2]
		img.Pix[j+3] = 0xff
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
