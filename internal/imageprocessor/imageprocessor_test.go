package imageprocessor

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func TestDecodePNGFlattensAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.Set(0, 0, color.NRGBA{R: 200, G: 10, B: 30, A: 255})
	src.Set(1, 0, color.NRGBA{A: 0})

	decoded, err := Decode(encodePNG(t, src))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Format != "png" {
		t.Fatalf("expected png, got %q", decoded.Format)
	}
	img := decoded.Image
	if img.Width != 2 || img.Height != 1 || len(img.Pix) != 6 {
		t.Fatalf("unexpected raster %dx%d with %d bytes", img.Width, img.Height, len(img.Pix))
	}
	if r, g, b := img.At(0, 0); r != 200 || g != 10 || b != 30 {
		t.Fatalf("unexpected opaque pixel %d,%d,%d", r, g, b)
	}
	if r, g, b := img.At(1, 0); r != 255 || g != 255 || b != 255 {
		t.Fatalf("expected transparent pixel on white, got %d,%d,%d", r, g, b)
	}
}

func TestDecodeJPEG(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	decoded, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded.Format != "jpeg" || decoded.Image.Width != 8 {
		t.Fatalf("unexpected decode result: %s %dx%d", decoded.Format, decoded.Image.Width, decoded.Image.Height)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("definitely not an image")} {
		_, err := Decode(data)
		if !errors.Is(err, ErrDecode) {
			t.Fatalf("expected ErrDecode, got %v", err)
		}
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Fatalf("expected *DecodeError, got %T", err)
		}
	}
}

func TestEncodePNGRoundTrip(t *testing.T) {
	rgb := &RGB{Width: 2, Height: 1, Pix: []uint8{1, 2, 3, 250, 251, 252}}
	data, err := EncodePNG(rgb)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(decoded.Image.Pix, rgb.Pix) {
		t.Fatalf("expected %v, got %v", rgb.Pix, decoded.Image.Pix)
	}
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}
