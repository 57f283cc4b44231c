package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/binary"

	"github.com/example/horse-id/internal/imageprocessor"
)

// DefaultDimension matches the CLIP ViT-B/32 image embedding size.
const DefaultDimension = 512

// StubModel is a deterministic stand-in for a real model: the output is
// derived from a SHA-256 of the pixels, so identical images always embed
// identically. Useful for tests and running the service without a model.
type StubModel struct {
	dimensions int
}

// NewStubModel returns a StubModel producing vectors of the given length.
// Non-positive values use DefaultDimension.
func NewStubModel(dimensions int) *StubModel {
	if dimensions <= 0 {
		dimensions = DefaultDimension
	}
	return &StubModel{dimensions: dimensions}
}

// Dimensions returns the output length.
func (m *StubModel) Dimensions() int {
	return m.dimensions
}

// Infer hashes the raster and expands the digest into a vector in [-1, 1].
func (m *StubModel) Infer(ctx context.Context, img *imageprocessor.RGB) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h := sha256.New()
	var dims [8]byte
	binary.LittleEndian.PutUint32(dims[:4], uint32(img.Width))
	binary.LittleEndian.PutUint32(dims[4:], uint32(img.Height))
	h.Write(dims[:])
	h.Write(img.Pix)
	digest := h.Sum(nil)

	out := make([]float64, m.dimensions)
	for i := range out {
		b := digest[i%len(digest)] ^ byte(i/len(digest)*31)
		out[i] = float64(b)/127.5 - 1.0
	}
	return out, nil
}

var _ Model = (*StubModel)(nil)
