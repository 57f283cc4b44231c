// Package embedder converts uploaded image bytes into unit-length embedding
// vectors. The model that produces the raw vector sits behind the Model
// interface and is treated as opaque.
package embedder

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/horse-id/internal/imageprocessor"
	"github.com/example/horse-id/internal/vector"
)

var (
	// ErrDecode aliases imageprocessor.ErrDecode so callers only need this package.
	ErrDecode = imageprocessor.ErrDecode
	// ErrDegenerateEmbedding is returned when the model output cannot be
	// normalized.
	ErrDegenerateEmbedding = errors.New("embedder: degenerate embedding")
)

// Model produces a raw embedding for a decoded image. Preprocessing such as
// resizing and pixel normalization belongs to the model.
type Model interface {
	Infer(ctx context.Context, img *imageprocessor.RGB) ([]float64, error)
}

// Client is what callers of the package depend on.
type Client interface {
	Embed(ctx context.Context, imageBytes []byte) ([]float64, error)
}

// Embedder decodes uploads, runs the model and normalizes its output.
type Embedder struct {
	model  Model
	logger *zap.Logger
}

// New returns an Embedder backed by model.
func New(model Model, logger *zap.Logger) *Embedder {
	return &Embedder{model: model, logger: logger.Named("embedder")}
}

// Embed returns the unit-length embedding of imageBytes.
func (e *Embedder) Embed(ctx context.Context, imageBytes []byte) ([]float64, error) {
	decoded, err := imageprocessor.Decode(imageBytes)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("decoded upload",
		zap.String("format", decoded.Format),
		zap.Int("width", decoded.Image.Width),
		zap.Int("height", decoded.Image.Height))

	raw, err := e.model.Infer(ctx, decoded.Image)
	if err != nil {
		return nil, fmt.Errorf("model inference: %w", err)
	}
	if !vector.Finite(raw) {
		return nil, fmt.Errorf("%w: model returned non-finite values", ErrDegenerateEmbedding)
	}
	unit, err := vector.Normalize(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerateEmbedding, err)
	}
	return unit, nil
}

var _ Client = (*Embedder)(nil)
