// Package gallery holds the reference signatures that query embeddings are
// matched against. A Gallery is immutable once built; reloading produces a
// new Gallery that is published through a Store.
package gallery

import (
	"crypto/sha1"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/example/horse-id/internal/vector"
)

var (
	// ErrInvalidSignature is returned for signatures that cannot be stored:
	// blank labels, empty or non-finite vectors, or zero norm.
	ErrInvalidSignature = errors.New("gallery: invalid signature")
	// ErrMixedDimensions is returned when signatures disagree on length.
	ErrMixedDimensions = errors.New("gallery: signatures have mixed dimensions")
)

// Signature is a reference embedding for one identity. Vector has unit norm.
type Signature struct {
	Label  string
	Vector []float64
}

// Gallery is an immutable set of signatures with unique labels, kept sorted
// by label.
type Gallery struct {
	signatures []Signature
	dimension  int
	version    string
}

// New validates raw and builds a Gallery from it. Every vector is rescaled to
// unit length unless its norm is already exactly 1; the input map is not retained. An empty map yields
// an empty Gallery.
func New(raw map[string][]float64) (*Gallery, error) {
	labels := make([]string, 0, len(raw))
	for label := range raw {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	sigs := make([]Signature, 0, len(labels))
	dim := 0
	for _, label := range labels {
		if label == "" {
			return nil, fmt.Errorf("%w: empty label", ErrInvalidSignature)
		}
		v := raw[label]
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: %q has an empty vector", ErrInvalidSignature, label)
		}
		if !vector.Finite(v) {
			return nil, fmt.Errorf("%w: %q has non-finite components", ErrInvalidSignature, label)
		}
		if dim == 0 {
			dim = len(v)
		} else if len(v) != dim {
			return nil, fmt.Errorf("%w: %q has %d components, expected %d", ErrMixedDimensions, label, len(v), dim)
		}
		unit, err := vector.EnsureUnit(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidSignature, label, err)
		}
		sigs = append(sigs, Signature{Label: label, Vector: unit})
	}

	return &Gallery{
		signatures: sigs,
		dimension:  dim,
		version:    fingerprint(sigs),
	}, nil
}

// Len returns the number of signatures. A nil Gallery is empty.
func (g *Gallery) Len() int {
	if g == nil {
		return 0
	}
	return len(g.signatures)
}

// Dimension returns the shared vector length, or 0 for an empty gallery.
func (g *Gallery) Dimension() int {
	if g == nil {
		return 0
	}
	return g.dimension
}

// Version is a content hash of the gallery. Two galleries with the same
// signatures share a version.
func (g *Gallery) Version() string {
	if g == nil {
		return ""
	}
	return g.version
}

// Signatures returns the signatures in label order. The slice is shared and
// must not be modified.
func (g *Gallery) Signatures() []Signature {
	if g == nil {
		return nil
	}
	return g.signatures
}

// Labels returns the labels in sorted order.
func (g *Gallery) Labels() []string {
	out := make([]string, 0, g.Len())
	for _, s := range g.Signatures() {
		out = append(out, s.Label)
	}
	return out
}

func fingerprint(sigs []Signature) string {
	h := sha1.New()
	var buf [8]byte
	for _, s := range sigs {
		binary.LittleEndian.PutUint32(buf[:4], uint32(len(s.Label)))
		h.Write(buf[:4])
		h.Write([]byte(s.Label))
		binary.LittleEndian.PutUint32(buf[:4], uint32(len(s.Vector)))
		h.Write(buf[:4])
		for _, x := range s.Vector {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(x))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
