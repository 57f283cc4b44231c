// Package matcher decides which gallery identity, if any, a query embedding
// belongs to.
//
// Similarity is the dot product of the query and each signature. Both sides
// are unit length, so this is cosine similarity in [-1, 1]. The highest
// score wins; equal scores go to the lexicographically lowest label. A best
// score below the threshold is reported as Unknown, but the score itself is
// always returned.
package matcher

import (
	"errors"
	"fmt"

	"github.com/example/horse-id/internal/gallery"
	"github.com/example/horse-id/internal/vector"
)

// Unknown is the label reported when no signature clears the threshold.
const Unknown = "Unknown"

// DefaultThreshold is the minimum similarity accepted as a match unless
// configured otherwise.
const DefaultThreshold = 0.85

var (
	// ErrEmptyGallery is returned when there is nothing to match against.
	ErrEmptyGallery = errors.New("matcher: gallery is empty")
	// ErrDimensionMismatch is matched by every *DimensionMismatchError.
	ErrDimensionMismatch = errors.New("matcher: dimension mismatch")
)

// DimensionMismatchError reports a signature whose length differs from the
// query's.
type DimensionMismatchError struct {
	Label string
	Query int
	Got   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("matcher: query has %d dimensions, signature %q has %d", e.Query, e.Label, e.Got)
}

// Is lets errors.Is(err, ErrDimensionMismatch) succeed.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// Match is the outcome of Identify. Score is the best similarity found,
// whether or not it cleared the threshold.
type Match struct {
	Label   string
	Score   float64
	Matched bool
}

// Identify scores query against every signature in g.
func Identify(query []float64, g *gallery.Gallery, threshold float64) (Match, error) {
	sigs := g.Signatures()
	if len(sigs) == 0 {
		return Match{}, ErrEmptyGallery
	}

	bestLabel := ""
	bestScore := 0.0
	for i, sig := range sigs {
		if len(sig.Vector) != len(query) {
			return Match{}, &DimensionMismatchError{Label: sig.Label, Query: len(query), Got: len(sig.Vector)}
		}
		score := vector.Dot(query, sig.Vector)
		if i == 0 || score > bestScore || (score == bestScore && sig.Label < bestLabel) {
			bestLabel, bestScore = sig.Label, score
		}
	}

	if bestScore < threshold {
		return Match{Label: Unknown, Score: bestScore}, nil
	}
	return Match{Label: bestLabel, Score: bestScore, Matched: true}, nil
}

// Matcher binds a threshold to Identify.
type Matcher struct {
	threshold float64
}

// New returns a Matcher using threshold.
func New(threshold float64) *Matcher {
	return &Matcher{threshold: threshold}
}

// Threshold returns the configured threshold.
func (m *Matcher) Threshold() float64 {
	return m.threshold
}

// Identify runs the package-level Identify with m's threshold.
func (m *Matcher) Identify(query []float64, g *gallery.Gallery) (Match, error) {
	return Identify(query, g, m.threshold)
}
