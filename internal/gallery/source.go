package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Source loads a complete gallery from somewhere outside the process.
type Source interface {
	Load(ctx context.Context) (*Gallery, error)
	Describe() string
}

// FileSource reads a JSON object mapping label to an array of numbers.
type FileSource struct {
	Path string
}

// NewFileSource returns a Source backed by the JSON file at path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Load reads and validates the file.
func (s *FileSource) Load(ctx context.Context) (*Gallery, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open gallery file: %w", err)
	}
	defer f.Close()

	g, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("gallery file %s: %w", s.Path, err)
	}
	return g, nil
}

// Describe identifies the source in logs.
func (s *FileSource) Describe() string {
	return "file:" + s.Path
}

// Decode parses the JSON signature format:
//
//	{"Bella": [0.12, -0.03, ...], "Max": [...]}
func Decode(r io.Reader) (*Gallery, error) {
	var raw map[string][]float64
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode signatures: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("decode signatures: expected a JSON object")
	}
	return New(raw)
}
