// Package config loads service configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// Embedder backends.
const (
	EmbedderGRPC = "grpc"
	EmbedderStub = "stub"
)

// Config holds all service configuration.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration
	LogLevel        string
	MaxUploadBytes  int64

	GalleryPath  string
	GalleryDSN   string
	GalleryWatch bool

	Threshold float64

	Embedder      string
	EmbedderAddr  string
	EmbeddingDim  int
	EmbedTimeout  time.Duration
	IdentifyRPS   float64
	IdentifyBurst int

	RedisAddr string
	CacheTTL  time.Duration
}

// Load reads the environment, applies defaults and validates the result.
func Load() (*Config, error) {
	return load(os.Getenv)
}

func load(getenv func(string) string) (*Config, error) {
	env := envReader{getenv: getenv}

	cfg := &Config{
		HTTPAddr:        env.str("HTTP_ADDR", ":8000"),
		ShutdownTimeout: env.asDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		LogLevel:        env.str("LOG_LEVEL", "info"),
		MaxUploadBytes:  env.asInt("MAX_UPLOAD_BYTES", 10<<20),

		GalleryPath:  env.str("GALLERY_PATH", "horse_signatures.json"),
		GalleryDSN:   env.str("GALLERY_DSN", ""),
		GalleryWatch: env.asBool("GALLERY_WATCH", false),

		Threshold: env.asFloat("MATCH_THRESHOLD", 0.85),

		Embedder:      strings.ToLower(env.str("EMBEDDER", EmbedderGRPC)),
		EmbedderAddr:  env.str("EMBEDDER_ADDR", "embedding-service:50051"),
		EmbeddingDim:  int(env.asInt("EMBEDDING_DIM", 512)),
		EmbedTimeout:  env.asDuration("EMBED_TIMEOUT", 10*time.Second),
		IdentifyRPS:   env.asFloat("IDENTIFY_RPS", 0),
		IdentifyBurst: int(env.asInt("IDENTIFY_BURST", 10)),

		RedisAddr: env.str("REDIS_ADDR", ""),
		CacheTTL:  env.asDuration("CACHE_TTL", 5*time.Minute),
	}
	if env.err != nil {
		return nil, env.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if math.IsNaN(c.Threshold) || c.Threshold < -1 || c.Threshold > 1 {
		errs = append(errs, fmt.Errorf("MATCH_THRESHOLD must be within [-1, 1], got %v", c.Threshold))
	}
	if c.Embedder != EmbedderGRPC && c.Embedder != EmbedderStub {
		errs = append(errs, fmt.Errorf("EMBEDDER must be %q or %q, got %q", EmbedderGRPC, EmbedderStub, c.Embedder))
	}
	if c.Embedder == EmbedderGRPC && c.EmbedderAddr == "" {
		errs = append(errs, errors.New("EMBEDDER_ADDR is required for the grpc embedder"))
	}
	if c.EmbeddingDim <= 0 {
		errs = append(errs, errors.New("EMBEDDING_DIM must be a positive integer"))
	}
	if c.EmbedTimeout <= 0 {
		errs = append(errs, errors.New("EMBED_TIMEOUT must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.IdentifyRPS < 0 {
		errs = append(errs, errors.New("IDENTIFY_RPS must not be negative"))
	}
	if c.IdentifyRPS > 0 && c.IdentifyBurst <= 0 {
		errs = append(errs, errors.New("IDENTIFY_BURST must be positive when IDENTIFY_RPS is set"))
	}
	if c.GalleryDSN == "" && c.GalleryPath == "" {
		errs = append(errs, errors.New("one of GALLERY_PATH or GALLERY_DSN is required"))
	}
	if c.GalleryWatch && c.GalleryDSN != "" {
		errs = append(errs, errors.New("GALLERY_WATCH only applies to file galleries"))
	}
	return errors.Join(errs...)
}

type envReader struct {
	getenv func(string) string
	err    error
}

func (e *envReader) str(key, fallback string) string {
	if value := strings.TrimSpace(e.getenv(key)); value != "" {
		return value
	}
	return fallback
}

func (e *envReader) parse(key string, parse func(string) error) {
	value := strings.TrimSpace(e.getenv(key))
	if value == "" {
		return
	}
	if err := parse(value); err != nil {
		e.err = errors.Join(e.err, fmt.Errorf("invalid %s=%q: %w", key, value, err))
	}
}

func (e *envReader) asInt(key string, fallback int64) int64 {
	out := fallback
	e.parse(key, func(s string) (err error) {
		out, err = strconv.ParseInt(s, 10, 64)
		return err
	})
	return out
}

func (e *envReader) asFloat(key string, fallback float64) float64 {
	out := fallback
	e.parse(key, func(s string) (err error) {
		out, err = strconv.ParseFloat(s, 64)
		return err
	})
	return out
}

func (e *envReader) asBool(key string, fallback bool) bool {
	out := fallback
	e.parse(key, func(s string) (err error) {
		out, err = strconv.ParseBool(s)
		return err
	})
	return out
}

func (e *envReader) asDuration(key string, fallback time.Duration) time.Duration {
	out := fallback
	e.parse(key, func(s string) (err error) {
		out, err = time.ParseDuration(s)
		return err
	})
	return out
}
