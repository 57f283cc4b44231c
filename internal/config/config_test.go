package config

import (
	"strings"
	"testing"
	"time"
)

func envFrom(values map[string]string) func(string) string {
	return func(key string) string { return values[key] }
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(envFrom(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Threshold != 0.85 {
		t.Fatalf("expected default threshold 0.85, got %v", cfg.Threshold)
	}
	if cfg.HTTPAddr != ":8000" || cfg.Embedder != EmbedderGRPC || cfg.EmbeddingDim != 512 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.RedisAddr != "" {
		t.Fatal("expected the result cache to be disabled by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := load(envFrom(map[string]string{
		"MATCH_THRESHOLD": "0.9",
		"EMBEDDER":        "STUB",
		"EMBEDDING_DIM":   "64",
		"EMBED_TIMEOUT":   "250ms",
		"GALLERY_WATCH":   "true",
		"IDENTIFY_RPS":    "5",
		"IDENTIFY_BURST":  "2",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Threshold != 0.9 || cfg.Embedder != EmbedderStub || cfg.EmbeddingDim != 64 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.EmbedTimeout != 250*time.Millisecond || !cfg.GalleryWatch {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.IdentifyRPS != 5 || cfg.IdentifyBurst != 2 {
		t.Fatalf("unexpected limiter config: %+v", cfg)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := map[string]struct {
		env  map[string]string
		want string
	}{
		"unparsable threshold": {map[string]string{"MATCH_THRESHOLD": "high"}, "MATCH_THRESHOLD"},
		"threshold range":      {map[string]string{"MATCH_THRESHOLD": "1.5"}, "MATCH_THRESHOLD"},
		"nan threshold":        {map[string]string{"MATCH_THRESHOLD": "NaN"}, "MATCH_THRESHOLD"},
		"unknown embedder":     {map[string]string{"EMBEDDER": "onnx"}, "EMBEDDER"},
		"bad duration":         {map[string]string{"EMBED_TIMEOUT": "soon"}, "EMBED_TIMEOUT"},
		"zero dimension":       {map[string]string{"EMBEDDING_DIM": "0"}, "EMBEDDING_DIM"},
		"watch with dsn":       {map[string]string{"GALLERY_WATCH": "1", "GALLERY_DSN": "postgres://x"}, "GALLERY_WATCH"},
		"burst without room":   {map[string]string{"IDENTIFY_RPS": "1", "IDENTIFY_BURST": "0"}, "IDENTIFY_BURST"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := load(envFrom(tc.env))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %s, got %v", tc.want, err)
			}
		})
	}
}
