package usecase

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/horse-id/internal/embedder"
	"github.com/example/horse-id/internal/gallery"
	"github.com/example/horse-id/internal/logging"
	"github.com/example/horse-id/internal/matcher"
)

// ErrInferenceTimeout is returned when the model does not answer within the
// configured embed timeout.
var ErrInferenceTimeout = errors.New("usecase: inference timed out")

// GalleryProvider returns the gallery to match against. gallery.Store
// satisfies it.
type GalleryProvider interface {
	Current() *gallery.Gallery
}

// Settings tunes the identification flow.
type Settings struct {
	Threshold    float64
	EmbedTimeout time.Duration
	CacheTTL     time.Duration
}

// IdentificationUseCase runs embed-then-match for uploaded images.
type IdentificationUseCase struct {
	galleries      GalleryProvider
	cache          Cache
	embedder       embedder.Client
	matcher        *matcher.Matcher
	logger         *zap.Logger
	stats          *Stats
	embedTimeout   time.Duration
	cacheTTL       time.Duration
	retryAttempts  int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// Result is the outcome of one identification.
type Result struct {
	RequestID      string
	Prediction     string
	Confidence     float64
	Matched        bool
	Cached         bool
	GalleryVersion string
}

type cachedIdentification struct {
	Prediction     string    `json:"prediction"`
	Confidence     float64   `json:"confidence"`
	Matched        bool      `json:"matched"`
	GalleryVersion string    `json:"gallery_version"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewIdentificationUseCase constructs a use case. cache may be nil to disable
// result caching.
func NewIdentificationUseCase(galleries GalleryProvider, cache Cache, emb embedder.Client, logger *zap.Logger, settings Settings) *IdentificationUseCase {
	if settings.EmbedTimeout <= 0 {
		settings.EmbedTimeout = 10 * time.Second
	}
	if settings.CacheTTL <= 0 {
		settings.CacheTTL = 5 * time.Minute
	}
	return &IdentificationUseCase{
		galleries:      galleries,
		cache:          cache,
		embedder:       emb,
		matcher:        matcher.New(settings.Threshold),
		logger:         logger.Named("identification_usecase"),
		stats:          &Stats{},
		embedTimeout:   settings.EmbedTimeout,
		cacheTTL:       settings.CacheTTL,
		retryAttempts:  3,
		initialBackoff: 50 * time.Millisecond,
		maxBackoff:     time.Second,
	}
}

// Identify embeds imageBytes and matches it against the current gallery.
func (uc *IdentificationUseCase) Identify(ctx context.Context, imageBytes []byte) (*Result, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.identify", requestID)

	g := uc.galleries.Current()
	cacheKey := uc.cacheKey(g, imageBytes)

	if cached, ok := uc.lookup(ctx, requestID, cacheKey); ok {
		uc.stats.record(cached.Matched, cached.Confidence, true)
		opLogger.Info("identification served from cache",
			zap.String("prediction", cached.Prediction), zap.Float64("confidence", cached.Confidence))
		return &Result{
			RequestID:      requestID,
			Prediction:     cached.Prediction,
			Confidence:     cached.Confidence,
			Matched:        cached.Matched,
			Cached:         true,
			GalleryVersion: cached.GalleryVersion,
		}, nil
	}

	query, err := uc.embed(ctx, imageBytes)
	if err != nil {
		uc.stats.fail()
		wrapped := logging.NewOperationError("usecase.embed", requestID, err)
		if errors.Is(err, embedder.ErrDecode) {
			opLogger.Warn("rejected undecodable upload", zap.Error(wrapped))
		} else {
			opLogger.Error("embedding failed", zap.Error(wrapped))
		}
		return nil, wrapped
	}

	match, err := uc.matcher.Identify(query, g)
	if err != nil {
		uc.stats.fail()
		wrapped := logging.NewOperationError("usecase.match", requestID, err)
		opLogger.Error("matching failed", zap.Error(wrapped), zap.Int("gallery_size", g.Len()))
		return nil, wrapped
	}
	uc.stats.record(match.Matched, match.Score, false)

	result := &Result{
		RequestID:      requestID,
		Prediction:     match.Label,
		Confidence:     match.Score,
		Matched:        match.Matched,
		GalleryVersion: g.Version(),
	}
	opLogger.Info("identification complete",
		zap.String("prediction", result.Prediction),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("matched", result.Matched))

	uc.store(ctx, requestID, cacheKey, result)
	return result, nil
}

// Stats returns a snapshot of the request counters.
func (uc *IdentificationUseCase) Stats() StatsSummary {
	return uc.stats.Summary()
}

// Threshold returns the configured match threshold.
func (uc *IdentificationUseCase) Threshold() float64 {
	return uc.matcher.Threshold()
}

// Gallery returns the gallery currently used for matching.
func (uc *IdentificationUseCase) Gallery() *gallery.Gallery {
	return uc.galleries.Current()
}

func (uc *IdentificationUseCase) embed(ctx context.Context, imageBytes []byte) ([]float64, error) {
	embedCtx, cancel := context.WithTimeout(ctx, uc.embedTimeout)
	defer cancel()

	query, err := uc.embedder.Embed(embedCtx, imageBytes)
	if err != nil {
		if errors.Is(embedCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s: %v", ErrInferenceTimeout, uc.embedTimeout, err)
		}
		return nil, err
	}
	return query, nil
}

func (uc *IdentificationUseCase) cacheKey(g *gallery.Gallery, imageBytes []byte) string {
	hash := sha1.Sum(imageBytes)
	threshold := strconv.FormatFloat(uc.matcher.Threshold(), 'g', -1, 64)
	return fmt.Sprintf("identify:%s:%s:%s", g.Version(), threshold, hex.EncodeToString(hash[:]))
}

func (uc *IdentificationUseCase) lookup(ctx context.Context, requestID, key string) (*cachedIdentification, bool) {
	if uc.cache == nil {
		return nil, false
	}
	opLogger := logging.WithOperation(uc.logger, "cache.get.result", requestID)

	var raw string
	err := uc.withCacheRetry(ctx, requestID, "cache.get.result", func() error {
		value, err := uc.cache.Get(ctx, key)
		if err != nil {
			return err
		}
		raw = value
		return nil
	})
	if err != nil {
		if !isMiss(err) {
			opLogger.Warn("failed to read cache", zap.Error(err))
		}
		return nil, false
	}

	var payload cachedIdentification
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		opLogger.Warn("failed to decode cached result", zap.Error(err))
		return nil, false
	}
	return &payload, true
}

func (uc *IdentificationUseCase) store(ctx context.Context, requestID, key string, result *Result) {
	if uc.cache == nil {
		return
	}
	opLogger := logging.WithOperation(uc.logger, "cache.set.result", requestID)

	serialized, err := json.Marshal(cachedIdentification{
		Prediction:     result.Prediction,
		Confidence:     result.Confidence,
		Matched:        result.Matched,
		GalleryVersion: result.GalleryVersion,
		CreatedAt:      time.Now().UTC(),
	})
	if err != nil {
		opLogger.Error("failed to serialize identification result", zap.Error(err))
		return
	}

	if err := uc.withCacheRetry(ctx, requestID, "cache.set.result", func() error {
		return uc.cache.Set(ctx, key, string(serialized), uc.cacheTTL)
	}); err != nil {
		opLogger.Warn("failed to cache identification result", zap.Error(err))
	}
}

func (uc *IdentificationUseCase) withCacheRetry(ctx context.Context, requestID, operation string, fn func() error) error {
	if uc.retryAttempts <= 1 {
		return logging.NewOperationError(operation, requestID, fn())
	}

	backoff := uc.initialBackoff
	opLogger := logging.WithOperation(uc.logger, operation, requestID)
	var err error
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return logging.NewOperationError(operation, requestID, ctx.Err())
			case <-time.After(backoff):
			}
			if next := backoff * 2; next <= uc.maxBackoff {
				backoff = next
			}
		}

		err = fn()
		if err == nil {
			if attempt > 0 {
				opLogger.Info("cache operation succeeded after retry", zap.Int("attempt", attempt+1))
			}
			return nil
		}

		if !isTransientError(err) || attempt == uc.retryAttempts-1 {
			return logging.NewOperationError(operation, requestID, err)
		}

		opLogger.Warn("transient cache error", zap.Error(err), zap.Int("attempt", attempt+1))
	}
	return logging.NewOperationError(operation, requestID, err)
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var temporary interface{ Temporary() bool }
	if errors.As(err, &temporary) && temporary.Temporary() {
		return true
	}

	return false
}
