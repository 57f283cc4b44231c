package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/example/horse-id/internal/embedder"
	"github.com/example/horse-id/internal/gallery"
	"github.com/example/horse-id/internal/matcher"
	"github.com/example/horse-id/internal/usecase"
)

// MaxUploadSize is the default upload limit in bytes.
const MaxUploadSize = 10 << 20

const requestIDHeader = "X-Request-ID"

// Identifier is the part of the use case the routes need.
type Identifier interface {
	Identify(ctx context.Context, imageBytes []byte) (*usecase.Result, error)
	Stats() usecase.StatsSummary
	Gallery() *gallery.Gallery
	Threshold() float64
}

// Options configures RegisterRoutes. Zero values pick defaults; a nil
// Limiter disables rate limiting.
type Options struct {
	MaxUploadBytes int64
	Limiter        *rate.Limiter
}

type identifyResponse struct {
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, uc Identifier, opts Options) {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = MaxUploadSize
	}

	router.GET("/health", func(c *gin.Context) {
		g := uc.Gallery()
		c.JSON(http.StatusOK, gin.H{
			"status":          "ok",
			"gallery_size":    g.Len(),
			"gallery_version": g.Version(),
			"threshold":       uc.Threshold(),
			"stats":           uc.Stats(),
		})
	})

	router.POST("/identify", rateLimit(opts.Limiter), func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, opts.MaxUploadBytes)

		file, err := uploadedFile(c)
		if err != nil {
			if isTooLarge(err) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit", "code": "too_large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required", "code": "missing_file"})
			return
		}
		if file.Size > opts.MaxUploadBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image exceeds upload limit", "code": "too_large"})
			return
		}
		if !acceptedContentType(file.Header.Get("Content-Type")) {
			c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "upload must be an image", "code": "unsupported_media_type"})
			return
		}

		src, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unable to open image", "code": "unreadable_file"})
			return
		}
		defer src.Close()

		data, err := io.ReadAll(src)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read image", "code": "unreadable_file"})
			return
		}

		result, err := uc.Identify(c.Request.Context(), data)
		if err != nil {
			status, code := classify(err)
			c.JSON(status, gin.H{"error": err.Error(), "code": code})
			return
		}

		c.Header(requestIDHeader, result.RequestID)
		c.JSON(http.StatusOK, identifyResponse{
			Prediction: result.Prediction,
			Confidence: result.Confidence,
		})
	})
}

// uploadedFile accepts the image under "file" or, failing that, "image".
func uploadedFile(c *gin.Context) (*multipart.FileHeader, error) {
	file, err := c.FormFile("file")
	if err == nil {
		return file, nil
	}
	if !errors.Is(err, http.ErrMissingFile) {
		return nil, err
	}
	return c.FormFile("image")
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

func acceptedContentType(header string) bool {
	if header == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(header)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mediaType, "image/") || mediaType == "application/octet-stream"
}

// classify maps identification errors to a status code and a stable error
// code, separating bad input from bad server configuration.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, embedder.ErrDecode):
		return http.StatusBadRequest, "decode_error"
	case errors.Is(err, matcher.ErrDimensionMismatch):
		return http.StatusInternalServerError, "dimension_mismatch"
	case errors.Is(err, matcher.ErrEmptyGallery):
		return http.StatusInternalServerError, "empty_gallery"
	case errors.Is(err, embedder.ErrDegenerateEmbedding):
		return http.StatusInternalServerError, "degenerate_embedding"
	case errors.Is(err, usecase.ErrInferenceTimeout):
		return http.StatusGatewayTimeout, "inference_timeout"
	case errors.Is(err, context.Canceled):
		return 499, "canceled"
	default:
		return http.StatusBadGateway, "model_unavailable"
	}
}

func rateLimit(limiter *rate.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter != nil && !limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many identification requests", "code": "rate_limited"})
			return
		}
		c.Next()
	}
}
