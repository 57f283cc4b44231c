package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/horse-id/internal/config"
	"github.com/example/horse-id/internal/embedder"
	"github.com/example/horse-id/internal/gallery"
	"github.com/example/horse-id/internal/grpcclient"
	"github.com/example/horse-id/internal/handlers"
	"github.com/example/horse-id/internal/logging"
	"github.com/example/horse-id/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	source := initGallerySource(ctx, cfg, logger)
	initial, err := source.Load(ctx)
	if err != nil {
		logger.Fatal("failed to load gallery", zap.String("source", source.Describe()), zap.Error(err))
	}
	if initial.Len() == 0 {
		logger.Warn("gallery is empty, every identification will fail", zap.String("source", source.Describe()))
	}
	logger.Info("gallery loaded",
		zap.String("source", source.Describe()),
		zap.Int("signatures", initial.Len()),
		zap.Int("dimension", initial.Dimension()),
		zap.String("version", initial.Version()))
	store := gallery.NewStore(initial)

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	if fileSource, ok := source.(*gallery.FileSource); ok && cfg.GalleryWatch {
		watcher := gallery.NewWatcher(store, fileSource, gallery.DefaultDebounce, logger)
		go func() {
			if err := watcher.Run(watchCtx); err != nil {
				logger.Error("gallery watcher stopped", zap.Error(err))
			}
		}()
	}

	model, conn := initModel(ctx, cfg, logger)
	if conn != nil {
		defer conn.Close()
	}
	emb := embedder.New(model, logger)

	var cache usecase.Cache
	if cfg.RedisAddr != "" {
		redisCtx, redisCancel := context.WithTimeout(ctx, 5*time.Second)
		defer redisCancel()
		cache = usecase.NewRedisCache(initRedis(redisCtx, cfg.RedisAddr, logger))
	}

	uc := usecase.NewIdentificationUseCase(store, cache, emb, logger, usecase.Settings{
		Threshold:    cfg.Threshold,
		EmbedTimeout: cfg.EmbedTimeout,
		CacheTTL:     cfg.CacheTTL,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           buildRouter(uc, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("horse identification API listening",
		zap.String("addr", cfg.HTTPAddr),
		zap.Float64("threshold", cfg.Threshold),
		zap.String("embedder", cfg.Embedder))
	if err := serveHTTPServer(server, cfg.ShutdownTimeout, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}

	stats := uc.Stats()
	logger.Info("identification summary",
		zap.Int64("total_requests", stats.TotalRequests),
		zap.Int64("matched", stats.Matched),
		zap.Int64("unknown", stats.Unknown),
		zap.Int64("failed", stats.Failed),
		zap.Int64("cache_hits", stats.CacheHits),
		zap.Float64("average_confidence", stats.AverageConfidence))
}

func buildRouter(uc *usecase.IdentificationUseCase, cfg *config.Config) *gin.Engine {
	r := gin.Default()
	r.MaxMultipartMemory = cfg.MaxUploadBytes

	var limiter *rate.Limiter
	if cfg.IdentifyRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.IdentifyRPS), cfg.IdentifyBurst)
	}
	handlers.RegisterRoutes(r, uc, handlers.Options{
		MaxUploadBytes: cfg.MaxUploadBytes,
		Limiter:        limiter,
	})
	return r
}

func initGallerySource(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) gallery.Source {
	if cfg.GalleryDSN == "" {
		return gallery.NewFileSource(cfg.GalleryPath)
	}

	db, err := gorm.Open(postgres.Open(cfg.GalleryDSN), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		zapLogger.Fatal("failed to connect to gallery database", zap.Error(err))
	}

	sqlDB, err := db.DB()
	if err != nil {
		zapLogger.Fatal("failed to access db handle", zap.Error(err))
	}
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		zapLogger.Fatal("gallery database ping failed", zap.Error(err))
	}

	return gallery.NewDBSource(db, zapLogger)
}

func initModel(ctx context.Context, cfg *config.Config, zapLogger *zap.Logger) (embedder.Model, *grpc.ClientConn) {
	if cfg.Embedder == config.EmbedderStub {
		zapLogger.Warn("using deterministic stub model, predictions are not meaningful",
			zap.Int("dimensions", cfg.EmbeddingDim))
		return embedder.NewStubModel(cfg.EmbeddingDim), nil
	}

	model, conn, err := grpcclient.DialEmbedder(ctx, cfg.EmbedderAddr, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to connect to embedding service", zap.Error(err))
	}
	return model, conn
}

func initRedis(ctx context.Context, addr string, zapLogger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		zapLogger.Fatal("redis connection failed", zap.Error(err))
	}
	return client
}

func serveHTTPServer(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger) error {
	return serveHTTPServerWithOptions(server, shutdownTimeout, logger, nil, nil)
}

func serveHTTPServerWithOptions(server *http.Server, shutdownTimeout time.Duration, logger *zap.Logger, listener net.Listener, signalCh <-chan os.Signal) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if listener != nil {
			err = server.Serve(listener)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	var (
		sigCh       <-chan os.Signal
		stopSignals func()
	)

	if signalCh != nil {
		sigCh = signalCh
		stopSignals = func() {}
	} else {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		sigCh = ch
		stopSignals = func() {
			signal.Stop(ch)
		}
	}
	defer stopSignals()

	select {
	case err := <-errCh:
		return err
	case sig, ok := <-sigCh:
		if !ok {
			return <-errCh
		}
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return <-errCh
	}
}
