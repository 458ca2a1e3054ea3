package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"webpsync/internal/apperr"
	"webpsync/internal/codec"
	"webpsync/internal/config"
	"webpsync/internal/model"
	"webpsync/internal/registry"
	"webpsync/internal/schedule"
	"webpsync/internal/service/compression"
)

type ImageScanner interface {
	Scan(ctx context.Context) ([]model.ImageRecord, error)
}

type Registry interface {
	ConvertOne(ctx context.Context, img model.ImageRecord, opts codec.Options) (*model.ConversionRecord, error)
	Retry(ctx context.Context, id string, opts codec.Options) (*model.ConversionRecord, error)
	Restore(ctx context.Context, id string) (*model.ConversionRecord, error)
	BatchConvertAll(ctx context.Context, records []model.ImageRecord, opts codec.Options, onProgress func(registry.BatchProgress)) (registry.BatchReport, error)
	List(ctx context.Context, filter model.ConversionFilter) ([]model.ConversionRecord, error)
}

type MetricsReader interface {
	LastDays(ctx context.Context, now time.Time, n int) ([]model.StorageMetric, error)
}

// FileOpener serves blobs of the local storage mode under /files.
type FileOpener interface {
	Open(ctx context.Context, path string) (io.ReadCloser, error)
}

type Deps struct {
	Scanner     ImageScanner
	Registry    Registry
	Schedules   *schedule.Store
	Metrics     MetricsReader
	Encoder     compression.Encoder
	Presets     []config.Preset
	Defaults    codec.Options
	Concurrency int
	Files       FileOpener
	Now         func() time.Time
}

type Server struct {
	deps   Deps
	router *gin.Engine
	http   *http.Server
}

func NewServer(addr string, deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.MaxMultipartMemory = 64 << 20

	s := &Server{deps: deps, router: r}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	r.GET("/healthcheck", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Files != nil {
		r.GET("/files/*path", s.handleFile)
	}

	api := r.Group("/api")
	api.GET("/images", s.handleListImages)
	api.GET("/conversions", s.handleListConversions)
	api.POST("/conversions", s.handleConvertOne)
	api.POST("/conversions/batch", s.handleConvertBatch)
	api.POST("/conversions/:id/retry", s.handleRetry)
	api.POST("/conversions/:id/restore", s.handleRestore)
	api.GET("/schedule", s.handleGetSchedule)
	api.PUT("/schedule", s.handleUpdateSchedule)
	api.GET("/metrics", s.handleMetrics)
	api.GET("/presets", s.handlePresets)
	api.POST("/tools/analyze", s.handleAnalyze)
	api.POST("/tools/convert", s.handleToolConvert)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	slog.Info("Server HTTP dimulai", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("Permintaan HTTP",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindPolicy:
		return http.StatusUnprocessableEntity
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindCodec, apperr.KindStorage:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Permintaan gagal", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": apperr.Message(err), "kind": apperr.KindOf(err)})
}
