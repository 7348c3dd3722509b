// Package server exposes the analysis pipeline over HTTP.
package server

import (
	"context"

	"github.com/skillscope/skillscope/internal/analysis"
	"github.com/skillscope/skillscope/internal/cache"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

// Analyzer runs the pipeline for one query. Satisfied by *analysis.Aggregator.
type Analyzer interface {
	Run(ctx context.Context, query string, maxCount int, forceRefresh bool) (*analysis.Result, error)
}

type Server struct {
	app      *fiber.App
	analyzer Analyzer
	store    cache.Store
	logger   *zap.Logger
}

func New(analyzer Analyzer, store cache.Store, logger *zap.Logger) *Server {
	s := &Server{
		app: fiber.New(fiber.Config{AppName: "skillscope"}),
		analyzer: analyzer,
		store:    store,
		logger:   logger,
	}

	s.app.Use(accessLog(logger))

	s.app.Get("/health", s.handleHealth)

	api := s.app.Group("/api")
	api.Get("/analyze", s.handleAnalyze)
	api.Delete("/cache", s.handleCacheDelete)
	api.Post("/cache/flush", s.handleCacheFlush)
	api.Get("/export/csv", s.handleExportCSV)
	api.Get("/export/xlsx", s.handleExportXLSX)

	return s
}

func (s *Server) Listen(addr string) error {
	s.logger.Info("http server listening", zap.String("addr", addr))
	return s.app.Listen(addr, fiber.ListenConfig{DisableStartupMessage: true})
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
