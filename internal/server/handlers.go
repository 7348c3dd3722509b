package server

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/skillscope/skillscope/internal/analysis"
	"github.com/skillscope/skillscope/internal/export"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"
)

const (
	defaultCount = 100
	minCount     = 1
	maxCount     = 150
)

func (s *Server) handleHealth(c fiber.Ctx) error {
	return respond(c, fiber.StatusOK, "ok", fiber.Map{"service": "skillscope"})
}

// parseAnalyzeParams reads query, count and refresh. Count is clamped into
// the supported range rather than rejected.
func parseAnalyzeParams(c fiber.Ctx) (query string, count int, refresh bool, err error) {
	query = strings.TrimSpace(c.Query("query"))
	if query == "" {
		return "", 0, false, errors.New("query parameter is required")
	}

	count = defaultCount
	if raw := c.Query("count"); raw != "" {
		count, err = strconv.Atoi(raw)
		if err != nil {
			return "", 0, false, fmt.Errorf("count must be an integer: %w", err)
		}
	}
	if count < minCount {
		count = minCount
	}
	if count > maxCount {
		count = maxCount
	}

	raw := c.Query("refresh")
	refresh = raw == "true" || raw == "1"

	return query, count, refresh, nil
}

func (s *Server) analyze(c fiber.Ctx) (string, *analysis.Result, error) {
	query, count, refresh, err := parseAnalyzeParams(c)
	if err != nil {
		return "", nil, respond(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	result, err := s.analyzer.Run(c.Context(), query, count, refresh)
	if errors.Is(err, analysis.ErrNoResults) {
		return "", nil, respond(c, fiber.StatusNotFound, "no results for this query", nil)
	}
	if err != nil {
		s.logger.Error("analysis failed", zap.String("query", query), zap.Error(err))
		return "", nil, respond(c, fiber.StatusInternalServerError, "analysis failed", nil)
	}

	return query, result, nil
}

func (s *Server) handleAnalyze(c fiber.Ctx) error {
	_, result, err := s.analyze(c)
	if result == nil {
		return err
	}
	return respond(c, fiber.StatusOK, "ok", result)
}

func (s *Server) handleCacheDelete(c fiber.Ctx) error {
	query, count, _, err := parseAnalyzeParams(c)
	if err != nil {
		return respond(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	key := analysis.Key(query, count)
	if err := s.store.Delete(c.Context(), key); err != nil {
		s.logger.Error("cache delete failed", zap.String("key", key), zap.Error(err))
		return respond(c, fiber.StatusInternalServerError, "cache delete failed", nil)
	}
	return respond(c, fiber.StatusOK, "ok", fiber.Map{"deleted": key})
}

func (s *Server) handleCacheFlush(c fiber.Ctx) error {
	if err := s.store.FlushAll(c.Context()); err != nil {
		s.logger.Error("cache flush failed", zap.Error(err))
		return respond(c, fiber.StatusInternalServerError, "cache flush failed", nil)
	}
	return respond(c, fiber.StatusOK, "ok", nil)
}

// cachedResult serves exports: only an already computed result can be
// downloaded, an unknown query is a 404.
func (s *Server) cachedResult(c fiber.Ctx) (string, *analysis.Result, error) {
	query, count, _, err := parseAnalyzeParams(c)
	if err != nil {
		return "", nil, respond(c, fiber.StatusBadRequest, err.Error(), nil)
	}

	key := analysis.Key(query, count)
	result, err := s.store.Get(c.Context(), key)
	if err != nil {
		s.logger.Error("cache read failed", zap.String("key", key), zap.Error(err))
		return "", nil, respond(c, fiber.StatusInternalServerError, "cache read failed", nil)
	}
	if result == nil {
		return "", nil, respond(c, fiber.StatusNotFound, "no cached result for this query, analyze it first", nil)
	}

	return query, result, nil
}

func (s *Server) handleExportCSV(c fiber.Ctx) error {
	query, result, err := s.cachedResult(c)
	if result == nil {
		return err
	}

	var buf bytes.Buffer
	if err := export.CSV(&buf, query, result); err != nil {
		s.logger.Error("csv export failed", zap.String("query", query), zap.Error(err))
		return respond(c, fiber.StatusInternalServerError, "export failed", nil)
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, attachment(query, "csv"))
	return c.Send(buf.Bytes())
}

func (s *Server) handleExportXLSX(c fiber.Ctx) error {
	query, result, err := s.cachedResult(c)
	if result == nil {
		return err
	}

	var buf bytes.Buffer
	if err := export.XLSX(&buf, query, result); err != nil {
		s.logger.Error("xlsx export failed", zap.String("query", query), zap.Error(err))
		return respond(c, fiber.StatusInternalServerError, "export failed", nil)
	}

	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, attachment(query, "xlsx"))
	return c.Send(buf.Bytes())
}

// attachment builds a filename like competences_data_engineer.csv from the
// raw query.
func attachment(query, ext string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return '_'
		default:
			return -1
		}
	}, strings.ToLower(query))
	if slug == "" {
		slug = "export"
	}
	return fmt.Sprintf(`attachment; filename="competences_%s.%s"`, slug, ext)
}
