// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package preview serves the built site locally along with run reports.
package preview

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pdiddy/paper-digest/pkg/types"
)

// RunLookup returns the latest run report for a date, or nil when none exists.
type RunLookup interface {
	LatestRun(ctx context.Context, date string) (*types.RunReport, error)
}

// NewRouter serves files from dir. When runs is non-nil, GET /api/runs/:date
// returns the latest run report for that date.
func NewRouter(dir string, runs RunLookup, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if runs != nil {
		r.GET("/api/runs/:date", func(c *gin.Context) {
			report, err := runs.LatestRun(c.Request.Context(), c.Param("date"))
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if report == nil {
				c.JSON(http.StatusNotFound, gin.H{"error": "no run for " + c.Param("date")})
				return
			}
			c.JSON(http.StatusOK, report)
		})
	}

	files := http.FileServer(http.Dir(dir))
	r.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusMethodNotAllowed)
			return
		}
		files.ServeHTTP(c.Writer, c.Request)
	})
	return r
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}
