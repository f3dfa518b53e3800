// Package api is the interface boundary for the presentation-layer
// collaborator (buttons, menus, popups live elsewhere). It exposes exactly
// the core commands: begin history completion, render and deliver each
// format, clear, and a count query. It owns no transcript state; clients
// must re-query after any mutating command.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chatscribe/internal/driver"
	"chatscribe/internal/render"
)

// Core is the capture engine surface the API consumes.
type Core interface {
	Capture(ctx context.Context) (driver.Result, error)
	Export(format render.Format) (render.File, error)
	Count() int
	Clear() error
}

// Server serves the control API.
type Server struct {
	core   Core
	logger *zap.Logger
}

func New(core Core, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{core: core, logger: logger}
}

// Router builds the HTTP routes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	v1 := r.Group("/api/v1")
	{
		v1.POST("/capture", s.handleCapture)
		v1.GET("/transcript/count", s.handleCount)
		v1.GET("/export/:format", s.handleExport)
		v1.DELETE("/transcript", s.handleClear)
	}
	return r
}

func (s *Server) handleCapture(c *gin.Context) {
	res, err := s.core.Capture(c.Request.Context())
	switch {
	case errors.Is(err, driver.ErrRunInProgress):
		// Concurrent request is a no-op, not a failure.
		c.JSON(http.StatusConflict, gin.H{"status": "already_running"})
	case errors.Is(err, driver.ErrNoScrollContainer):
		// Structural assumption violated; surfaced, never auto-retried.
		c.JSON(http.StatusBadGateway, gin.H{
			"status":  "failed",
			"message": "could not find the conversation scroll container; the site layout may have changed",
		})
	case err != nil:
		s.logger.Warn("capture failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "failed", "message": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "settled", "count": res.Total, "rounds": res.Rounds})
	}
}

func (s *Server) handleCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": s.core.Count()})
}

func (s *Server) handleExport(c *gin.Context) {
	format, err := render.ParseFormat(c.Param("format"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	file, err := s.core.Export(format)
	if err != nil {
		s.logger.Warn("export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	c.Data(http.StatusOK, file.MediaType, file.Data)
}

func (s *Server) handleClear(c *gin.Context) {
	if err := s.core.Clear(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": s.core.Count()})
}
