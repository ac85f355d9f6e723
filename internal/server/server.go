// Package server exposes the IG package service over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/git-pkgs/igcache"
)

// Server represents the HTTP server
type Server struct {
	echo    *echo.Echo
	handler *Handler
	logger  *zap.Logger
}

// New creates a server for svc with all routes registered.
func New(svc *igcache.Service, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(RecoverMiddleware())
	e.Use(RequestIDMiddleware())
	e.Use(LoggerMiddleware(logger))

	h := NewHandler(svc, logger)
	RegisterRoutes(e.Group("/igs"), h)
	e.GET("/health", h.Health)

	return &Server{echo: e, handler: h, logger: logger}
}

// ServeHTTP makes Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on address until Shutdown is called.
func (s *Server) Start(address string) error {
	s.logger.Info("Starting server", zap.String("address", address))
	if err := s.echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
