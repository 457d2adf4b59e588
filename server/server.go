// Package server wires the echo HTTP server: the JSON API, static image
// serving for uploads, the RSS feed and the metrics endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marku123123/petpals-new/internal/profile"
	"github.com/marku123123/petpals-new/match"
	apiv1 "github.com/marku123123/petpals-new/server/router/api/v1"
	"github.com/marku123123/petpals-new/store"
)

type Server struct {
	e *echo.Echo

	Profile *profile.Profile
	Store   *store.Store
	Engine  *match.Engine
}

func NewServer(ctx context.Context, profile *profile.Profile, store *store.Store, engine *match.Engine, registry *prometheus.Registry) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.BodyLimit("12M"))

	s := &Server{
		e:       e,
		Profile: profile,
		Store:   store,
		Engine:  engine,
	}

	uploadsDir := filepath.Join(profile.Data, "uploads")
	if err := os.MkdirAll(uploadsDir, 0750); err != nil {
		return nil, errors.Wrap(err, "failed to create uploads directory")
	}
	e.Static("/uploads", uploadsDir)

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "Service ready.")
	})
	if registry != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}

	apiService := apiv1.NewAPIV1Service(profile, store, engine)
	apiService.RegisterRoutes(e)

	return s, nil
}

func (s *Server) Start(_ context.Context) error {
	if s.Profile.UNIXSock != "" {
		listener, err := net.Listen("unix", s.Profile.UNIXSock)
		if err != nil {
			return errors.Wrapf(err, "failed to listen on unix socket %s", s.Profile.UNIXSock)
		}
		s.e.Listener = listener
		return s.e.Start("")
	}
	return s.e.Start(fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port))
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.e.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}
	if err := s.Store.Close(); err != nil {
		slog.Error("failed to close store", "error", err)
	}
	slog.Info("server stopped")
}
